package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

const PLAN_KEY string = "PLAN"
const PLAN_NAMES_KEY string = "PLAN_NAMES"
const PLAN_INACTIVE_KEY string = "PLAN_INACTIVE"

var _ persistence.PlanStore = new(redisPlanDao)

type redisPlanDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.ExecutionPlan]
}

func NewRedisPlanDao(baseDao *baseDao) *redisPlanDao {
	return &redisPlanDao{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.ExecutionPlan](),
	}
}

func (r *redisPlanDao) Save(ctx context.Context, plan *model.ExecutionPlan) error {
	data, err := r.encoderDecoder.Encode(*plan)
	if err != nil {
		return err
	}
	ok, err := r.redisClient.HSetNX(ctx, r.getNamespaceKey(PLAN_KEY, plan.Name), strconv.Itoa(plan.Version), string(data)).Result()
	if err != nil {
		return storageError("error in saving plan", err, zap.String("plan", plan.Name), zap.Int("version", plan.Version))
	}
	if !ok {
		return fmt.Errorf("plan %s version %d: %w", plan.Name, plan.Version, persistence.ErrAlreadyExists)
	}
	if err := r.redisClient.SAdd(ctx, r.getNamespaceKey(PLAN_NAMES_KEY), plan.Name).Err(); err != nil {
		return storageError("error in indexing plan name", err, zap.String("plan", plan.Name))
	}
	return nil
}

func (r *redisPlanDao) Get(ctx context.Context, name string, version int) (*model.ExecutionPlan, error) {
	data, err := r.redisClient.HGet(ctx, r.getNamespaceKey(PLAN_KEY, name), strconv.Itoa(version)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, fmt.Errorf("plan %s version %d: %w", name, version, persistence.ErrNotFound)
		}
		return nil, storageError("error in getting plan", err, zap.String("plan", name), zap.Int("version", version))
	}
	return r.encoderDecoder.Decode([]byte(data))
}

func (r *redisPlanDao) Latest(ctx context.Context, name string) (*model.ExecutionPlan, error) {
	versions, err := r.Versions(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, name, versions[len(versions)-1])
}

func (r *redisPlanDao) Versions(ctx context.Context, name string) ([]int, error) {
	fields, err := r.redisClient.HKeys(ctx, r.getNamespaceKey(PLAN_KEY, name)).Result()
	if err != nil {
		return nil, storageError("error in listing plan versions", err, zap.String("plan", name))
	}
	versions := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("plan %s: %w", name, persistence.ErrNotFound)
	}
	sort.Ints(versions)
	return versions, nil
}

func (r *redisPlanDao) Deactivate(ctx context.Context, name string, version int) error {
	field := strconv.Itoa(version)
	exists, err := r.redisClient.HExists(ctx, r.getNamespaceKey(PLAN_KEY, name), field).Result()
	if err != nil {
		return storageError("error in deactivating plan", err, zap.String("plan", name), zap.Int("version", version))
	}
	if !exists {
		return fmt.Errorf("plan %s version %d: %w", name, version, persistence.ErrNotFound)
	}
	if err := r.redisClient.SAdd(ctx, r.getNamespaceKey(PLAN_INACTIVE_KEY, name), field).Err(); err != nil {
		return storageError("error in deactivating plan", err, zap.String("plan", name), zap.Int("version", version))
	}
	return nil
}

func (r *redisPlanDao) Summaries(ctx context.Context, name string) ([]model.PlanSummary, error) {
	plans, err := r.redisClient.HGetAll(ctx, r.getNamespaceKey(PLAN_KEY, name)).Result()
	if err != nil {
		return nil, storageError("error in listing plan summaries", err, zap.String("plan", name))
	}
	inactive, err := r.redisClient.SMembers(ctx, r.getNamespaceKey(PLAN_INACTIVE_KEY, name)).Result()
	if err != nil {
		return nil, storageError("error in listing plan summaries", err, zap.String("plan", name))
	}
	off := make(map[string]bool, len(inactive))
	for _, v := range inactive {
		off[v] = true
	}
	summaries := make([]model.PlanSummary, 0, len(plans))
	for field, data := range plans {
		v, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		plan, err := r.encoderDecoder.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, model.PlanSummary{Name: name, Version: v, Active: !off[field], Steps: len(plan.Steps)})
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("plan %s: %w", name, persistence.ErrNotFound)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Version < summaries[j].Version
	})
	return summaries, nil
}

func (r *redisPlanDao) Names(ctx context.Context) ([]string, error) {
	names, err := r.redisClient.SMembers(ctx, r.getNamespaceKey(PLAN_NAMES_KEY)).Result()
	if err != nil {
		return nil, storageError("error in listing plan names", err)
	}
	sort.Strings(names)
	return names, nil
}
