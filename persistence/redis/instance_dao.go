package redis

import (
	"context"
	"errors"
	"fmt"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

const INSTANCE_KEY string = "INSTANCE"
const ACTIVE_KEY string = "ACTIVE"
const STATUS_KEY string = "STATUS"

var allStatuses = []model.InstanceStatus{
	model.PENDING, model.RUNNING, model.WAITING_SIGNAL, model.WAITING_TIMER, model.COMPLETED, model.FAILED,
}

var _ persistence.InstanceStore = new(redisInstanceDao)

type redisInstanceDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowInstance]
}

func NewRedisInstanceDao(baseDao *baseDao, encoderDecoder util.EncoderDecoder[model.WorkflowInstance]) *redisInstanceDao {
	return &redisInstanceDao{
		baseDao:        baseDao,
		encoderDecoder: encoderDecoder,
	}
}

func (r *redisInstanceDao) statusKey(status model.InstanceStatus) string {
	return r.getNamespaceKey(STATUS_KEY, string(status))
}

func (r *redisInstanceDao) indexStatus(ctx context.Context, pipe rd.Pipeliner, inst *model.WorkflowInstance) {
	for _, s := range allStatuses {
		if s != inst.Status {
			pipe.SRem(ctx, r.statusKey(s), inst.Id)
		}
	}
	pipe.SAdd(ctx, r.statusKey(inst.Status), inst.Id)
}

func (r *redisInstanceDao) Create(ctx context.Context, inst *model.WorkflowInstance) error {
	data, err := r.encoderDecoder.Encode(*inst)
	if err != nil {
		return err
	}
	ok, err := r.redisClient.HSetNX(ctx, r.getNamespaceKey(INSTANCE_KEY), inst.Id, string(data)).Result()
	if err != nil {
		return storageError("error in creating instance", err, zap.String("instanceId", inst.Id))
	}
	if !ok {
		return fmt.Errorf("instance %s: %w", inst.Id, persistence.ErrAlreadyExists)
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, r.getNamespaceKey(ACTIVE_KEY), inst.BusinessKey, inst.Id)
		r.indexStatus(ctx, pipe, inst)
		return nil
	})
	if err != nil {
		return storageError("error in indexing instance", err, zap.String("instanceId", inst.Id))
	}
	return nil
}

func (r *redisInstanceDao) Save(ctx context.Context, inst *model.WorkflowInstance) error {
	data, err := r.encoderDecoder.Encode(*inst)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, r.getNamespaceKey(INSTANCE_KEY), inst.Id, string(data))
		r.indexStatus(ctx, pipe, inst)
		return nil
	})
	if err != nil {
		return storageError("error in saving instance", err, zap.String("instanceId", inst.Id))
	}
	return nil
}

func (r *redisInstanceDao) Get(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	data, err := r.redisClient.HGet(ctx, r.getNamespaceKey(INSTANCE_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, fmt.Errorf("instance %s: %w", id, persistence.ErrNotFound)
		}
		return nil, storageError("error in getting instance", err, zap.String("instanceId", id))
	}
	return r.encoderDecoder.Decode([]byte(data))
}

func (r *redisInstanceDao) GetActive(ctx context.Context, businessKey string) (*model.WorkflowInstance, error) {
	id, err := r.redisClient.HGet(ctx, r.getNamespaceKey(ACTIVE_KEY), businessKey).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, fmt.Errorf("active instance for %s: %w", businessKey, persistence.ErrNotFound)
		}
		return nil, storageError("error in getting active instance", err, zap.String("businessKey", businessKey))
	}
	return r.Get(ctx, id)
}

func (r *redisInstanceDao) ListByStatus(ctx context.Context, statuses ...model.InstanceStatus) ([]*model.WorkflowInstance, error) {
	if len(statuses) == 0 {
		statuses = allStatuses
	}
	keys := make([]string, 0, len(statuses))
	for _, s := range statuses {
		keys = append(keys, r.statusKey(s))
	}
	ids, err := r.redisClient.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, storageError("error in listing instances", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := r.redisClient.HMGet(ctx, r.getNamespaceKey(INSTANCE_KEY), ids...).Result()
	if err != nil {
		return nil, storageError("error in listing instances", err)
	}
	res := make([]*model.WorkflowInstance, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		inst, err := r.encoderDecoder.Decode([]byte(str))
		if err != nil {
			return nil, err
		}
		res = append(res, inst)
	}
	return res, nil
}
