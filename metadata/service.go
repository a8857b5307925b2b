package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"go.uber.org/zap"
)

// MetadataService is the registry of compiled, versioned execution plans.
// Plans are immutable once stored, every registration adds an active
// version. New instances start on the latest active version.
type MetadataService interface {
	Register(ctx context.Context, name string, g model.Graph) (*model.ExecutionPlan, error)
	Validate(name string, g model.Graph) (*model.ExecutionPlan, error)
	Get(ctx context.Context, name string, version int) (*model.ExecutionPlan, error)
	Latest(ctx context.Context, name string) (*model.ExecutionPlan, error)
	LatestActive(ctx context.Context, name string) (*model.ExecutionPlan, error)
	Deactivate(ctx context.Context, name string, version int) error
	Versions(ctx context.Context, name string) ([]int, error)
	Summaries(ctx context.Context, name string) ([]model.PlanSummary, error)
	Names(ctx context.Context) ([]string, error)
	Bootstrap(ctx context.Context) error
}

type MetadataServiceImpl struct {
	storage  persistence.PlanStore
	compiler *compiler.Compiler
	cache    *PlanCache
	mu       sync.Mutex
}

func NewMetadataService(storage persistence.PlanStore, c *compiler.Compiler) MetadataService {
	return &MetadataServiceImpl{
		storage:  storage,
		compiler: c,
		cache:    NewPlanCache(),
	}
}

func (s *MetadataServiceImpl) Validate(name string, g model.Graph) (*model.ExecutionPlan, error) {
	return s.compiler.Compile(name, g)
}

func (s *MetadataServiceImpl) Register(ctx context.Context, name string, g model.Graph) (*model.ExecutionPlan, error) {
	plan, err := s.compiler.Compile(name, g)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	version := 1
	latest, err := s.storage.Latest(ctx, name)
	if err == nil {
		version = latest.Version + 1
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	stamped := plan.WithVersion(version)
	if err := s.storage.Save(ctx, stamped); err != nil {
		return nil, err
	}
	s.cache.InvalidateLatest(name)
	s.cache.Save(stamped)
	logger.Info("plan registered", zap.String("plan", name), zap.Int("version", version), zap.Int("steps", len(stamped.Steps)))
	return stamped, nil
}

func (s *MetadataServiceImpl) Get(ctx context.Context, name string, version int) (*model.ExecutionPlan, error) {
	if plan, ok := s.cache.Get(name, version); ok {
		return plan, nil
	}
	plan, err := s.storage.Get(ctx, name, version)
	if err != nil {
		return nil, err
	}
	s.cache.Save(plan)
	return plan, nil
}

// Latest returns the highest version of name, active or not.
func (s *MetadataServiceImpl) Latest(ctx context.Context, name string) (*model.ExecutionPlan, error) {
	return s.storage.Latest(ctx, name)
}

func (s *MetadataServiceImpl) LatestActive(ctx context.Context, name string) (*model.ExecutionPlan, error) {
	if plan, ok := s.cache.GetLatest(name); ok {
		return plan, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries, err := s.storage.Summaries(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := len(summaries) - 1; i >= 0; i-- {
		if !summaries[i].Active {
			continue
		}
		plan, err := s.Get(ctx, name, summaries[i].Version)
		if err != nil {
			return nil, err
		}
		s.cache.SaveLatest(plan)
		return plan, nil
	}
	return nil, fmt.Errorf("plan %s has no active version: %w", name, persistence.ErrNotFound)
}

// Deactivate withdraws a version from new instances. Instances already
// running on it are not affected.
func (s *MetadataServiceImpl) Deactivate(ctx context.Context, name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Deactivate(ctx, name, version); err != nil {
		return err
	}
	s.cache.InvalidateLatest(name)
	logger.Info("plan deactivated", zap.String("plan", name), zap.Int("version", version))
	return nil
}

func (s *MetadataServiceImpl) Versions(ctx context.Context, name string) ([]int, error) {
	return s.storage.Versions(ctx, name)
}

func (s *MetadataServiceImpl) Summaries(ctx context.Context, name string) ([]model.PlanSummary, error) {
	return s.storage.Summaries(ctx, name)
}

func (s *MetadataServiceImpl) Names(ctx context.Context) ([]string, error) {
	return s.storage.Names(ctx)
}

// Bootstrap registers the built-in ticket plan when no version of it exists.
func (s *MetadataServiceImpl) Bootstrap(ctx context.Context) error {
	_, err := s.storage.Latest(ctx, compiler.DEFAULT_PLAN_NAME)
	if err == nil {
		return nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	_, err = s.Register(ctx, compiler.DEFAULT_PLAN_NAME, compiler.DefaultTicketGraph())
	return err
}
