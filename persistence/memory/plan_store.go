package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
)

var _ persistence.PlanStore = new(PlanStore)

type PlanStore struct {
	mu       sync.RWMutex
	plans    map[string]map[int]*model.ExecutionPlan
	inactive map[string]map[int]bool
}

func NewPlanStore() *PlanStore {
	return &PlanStore{
		plans:    make(map[string]map[int]*model.ExecutionPlan),
		inactive: make(map[string]map[int]bool),
	}
}

func (s *PlanStore) Save(ctx context.Context, plan *model.ExecutionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.plans[plan.Name]
	if !ok {
		versions = make(map[int]*model.ExecutionPlan)
		s.plans[plan.Name] = versions
	}
	if _, ok := versions[plan.Version]; ok {
		return fmt.Errorf("plan %s version %d: %w", plan.Name, plan.Version, persistence.ErrAlreadyExists)
	}
	versions[plan.Version] = plan.WithVersion(plan.Version)
	return nil
}

func (s *PlanStore) Get(ctx context.Context, name string, version int) (*model.ExecutionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[name][version]
	if !ok {
		return nil, fmt.Errorf("plan %s version %d: %w", name, version, persistence.ErrNotFound)
	}
	return plan.WithVersion(version), nil
}

func (s *PlanStore) Latest(ctx context.Context, name string) (*model.ExecutionPlan, error) {
	versions, err := s.Versions(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, name, versions[len(versions)-1])
}

func (s *PlanStore) Versions(ctx context.Context, name string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions(name)
}

func (s *PlanStore) versions(name string) ([]int, error) {
	versions := make([]int, 0, len(s.plans[name]))
	for v := range s.plans[name] {
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("plan %s: %w", name, persistence.ErrNotFound)
	}
	sort.Ints(versions)
	return versions, nil
}

func (s *PlanStore) Deactivate(ctx context.Context, name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[name][version]; !ok {
		return fmt.Errorf("plan %s version %d: %w", name, version, persistence.ErrNotFound)
	}
	if s.inactive[name] == nil {
		s.inactive[name] = make(map[int]bool)
	}
	s.inactive[name][version] = true
	return nil
}

func (s *PlanStore) Summaries(ctx context.Context, name string) ([]model.PlanSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, err := s.versions(name)
	if err != nil {
		return nil, err
	}
	summaries := make([]model.PlanSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, model.PlanSummary{
			Name:    name,
			Version: v,
			Active:  !s.inactive[name][v],
			Steps:   len(s.plans[name][v].Steps),
		})
	}
	return summaries, nil
}

func (s *PlanStore) Names(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.plans))
	for name := range s.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
