package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/util"
	"golang.org/x/exp/slices"
)

var _ persistence.InstanceStore = new(InstanceStore)

// InstanceStore keeps encoded instances so callers never share state with the store.
type InstanceStore struct {
	mu        sync.RWMutex
	instances map[string][]byte
	active    map[string]string
	encDec    util.EncoderDecoder[model.WorkflowInstance]
}

func NewInstanceStore() *InstanceStore {
	return &InstanceStore{
		instances: make(map[string][]byte),
		active:    make(map[string]string),
		encDec:    util.NewJsonEncoderDecoder[model.WorkflowInstance](),
	}
}

func (s *InstanceStore) Create(ctx context.Context, inst *model.WorkflowInstance) error {
	data, err := s.encDec.Encode(*inst)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[inst.Id]; ok {
		return fmt.Errorf("instance %s: %w", inst.Id, persistence.ErrAlreadyExists)
	}
	s.instances[inst.Id] = data
	s.active[inst.BusinessKey] = inst.Id
	return nil
}

func (s *InstanceStore) Save(ctx context.Context, inst *model.WorkflowInstance) error {
	data, err := s.encDec.Encode(*inst)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.Id] = data
	return nil
}

func (s *InstanceStore) Get(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	s.mu.RLock()
	data, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, persistence.ErrNotFound)
	}
	return s.encDec.Decode(data)
}

func (s *InstanceStore) GetActive(ctx context.Context, businessKey string) (*model.WorkflowInstance, error) {
	s.mu.RLock()
	id, ok := s.active[businessKey]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("active instance for %s: %w", businessKey, persistence.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *InstanceStore) ListByStatus(ctx context.Context, statuses ...model.InstanceStatus) ([]*model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*model.WorkflowInstance
	for _, data := range s.instances {
		inst, err := s.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		if len(statuses) == 0 || slices.Contains(statuses, inst.Status) {
			res = append(res, inst)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Id < res[j].Id
	})
	return res, nil
}
