package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/util"
)

var _ persistence.TicketStore = new(TicketStore)

type TicketStore struct {
	mu          sync.RWMutex
	tickets     map[string][]byte
	byCustomer  map[string][]string
	idempotency map[string]string
	encDec      util.EncoderDecoder[model.Ticket]
}

func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets:     make(map[string][]byte),
		byCustomer:  make(map[string][]string),
		idempotency: make(map[string]string),
		encDec:      util.NewJsonEncoderDecoder[model.Ticket](),
	}
}

func (s *TicketStore) Create(ctx context.Context, ticket *model.Ticket) error {
	data, err := s.encDec.Encode(*ticket)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.Id]; ok {
		return fmt.Errorf("ticket %s: %w", ticket.Id, persistence.ErrAlreadyExists)
	}
	if ticket.IdempotencyKey != "" {
		if _, ok := s.idempotency[ticket.IdempotencyKey]; ok {
			return fmt.Errorf("ticket key %s: %w", ticket.IdempotencyKey, persistence.ErrAlreadyExists)
		}
		s.idempotency[ticket.IdempotencyKey] = ticket.Id
	}
	s.tickets[ticket.Id] = data
	s.byCustomer[ticket.CustomerId] = append(s.byCustomer[ticket.CustomerId], ticket.Id)
	return nil
}

func (s *TicketStore) Get(ctx context.Context, id string) (*model.Ticket, error) {
	s.mu.RLock()
	data, ok := s.tickets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, persistence.ErrNotFound)
	}
	return s.encDec.Decode(data)
}

func (s *TicketStore) Update(ctx context.Context, ticket *model.Ticket) error {
	data, err := s.encDec.Encode(*ticket)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.Id]; !ok {
		return fmt.Errorf("ticket %s: %w", ticket.Id, persistence.ErrNotFound)
	}
	s.tickets[ticket.Id] = data
	return nil
}

func (s *TicketStore) ListByCustomer(ctx context.Context, customerId string) ([]*model.Ticket, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.byCustomer[customerId]...)
	s.mu.RUnlock()
	res := make([]*model.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (s *TicketStore) GetByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error) {
	s.mu.RLock()
	id, ok := s.idempotency[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ticket key %s: %w", key, persistence.ErrNotFound)
	}
	return s.Get(ctx, id)
}
