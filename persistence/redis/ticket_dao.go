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

const TICKET_KEY string = "TICKET"
const CUSTOMER_KEY string = "CUSTOMER"
const TICKET_IDEMPOTENCY_KEY string = "TICKET_KEY"

var _ persistence.TicketStore = new(redisTicketDao)

type redisTicketDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.Ticket]
}

func NewRedisTicketDao(baseDao *baseDao) *redisTicketDao {
	return &redisTicketDao{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Ticket](),
	}
}

func (r *redisTicketDao) Create(ctx context.Context, ticket *model.Ticket) error {
	data, err := r.encoderDecoder.Encode(*ticket)
	if err != nil {
		return err
	}
	if ticket.IdempotencyKey != "" {
		ok, err := r.redisClient.HSetNX(ctx, r.getNamespaceKey(TICKET_IDEMPOTENCY_KEY), ticket.IdempotencyKey, ticket.Id).Result()
		if err != nil {
			return storageError("error in reserving ticket key", err, zap.String("ticketId", ticket.Id))
		}
		if !ok {
			return fmt.Errorf("ticket key %s: %w", ticket.IdempotencyKey, persistence.ErrAlreadyExists)
		}
	}
	ok, err := r.redisClient.HSetNX(ctx, r.getNamespaceKey(TICKET_KEY), ticket.Id, string(data)).Result()
	if err != nil {
		return storageError("error in creating ticket", err, zap.String("ticketId", ticket.Id))
	}
	if !ok {
		return fmt.Errorf("ticket %s: %w", ticket.Id, persistence.ErrAlreadyExists)
	}
	member := rd.Z{
		Score:  float64(ticket.CreatedAt.UnixMilli()),
		Member: ticket.Id,
	}
	if err := r.redisClient.ZAdd(ctx, r.getNamespaceKey(CUSTOMER_KEY, ticket.CustomerId), member).Err(); err != nil {
		return storageError("error in indexing ticket", err, zap.String("ticketId", ticket.Id))
	}
	return nil
}

func (r *redisTicketDao) Get(ctx context.Context, id string) (*model.Ticket, error) {
	data, err := r.redisClient.HGet(ctx, r.getNamespaceKey(TICKET_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, fmt.Errorf("ticket %s: %w", id, persistence.ErrNotFound)
		}
		return nil, storageError("error in getting ticket", err, zap.String("ticketId", id))
	}
	return r.encoderDecoder.Decode([]byte(data))
}

func (r *redisTicketDao) Update(ctx context.Context, ticket *model.Ticket) error {
	key := r.getNamespaceKey(TICKET_KEY)
	exists, err := r.redisClient.HExists(ctx, key, ticket.Id).Result()
	if err != nil {
		return storageError("error in updating ticket", err, zap.String("ticketId", ticket.Id))
	}
	if !exists {
		return fmt.Errorf("ticket %s: %w", ticket.Id, persistence.ErrNotFound)
	}
	data, err := r.encoderDecoder.Encode(*ticket)
	if err != nil {
		return err
	}
	if err := r.redisClient.HSet(ctx, key, ticket.Id, string(data)).Err(); err != nil {
		return storageError("error in updating ticket", err, zap.String("ticketId", ticket.Id))
	}
	return nil
}

func (r *redisTicketDao) ListByCustomer(ctx context.Context, customerId string) ([]*model.Ticket, error) {
	ids, err := r.redisClient.ZRange(ctx, r.getNamespaceKey(CUSTOMER_KEY, customerId), 0, -1).Result()
	if err != nil {
		return nil, storageError("error in listing tickets", err, zap.String("customerId", customerId))
	}
	res := make([]*model.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r *redisTicketDao) GetByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error) {
	id, err := r.redisClient.HGet(ctx, r.getNamespaceKey(TICKET_IDEMPOTENCY_KEY), key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, fmt.Errorf("ticket key %s: %w", key, persistence.ErrNotFound)
		}
		return nil, storageError("error in getting ticket by key", err, zap.String("key", key))
	}
	return r.Get(ctx, id)
}
