package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

var _ persistence.TicketStore = new(TicketStore)

// TicketStore is the ticket system of record on PostgreSQL. The full ticket is
// kept as JSONB next to the columns the lookups need.
type TicketStore struct {
	pool   *pgxpool.Pool
	table  string
	encDec util.EncoderDecoder[model.Ticket]
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewTicketStore prepares table in the pool's database. An empty table name
// means "tickets".
func NewTicketStore(ctx context.Context, pool *pgxpool.Pool, table string) (*TicketStore, error) {
	if table == "" {
		table = "tickets"
	}
	s := &TicketStore{
		pool:   pool,
		table:  pgx.Identifier{table}.Sanitize(),
		encDec: util.NewJsonEncoderDecoder[model.Ticket](),
	}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TicketStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			idempotency_key TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL
		)`)
	if err != nil {
		return storageError("error in creating ticket schema", err)
	}
	return nil
}

func (s *TicketStore) Create(ctx context.Context, ticket *model.Ticket) error {
	data, err := s.encDec.Encode(*ticket)
	if err != nil {
		return err
	}
	var key any
	if ticket.IdempotencyKey != "" {
		key = ticket.IdempotencyKey
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (id, customer_id, status, idempotency_key, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ticket.Id, ticket.CustomerId, string(ticket.Status), key, ticket.CreatedAt, data,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticket %s: %w", ticket.Id, persistence.ErrAlreadyExists)
		}
		return storageError("error in creating ticket", err, zap.String("ticketId", ticket.Id))
	}
	return nil
}

func (s *TicketStore) Get(ctx context.Context, id string) (*model.Ticket, error) {
	return s.getBy(ctx, "id", id)
}

func (s *TicketStore) GetByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error) {
	return s.getBy(ctx, "idempotency_key", key)
}

func (s *TicketStore) getBy(ctx context.Context, column string, value string) (*model.Ticket, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM `+s.table+` WHERE `+column+` = $1`, value).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticket %s %s: %w", column, value, persistence.ErrNotFound)
		}
		return nil, storageError("error in getting ticket", err, zap.String(column, value))
	}
	return s.encDec.Decode(data)
}

func (s *TicketStore) Update(ctx context.Context, ticket *model.Ticket) error {
	data, err := s.encDec.Encode(*ticket)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+` SET status = $2, data = $3 WHERE id = $1`,
		ticket.Id, string(ticket.Status), data,
	)
	if err != nil {
		return storageError("error in updating ticket", err, zap.String("ticketId", ticket.Id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s: %w", ticket.Id, persistence.ErrNotFound)
	}
	return nil
}

func (s *TicketStore) ListByCustomer(ctx context.Context, customerId string) ([]*model.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM `+s.table+` WHERE customer_id = $1 ORDER BY created_at, id`, customerId)
	if err != nil {
		return nil, storageError("error in listing tickets", err, zap.String("customerId", customerId))
	}
	defer rows.Close()

	res := make([]*model.Ticket, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storageError("error in listing tickets", err, zap.String("customerId", customerId))
		}
		t, err := s.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error in listing tickets", err, zap.String("customerId", customerId))
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func storageError(msg string, err error, fields ...zap.Field) error {
	logger.Error(msg, append(fields, zap.Error(err))...)
	return persistence.StorageLayerError{Message: err.Error()}
}
