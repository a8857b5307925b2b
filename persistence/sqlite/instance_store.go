package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

var _ persistence.InstanceStore = new(InstanceStore)

// InstanceStore keeps instances in SQLite. The caller opens the *sql.DB with a
// SQLite driver, usually modernc.org/sqlite registered as "sqlite".
type InstanceStore struct {
	db     *sql.DB
	encDec util.EncoderDecoder[model.WorkflowInstance]
}

// Open opens path with the modernc driver and prepares the schema. ":memory:"
// is pinned to a single connection so every query sees the same database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func NewInstanceStore(db *sql.DB) (*InstanceStore, error) {
	s := &InstanceStore{
		db:     db,
		encDec: util.NewJsonEncoderDecoder[model.WorkflowInstance](),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		business_key TEXT NOT NULL,
		generation INTEGER NOT NULL,
		status TEXT NOT NULL,
		data BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS instances_status ON instances(status)`,
	`CREATE TABLE IF NOT EXISTS active_instances (
		business_key TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL
	)`,
}

func (s *InstanceStore) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return storageError("error in creating instance schema", err)
		}
	}
	return nil
}

func (s *InstanceStore) Create(ctx context.Context, inst *model.WorkflowInstance) error {
	data, err := s.encDec.Encode(*inst)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("error in creating instance", err, zap.String("instanceId", inst.Id))
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM instances WHERE id = ?`, inst.Id).Scan(&exists)
	if err == nil {
		return fmt.Errorf("instance %s: %w", inst.Id, persistence.ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storageError("error in creating instance", err, zap.String("instanceId", inst.Id))
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO instances (id, business_key, generation, status, data)
		VALUES (?, ?, ?, ?, ?)`,
		inst.Id, inst.BusinessKey, inst.Generation, string(inst.Status), data,
	)
	if err != nil {
		return storageError("error in creating instance", err, zap.String("instanceId", inst.Id))
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_instances (business_key, instance_id) VALUES (?, ?)
		ON CONFLICT(business_key) DO UPDATE SET instance_id = excluded.instance_id`,
		inst.BusinessKey, inst.Id,
	)
	if err != nil {
		return storageError("error in moving active pointer", err, zap.String("instanceId", inst.Id))
	}
	if err := tx.Commit(); err != nil {
		return storageError("error in creating instance", err, zap.String("instanceId", inst.Id))
	}
	return nil
}

func (s *InstanceStore) Save(ctx context.Context, inst *model.WorkflowInstance) error {
	data, err := s.encDec.Encode(*inst)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE instances SET status = ?, data = ? WHERE id = ?`,
		string(inst.Status), data, inst.Id,
	)
	if err != nil {
		return storageError("error in saving instance", err, zap.String("instanceId", inst.Id))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageError("error in saving instance", err, zap.String("instanceId", inst.Id))
	}
	if affected == 0 {
		return fmt.Errorf("instance %s: %w", inst.Id, persistence.ErrNotFound)
	}
	return nil
}

func (s *InstanceStore) Get(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM instances WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("instance %s: %w", id, persistence.ErrNotFound)
		}
		return nil, storageError("error in getting instance", err, zap.String("instanceId", id))
	}
	return s.encDec.Decode(data)
}

func (s *InstanceStore) GetActive(ctx context.Context, businessKey string) (*model.WorkflowInstance, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT instance_id FROM active_instances WHERE business_key = ?`, businessKey).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active instance for %s: %w", businessKey, persistence.ErrNotFound)
		}
		return nil, storageError("error in getting active instance", err, zap.String("businessKey", businessKey))
	}
	return s.Get(ctx, id)
}

func (s *InstanceStore) ListByStatus(ctx context.Context, statuses ...model.InstanceStatus) ([]*model.WorkflowInstance, error) {
	query := `SELECT data FROM instances`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("error in listing instances", err)
	}
	defer rows.Close()

	var res []*model.WorkflowInstance
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storageError("error in listing instances", err)
		}
		inst, err := s.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		res = append(res, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error in listing instances", err)
	}
	return res, nil
}

func storageError(msg string, err error, fields ...zap.Field) error {
	logger.Error(msg, append(fields, zap.Error(err))...)
	return persistence.StorageLayerError{Message: err.Error()}
}
