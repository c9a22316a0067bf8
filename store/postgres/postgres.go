package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/stategraph/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCheckpointStore implements store.CheckpointStore using PostgreSQL.
// The table holds one row per thread id.
type PostgresCheckpointStore struct {
	pool      DBPool
	tableName string
}

var _ store.CheckpointStore = (*PostgresCheckpointStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "checkpoints"
}

// NewPostgresCheckpointStore creates a new Postgres checkpoint store
func NewPostgresCheckpointStore(ctx context.Context, opts PostgresOptions) (*PostgresCheckpointStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPostgresCheckpointStoreWithPool(pool, opts.TableName), nil
}

// NewPostgresCheckpointStoreWithPool creates a new Postgres checkpoint store with an existing pool
// Useful for testing with mocks
func NewPostgresCheckpointStoreWithPool(pool DBPool, tableName string) *PostgresCheckpointStore {
	if tableName == "" {
		tableName = "checkpoints"
	}
	return &PostgresCheckpointStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			thread_id TEXT PRIMARY KEY,
			checkpoint_id TEXT NOT NULL,
			state JSONB NOT NULL,
			next JSONB NOT NULL,
			step INTEGER NOT NULL,
			status TEXT NOT NULL,
			truncated BOOLEAN NOT NULL DEFAULT FALSE,
			interrupt JSONB,
			version INTEGER NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresCheckpointStore) Close() {
	s.pool.Close()
}

// Save upserts the thread's checkpoint row.
func (s *PostgresCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	cols, err := encodeColumns(checkpoint)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (thread_id, checkpoint_id, state, next, step, status, truncated, interrupt, version, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (thread_id) DO UPDATE SET
			checkpoint_id = EXCLUDED.checkpoint_id,
			state = EXCLUDED.state,
			next = EXCLUDED.next,
			step = EXCLUDED.step,
			status = EXCLUDED.status,
			truncated = EXCLUDED.truncated,
			interrupt = EXCLUDED.interrupt,
			version = EXCLUDED.version,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		checkpoint.ThreadID,
		checkpoint.ID,
		cols.state,
		cols.next,
		checkpoint.Step,
		string(checkpoint.Status),
		checkpoint.Truncated,
		cols.interrupt,
		checkpoint.Version,
		cols.metadata,
		checkpoint.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves the thread's checkpoint row.
func (s *PostgresCheckpointStore) Load(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT thread_id, checkpoint_id, state, next, step, status, truncated, interrupt, version, metadata, created_at
		FROM %s
		WHERE thread_id = $1
	`, s.tableName)

	var (
		cp     store.Checkpoint
		status string
		cols   jsonColumns
	)
	err := s.pool.QueryRow(ctx, query, threadID).Scan(
		&cp.ThreadID,
		&cp.ID,
		&cols.state,
		&cols.next,
		&cp.Step,
		&status,
		&cp.Truncated,
		&cols.interrupt,
		&cp.Version,
		&cols.metadata,
		&cp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.Status = store.Status(status)

	if err := cols.decode(&cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Delete removes the thread's checkpoint row.
func (s *PostgresCheckpointStore) Delete(ctx context.Context, threadID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE thread_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns all thread ids in the table.
func (s *PostgresCheckpointStore) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT thread_id FROM %s ORDER BY thread_id", s.tableName)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread rows: %w", err)
	}
	return ids, nil
}

// jsonColumns carries the JSON-encoded columns of a checkpoint row.
type jsonColumns struct {
	state     []byte
	next      []byte
	interrupt []byte
	metadata  []byte
}

func encodeColumns(cp *store.Checkpoint) (jsonColumns, error) {
	var cols jsonColumns
	var err error

	state := cp.State
	if state == nil {
		state = map[string]any{}
	}
	if cols.state, err = store.MarshalValue(state); err != nil {
		return cols, fmt.Errorf("failed to marshal state: %w", err)
	}
	next := cp.Next
	if next == nil {
		next = []string{}
	}
	if cols.next, err = json.Marshal(next); err != nil {
		return cols, fmt.Errorf("failed to marshal next nodes: %w", err)
	}
	if cols.interrupt, err = store.MarshalValue(cp.Interrupt); err != nil {
		return cols, fmt.Errorf("failed to marshal interrupt: %w", err)
	}
	if cols.metadata, err = store.MarshalValue(cp.Metadata); err != nil {
		return cols, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return cols, nil
}

func (c jsonColumns) decode(cp *store.Checkpoint) error {
	var err error
	if cp.State, err = store.UnmarshalMap(c.state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal(c.next, &cp.Next); err != nil {
		return fmt.Errorf("failed to unmarshal next nodes: %w", err)
	}
	if len(c.interrupt) > 0 {
		if cp.Interrupt, err = store.UnmarshalValue(c.interrupt); err != nil {
			return fmt.Errorf("failed to unmarshal interrupt: %w", err)
		}
	}
	if len(c.metadata) > 0 {
		if cp.Metadata, err = store.UnmarshalMap(c.metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return nil
}
