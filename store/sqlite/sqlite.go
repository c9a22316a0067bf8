package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/stategraph/store"
)

// SqliteCheckpointStore implements store.CheckpointStore using SQLite.
// The table holds one row per thread id.
type SqliteCheckpointStore struct {
	db        *sql.DB
	tableName string
}

var _ store.CheckpointStore = (*SqliteCheckpointStore)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "checkpoints"
}

// NewSqliteCheckpointStore opens the database and creates the table if needed.
func NewSqliteCheckpointStore(opts SqliteOptions) (*SqliteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	s := &SqliteCheckpointStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			thread_id TEXT PRIMARY KEY,
			checkpoint_id TEXT NOT NULL,
			state TEXT NOT NULL,
			next TEXT NOT NULL,
			step INTEGER NOT NULL,
			status TEXT NOT NULL,
			truncated BOOLEAN NOT NULL DEFAULT 0,
			interrupt TEXT,
			version INTEGER NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteCheckpointStore) Close() error {
	return s.db.Close()
}

// Save upserts the thread's checkpoint row.
func (s *SqliteCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	stateJSON, err := store.MarshalValue(orEmpty(checkpoint.State))
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	next := checkpoint.Next
	if next == nil {
		next = []string{}
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal next nodes: %w", err)
	}
	interruptJSON, err := store.MarshalValue(checkpoint.Interrupt)
	if err != nil {
		return fmt.Errorf("failed to marshal interrupt: %w", err)
	}
	metadataJSON, err := store.MarshalValue(checkpoint.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (thread_id, checkpoint_id, state, next, step, status, truncated, interrupt, version, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			checkpoint_id = excluded.checkpoint_id,
			state = excluded.state,
			next = excluded.next,
			step = excluded.step,
			status = excluded.status,
			truncated = excluded.truncated,
			interrupt = excluded.interrupt,
			version = excluded.version,
			metadata = excluded.metadata,
			created_at = excluded.created_at
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		checkpoint.ThreadID,
		checkpoint.ID,
		string(stateJSON),
		string(nextJSON),
		checkpoint.Step,
		string(checkpoint.Status),
		checkpoint.Truncated,
		string(interruptJSON),
		checkpoint.Version,
		string(metadataJSON),
		checkpoint.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves the thread's checkpoint row.
func (s *SqliteCheckpointStore) Load(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT thread_id, checkpoint_id, state, next, step, status, truncated, interrupt, version, metadata, created_at
		FROM %s
		WHERE thread_id = ?
	`, s.tableName)

	var (
		cp            store.Checkpoint
		status        string
		stateJSON     string
		nextJSON      string
		interruptJSON sql.NullString
		metadataJSON  sql.NullString
		createdAt     time.Time
	)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&cp.ThreadID,
		&cp.ID,
		&stateJSON,
		&nextJSON,
		&cp.Step,
		&status,
		&cp.Truncated,
		&interruptJSON,
		&cp.Version,
		&metadataJSON,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.Status = store.Status(status)
	cp.CreatedAt = createdAt

	if cp.State, err = store.UnmarshalMap([]byte(stateJSON)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(nextJSON), &cp.Next); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next nodes: %w", err)
	}
	if interruptJSON.Valid && interruptJSON.String != "" {
		if cp.Interrupt, err = store.UnmarshalValue([]byte(interruptJSON.String)); err != nil {
			return nil, fmt.Errorf("failed to unmarshal interrupt: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if cp.Metadata, err = store.UnmarshalMap([]byte(metadataJSON.String)); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}

// Delete removes the thread's checkpoint row.
func (s *SqliteCheckpointStore) Delete(ctx context.Context, threadID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE thread_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns all thread ids in the table.
func (s *SqliteCheckpointStore) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT thread_id FROM %s ORDER BY thread_id", s.tableName)

	rows, err := s.db.QueryContext(ctx, query)
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

func orEmpty(state map[string]any) map[string]any {
	if state == nil {
		return map[string]any{}
	}
	return state
}
