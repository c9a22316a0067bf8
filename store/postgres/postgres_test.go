package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/smallnest/stategraph/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loadColumns = []string{
	"thread_id", "checkpoint_id", "state", "next", "step", "status",
	"truncated", "interrupt", "version", "metadata", "created_at",
}

func TestPostgresCheckpointStore_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	cp := &store.Checkpoint{
		ID:        "cp-1",
		ThreadID:  "essay-1",
		State:     map[string]any{"count": 1},
		Next:      []string{"revisor"},
		Step:      2,
		Status:    store.StatusRunning,
		Version:   2,
		Metadata:  map[string]any{"source": "step"},
		CreatedAt: time.Now(),
	}

	stateJSON, _ := json.Marshal(cp.State)
	nextJSON, _ := json.Marshal(cp.Next)
	interruptJSON, _ := json.Marshal(cp.Interrupt)
	metadataJSON, _ := json.Marshal(cp.Metadata)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checkpoints")).
		WithArgs(
			cp.ThreadID,
			cp.ID,
			stateJSON,
			nextJSON,
			cp.Step,
			"running",
			false,
			interruptJSON,
			cp.Version,
			metadataJSON,
			cp.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.Save(context.Background(), cp)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Save_MarshalError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	cp := &store.Checkpoint{
		ThreadID: "essay-1",
		State:    map[string]any{"bad": make(chan int)}, // channels cannot be marshaled to JSON
	}

	err = s.Save(context.Background(), cp)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal state")
}

func TestPostgresCheckpointStore_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	createdAt := time.Now()
	rows := pgxmock.NewRows(loadColumns).
		AddRow("essay-1", "cp-1", []byte(`{"count":1}`), []byte(`["revisor"]`), 2, "suspended",
			false, []byte(`"approve?"`), 2, []byte(`{"source":"interrupt"}`), createdAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM checkpoints WHERE thread_id = $1")).
		WithArgs("essay-1").
		WillReturnRows(rows)

	loaded, err := s.Load(context.Background(), "essay-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", loaded.ID)
	assert.Equal(t, "essay-1", loaded.ThreadID)
	assert.Equal(t, []string{"revisor"}, loaded.Next)
	assert.Equal(t, store.StatusSuspended, loaded.Status)
	assert.Equal(t, "approve?", loaded.Interrupt)
	assert.Equal(t, 1, loaded.State["count"])
	assert.Equal(t, "interrupt", loaded.Metadata["source"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Load_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	mock.ExpectQuery(regexp.QuoteMeta("FROM checkpoints WHERE thread_id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	loaded, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, loaded)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Load_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	mock.ExpectQuery(regexp.QuoteMeta("FROM checkpoints WHERE thread_id = $1")).
		WithArgs("essay-1").
		WillReturnError(errors.New("database connection failed"))

	loaded, err := s.Load(context.Background(), "essay-1")
	assert.Error(t, err)
	assert.Nil(t, loaded)
	assert.Contains(t, err.Error(), "failed to load checkpoint")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Load_InvalidStateJSON(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	rows := pgxmock.NewRows(loadColumns).
		AddRow("essay-1", "cp-1", []byte("{invalid json"), []byte(`[]`), 1, "running",
			false, nil, 1, nil, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("FROM checkpoints WHERE thread_id = $1")).
		WithArgs("essay-1").
		WillReturnRows(rows)

	loaded, err := s.Load(context.Background(), "essay-1")
	assert.Error(t, err)
	assert.Nil(t, loaded)
	assert.Contains(t, err.Error(), "failed to unmarshal state")
}

func TestPostgresCheckpointStore_DeleteAndList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM checkpoints WHERE thread_id = $1")).
		WithArgs("essay-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT thread_id FROM checkpoints ORDER BY thread_id")).
		WillReturnRows(pgxmock.NewRows([]string{"thread_id"}).AddRow("a").AddRow("b"))

	require.NoError(t, s.Delete(context.Background(), "essay-1"))

	ids, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_InitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "reflexion_checkpoints")

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS reflexion_checkpoints")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
