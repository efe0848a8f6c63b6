package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runRowColumns = []string{
	"id", "urls", "mode", "max_workers", "fail_fast", "status", "items",
	"error_message", "created_at", "updated_at", "started_at", "finished_at",
}

func newMockStore(t *testing.T) (*RunStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRunStore(db, nil), mock
}

func newTestRun(t *testing.T) *domain.Run {
	t.Helper()
	run, err := domain.NewRun([]string{"https://example.com/a", "https://example.com/b"},
		domain.RunOptions{Mode: "fail_fast", MaxWorkers: 2})
	require.NoError(t, err)
	return run
}

func runRow(t *testing.T, run *domain.Run) []driver.Value {
	t.Helper()
	urls, err := json.Marshal(run.URLs)
	require.NoError(t, err)
	items, err := json.Marshal(run.Items)
	require.NoError(t, err)

	var errMessage, startedAt, finishedAt driver.Value
	if run.Error != "" {
		errMessage = run.Error
	}
	if run.StartedAt != nil {
		startedAt = *run.StartedAt
	}
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	return []driver.Value{
		run.ID.String(), urls, run.Mode, int64(run.MaxWorkers), run.FailFast,
		string(run.Status), items, errMessage, run.CreatedAt, run.UpdatedAt,
		startedAt, finishedAt,
	}
}

func TestNewRunStore_NilDBPanics(t *testing.T) {
	assert.Panics(t, func() { NewRunStore(nil, nil) })
}

func TestRunStore_Create(t *testing.T) {
	s, mock := newMockStore(t)
	run := newTestRun(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(run.ID, sqlmock.AnyArg(), "fail_fast", 2, false, "pending",
			sqlmock.AnyArg(), sqlmock.AnyArg(), run.CreatedAt, run.UpdatedAt, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_CreateDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	run := newTestRun(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "runs_pkey"})

	err := s.Create(context.Background(), run)

	assert.ErrorIs(t, err, store.ErrDuplicate)
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "create", storeErr.Operation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_CreateInvalid(t *testing.T) {
	s, mock := newMockStore(t)
	run := newTestRun(t)
	run.URLs = nil

	err := s.Create(context.Background(), run)

	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.ErrorIs(t, err, domain.ErrEmptyURLs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	run := newTestRun(t)
	run.Start()
	run.Items[0].Status = domain.ItemStatusAnalyzed
	run.Items[0].Analysis = &domain.Analysis{URL: run.URLs[0], Bytes: 12, Lines: 1, Words: 2, SHA256: "abc"}
	run.Items[1].Status = domain.ItemStatusFetchFailed
	run.Items[1].Error = "unexpected status 500"
	require.NoError(t, run.Finish(domain.RunStatusPartial, "1 of 2 items failed"))

	mock.ExpectQuery(`SELECT (.+) FROM runs WHERE id = \$1`).
		WithArgs(run.ID).
		WillReturnRows(sqlmock.NewRows(runRowColumns).AddRow(runRow(t, run)...))

	got, err := s.Get(context.Background(), run.ID)

	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.URLs, got.URLs)
	assert.Equal(t, domain.RunStatusPartial, got.Status)
	assert.Equal(t, run.Items, got.Items)
	assert.Equal(t, "1 of 2 items failed", got.Error)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, run.FinishedAt.Equal(*got.FinishedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM runs WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), id)

	assert.ErrorIs(t, err, store.ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_Update(t *testing.T) {
	s, mock := newMockStore(t)
	run := newTestRun(t)
	run.Start()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM runs WHERE id = \$1 FOR UPDATE`).
		WithArgs(run.ID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE runs`).
		WithArgs("running", sqlmock.AnyArg(), sqlmock.AnyArg(), run.UpdatedAt,
			*run.StartedAt, nil, run.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Update(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_UpdateErrors(t *testing.T) {
	tests := []struct {
		name     string
		expect   func(mock sqlmock.Sqlmock, id uuid.UUID)
		expected error
	}{
		{
			name: "missing run",
			expect: func(mock sqlmock.Sqlmock, id uuid.UUID) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT status FROM runs`).WithArgs(id).WillReturnError(sql.ErrNoRows)
				mock.ExpectRollback()
			},
			expected: store.ErrRunNotFound,
		},
		{
			name: "finalized run",
			expect: func(mock sqlmock.Sqlmock, id uuid.UUID) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT status FROM runs`).WithArgs(id).
					WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
				mock.ExpectRollback()
			},
			expected: store.ErrRunFinalized,
		},
		{
			name: "row vanished",
			expect: func(mock sqlmock.Sqlmock, id uuid.UUID) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT status FROM runs`).WithArgs(id).
					WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("running"))
				mock.ExpectExec(`UPDATE runs`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			expected: store.ErrRunNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			run := newTestRun(t)
			tc.expect(mock, run.ID)

			err := s.Update(context.Background(), run)

			assert.ErrorIs(t, err, tc.expected)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunStore_List(t *testing.T) {
	s, mock := newMockStore(t)
	newer := newTestRun(t)
	older := newTestRun(t)
	older.CreatedAt = newer.CreatedAt.Add(-time.Minute)

	mock.ExpectQuery(`SELECT (.+) FROM runs ORDER BY created_at DESC, id DESC LIMIT \$1`).
		WithArgs(store.DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow(runRow(t, newer)...).
			AddRow(runRow(t, older)...))

	runs, err := s.List(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)
	assert.Nil(t, runs[1].StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_ListCorruptItems(t *testing.T) {
	s, mock := newMockStore(t)
	run := newTestRun(t)
	row := runRow(t, run)
	row[6] = []byte("{not json")

	mock.ExpectQuery(`SELECT (.+) FROM runs`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(runRowColumns).AddRow(row...))

	_, err := s.List(context.Background(), 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode run items")
}

func TestRunStore_ListUnfinished(t *testing.T) {
	s, mock := newMockStore(t)
	pending := newTestRun(t)
	running := newTestRun(t)
	running.Start()

	mock.ExpectQuery(`SELECT (.+) FROM runs\s+WHERE status IN \('pending', 'running'\)`).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow(runRow(t, pending)...).
			AddRow(runRow(t, running)...))

	runs, err := s.ListUnfinished(context.Background())

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunStatusPending, runs[0].Status)
	assert.Equal(t, domain.RunStatusRunning, runs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
