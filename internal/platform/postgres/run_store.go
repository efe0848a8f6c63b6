package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/platform/logger"
	"github.com/phrazzld/fanout/internal/store"
)

const runColumns = `id, urls, mode, max_workers, fail_fast, status, items,
		error_message, created_at, updated_at, started_at, finished_at`

// RunStore implements the store.RunStore interface
// using a PostgreSQL database as the storage backend.
type RunStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure RunStore implements store.RunStore interface
var _ store.RunStore = (*RunStore)(nil)

// NewRunStore creates a new PostgreSQL implementation of the RunStore interface.
// It accepts a database connection that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewRunStore(db *sql.DB, logger *slog.Logger) *RunStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RunStore{
		db:     db,
		logger: logger.With(slog.String("component", "run_store")),
	}
}

// Create implements store.RunStore.Create
func (s *RunStore) Create(ctx context.Context, run *domain.Run) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := run.Validate(); err != nil {
		log.Warn("run validation failed during create",
			slog.String("error", err.Error()),
			slog.String("run_id", run.ID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	urls, items, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		urls,
		run.Mode,
		run.MaxWorkers,
		run.FailFast,
		string(run.Status),
		items,
		nullString(run.Error),
		run.CreatedAt,
		run.UpdatedAt,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("run already exists", slog.String("run_id", run.ID.String()))
		} else {
			log.Error("failed to create run",
				slog.String("error", err.Error()),
				slog.String("run_id", run.ID.String()))
		}
		return store.NewStoreError("run", "create", "failed to insert run", MapError(err))
	}

	log.Debug("run created",
		slog.String("run_id", run.ID.String()),
		slog.Int("url_count", len(run.URLs)))
	return nil
}

// Update implements store.RunStore.Update
// The stored status is read under a row lock so a finished run is never overwritten.
func (s *RunStore) Update(ctx context.Context, run *domain.Run) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	_, items, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		current, err := lockRunStatus(ctx, tx, run.ID)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return fmt.Errorf("%w: run %s is %s", store.ErrRunFinalized, run.ID, current)
		}
		return writeRunState(ctx, tx, run, items)
	})
	if err != nil {
		if !errors.Is(err, store.ErrRunFinalized) && !errors.Is(err, store.ErrRunNotFound) {
			log.Error("failed to update run",
				slog.String("error", err.Error()),
				slog.String("run_id", run.ID.String()))
		}
		return err
	}

	log.Debug("run updated",
		slog.String("run_id", run.ID.String()),
		slog.String("status", string(run.Status)))
	return nil
}

// lockRunStatus reads the stored status of a run and locks its row until the
// surrounding transaction ends.
func lockRunStatus(ctx context.Context, q store.DBTX, id uuid.UUID) (domain.RunStatus, error) {
	var current string
	err := q.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock run: %w", MapError(err))
	}
	return domain.RunStatus(current), nil
}

// writeRunState stores the mutable columns of run
func writeRunState(ctx context.Context, q store.DBTX, run *domain.Run, items []byte) error {
	result, err := q.ExecContext(ctx, `
		UPDATE runs
		SET status = $1, items = $2, error_message = $3,
			updated_at = $4, started_at = $5, finished_at = $6
		WHERE id = $7
	`,
		string(run.Status),
		items,
		nullString(run.Error),
		run.UpdatedAt,
		run.StartedAt,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", MapError(err))
	}
	return CheckRowsAffected(result)
}

// Get implements store.RunStore.Get
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("run not found", slog.String("run_id", id.String()))
			return nil, store.ErrRunNotFound
		}
		log.Error("failed to get run",
			slog.String("error", err.Error()),
			slog.String("run_id", id.String()))
		return nil, fmt.Errorf("failed to get run: %w", MapError(err))
	}

	return run, nil
}

// List implements store.RunStore.List
func (s *RunStore) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error("failed to list runs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list runs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*domain.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// ListUnfinished implements store.RunStore.ListUnfinished
func (s *RunStore) ListUnfinished(ctx context.Context) ([]*domain.Run, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + runColumns + ` FROM runs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to list unfinished runs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list unfinished runs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var (
		run        domain.Run
		urls       []byte
		items      []byte
		status     string
		errMessage sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&urls,
		&run.Mode,
		&run.MaxWorkers,
		&run.FailFast,
		&status,
		&items,
		&errMessage,
		&run.CreatedAt,
		&run.UpdatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(urls, &run.URLs); err != nil {
		return nil, fmt.Errorf("failed to decode run urls: %w", err)
	}
	if err := json.Unmarshal(items, &run.Items); err != nil {
		return nil, fmt.Errorf("failed to decode run items: %w", err)
	}

	run.Status = domain.RunStatus(status)
	run.Error = errMessage.String
	run.StartedAt = timePtr(startedAt)
	run.FinishedAt = timePtr(finishedAt)
	return &run, nil
}

func marshalRunJSON(run *domain.Run) (urls, items []byte, err error) {
	urls, err = json.Marshal(run.URLs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode run urls: %w", err)
	}
	items, err = json.Marshal(run.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode run items: %w", err)
	}
	return urls, items, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
