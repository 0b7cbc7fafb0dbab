package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"stem420/internal/models"
)

// RunRepository is the data access layer for run records.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run in the queued state. The run's ID is generated
// when empty.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now()
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, destination, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Destination, run.Status, run.CreatedAt,
	)
	return err
}

// Start marks a run as running.
func (r *RunRepository) Start(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, started_at = ? WHERE id = ?`,
		models.RunStatusRunning, now, id,
	)
	return err
}

// Complete marks a run as completed.
func (r *RunRepository) Complete(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ? WHERE id = ?`,
		models.RunStatusCompleted, now, id,
	)
	return err
}

// Fail marks a run as failed with the given error text.
func (r *RunRepository) Fail(ctx context.Context, id string, errorMsg string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		models.RunStatusFailed, errorMsg, now, id,
	)
	return err
}

// GetByID returns a run by ID, or nil when it does not exist.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, source, destination, status, error, created_at, started_at, completed_at
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRecent returns the most recently created runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source, destination, status, error, created_at, started_at, completed_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountByStatus returns the number of runs per status.
func (r *RunRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM runs GROUP BY status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.Source, &run.Destination, &run.Status,
		&errMsg, &run.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}
