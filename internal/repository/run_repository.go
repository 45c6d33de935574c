package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
	"github.com/jengzang/refugia-backend-go/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// RunRepository handles database operations for pipeline runs
type RunRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunRepository creates a new pipeline run repository
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db, now: time.Now}
}

var _ analysis.Tracker = (*RunRepository)(nil)

const runColumns = `
	id, status, stage, progress_percent, params_json, trajectory_rows,
	climate_rows, result_summary, error_message, created_by, created_at,
	started_at, completed_at`

// Create inserts a new run; CreatedAt defaults to now
func (r *RunRepository) Create(ctx context.Context, run *models.PipelineRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now().UTC().Truncate(time.Second)
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	query := `
		INSERT INTO pipeline_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.Stage,
		run.ProgressPercent,
		run.ParamsJSON,
		run.TrajectoryRows,
		run.ClimateRows,
		run.ResultSummary,
		run.ErrorMessage,
		run.CreatedBy,
		run.CreatedAt.Unix(),
		unixOrNil(run.StartedAt),
		unixOrNil(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}
	return run, nil
}

// List retrieves runs, newest first, optionally filtered by status
func (r *RunRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE 1=1`

	args := []interface{}{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.PipelineRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Count returns the number of runs, optionally filtered by status
func (r *RunRepository) Count(ctx context.Context, status string) (int64, error) {
	query := `SELECT COUNT(*) FROM pipeline_runs`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pipeline runs: %w", err)
	}
	return n, nil
}

// MarkRunning marks a run as running
func (r *RunRepository) MarkRunning(ctx context.Context, id string) error {
	query := `
		UPDATE pipeline_runs
		SET status = ?, started_at = ?, progress_percent = 0
		WHERE id = ?
	`
	return r.exec(ctx, "mark run as running", query, models.RunStatusRunning, r.now().Unix(), id)
}

// UpdateProgress records the stage a run has entered
func (r *RunRepository) UpdateProgress(ctx context.Context, id string, progress analysis.Progress) error {
	query := `
		UPDATE pipeline_runs
		SET stage = ?, progress_percent = ?
		WHERE id = ?
	`
	return r.exec(ctx, "update run progress", query, progress.Stage, int(progress.Percent), id)
}

// MarkCompleted marks a run as completed with a result summary
func (r *RunRepository) MarkCompleted(ctx context.Context, id string, summary string) error {
	query := `
		UPDATE pipeline_runs
		SET status = ?, completed_at = ?, result_summary = ?, progress_percent = 100
		WHERE id = ?
	`
	return r.exec(ctx, "mark run as completed", query, models.RunStatusCompleted, r.now().Unix(), summary, id)
}

// MarkFailed marks a run as failed with an error message
func (r *RunRepository) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	query := `
		UPDATE pipeline_runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`
	return r.exec(ctx, "mark run as failed", query, models.RunStatusFailed, r.now().Unix(), errorMsg, id)
}

func (r *RunRepository) exec(ctx context.Context, what, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to %s: %w", what, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.PipelineRun, error) {
	run := &models.PipelineRun{}
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.Stage,
		&run.ProgressPercent,
		&run.ParamsJSON,
		&run.TrajectoryRows,
		&run.ClimateRows,
		&run.ResultSummary,
		&run.ErrorMessage,
		&run.CreatedBy,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	run.StartedAt = timeOrNil(startedAt)
	run.CompletedAt = timeOrNil(completedAt)
	return run, nil
}
