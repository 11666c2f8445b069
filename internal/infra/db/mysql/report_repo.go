package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/gamesight/visualqa/internal/domain/reports"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportCols = `id, test_run_id, game_title, format, include_screenshots, status,
       requested_at, started_at, completed_at, artifact_ref, file_size_bytes,
       error_message, cost_summary, performance_summary`

// Save insert/update ReportJob record
func (r *ReportRepository) Save(ctx context.Context, j *domain.ReportJob) error {
	const q = `
INSERT INTO report_jobs
(id, test_run_id, game_title, format, include_screenshots, status,
 requested_at, started_at, completed_at, artifact_ref, file_size_bytes,
 error_message, cost_summary, performance_summary)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 game_title=VALUES(game_title), status=VALUES(status),
 started_at=VALUES(started_at), completed_at=VALUES(completed_at),
 artifact_ref=VALUES(artifact_ref), file_size_bytes=VALUES(file_size_bytes),
 error_message=VALUES(error_message),
 cost_summary=VALUES(cost_summary), performance_summary=VALUES(performance_summary);
`
	_, err := r.db.ExecContext(ctx, q,
		j.ID, j.TestRunID, j.GameTitle, j.Format, j.IncludeScreenshots, j.Status,
		j.RequestedAt, nullTime(j.StartedAt), nullTime(j.CompletedAt), j.ArtifactRef, j.FileSizeBytes,
		j.ErrorMessage, j.CostSummary, j.PerformanceSummary,
	)
	return err
}

// Get by ID
func (r *ReportRepository) Get(ctx context.Context, id domain.ReportID) (*domain.ReportJob, error) {
	const q = `SELECT ` + reportCols + ` FROM report_jobs WHERE id=? LIMIT 1;`
	return scanReport(r.db.QueryRowContext(ctx, q, id))
}

// List with offset pagination + total count
func (r *ReportRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.ReportJob, int64, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.GameTitle != "" {
		where += ` AND game_title = ?`
		args = append(args, f.GameTitle)
	}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting reports: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + reportCols + ` FROM report_jobs` + where +
		` ORDER BY requested_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	jobs, err := scanReports(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ListQueued returns every queued job, oldest first
func (r *ReportRepository) ListQueued(ctx context.Context) ([]*domain.ReportJob, error) {
	const q = `SELECT ` + reportCols + ` FROM report_jobs WHERE status=? ORDER BY requested_at ASC;`
	rows, err := r.db.QueryContext(ctx, q, domain.StatusQueued)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

// ResetProcessing kembalikan job yang macet di processing ke queued
// (dipanggil sekali saat startup, recovery dari crash/shutdown).
func (r *ReportRepository) ResetProcessing(ctx context.Context) (int64, error) {
	const q = `UPDATE report_jobs SET status=?, started_at=NULL WHERE status=?;`
	res, err := r.db.ExecContext(ctx, q, domain.StatusQueued, domain.StatusProcessing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListExpired returns terminal jobs older than the retention cutoff
func (r *ReportRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]*domain.ReportJob, error) {
	const q = `
SELECT ` + reportCols + `
FROM report_jobs
WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?;
`
	rows, err := r.db.QueryContext(ctx, q, domain.StatusCompleted, domain.StatusFailed, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

// Delete removes one job row (retention sweep)
func (r *ReportRepository) Delete(ctx context.Context, id domain.ReportID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM report_jobs WHERE id=?;`, id)
	return err
}

func scanReport(row rowScanner) (*domain.ReportJob, error) {
	var j domain.ReportJob
	var started, completed sql.NullTime
	if err := row.Scan(
		&j.ID, &j.TestRunID, &j.GameTitle, &j.Format, &j.IncludeScreenshots, &j.Status,
		&j.RequestedAt, &started, &completed, &j.ArtifactRef, &j.FileSizeBytes,
		&j.ErrorMessage, &j.CostSummary, &j.PerformanceSummary,
	); err != nil {
		return nil, err
	}
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	return &j, nil
}

func scanReports(rows *sql.Rows) ([]*domain.ReportJob, error) {
	var out []*domain.ReportJob
	for rows.Next() {
		j, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
