package mysql

import (
	"context"
	"database/sql"

	domain "github.com/gamesight/visualqa/internal/domain/captures"
)

type CaptureRepository struct {
	db *sql.DB
}

func NewCaptureRepository(db *sql.DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

const captureCols = `id, test_run_id, game_title, git_commit, screenshot_ref, telemetry_ref,
       captured_at, status, attempts, cache_hit`

// Save insert/update Capture record
func (r *CaptureRepository) Save(ctx context.Context, c *domain.Capture) error {
	const q = `
INSERT INTO captures
(id, test_run_id, game_title, git_commit, screenshot_ref, telemetry_ref,
 captured_at, status, attempts, cache_hit)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status), attempts=VALUES(attempts), cache_hit=VALUES(cache_hit);
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.TestRunID, c.GameTitle, c.GitCommit, c.ScreenshotRef, c.TelemetryRef,
		c.CapturedAt, c.Status, c.Attempts, c.CacheHit,
	)
	return err
}

// Get by ID
func (r *CaptureRepository) Get(ctx context.Context, id domain.CaptureID) (*domain.Capture, error) {
	const q = `SELECT ` + captureCols + ` FROM captures WHERE id=? LIMIT 1;`
	return scanCapture(r.db.QueryRowContext(ctx, q, id))
}

// UpdateStatus hanya update kolom status + cache_hit
func (r *CaptureRepository) UpdateStatus(ctx context.Context, id domain.CaptureID, status domain.AnalysisStatus, cacheHit bool) error {
	const q = `UPDATE captures SET status=?, cache_hit=? WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q, status, cacheHit, id)
	return err
}

// IncrementAttempts bumps the re-analysis counter
func (r *CaptureRepository) IncrementAttempts(ctx context.Context, id domain.CaptureID) error {
	const q = `UPDATE captures SET attempts=attempts+1 WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// ListRetryable returns inconclusive/error captures under the attempt cap
func (r *CaptureRepository) ListRetryable(ctx context.Context, limit int) ([]*domain.Capture, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT ` + captureCols + `
FROM captures
WHERE status IN (?, ?) AND attempts < ?
ORDER BY captured_at ASC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q,
		domain.StatusInconclusive, domain.StatusError, domain.MaxAnalysisAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCaptures(rows)
}

// ListByTestRun returns all captures for one run
func (r *CaptureRepository) ListByTestRun(ctx context.Context, testRunID string) ([]*domain.Capture, error) {
	const q = `SELECT ` + captureCols + ` FROM captures WHERE test_run_id=? ORDER BY captured_at ASC;`
	rows, err := r.db.QueryContext(ctx, q, testRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCaptures(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (*domain.Capture, error) {
	var c domain.Capture
	if err := row.Scan(
		&c.ID, &c.TestRunID, &c.GameTitle, &c.GitCommit, &c.ScreenshotRef, &c.TelemetryRef,
		&c.CapturedAt, &c.Status, &c.Attempts, &c.CacheHit,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCaptures(rows *sql.Rows) ([]*domain.Capture, error) {
	var out []*domain.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
