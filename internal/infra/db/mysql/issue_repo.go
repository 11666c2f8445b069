package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/gamesight/visualqa/internal/domain/consensus"
)

type IssueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Save insert/update ConsensusIssue; models_consensus disimpan sebagai JSON
func (r *IssueRepository) Save(ctx context.Context, i *domain.ConsensusIssue) error {
	votes, err := json.Marshal(i.ModelsConsensus)
	if err != nil {
		return fmt.Errorf("marshal models_consensus: %w", err)
	}
	const q = `
INSERT INTO consensus_issues
(id, capture_id, severity, category, confidence, analysis, models_consensus, status, created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status);
`
	_, err = r.db.ExecContext(ctx, q,
		i.ID, i.CaptureID, i.Severity, i.Category, i.Confidence, i.Analysis, votes, i.Status, i.CreatedAt,
	)
	return err
}

const issueCols = `id, capture_id, severity, category, confidence, analysis, models_consensus, status, created_at`

// Get by ID
func (r *IssueRepository) Get(ctx context.Context, id domain.IssueID) (*domain.ConsensusIssue, error) {
	const q = `SELECT ` + issueCols + ` FROM consensus_issues WHERE id=? LIMIT 1;`
	return scanIssue(r.db.QueryRowContext(ctx, q, id))
}

// List with filter; newest first
func (r *IssueRepository) List(ctx context.Context, f domain.IssueFilter) ([]*domain.ConsensusIssue, error) {
	query := `SELECT i.` + issueColsPrefixed() + ` FROM consensus_issues i`
	args := []any{}

	if f.TestRunID != "" {
		query += ` JOIN captures c ON c.id = i.capture_id`
	}
	query += ` WHERE 1=1`
	if f.Severity != "" {
		query += ` AND i.severity = ?`
		args = append(args, f.Severity)
	}
	if f.Category != "" {
		query += ` AND i.category = ?`
		args = append(args, f.Category)
	}
	if f.Status != "" {
		query += ` AND i.status = ?`
		args = append(args, f.Status)
	}
	if f.TestRunID != "" {
		query += ` AND c.test_run_id = ?`
		args = append(args, f.TestRunID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()
	return scanIssues(rows)
}

// ListByTestRun returns all issues for one run, newest first
func (r *IssueRepository) ListByTestRun(ctx context.Context, testRunID string) ([]*domain.ConsensusIssue, error) {
	const q = `
SELECT i.` + `id, i.capture_id, i.severity, i.category, i.confidence, i.analysis, i.models_consensus, i.status, i.created_at
FROM consensus_issues i
JOIN captures c ON c.id = i.capture_id
WHERE c.test_run_id=?
ORDER BY i.created_at DESC, i.id DESC;
`
	rows, err := r.db.QueryContext(ctx, q, testRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

// UpdateStatus hanya ubah kolom status; guard di level service menjaga
// terminal state tidak ditimpa.
func (r *IssueRepository) UpdateStatus(ctx context.Context, id domain.IssueID, status domain.TriageStatus) error {
	const q = `UPDATE consensus_issues SET status=? WHERE id=? AND status='pending';`
	_, err := r.db.ExecContext(ctx, q, status, id)
	return err
}

func issueColsPrefixed() string {
	return `id, i.capture_id, i.severity, i.category, i.confidence, i.analysis, i.models_consensus, i.status, i.created_at`
}

func scanIssue(row rowScanner) (*domain.ConsensusIssue, error) {
	var i domain.ConsensusIssue
	var votes []byte
	if err := row.Scan(
		&i.ID, &i.CaptureID, &i.Severity, &i.Category, &i.Confidence, &i.Analysis, &votes, &i.Status, &i.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(votes) > 0 {
		if err := json.Unmarshal(votes, &i.ModelsConsensus); err != nil {
			return nil, fmt.Errorf("unmarshal models_consensus: %w", err)
		}
	}
	return &i, nil
}

func scanIssues(rows *sql.Rows) ([]*domain.ConsensusIssue, error) {
	var out []*domain.ConsensusIssue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
