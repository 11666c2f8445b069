package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/gamesight/visualqa/internal/domain/consensus"
)

// IssueRepository is the Postgres archive for consensus issues. Writes are
// mirrored here from the primary store so triage history survives MySQL
// retention and can feed offline accuracy analysis.
type IssueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Save insert/update ConsensusIssue; models_consensus disimpan sebagai JSONB
func (r *IssueRepository) Save(ctx context.Context, i *domain.ConsensusIssue) error {
	votes, err := json.Marshal(i.ModelsConsensus)
	if err != nil {
		return fmt.Errorf("marshal models_consensus: %w", err)
	}
	const q = `
INSERT INTO consensus_issues
(id, capture_id, severity, category, confidence, analysis, models_consensus, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status;`
	_, err = r.db.ExecContext(ctx, q,
		i.ID, i.CaptureID, i.Severity, i.Category, i.Confidence, i.Analysis, votes, i.Status, i.CreatedAt,
	)
	return err
}

func (r *IssueRepository) Get(ctx context.Context, id domain.IssueID) (*domain.ConsensusIssue, error) {
	const q = `
SELECT id, capture_id, severity, category, confidence, analysis, models_consensus, status, created_at
FROM consensus_issues WHERE id=$1;`
	var i domain.ConsensusIssue
	var votes []byte
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&i.ID, &i.CaptureID, &i.Severity, &i.Category, &i.Confidence, &i.Analysis, &votes, &i.Status, &i.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(votes) > 0 {
		if err := json.Unmarshal(votes, &i.ModelsConsensus); err != nil {
			return nil, fmt.Errorf("unmarshal models_consensus: %w", err)
		}
	}
	return &i, nil
}

func (r *IssueRepository) UpdateStatus(ctx context.Context, id domain.IssueID, status domain.TriageStatus) error {
	const q = `UPDATE consensus_issues SET status=$1 WHERE id=$2 AND status='pending';`
	_, err := r.db.ExecContext(ctx, q, status, id)
	return err
}
