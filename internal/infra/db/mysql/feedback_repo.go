package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"

	domain "github.com/gamesight/visualqa/internal/domain/consensus"
)

// FeedbackRepository stores triage outcomes and tallies per-model accuracy
// from them. Accuracy is computed in Go rather than SQL because the per-model
// votes live inside the models_consensus JSON column.
type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Save(ctx context.Context, f *domain.Feedback) error {
	const q = `
INSERT INTO triage_feedback (issue_id, accepted, reason, created_at)
VALUES (?,?,?,?);
`
	res, err := r.db.ExecContext(ctx, q, string(f.IssueID), f.Accepted, f.Reason, f.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		f.ID = id
	}
	return nil
}

// ModelAccuracy returns accepted-agreement rate per model across all
// triaged issues. A model is "correct" when its vote matches the human
// outcome: it flagged an issue that was accepted, or stayed silent on one
// that was rejected. Models with no feedback yet are simply absent.
func (r *FeedbackRepository) ModelAccuracy(ctx context.Context) (map[string]float64, error) {
	const q = `
SELECT ci.models_consensus, tf.accepted
FROM triage_feedback tf
JOIN consensus_issues ci ON ci.id = tf.issue_id;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type tally struct{ correct, total int }
	counts := make(map[string]*tally)

	for rows.Next() {
		var raw []byte
		var accepted bool
		if err := rows.Scan(&raw, &accepted); err != nil {
			return nil, err
		}
		var votes map[string]domain.ModelVote
		if err := json.Unmarshal(raw, &votes); err != nil {
			log.Printf("feedback: skipping malformed models_consensus: %v", err)
			continue
		}
		for name, v := range votes {
			if !v.Responded {
				continue
			}
			t := counts[name]
			if t == nil {
				t = &tally{}
				counts[name] = t
			}
			t.total++
			if v.Agrees == accepted {
				t.correct++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(counts))
	for name, t := range counts {
		if t.total > 0 {
			out[name] = float64(t.correct) / float64(t.total)
		}
	}
	return out, nil
}
