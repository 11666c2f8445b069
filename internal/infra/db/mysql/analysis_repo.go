package mysql

import (
	"context"
	"database/sql"

	domain "github.com/gamesight/visualqa/internal/domain/vision"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save insert satu model result; immutable, duplicate key berarti retry
// dari sweep dan baris lama ditimpa.
func (r *AnalysisRepository) Save(ctx context.Context, m *domain.ModelAnalysisResult) error {
	const q = `
INSERT INTO model_analysis_results
(capture_id, model_name, detected, confidence, category, reasoning_text,
 latency_ms, cost_usd, status)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 detected=VALUES(detected), confidence=VALUES(confidence), category=VALUES(category),
 reasoning_text=VALUES(reasoning_text), latency_ms=VALUES(latency_ms),
 cost_usd=VALUES(cost_usd), status=VALUES(status);
`
	_, err := r.db.ExecContext(ctx, q,
		m.CaptureID, m.ModelName, m.Detected, m.Confidence, m.Category, m.ReasoningText,
		m.LatencyMS, m.CostUSD, m.Status,
	)
	return err
}

// ListByCapture returns every model's opinion on one capture
func (r *AnalysisRepository) ListByCapture(ctx context.Context, captureID string) ([]*domain.ModelAnalysisResult, error) {
	const q = `
SELECT capture_id, model_name, detected, confidence, category, reasoning_text,
       latency_ms, cost_usd, status
FROM model_analysis_results
WHERE capture_id=? ORDER BY model_name;
`
	rows, err := r.db.QueryContext(ctx, q, captureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ModelAnalysisResult
	for rows.Next() {
		var m domain.ModelAnalysisResult
		if err := rows.Scan(
			&m.CaptureID, &m.ModelName, &m.Detected, &m.Confidence, &m.Category, &m.ReasoningText,
			&m.LatencyMS, &m.CostUSD, &m.Status,
		); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CostByTestRun aggregates spend and latency per model for one run
func (r *AnalysisRepository) CostByTestRun(ctx context.Context, testRunID string) (map[string]domain.ModelCost, error) {
	const q = `
SELECT m.model_name, COUNT(*), COALESCE(SUM(m.cost_usd),0), COALESCE(AVG(m.latency_ms),0)
FROM model_analysis_results m
JOIN captures c ON c.id = m.capture_id
WHERE c.test_run_id=?
GROUP BY m.model_name;
`
	rows, err := r.db.QueryContext(ctx, q, testRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.ModelCost)
	for rows.Next() {
		var name string
		var c domain.ModelCost
		var avgLatency float64
		if err := rows.Scan(&name, &c.Calls, &c.TotalCostUSD, &avgLatency); err != nil {
			return nil, err
		}
		c.AvgLatencyMS = int64(avgLatency)
		out[name] = c
	}
	return out, rows.Err()
}
