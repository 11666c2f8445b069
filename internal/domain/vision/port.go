package vision

import "context"

// CaptureInput is what an adapter needs to form a provider request.
type CaptureInput struct {
	CaptureID     string
	ScreenshotURL string
	GameTitle     string
	Telemetry     string // raw telemetry JSON, may be empty
}

// Adapter port: one per configured vision provider. Implementations must
// be safe for concurrent use; each call is bounded by the caller's context.
type Adapter interface {
	Name() string
	Analyze(ctx context.Context, in CaptureInput) (ModelAnalysisResult, error)
}

// Repository port for persisting per-model results
type Repository interface {
	Save(ctx context.Context, r *ModelAnalysisResult) error
	ListByCapture(ctx context.Context, captureID string) ([]*ModelAnalysisResult, error)
	CostByTestRun(ctx context.Context, testRunID string) (map[string]ModelCost, error)
}

// ModelCost aggregates spend/latency per model for report summaries.
type ModelCost struct {
	Calls        int     `json:"calls"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	AvgLatencyMS int64   `json:"avg_latency_ms"`
}
