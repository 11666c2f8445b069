package captures

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, c *Capture) error
	Get(ctx context.Context, id CaptureID) (*Capture, error)
	UpdateStatus(ctx context.Context, id CaptureID, status AnalysisStatus, cacheHit bool) error
	IncrementAttempts(ctx context.Context, id CaptureID) error
	ListRetryable(ctx context.Context, limit int) ([]*Capture, error)
	ListByTestRun(ctx context.Context, testRunID string) ([]*Capture, error)
}
