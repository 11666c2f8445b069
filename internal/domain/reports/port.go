package reports

import (
	"context"
	"time"

	"github.com/gamesight/visualqa/internal/domain/consensus"
	"github.com/gamesight/visualqa/internal/domain/vision"
)

// ListFilter narrows List queries. Zero values mean "no filter".
type ListFilter struct {
	GameTitle string
	Status    Status
	Limit     int
	Offset    int
}

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, j *ReportJob) error
	Get(ctx context.Context, id ReportID) (*ReportJob, error)
	List(ctx context.Context, f ListFilter) ([]*ReportJob, int64, error)
	ListQueued(ctx context.Context) ([]*ReportJob, error)
	ResetProcessing(ctx context.Context) (int64, error)
	ListExpired(ctx context.Context, cutoff time.Time) ([]*ReportJob, error)
	Delete(ctx context.Context, id ReportID) error
}

// BlobStore port (interface untuk penyimpanan artefak dan screenshot)
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// ReportData is the aggregated payload handed to renderers and echoed in
// GET /reports/{id} once the job completes.
type ReportData struct {
	TestRunID        string                      `json:"test_run_id"`
	GameTitle        string                      `json:"game_title,omitempty"`
	GeneratedAt      time.Time                   `json:"generated_at"`
	TotalCaptures    int                         `json:"total_captures"`
	CleanCaptures    int                         `json:"clean_captures"`
	PassRate         float64                     `json:"pass_rate"`
	IssuesBySeverity map[string]int              `json:"issues_by_severity"`
	ConsensusIssues  []*consensus.ConsensusIssue `json:"consensus_issues"`
	ModelCosts       map[string]vision.ModelCost `json:"model_costs"`
	CacheHits        int                         `json:"cache_hits"`
	TotalCostUSD     float64                     `json:"total_cost_usd"`
}

// Renderer turns aggregated report data into one artifact format.
type Renderer interface {
	Render(ctx context.Context, data *ReportData) ([]byte, string, error) // bytes, content type
}
