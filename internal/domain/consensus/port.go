package consensus

import "context"

// IssueFilter narrows List queries. Zero values mean "no filter".
type IssueFilter struct {
	Severity  Severity
	Category  string
	Status    TriageStatus
	TestRunID string
	Limit     int
	Offset    int
}

// Repository port for consensus issues
type Repository interface {
	Save(ctx context.Context, i *ConsensusIssue) error
	Get(ctx context.Context, id IssueID) (*ConsensusIssue, error)
	List(ctx context.Context, f IssueFilter) ([]*ConsensusIssue, error)
	ListByTestRun(ctx context.Context, testRunID string) ([]*ConsensusIssue, error)
	UpdateStatus(ctx context.Context, id IssueID, status TriageStatus) error
}

// FeedbackRepository persists triage outcomes and derives per-model
// historical accuracy for confidence weighting.
type FeedbackRepository interface {
	Save(ctx context.Context, f *Feedback) error
	ModelAccuracy(ctx context.Context) (map[string]float64, error)
}
