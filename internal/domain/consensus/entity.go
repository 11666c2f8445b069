package consensus

import (
	"time"

	"github.com/gamesight/visualqa/internal/domain/vision"
)

// ID tipe untuk ConsensusIssue
type IssueID string

// Severity enum
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// TriageStatus enum
type TriageStatus string

const (
	TriagePending  TriageStatus = "pending"
	TriageAccepted TriageStatus = "accepted"
	TriageRejected TriageStatus = "rejected"
)

// ModelVote records one model's stance inside models_consensus, including
// models that disagreed or never responded.
type ModelVote struct {
	Agrees     bool    `json:"agrees"`
	Confidence float64 `json:"confidence"`
	Responded  bool    `json:"responded"`
}

// ConsensusIssue is the arbitrated, triage-ready record.
// Mutated only by the Triage API transitioning Status.
type ConsensusIssue struct {
	ID              IssueID              `json:"issue_id"`
	CaptureID       string               `json:"capture_id"`
	Severity        Severity             `json:"severity"`
	Category        vision.Category      `json:"category"`
	Confidence      float64              `json:"confidence"`
	Analysis        string               `json:"analysis"`
	ModelsConsensus map[string]ModelVote `json:"models_consensus"`
	Status          TriageStatus         `json:"status"`
	CreatedAt       time.Time            `json:"created_at"`
}

// Terminal reports whether the issue has left the pending state.
func (i *ConsensusIssue) Terminal() bool {
	return i.Status == TriageAccepted || i.Status == TriageRejected
}

// Feedback is one accept/reject outcome persisted for calibration.
type Feedback struct {
	ID        int64     `json:"id"`
	IssueID   IssueID   `json:"issue_id"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
