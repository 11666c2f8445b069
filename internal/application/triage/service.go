package triage

import (
	"context"
	"log"
	"strings"

	"github.com/gamesight/visualqa/internal/application"
	"github.com/gamesight/visualqa/internal/domain/consensus"
)

// Service implements the human review loop over consensus issues.
// Accept/reject are terminal and idempotent; outcomes feed the per-model
// accuracy weights used by the consensus engine.
type Service struct {
	Issues   consensus.Repository
	Feedback consensus.FeedbackRepository
	Clock    application.Clock
}

// List returns issues newest first, narrowed by the filter.
func (s *Service) List(ctx context.Context, f consensus.IssueFilter) ([]*consensus.ConsensusIssue, error) {
	return s.Issues.List(ctx, f)
}

// Accept transitions pending → accepted. Calling it again (or on an
// already rejected issue) is a no-op returning the existing state.
func (s *Service) Accept(ctx context.Context, id consensus.IssueID) (*consensus.ConsensusIssue, error) {
	issue, err := s.Issues.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.Terminal() {
		return issue, nil
	}
	if err := s.Issues.UpdateStatus(ctx, id, consensus.TriageAccepted); err != nil {
		return nil, err
	}
	issue.Status = consensus.TriageAccepted
	s.record(ctx, issue, true, "")
	return issue, nil
}

// Reject transitions pending → rejected. The reason is mandatory and is
// persisted as calibration feedback.
func (s *Service) Reject(ctx context.Context, id consensus.IssueID, reason string) (*consensus.ConsensusIssue, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, consensus.ErrReasonRequired
	}
	issue, err := s.Issues.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.Terminal() {
		return issue, nil
	}
	if err := s.Issues.UpdateStatus(ctx, id, consensus.TriageRejected); err != nil {
		return nil, err
	}
	issue.Status = consensus.TriageRejected
	s.record(ctx, issue, false, reason)
	return issue, nil
}

// record persists the outcome. Feedback is calibration data, not part of
// the triage contract: failure to save it never fails the request.
func (s *Service) record(ctx context.Context, issue *consensus.ConsensusIssue, accepted bool, reason string) {
	if s.Feedback == nil {
		return
	}
	f := &consensus.Feedback{
		IssueID:   issue.ID,
		Accepted:  accepted,
		Reason:    reason,
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Feedback.Save(ctx, f); err != nil {
		log.Printf("feedback save error issue=%s: %v", issue.ID, err)
	}
}
