package postgres

import (
	"context"
	"log"

	domain "github.com/gamesight/visualqa/internal/domain/consensus"
)

// IssueMirror wraps the primary issue repository and copies writes into the
// Postgres archive. Archive failures are logged, never surfaced; the primary
// store stays the source of truth.
type IssueMirror struct {
	primary domain.Repository
	archive *IssueRepository
}

func NewIssueMirror(primary domain.Repository, archive *IssueRepository) *IssueMirror {
	return &IssueMirror{primary: primary, archive: archive}
}

func (m *IssueMirror) Save(ctx context.Context, i *domain.ConsensusIssue) error {
	if err := m.primary.Save(ctx, i); err != nil {
		return err
	}
	if err := m.archive.Save(ctx, i); err != nil {
		log.Printf("issue archive save failed id=%s err=%v", i.ID, err)
	}
	return nil
}

func (m *IssueMirror) UpdateStatus(ctx context.Context, id domain.IssueID, status domain.TriageStatus) error {
	if err := m.primary.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	if err := m.archive.UpdateStatus(ctx, id, status); err != nil {
		log.Printf("issue archive status update failed id=%s err=%v", id, err)
	}
	return nil
}

func (m *IssueMirror) Get(ctx context.Context, id domain.IssueID) (*domain.ConsensusIssue, error) {
	return m.primary.Get(ctx, id)
}

func (m *IssueMirror) List(ctx context.Context, f domain.IssueFilter) ([]*domain.ConsensusIssue, error) {
	return m.primary.List(ctx, f)
}

func (m *IssueMirror) ListByTestRun(ctx context.Context, testRunID string) ([]*domain.ConsensusIssue, error) {
	return m.primary.ListByTestRun(ctx, testRunID)
}
