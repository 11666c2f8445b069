package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gamesight/visualqa/internal/application"
	"github.com/gamesight/visualqa/internal/domain/captures"
	"github.com/gamesight/visualqa/internal/domain/consensus"
	domain "github.com/gamesight/visualqa/internal/domain/reports"
	"github.com/gamesight/visualqa/internal/domain/vision"
	"github.com/gamesight/visualqa/internal/middleware"
)

// Limiter gates report generation requests.
type Limiter interface {
	Allow() bool
}

// RendererFor resolves the renderer for a format; injected so tests can
// substitute a failing or counting renderer.
type RendererFor func(domain.Format) (domain.Renderer, error)

// Service owns the report job pipeline: enqueue, worker pool, retention.
// Thread-safe; the DB is the source of truth, the channel only wakes
// workers up.
type Service struct {
	Repo     domain.Repository
	Issues   consensus.Repository
	Captures captures.Repository
	Costs    vision.Repository
	Blobs    domain.BlobStore
	Limiter  Limiter
	Clock    application.Clock
	Renderer RendererFor

	StorageTimeout time.Duration

	queue chan domain.ReportID
}

const queueDepth = 1024

// Queue initializes the dispatch channel. Must be called before Generate
// or RunWorkers.
func (s *Service) Queue() {
	if s.queue == nil {
		s.queue = make(chan domain.ReportID, queueDepth)
	}
}

// Command untuk generate report
type GenerateCommand struct {
	TestRunID          string
	Format             string
	IncludeScreenshots bool
}

// Generate enqueues a job and returns immediately. The rate limiter
// rejects synchronously so queue depth stays bounded.
func (s *Service) Generate(ctx context.Context, cmd GenerateCommand) (*domain.ReportJob, error) {
	if s.Limiter != nil && !s.Limiter.Allow() {
		return nil, domain.ErrRateLimited
	}
	if cmd.TestRunID == "" {
		return nil, fmt.Errorf("test_run_id is required")
	}
	format, ok := domain.ValidFormat(cmd.Format)
	if !ok {
		return nil, fmt.Errorf("invalid format %q (allowed: json, html, pdf)", cmd.Format)
	}

	job := &domain.ReportJob{
		ID:                 domain.ReportID(uuid.New().String()),
		TestRunID:          cmd.TestRunID,
		Format:             format,
		IncludeScreenshots: cmd.IncludeScreenshots,
		Status:             domain.StatusQueued,
		RequestedAt:        s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, job); err != nil {
		return nil, err
	}
	middleware.IncrementReportJobs()

	select {
	case s.queue <- job.ID:
	default:
		// Job is durable in the DB; the startup requeue or the next
		// worker idle pass will find it.
		log.Printf("report queue full, job %s left for pickup", job.ID)
	}
	return job, nil
}

// Get returns the job, with aggregated report data attached once the job
// completed.
func (s *Service) Get(ctx context.Context, id domain.ReportID) (*domain.ReportJob, *domain.ReportData, error) {
	job, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != domain.StatusCompleted {
		return job, nil, nil
	}
	data, err := s.aggregate(ctx, job)
	if err != nil {
		log.Printf("report data aggregate error report=%s: %v", id, err)
		return job, nil, nil
	}
	return job, data, nil
}

// List returns jobs matching the filter plus the total count.
func (s *Service) List(ctx context.Context, f domain.ListFilter) ([]*domain.ReportJob, int64, error) {
	return s.Repo.List(ctx, f)
}

// DownloadURL presigns the completed artifact.
func (s *Service) DownloadURL(ctx context.Context, id domain.ReportID) (string, error) {
	job, err := s.Repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != domain.StatusCompleted || job.ArtifactRef == "" {
		return "", domain.ErrNotReady
	}
	return s.Blobs.Presign(ctx, job.ArtifactRef, 15*time.Minute)
}

// Recover resets jobs stuck in processing (crash or forced shutdown) back
// to queued and re-enqueues everything queued. Called once on startup
// before workers begin.
func (s *Service) Recover(ctx context.Context) error {
	s.Queue()
	n, err := s.Repo.ResetProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset processing jobs: %w", err)
	}
	if n > 0 {
		log.Printf("reset %d stuck report job(s) back to queued", n)
	}
	queued, err := s.Repo.ListQueued(ctx)
	if err != nil {
		return fmt.Errorf("list queued jobs: %w", err)
	}
	for _, job := range queued {
		select {
		case s.queue <- job.ID:
		default:
			return fmt.Errorf("report queue overflow during recovery")
		}
	}
	return nil
}

// aggregate builds the report payload for one test run.
func (s *Service) aggregate(ctx context.Context, job *domain.ReportJob) (*domain.ReportData, error) {
	caps, err := s.Captures.ListByTestRun(ctx, job.TestRunID)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	issues, err := s.Issues.ListByTestRun(ctx, job.TestRunID)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	costs, err := s.Costs.CostByTestRun(ctx, job.TestRunID)
	if err != nil {
		return nil, fmt.Errorf("aggregate costs: %w", err)
	}

	data := &domain.ReportData{
		TestRunID:        job.TestRunID,
		GeneratedAt:      s.Clock.Now(),
		TotalCaptures:    len(caps),
		IssuesBySeverity: make(map[string]int),
		ConsensusIssues:  issues,
		ModelCosts:       costs,
	}
	for _, c := range caps {
		if data.GameTitle == "" {
			data.GameTitle = c.GameTitle
		}
		if c.Status == captures.StatusClean {
			data.CleanCaptures++
		}
		if c.CacheHit {
			data.CacheHits++
		}
	}
	if data.TotalCaptures > 0 {
		data.PassRate = float64(data.CleanCaptures) / float64(data.TotalCaptures)
	}
	for _, issue := range issues {
		data.IssuesBySeverity[string(issue.Severity)]++
	}
	for _, c := range costs {
		data.TotalCostUSD += c.TotalCostUSD
	}
	return data, nil
}

// summaries renders the compact cost/performance strings stored on the job.
func summaries(data *domain.ReportData) (string, string) {
	cost, _ := json.Marshal(map[string]any{
		"total_usd": data.TotalCostUSD,
		"by_model":  data.ModelCosts,
	})
	perf, _ := json.Marshal(map[string]any{
		"captures":   data.TotalCaptures,
		"pass_rate":  data.PassRate,
		"cache_hits": data.CacheHits,
	})
	return string(cost), string(perf)
}
