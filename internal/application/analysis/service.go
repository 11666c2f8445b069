package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gamesight/visualqa/internal/application"
	"github.com/gamesight/visualqa/internal/domain/captures"
	"github.com/gamesight/visualqa/internal/domain/consensus"
	"github.com/gamesight/visualqa/internal/domain/phash"
	"github.com/gamesight/visualqa/internal/domain/reports"
	"github.com/gamesight/visualqa/internal/domain/vision"
	"github.com/gamesight/visualqa/internal/middleware"
)

// VerdictCache is the perceptual-hash layer in front of the model pool.
// Best effort by contract: implementations never fail a lookup.
type VerdictCache interface {
	Lookup(ctx context.Context, fp phash.Fingerprint) (phash.Verdict, bool)
	Store(ctx context.Context, fp phash.Fingerprint, captureID string, v phash.Verdict)
}

// Service implements use-cases untuk capture analysis.
// Safe for concurrent use.
type Service struct {
	Captures captures.Repository
	Results  vision.Repository
	Issues   consensus.Repository
	Feedback consensus.FeedbackRepository
	Adapters []vision.Adapter
	Engine   *consensus.Engine
	Cache    VerdictCache
	Hasher   phash.Hasher
	Blobs    reports.BlobStore
	Clock    application.Clock
}

// Command untuk submit capture
type SubmitCommand struct {
	TestRunID     string
	GameTitle     string
	GitCommit     string
	ScreenshotB64 string // inline upload, or
	ScreenshotRef string // already in blob storage
	Telemetry     string // raw telemetry JSON, optional
}

type SubmitResult struct {
	CaptureID string `json:"capture_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// Submit stores the capture and its blobs, then returns immediately. The
// actual analysis runs in the background via AnalyzeUntilDone.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*captures.Capture, []byte, error) {
	if cmd.TestRunID == "" {
		return nil, nil, fmt.Errorf("test_run_id is required")
	}
	if cmd.ScreenshotB64 == "" && cmd.ScreenshotRef == "" {
		return nil, nil, fmt.Errorf("screenshot_b64 or screenshot_ref is required")
	}

	now := s.Clock.Now()
	id := captures.CaptureID(uuid.New().String())

	var screenshot []byte
	screenshotRef := cmd.ScreenshotRef
	if cmd.ScreenshotB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(cmd.ScreenshotB64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid screenshot_b64: %w", err)
		}
		screenshot = decoded
		key := fmt.Sprintf("captures/%s/screenshot.png", id)
		if screenshotRef, err = s.Blobs.Put(ctx, key, screenshot, "image/png"); err != nil {
			return nil, nil, fmt.Errorf("store screenshot: %w", err)
		}
	} else {
		var err error
		if screenshot, err = s.Blobs.Get(ctx, screenshotRef); err != nil {
			return nil, nil, fmt.Errorf("fetch screenshot %s: %w", screenshotRef, err)
		}
	}

	telemetryRef := ""
	if cmd.Telemetry != "" {
		key := fmt.Sprintf("captures/%s/telemetry.json", id)
		ref, err := s.Blobs.Put(ctx, key, []byte(cmd.Telemetry), "application/json")
		if err != nil {
			// telemetry is advisory, the capture still proceeds
			log.Printf("store telemetry error capture=%s: %v", id, err)
		} else {
			telemetryRef = ref
		}
	}

	c := &captures.Capture{
		ID:            id,
		TestRunID:     cmd.TestRunID,
		GameTitle:     cmd.GameTitle,
		GitCommit:     cmd.GitCommit,
		ScreenshotRef: screenshotRef,
		TelemetryRef:  telemetryRef,
		CapturedAt:    now,
		Status:        captures.StatusQueued,
	}
	if err := s.Captures.Save(ctx, c); err != nil {
		return nil, nil, err
	}
	middleware.IncrementCaptures()
	return c, screenshot, nil
}

// AnalyzeUntilDone runs the full pipeline with context.Background() so a
// handler goroutine is not cut off when the client disconnects.
func (s *Service) AnalyzeUntilDone(c *captures.Capture, screenshot []byte) {
	if err := s.Analyze(context.Background(), c, screenshot); err != nil {
		log.Printf("analysis error capture=%s: %v", c.ID, err)
	}
}

// Analyze drives one capture through cache, model pool and consensus.
func (s *Service) Analyze(ctx context.Context, c *captures.Capture, screenshot []byte) error {
	if err := s.Captures.UpdateStatus(ctx, c.ID, captures.StatusProcessing, false); err != nil {
		return err
	}

	// Cache first: a hit skips the entire model pool. Any cache-layer
	// problem degrades to a miss, never a failure.
	var fp phash.Fingerprint
	haveFP := false
	if s.Hasher != nil {
		var err error
		if fp, err = s.Hasher.Hash(screenshot); err != nil {
			log.Printf("fingerprint error capture=%s: %v", c.ID, err)
		} else {
			haveFP = true
		}
	}
	if haveFP && s.Cache != nil {
		if verdict, hit := s.Cache.Lookup(ctx, fp); hit {
			middleware.IncrementCacheHits()
			status := captures.StatusClean
			if !verdict.Clean {
				status = captures.StatusIssueFound
			}
			log.Printf("cache hit capture=%s fp=%016x verdict_issue=%s", c.ID, uint64(fp), verdict.IssueID)
			return s.Captures.UpdateStatus(ctx, c.ID, status, true)
		}
		middleware.IncrementCacheMisses()
	}

	results, err := s.fanOut(ctx, c)
	if err != nil {
		return err
	}

	// Optional accuracy weights from triage history; absence is fine.
	var weights map[string]float64
	if s.Feedback != nil {
		if w, err := s.Feedback.ModelAccuracy(ctx); err != nil {
			log.Printf("model accuracy lookup error: %v", err)
		} else {
			weights = w
		}
	}

	verdict := s.Engine.Arbitrate(results, weights)
	switch verdict.Decision {
	case consensus.DecisionIssue:
		issue := &consensus.ConsensusIssue{
			ID:              consensus.IssueID(uuid.New().String()),
			CaptureID:       string(c.ID),
			Severity:        verdict.Severity,
			Category:        verdict.Category,
			Confidence:      verdict.Confidence,
			Analysis:        verdict.Analysis,
			ModelsConsensus: verdict.ModelsConsensus,
			Status:          consensus.TriagePending,
			CreatedAt:       s.Clock.Now(),
		}
		if err := s.Issues.Save(ctx, issue); err != nil {
			return fmt.Errorf("save consensus issue: %w", err)
		}
		middleware.IncrementIssues()
		if haveFP && s.Cache != nil {
			s.Cache.Store(ctx, fp, string(c.ID), phash.Verdict{IssueID: string(issue.ID)})
		}
		return s.Captures.UpdateStatus(ctx, c.ID, captures.StatusIssueFound, false)

	case consensus.DecisionClean:
		if haveFP && s.Cache != nil {
			s.Cache.Store(ctx, fp, string(c.ID), phash.Verdict{Clean: true})
		}
		return s.Captures.UpdateStatus(ctx, c.ID, captures.StatusClean, false)

	default: // inconclusive
		responded := 0
		for _, r := range results {
			if r.Status == vision.CallOK {
				responded++
			}
		}
		status := captures.StatusInconclusive
		if responded == 0 {
			status = captures.StatusError
		}
		log.Printf("capture=%s %v responders=%d/%d", c.ID, consensus.ErrInconclusive, responded, len(s.Adapters))
		if err := s.Captures.IncrementAttempts(ctx, c.ID); err != nil {
			log.Printf("increment attempts error capture=%s: %v", c.ID, err)
		}
		return s.Captures.UpdateStatus(ctx, c.ID, status, false)
	}
}

// fanOut calls every adapter concurrently. One model's timeout or error
// never cancels the others; arbitration only starts after all of them
// finished or timed out.
func (s *Service) fanOut(ctx context.Context, c *captures.Capture) ([]*vision.ModelAnalysisResult, error) {
	screenshotURL, err := s.Blobs.Presign(ctx, c.ScreenshotRef, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("presign screenshot: %w", err)
	}

	telemetry := ""
	if c.TelemetryRef != "" {
		if data, err := s.Blobs.Get(ctx, c.TelemetryRef); err != nil {
			log.Printf("telemetry fetch error capture=%s: %v", c.ID, err)
		} else {
			telemetry = string(data)
		}
	}

	in := vision.CaptureInput{
		CaptureID:     string(c.ID),
		ScreenshotURL: screenshotURL,
		GameTitle:     c.GameTitle,
		Telemetry:     telemetry,
	}

	// Plain errgroup, no shared context cancellation: one model failing
	// must not abort the rest of the pool.
	results := make([]*vision.ModelAnalysisResult, len(s.Adapters))
	var g errgroup.Group
	for i, adapter := range s.Adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			middleware.IncrementModelCalls()
			res, err := adapter.Analyze(ctx, in)
			if err != nil {
				log.Printf("model call failed capture=%s model=%s status=%s: %v", c.ID, adapter.Name(), res.Status, err)
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if err := s.Results.Save(ctx, r); err != nil {
			log.Printf("save model result error capture=%s model=%s: %v", c.ID, r.ModelName, err)
		}
	}
	return results, nil
}

// Get returns one capture by id.
func (s *Service) Get(ctx context.Context, id captures.CaptureID) (*captures.Capture, error) {
	return s.Captures.Get(ctx, id)
}

// RunRetrySweep periodically re-analyzes inconclusive/error captures up to
// the attempt cap. Blocks until ctx is done.
func (s *Service) RunRetrySweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.retryPass(ctx)
		}
	}
}

func (s *Service) retryPass(ctx context.Context) {
	list, err := s.Captures.ListRetryable(ctx, 20)
	if err != nil {
		log.Printf("retry sweep list error: %v", err)
		return
	}
	for _, c := range list {
		screenshot, err := s.Blobs.Get(ctx, c.ScreenshotRef)
		if err != nil {
			log.Printf("retry sweep fetch error capture=%s: %v", c.ID, err)
			continue
		}
		if err := s.Analyze(ctx, c, screenshot); err != nil {
			log.Printf("retry sweep analyze error capture=%s: %v", c.ID, err)
		}
	}
}
