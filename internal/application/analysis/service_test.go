package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesight/visualqa/internal/application"
	"github.com/gamesight/visualqa/internal/domain/captures"
	"github.com/gamesight/visualqa/internal/domain/consensus"
	"github.com/gamesight/visualqa/internal/domain/phash"
	"github.com/gamesight/visualqa/internal/domain/vision"
	"github.com/gamesight/visualqa/internal/infra/phashcache"
)

// ---- fakes ----

type fakeCaptureRepo struct {
	mu       sync.Mutex
	saved    map[captures.CaptureID]*captures.Capture
	attempts map[captures.CaptureID]int
}

func newFakeCaptureRepo() *fakeCaptureRepo {
	return &fakeCaptureRepo{
		saved:    map[captures.CaptureID]*captures.Capture{},
		attempts: map[captures.CaptureID]int{},
	}
}

func (r *fakeCaptureRepo) Save(_ context.Context, c *captures.Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.saved[c.ID] = &cp
	return nil
}

func (r *fakeCaptureRepo) Get(_ context.Context, id captures.CaptureID) (*captures.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.saved[id]
	if !ok {
		return nil, errors.New("capture not found")
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCaptureRepo) UpdateStatus(_ context.Context, id captures.CaptureID, status captures.AnalysisStatus, cacheHit bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.saved[id]; ok {
		c.Status = status
		c.CacheHit = cacheHit
	}
	return nil
}

func (r *fakeCaptureRepo) IncrementAttempts(_ context.Context, id captures.CaptureID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[id]++
	if c, ok := r.saved[id]; ok {
		c.Attempts++
	}
	return nil
}

func (r *fakeCaptureRepo) ListRetryable(_ context.Context, limit int) ([]*captures.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*captures.Capture
	for _, c := range r.saved {
		if c.Retryable() && len(out) < limit {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCaptureRepo) ListByTestRun(_ context.Context, testRunID string) ([]*captures.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*captures.Capture
	for _, c := range r.saved {
		if c.TestRunID == testRunID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeResultRepo struct {
	mu    sync.Mutex
	saved []*vision.ModelAnalysisResult
}

func (r *fakeResultRepo) Save(_ context.Context, m *vision.ModelAnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, m)
	return nil
}

func (r *fakeResultRepo) ListByCapture(_ context.Context, captureID string) ([]*vision.ModelAnalysisResult, error) {
	return nil, nil
}

func (r *fakeResultRepo) CostByTestRun(_ context.Context, testRunID string) (map[string]vision.ModelCost, error) {
	return map[string]vision.ModelCost{}, nil
}

type fakeIssueRepo struct {
	mu    sync.Mutex
	saved []*consensus.ConsensusIssue
}

func (r *fakeIssueRepo) Save(_ context.Context, i *consensus.ConsensusIssue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, i)
	return nil
}

func (r *fakeIssueRepo) Get(_ context.Context, id consensus.IssueID) (*consensus.ConsensusIssue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.saved {
		if i.ID == id {
			return i, nil
		}
	}
	return nil, errors.New("issue not found")
}

func (r *fakeIssueRepo) List(_ context.Context, f consensus.IssueFilter) ([]*consensus.ConsensusIssue, error) {
	return r.saved, nil
}

func (r *fakeIssueRepo) ListByTestRun(_ context.Context, testRunID string) ([]*consensus.ConsensusIssue, error) {
	return r.saved, nil
}

func (r *fakeIssueRepo) UpdateStatus(_ context.Context, id consensus.IssueID, status consensus.TriageStatus) error {
	return nil
}

type fakeFeedbackRepo struct {
	weights map[string]float64
}

func (r *fakeFeedbackRepo) Save(_ context.Context, f *consensus.Feedback) error { return nil }

func (r *fakeFeedbackRepo) ModelAccuracy(_ context.Context) (map[string]float64, error) {
	return r.weights, nil
}

type fakeBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{data: map[string][]byte{}} }

func (b *fakeBlobs) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = data
	return key, nil
}

func (b *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[key]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return d, nil
}

func (b *fakeBlobs) Presign(_ context.Context, key string, expiry time.Duration) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

type fakeAdapter struct {
	name  string
	res   vision.ModelAnalysisResult
	err   error
	calls int
	mu    sync.Mutex
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Analyze(_ context.Context, in vision.CaptureInput) (vision.ModelAnalysisResult, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	res := a.res
	res.CaptureID = in.CaptureID
	res.ModelName = a.name
	return res, a.err
}

type fakeHasher struct {
	fp phash.Fingerprint
}

func (h *fakeHasher) Hash(_ []byte) (phash.Fingerprint, error) { return h.fp, nil }

type fakeCache struct {
	mu      sync.Mutex
	verdict phash.Verdict
	hit     bool
	stored  []phash.Verdict
}

func (c *fakeCache) Lookup(_ context.Context, fp phash.Fingerprint) (phash.Verdict, bool) {
	return c.verdict, c.hit
}

func (c *fakeCache) Store(_ context.Context, fp phash.Fingerprint, captureID string, v phash.Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, v)
}

// ---- helpers ----

func detection(detected bool, conf float64, cat vision.Category) vision.ModelAnalysisResult {
	return vision.ModelAnalysisResult{
		Detected:   detected,
		Confidence: conf,
		Category:   cat,
		Status:     vision.CallOK,
	}
}

func newService(repo *fakeCaptureRepo, results *fakeResultRepo, issues *fakeIssueRepo, cache *fakeCache, adapters ...vision.Adapter) *Service {
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	return &Service{
		Captures: repo,
		Results:  results,
		Issues:   issues,
		Feedback: &fakeFeedbackRepo{},
		Adapters: adapters,
		Engine:   consensus.NewEngine(names, 2),
		Cache:    cache,
		Hasher:   &fakeHasher{fp: 0xDEADBEEF},
		Blobs:    newFakeBlobs(),
		Clock:    application.FixedClock{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func queuedCapture(svc *Service, repo *fakeCaptureRepo) *captures.Capture {
	c := &captures.Capture{
		ID:            "11111111-1111-1111-1111-111111111111",
		TestRunID:     "run-1",
		GameTitle:     "Island Racer",
		ScreenshotRef: "captures/x/screenshot.png",
		CapturedAt:    svc.Clock.Now(),
		Status:        captures.StatusQueued,
	}
	_ = repo.Save(context.Background(), c)
	_, _ = svc.Blobs.Put(context.Background(), c.ScreenshotRef, []byte("png"), "image/png")
	return c
}

// ---- tests ----

func TestSubmitStoresBlobAndQueues(t *testing.T) {
	repo := newFakeCaptureRepo()
	blobs := newFakeBlobs()
	svc := newService(repo, &fakeResultRepo{}, &fakeIssueRepo{}, &fakeCache{})
	svc.Blobs = blobs

	shot := []byte("fake-png-bytes")
	c, returned, err := svc.Submit(context.Background(), SubmitCommand{
		TestRunID:     "run-1",
		GameTitle:     "Island Racer",
		ScreenshotB64: base64.StdEncoding.EncodeToString(shot),
		Telemetry:     `{"fps":58}`,
	})
	require.NoError(t, err)
	assert.Equal(t, captures.StatusQueued, c.Status)
	assert.Equal(t, shot, returned)

	stored, err := blobs.Get(context.Background(), c.ScreenshotRef)
	require.NoError(t, err)
	assert.Equal(t, shot, stored)
	assert.NotEmpty(t, c.TelemetryRef)
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	svc := newService(newFakeCaptureRepo(), &fakeResultRepo{}, &fakeIssueRepo{}, &fakeCache{})

	_, _, err := svc.Submit(context.Background(), SubmitCommand{ScreenshotB64: "aGk="})
	assert.Error(t, err)

	_, _, err = svc.Submit(context.Background(), SubmitCommand{TestRunID: "run-1"})
	assert.Error(t, err)
}

func TestAnalyzeCacheHitSkipsModelPool(t *testing.T) {
	repo := newFakeCaptureRepo()
	results := &fakeResultRepo{}
	a := &fakeAdapter{name: "gpt", res: detection(true, 0.9, vision.CategoryVisualBug)}
	cache := &fakeCache{hit: true, verdict: phash.Verdict{IssueID: "issue-7"}}
	svc := newService(repo, results, &fakeIssueRepo{}, cache, a)
	c := queuedCapture(svc, repo)

	require.NoError(t, svc.Analyze(context.Background(), c, []byte("png")))

	got, _ := repo.Get(context.Background(), c.ID)
	assert.Equal(t, captures.StatusIssueFound, got.Status)
	assert.True(t, got.CacheHit)
	assert.Zero(t, a.calls, "cache hit must not call any model")
	assert.Empty(t, results.saved)
}

func TestAnalyzeConsensusIssuePath(t *testing.T) {
	repo := newFakeCaptureRepo()
	issues := &fakeIssueRepo{}
	cache := &fakeCache{}
	a1 := &fakeAdapter{name: "gpt", res: detection(true, 0.92, vision.CategoryVisualBug)}
	a2 := &fakeAdapter{name: "claude", res: detection(true, 0.88, vision.CategoryVisualBug)}
	a3 := &fakeAdapter{name: "gemini", res: detection(false, 0.3, "")}
	svc := newService(repo, &fakeResultRepo{}, issues, cache, a1, a2, a3)
	c := queuedCapture(svc, repo)

	require.NoError(t, svc.Analyze(context.Background(), c, []byte("png")))

	require.Len(t, issues.saved, 1)
	issue := issues.saved[0]
	assert.Equal(t, consensus.SeverityCritical, issue.Severity)
	assert.Equal(t, vision.CategoryVisualBug, issue.Category)
	assert.Equal(t, consensus.TriagePending, issue.Status)
	assert.Len(t, issue.ModelsConsensus, 3)

	got, _ := repo.Get(context.Background(), c.ID)
	assert.Equal(t, captures.StatusIssueFound, got.Status)
	assert.False(t, got.CacheHit)

	require.Len(t, cache.stored, 1)
	assert.Equal(t, string(issue.ID), cache.stored[0].IssueID)
}

func TestAnalyzeCleanPathCachesVerdict(t *testing.T) {
	repo := newFakeCaptureRepo()
	cache := &fakeCache{}
	a1 := &fakeAdapter{name: "gpt", res: detection(false, 0.2, "")}
	a2 := &fakeAdapter{name: "claude", res: detection(false, 0.1, "")}
	svc := newService(repo, &fakeResultRepo{}, &fakeIssueRepo{}, cache, a1, a2)
	c := queuedCapture(svc, repo)

	require.NoError(t, svc.Analyze(context.Background(), c, []byte("png")))

	got, _ := repo.Get(context.Background(), c.ID)
	assert.Equal(t, captures.StatusClean, got.Status)
	require.Len(t, cache.stored, 1)
	assert.True(t, cache.stored[0].Clean)
}

func TestAnalyzeAllModelsDownMarksError(t *testing.T) {
	repo := newFakeCaptureRepo()
	down := vision.ModelAnalysisResult{Status: vision.CallTimeout}
	a1 := &fakeAdapter{name: "gpt", res: down, err: vision.ErrModelTimeout}
	a2 := &fakeAdapter{name: "claude", res: down, err: vision.ErrModelTimeout}
	svc := newService(repo, &fakeResultRepo{}, &fakeIssueRepo{}, &fakeCache{}, a1, a2)
	c := queuedCapture(svc, repo)

	require.NoError(t, svc.Analyze(context.Background(), c, []byte("png")))

	got, _ := repo.Get(context.Background(), c.ID)
	assert.Equal(t, captures.StatusError, got.Status)
	assert.Equal(t, 1, repo.attempts[c.ID])
}

func TestAnalyzePersistsEveryModelResult(t *testing.T) {
	repo := newFakeCaptureRepo()
	results := &fakeResultRepo{}
	a1 := &fakeAdapter{name: "gpt", res: detection(true, 0.9, vision.CategoryVisualBug)}
	a2 := &fakeAdapter{name: "claude", res: vision.ModelAnalysisResult{Status: vision.CallError}, err: vision.ErrModelUnavailable}
	svc := newService(repo, results, &fakeIssueRepo{}, &fakeCache{}, a1, a2)
	c := queuedCapture(svc, repo)

	require.NoError(t, svc.Analyze(context.Background(), c, []byte("png")))

	require.Len(t, results.saved, 2)
	byModel := map[string]vision.CallStatus{}
	for _, r := range results.saved {
		byModel[r.ModelName] = r.Status
	}
	assert.Equal(t, vision.CallOK, byModel["gpt"])
	assert.Equal(t, vision.CallError, byModel["claude"])
}

func TestNearDuplicateServedFromCache(t *testing.T) {
	repo := newFakeCaptureRepo()
	issues := &fakeIssueRepo{}
	a1 := &fakeAdapter{name: "gpt", res: detection(true, 0.95, vision.CategoryVisualBug)}
	a2 := &fakeAdapter{name: "claude", res: detection(true, 0.95, vision.CategoryVisualBug)}
	a3 := &fakeAdapter{name: "gemini", res: detection(true, 0.95, vision.CategoryVisualBug)}
	svc := newService(repo, &fakeResultRepo{}, issues, &fakeCache{}, a1, a2, a3)

	hasher := &fakeHasher{fp: 0xF00DF00DF00DF00D}
	svc.Hasher = hasher
	svc.Cache = phashcache.New(100, time.Hour, 5, nil)

	first := queuedCapture(svc, repo)
	require.NoError(t, svc.Analyze(context.Background(), first, []byte("png")))

	require.Len(t, issues.saved, 1)
	assert.Equal(t, consensus.SeverityCritical, issues.saved[0].Severity)
	assert.Equal(t, 1, a1.calls)

	// visually near-identical frame: hamming distance 2 from the first
	hasher.fp ^= 0b11
	second := &captures.Capture{
		ID:            "22222222-2222-2222-2222-222222222222",
		TestRunID:     "run-1",
		GameTitle:     "Island Racer",
		ScreenshotRef: first.ScreenshotRef,
		CapturedAt:    svc.Clock.Now(),
		Status:        captures.StatusQueued,
	}
	_ = repo.Save(context.Background(), second)
	require.NoError(t, svc.Analyze(context.Background(), second, []byte("png")))

	got, _ := repo.Get(context.Background(), second.ID)
	assert.Equal(t, captures.StatusIssueFound, got.Status)
	assert.True(t, got.CacheHit)
	assert.Equal(t, 1, a1.calls, "near-duplicate must not trigger new model calls")
	assert.Len(t, issues.saved, 1, "cached verdict reuses the existing issue")
}

func TestRetryPassReanalyzesInconclusive(t *testing.T) {
	repo := newFakeCaptureRepo()
	a1 := &fakeAdapter{name: "gpt", res: detection(false, 0.2, "")}
	a2 := &fakeAdapter{name: "claude", res: detection(false, 0.1, "")}
	svc := newService(repo, &fakeResultRepo{}, &fakeIssueRepo{}, &fakeCache{}, a1, a2)
	c := queuedCapture(svc, repo)
	_ = repo.UpdateStatus(context.Background(), c.ID, captures.StatusInconclusive, false)

	svc.retryPass(context.Background())

	got, _ := repo.Get(context.Background(), c.ID)
	assert.Equal(t, captures.StatusClean, got.Status)
	assert.Equal(t, 1, a1.calls)
}
