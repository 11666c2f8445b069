package captures

import (
	"time"
)

// ID tipe untuk Capture
type CaptureID string

// AnalysisStatus enum
type AnalysisStatus string

const (
	StatusQueued       AnalysisStatus = "queued"
	StatusProcessing   AnalysisStatus = "processing"
	StatusClean        AnalysisStatus = "clean"
	StatusIssueFound   AnalysisStatus = "issue_found"
	StatusInconclusive AnalysisStatus = "inconclusive"
	StatusError        AnalysisStatus = "error"
)

// MaxAnalysisAttempts bounds re-analysis of inconclusive/error captures
// before they are left for manual inspection.
const MaxAnalysisAttempts = 3

// Aggregate Root: Capture
// Immutable once created, except for analysis bookkeeping columns
// (status, attempts, cache_hit) owned by the pipeline.
type Capture struct {
	ID            CaptureID      `json:"capture_id"`
	TestRunID     string         `json:"test_run_id"`
	GameTitle     string         `json:"game_title"`
	GitCommit     string         `json:"git_commit,omitempty"`
	ScreenshotRef string         `json:"screenshot_ref"`
	TelemetryRef  string         `json:"telemetry_ref,omitempty"`
	CapturedAt    time.Time      `json:"captured_at"`
	Status        AnalysisStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	CacheHit      bool           `json:"cache_hit"`
}

// Retryable reports whether the capture should be picked up again by the
// re-analysis sweep.
func (c *Capture) Retryable() bool {
	if c.Status != StatusInconclusive && c.Status != StatusError {
		return false
	}
	return c.Attempts < MaxAnalysisAttempts
}
