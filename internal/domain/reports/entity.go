package reports

import (
	"fmt"
	"time"
)

// ID tipe untuk ReportJob
type ReportID string

// Format enum
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Status enum; transitions are strictly forward-only.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allowedTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusQueued}, // back to queued only on shutdown revert
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ReportJob is one unit of asynchronous report generation work.
type ReportJob struct {
	ID                 ReportID   `json:"report_id"`
	TestRunID          string     `json:"test_run_id"`
	GameTitle          string     `json:"game_title,omitempty"`
	Format             Format     `json:"format"`
	IncludeScreenshots bool       `json:"include_screenshots"`
	Status             Status     `json:"status"`
	RequestedAt        time.Time  `json:"requested_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ArtifactRef        string     `json:"artifact_ref,omitempty"`
	FileSizeBytes      int64      `json:"file_size_bytes,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	CostSummary        string     `json:"cost_summary,omitempty"`
	PerformanceSummary string     `json:"performance_summary,omitempty"`
}

// Transition moves the job to the given status, enforcing the state
// machine. Terminal states never move again.
func (j *ReportJob) Transition(to Status, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.Status, to)
	}
	j.Status = to
	switch to {
	case StatusProcessing:
		t := now
		j.StartedAt = &t
	case StatusCompleted, StatusFailed:
		t := now
		j.CompletedAt = &t
	case StatusQueued:
		j.StartedAt = nil
	}
	return nil
}

// Terminal reports whether the job reached a final state.
func (j *ReportJob) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// ValidFormat parses a user-supplied format string.
func ValidFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatJSON, FormatHTML, FormatPDF:
		return Format(s), true
	}
	return "", false
}
