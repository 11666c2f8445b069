package phash

import (
	"math/bits"
	"time"
)

// Fingerprint is a 64-bit perceptual hash of a screenshot. Visually
// similar frames have low Hamming distance between fingerprints.
type Fingerprint uint64

// Distance returns the Hamming distance between two fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ other))
}

// Bucket returns the popcount bucket of the fingerprint. Two fingerprints
// within Hamming distance T always land in buckets at most T apart, which
// is what makes the near-match scan sound.
func (f Fingerprint) Bucket() int {
	return bits.OnesCount64(uint64(f))
}

// Verdict is the cached outcome of a prior analysis: either a reference to
// a ConsensusIssue or a clean marker.
type Verdict struct {
	Clean   bool   `json:"clean"`
	IssueID string `json:"issue_id,omitempty"`
}

// Entry is one cache record keyed by fingerprint.
// Invariant: a fingerprint maps to exactly one cached verdict at a time.
type Entry struct {
	Fingerprint             Fingerprint `json:"fingerprint"`
	HammingBucket           int         `json:"hamming_bucket"`
	RepresentativeCaptureID string      `json:"representative_capture_id"`
	Verdict                 Verdict     `json:"verdict"`
	HitCount                int64       `json:"hit_count"`
	CreatedAt               time.Time   `json:"created_at"`
	LastHitAt               time.Time   `json:"last_hit_at"`
	ExpiresAt               time.Time   `json:"expires_at"`
}

// Expired reports whether the entry's TTL has passed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
