package consensus

import "errors"

// ErrInconclusive indicates quorum was not met; the capture is queued for
// re-analysis rather than surfaced to triage callers.
var ErrInconclusive = errors.New("consensus inconclusive: quorum not met")

// ErrReasonRequired indicates a reject call arrived without a reason.
var ErrReasonRequired = errors.New("reject reason is required")
