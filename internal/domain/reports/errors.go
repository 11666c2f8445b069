package reports

import "errors"

// ErrIllegalTransition indicates a state machine violation.
var ErrIllegalTransition = errors.New("illegal report status transition")

// ErrRateLimited indicates the generate endpoint's token bucket is empty.
var ErrRateLimited = errors.New("report generation rate limit exceeded")

// ErrNotReady indicates a download was requested before completion.
var ErrNotReady = errors.New("report not completed")
