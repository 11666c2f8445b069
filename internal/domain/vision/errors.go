package vision

import "errors"

// ErrQuotaExceeded indicates the provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("vision quota exceeded")

// ErrModelTimeout indicates the per-adapter deadline expired before a verdict arrived.
var ErrModelTimeout = errors.New("vision model timeout")

// ErrModelUnavailable indicates a transient transport/provider failure worth one retry.
var ErrModelUnavailable = errors.New("vision model unavailable")

// ErrModelRejected indicates an explicit model-side rejection (bad request,
// content refusal). Never retried.
var ErrModelRejected = errors.New("vision model rejected request")
