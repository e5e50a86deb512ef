package ai

import "errors"

// ErrModelService is the root of every failure of the remote text-generation
// call. Provider kinds below always wrap it.
var ErrModelService = errors.New("model service error")

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrAuthExpired indicates rejected or expired credentials (HTTP 401/403).
var ErrAuthExpired = errors.New("ai credentials rejected or expired")

// ErrModelUnavailable indicates the model or service is not reachable right
// now (HTTP 404 for a retired model, 5xx, connection failures).
var ErrModelUnavailable = errors.New("ai model unavailable, try later")

// ErrTimeout indicates the call did not finish within the configured bound.
var ErrTimeout = errors.New("ai call timed out")

// ErrMalformedResponse indicates a reply without usable text.
var ErrMalformedResponse = errors.New("ai response malformed")

// Kind wraps a provider-specific sentinel under ErrModelService so callers
// can match either the general or the specific failure with errors.Is.
type Kind struct {
	Sentinel error
	Err      error
}

func (k *Kind) Error() string {
	if k.Err == nil {
		return k.Sentinel.Error()
	}
	return k.Sentinel.Error() + ": " + k.Err.Error()
}

func (k *Kind) Unwrap() []error {
	out := []error{ErrModelService, k.Sentinel}
	if k.Err != nil {
		out = append(out, k.Err)
	}
	return out
}

// NewError returns an error matching both ErrModelService and sentinel.
func NewError(sentinel, cause error) error {
	return &Kind{Sentinel: sentinel, Err: cause}
}

// SentinelForStatus maps a provider HTTP status to a sentinel. Unknown or
// missing statuses (connection errors) count as unavailable.
func SentinelForStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrAuthExpired
	case status == 429:
		return ErrQuotaExceeded
	case status == 408 || status == 504:
		return ErrTimeout
	default:
		return ErrModelUnavailable
	}
}
