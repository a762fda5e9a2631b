package domain

import "errors"

// Error taxonomy (sentinels). Adapters wrap these with op context;
// the HTTP layer maps them onto the common response envelope.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoCredential = errors.New("no credential available")

	// Upstream LLM failures. Timeout/rate-limit/5xx are transient and drive
	// the queue retry path; permanent covers schema and non-429 4xx replies.
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstreamPermanent = errors.New("upstream permanent failure")

	ErrInternal = errors.New("internal error")
)

// IsTransientUpstream reports whether an LLM failure should be retried via
// the attempt-header republish path. Permanent upstream errors are retried
// as well: a 4xx today is frequently a quota or model-availability hiccup
// tomorrow, and the retry ceiling bounds the damage.
func IsTransientUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrUpstreamRateLimit) ||
		errors.Is(err, ErrUpstreamPermanent) ||
		errors.Is(err, ErrNoCredential)
}
