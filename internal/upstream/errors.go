// Package upstream defines the error taxonomy for vendor calls and the
// retry policy that consumes it. Every failure an adapter can produce is
// one of these types, so callers classify with errors.As instead of
// string-matching vendor messages.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ConfigError means a required credential or setting is absent. Surfaced
// before any network call; never retried.
type ConfigError struct {
	Provider string
	Missing  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing configuration: %s", e.Provider, e.Missing)
}

// ValidationError means a caller-supplied parameter is outside the declared
// option set. Raised locally, before the vendor is contacted.
type ValidationError struct {
	Field   string
	Value   any
	Allowed []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("%s: unsupported value %v (allowed: %v)", e.Field, e.Value, e.Allowed)
	}
	return fmt.Sprintf("%s: invalid value %v", e.Field, e.Value)
}

// AuthError means the vendor rejected our credentials. Resubmission cannot
// succeed, so it is never retried.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Message)
}

// QuotaError means the vendor account has no balance or quota left.
// Never retried.
type QuotaError struct {
	Provider string
	Message  string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: quota exhausted: %s", e.Provider, e.Message)
}

// RateLimitError means the vendor throttled the request. Retried with
// backoff until the attempt budget runs out.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
}

// NetworkError wraps a transport-level failure (connection refused, DNS,
// reset). Retryable.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError covers both a per-call HTTP timeout and the poller's maxWait
// ceiling. Elapsed records how long was spent before giving up.
type TimeoutError struct {
	Provider string
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Provider, e.Elapsed.Round(time.Millisecond))
}

// UpstreamError carries a vendor business error verbatim: the HTTP status
// and the vendor's own code and message. Retryable unless classified into
// one of the fatal types above.
type UpstreamError struct {
	Provider   string
	HTTPStatus int
	VendorCode string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.VendorCode != "" {
		return fmt.Sprintf("%s: upstream error %s (http %d): %s", e.Provider, e.VendorCode, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: upstream error (http %d): %s", e.Provider, e.HTTPStatus, e.Message)
}

// NotFoundError means the vendor does not know the task: expired or never
// existed. Fatal.
type NotFoundError struct {
	Provider string
	TaskID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: task %s not found or expired", e.Provider, e.TaskID)
}

// Retryable reports whether resubmitting the operation could plausibly
// succeed. Credential, quota, validation and not-found failures cannot;
// everything else (rate limits, transport blips, vendor 5xx, parse
// failures) is worth another attempt.
func Retryable(err error) bool {
	var (
		cfgErr  *ConfigError
		valErr  *ValidationError
		authErr *AuthError
		qErr    *QuotaError
		nfErr   *NotFoundError
	)
	switch {
	case errors.As(err, &cfgErr),
		errors.As(err, &valErr),
		errors.As(err, &authErr),
		errors.As(err, &qErr),
		errors.As(err, &nfErr):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// ClassifyTransport maps an http.Client.Do failure onto the taxonomy:
// timeouts become TimeoutError, everything else NetworkError.
func ClassifyTransport(provider string, err error, elapsed time.Duration) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Provider: provider, Elapsed: elapsed}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Provider: provider, Elapsed: elapsed}
	}
	return &NetworkError{Provider: provider, Err: err}
}
