package upstream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &RateLimitError{Provider: "p"}, true},
		{"network", &NetworkError{Provider: "p", Err: errors.New("reset")}, true},
		{"timeout", &TimeoutError{Provider: "p", Elapsed: time.Second}, true},
		{"upstream business error", &UpstreamError{Provider: "p", HTTPStatus: 500}, true},
		{"unclassified parse error", errors.New("unexpected end of JSON input"), true},
		{"auth", &AuthError{Provider: "p"}, false},
		{"quota", &QuotaError{Provider: "p"}, false},
		{"config", &ConfigError{Provider: "p", Missing: "api_key"}, false},
		{"validation", &ValidationError{Field: "fps"}, false},
		{"not found", &NotFoundError{Provider: "p", TaskID: "t1"}, false},
		{"context canceled", context.Canceled, false},
		{"wrapped auth", fmt.Errorf("submit: %w", &AuthError{Provider: "p"}), false},
		{"wrapped rate limit", fmt.Errorf("submit: %w", &RateLimitError{Provider: "p"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "fps", Value: 45, Allowed: []string{"30", "60"}}
	assert.Contains(t, err.Error(), "fps")
	assert.Contains(t, err.Error(), "45")
	assert.Contains(t, err.Error(), "30")
	assert.Contains(t, err.Error(), "60")
}

func TestClassifyTransport(t *testing.T) {
	var tErr *TimeoutError
	err := ClassifyTransport("wanx", context.DeadlineExceeded, 30*time.Second)
	assert.ErrorAs(t, err, &tErr)
	assert.Equal(t, 30*time.Second, tErr.Elapsed)

	var nErr *NetworkError
	err = ClassifyTransport("wanx", errors.New("connection refused"), time.Second)
	assert.ErrorAs(t, err, &nErr)
	assert.ErrorContains(t, nErr, "connection refused")
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&RateLimitError{Provider: "p"}, "rate_limit"},
		{&TimeoutError{Provider: "p"}, "timeout"},
		{&NetworkError{Provider: "p", Err: errors.New("reset")}, "network"},
		{&AuthError{Provider: "p"}, "auth"},
		{&QuotaError{Provider: "p"}, "quota"},
		{fmt.Errorf("poll: %w", &NotFoundError{Provider: "p", TaskID: "t"}), "not_found"},
		{errors.New("mystery"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err))
	}
}

func TestNetworkErrorUnwraps(t *testing.T) {
	inner := errors.New("broken pipe")
	err := &NetworkError{Provider: "hunyuan", Err: inner}
	assert.ErrorIs(t, err, inner)
}
