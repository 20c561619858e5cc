package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "429 status", err: errors.New("Error 429, Message: too many requests"), expected: true},
		{name: "resource exhausted", err: errors.New("Status: RESOURCE_EXHAUSTED"), expected: true},
		{name: "quota message", err: errors.New("quota exceeded for metric"), expected: true},
		{name: "anthropic rate_limit", err: errors.New("rate_limit_error: request throttled"), expected: true},
		{name: "unrelated error", err: errors.New("connection refused"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRateLimitError(tt.err))
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	err := fmt.Errorf("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.01)

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no delay here")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}

func TestThrottledCall_RetriesRateLimits(t *testing.T) {
	retryConfig := &RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
	limiter := rate.NewLimiter(rate.Inf, 1)

	calls := 0
	response, err := throttledCall(context.Background(), limiter, retryConfig, arbor.NewLogger(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("429 too many requests")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", response)
	assert.Equal(t, 3, calls)
}

func TestThrottledCall_NonRateLimitErrorsFailFast(t *testing.T) {
	limiter := rate.NewLimiter(rate.Inf, 1)

	calls := 0
	_, err := throttledCall(context.Background(), limiter, NewDefaultRetryConfig(), arbor.NewLogger(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("invalid request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "non rate-limit errors are not retried")
}
