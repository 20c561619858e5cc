package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// RetryConfig defines retry behavior for provider rate limit handling.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// InitialBackoff is the wait time before the first retry. Gemini's
	// quota window resets in roughly 45 seconds.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum wait time between retries
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the backoff on each retry
	BackoffMultiplier float64
}

// Default retry constants for provider rate limiting
const (
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 45 * time.Second
	DefaultMaxBackoff        = 90 * time.Second
	DefaultBackoffMultiplier = 1.5
)

// NewDefaultRetryConfig returns a RetryConfig with sensible defaults
func NewDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate_limit")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a provider
// error message. Returns 0 if no delay is found.
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// throttledCall waits on the limiter, runs the call, and retries rate-limit
// failures with backoff, preferring the API-suggested delay when present.
func throttledCall(ctx context.Context, limiter *rate.Limiter, retryConfig *RetryConfig, logger arbor.ILogger, call func(context.Context) (string, error)) (string, error) {
	backoff := retryConfig.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait interrupted: %w", err)
		}

		response, err := call(ctx)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if !IsRateLimitError(err) || attempt == retryConfig.MaxRetries {
			return "", err
		}

		delay := ExtractRetryDelay(err)
		if delay == 0 {
			delay = backoff
		}
		if delay > retryConfig.MaxBackoff {
			delay = retryConfig.MaxBackoff
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Rate limited, backing off before retry")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * retryConfig.BackoffMultiplier)
	}

	return "", lastErr
}
