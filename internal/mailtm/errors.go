package mailtm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitedError is returned when the provider answers 429.
type RateLimitedError struct {
	Method string
	Path   string

	// RetryAfter is the provider's hint from the Retry-After header;
	// zero when the header was absent or unparsable.
	RetryAfter time.Duration

	Body string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf(
			"rate limited (429) on %s %s, retry after %s",
			e.Method, e.Path, e.RetryAfter,
		)
	}
	return fmt.Sprintf("rate limited (429) on %s %s", e.Method, e.Path)
}

// ProviderError is returned for every other non-2xx response.
type ProviderError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf(
		"provider error (%d) on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Body,
	)
}

// IsRateLimited reports whether err (or any error in its chain) is a
// RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	if IsRateLimited(err) {
		return http.StatusTooManyRequests
	}
	return 0
}

// parseRetryAfter reads a Retry-After header value given either as
// delta-seconds or as an HTTP date.
func parseRetryAfter(header string, now time.Time) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
