package gateway

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
// The Has* fields record which headers were actually sent.
type RateLimitHeaders struct {
	Limit      int
	Remaining  int
	ResetUnix  int64
	RetryAfter time.Duration

	HasLimit      bool
	HasRemaining  bool
	HasReset      bool
	HasRetryAfter bool
}

// ParseRateLimitHeaders parses rate-limit and retry headers. Malformed values
// are treated as absent.
func ParseRateLimitHeaders(header http.Header) RateLimitHeaders {
	parsed := RateLimitHeaders{}
	parsed.Limit, parsed.HasLimit = parseInt(header.Get("X-RateLimit-Limit"))
	parsed.Remaining, parsed.HasRemaining = parseInt(header.Get("X-RateLimit-Remaining"))
	parsed.ResetUnix, parsed.HasReset = parseInt64(header.Get("X-RateLimit-Reset"))

	if seconds, ok := parseInt(header.Get("Retry-After")); ok && seconds >= 0 {
		parsed.RetryAfter = time.Duration(seconds) * time.Second
		parsed.HasRetryAfter = true
	}
	return parsed
}

// ResetAt returns the time the primary window resets.
func (h RateLimitHeaders) ResetAt() time.Time {
	return time.Unix(h.ResetUnix, 0)
}

// ThrottleWait decides how long to wait after a throttled response. A
// provider retry delay wins, then the primary reset time, then fallback.
// buffer is added in every case.
func (h RateLimitHeaders) ThrottleWait(now time.Time, fallback, buffer time.Duration) (time.Duration, string) {
	switch {
	case h.HasRetryAfter:
		return h.RetryAfter + buffer, "retry_after"
	case h.HasReset:
		return untilReset(h.ResetAt(), now) + buffer, "primary_reset"
	default:
		return fallback + buffer, "fallback"
	}
}

// ResetWait reports how long to wait when at most one call is left in the
// primary window.
func (h RateLimitHeaders) ResetWait(now time.Time, buffer time.Duration) (time.Duration, bool) {
	if !h.HasRemaining || h.Remaining > 1 || !h.HasReset {
		return 0, false
	}
	return untilReset(h.ResetAt(), now) + buffer, true
}

func (h RateLimitHeaders) String() string {
	na := "N/A"
	limit, remaining, reset, retryAfter := na, na, na, na
	if h.HasLimit {
		limit = strconv.Itoa(h.Limit)
	}
	if h.HasRemaining {
		remaining = strconv.Itoa(h.Remaining)
	}
	if h.HasReset {
		reset = fmt.Sprintf("%d (%s)", h.ResetUnix, h.ResetAt().UTC().Format(time.RFC3339))
	}
	if h.HasRetryAfter {
		retryAfter = h.RetryAfter.String()
	}
	return fmt.Sprintf("rate_limit_limit=%s rate_limit_remaining=%s rate_limit_reset=%s retry_after=%s",
		limit, remaining, reset, retryAfter)
}

func untilReset(resetAt, now time.Time) time.Duration {
	if wait := resetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

func parseInt(raw string) (int, bool) {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseInt64(raw string) (int64, bool) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
