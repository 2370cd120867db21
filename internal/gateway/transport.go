package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_primary_ratelimit"
	"go.uber.org/zap"
)

// attemptTransport bounds a single round trip by timeout, body read included,
// and gives every attempt a fresh copy of the request body so the limiters
// stacked above it can resend a request.
type attemptTransport struct {
	base    http.RoundTripper
	timeout time.Duration
}

func (t *attemptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	cancel := func() {}
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		attempt.Body = body
	}

	resp, err := t.base.RoundTrip(attempt)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// throttleTransport retries requests rejected by the primary rate limit.
// Secondary limits are waited out by the limiter below it; the primary limiter
// only reports the reset time, and a response without a resource category
// passes through it untouched.
type throttleTransport struct {
	base       http.RoundTripper
	maxRetries int
	buffer     time.Duration
	fallback   time.Duration
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
	sleep      sleepFunc
}

func (t *throttleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		wait, reason, throttled := t.throttleWait(resp, err)
		if !throttled {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		if attempt >= t.maxRetries {
			if err != nil {
				return nil, fmt.Errorf("%w after %d retries: %w", ErrRateLimitRetriesExhausted, attempt, err)
			}
			return nil, fmt.Errorf("%w after %d retries: status %d", ErrRateLimitRetriesExhausted, attempt, resp.StatusCode)
		}

		t.logger.Warn("GraphQL rate limit hit, waiting before retry",
			zap.String("reason", reason),
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt+1))
		t.metrics.observeWait("graphql_"+reason, wait)
		if err := t.sleep(req.Context(), wait); err != nil {
			return nil, err
		}
	}
}

// throttleWait reports whether the outcome of a round trip was a primary rate
// limit and how long to wait before retrying it.
func (t *throttleTransport) throttleWait(resp *http.Response, err error) (time.Duration, string, bool) {
	var limitErr *github_primary_ratelimit.RateLimitReachedError
	if errors.As(err, &limitErr) {
		if limitErr.ResetTime == nil {
			return t.fallback + t.buffer, "fallback", true
		}
		return untilReset(*limitErr.ResetTime, t.now()) + t.buffer, "primary_reset", true
	}
	if err != nil || resp == nil {
		return 0, "", false
	}
	if !slices.Contains(github_primary_ratelimit.PrimaryLimitStatusCodes, resp.StatusCode) {
		return 0, "", false
	}

	headers := ParseRateLimitHeaders(resp.Header)
	exhausted := headers.HasRemaining && headers.Remaining == 0
	if resp.StatusCode == http.StatusForbidden && !exhausted && !headers.HasRetryAfter {
		// a plain permission error
		return 0, "", false
	}
	wait, reason := headers.ThrottleWait(t.now(), t.fallback, t.buffer)
	return wait, reason, true
}
