package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/contributor-stats/internal/domain"
	"go.uber.org/zap"
)

const (
	contributorsPerPage = 100
	// unauthenticatedLimit is the hourly quota GitHub grants anonymous callers.
	unauthenticatedLimit = 60
	maxErrorBodyBytes    = 4 << 10
)

// ErrRateLimitRetriesExhausted is wrapped by the error returned once a
// request stays throttled after the configured number of retries.
var ErrRateLimitRetriesExhausted = errors.New("rate limit retries exhausted")

// ContributorFetcher fetches the contributors of a single repository.
type ContributorFetcher interface {
	FetchContributors(ctx context.Context, username, nameWithOwner, token string) ([]domain.Contributor, error)
}

// RateLimitConfig configures contributor request pacing and throttling recovery.
type RateLimitConfig struct {
	// MinInterval is the minimum spacing between two outbound requests.
	MinInterval time.Duration
	// SafetyBuffer is added to every rate-limit wait.
	SafetyBuffer time.Duration
	// FallbackWait is used when a throttled response carries no timing hint.
	FallbackWait time.Duration
	// MaxRetries bounds retries of one request after throttled responses.
	MaxRetries int
	// ProgressEvery logs progress every N requests; 0 disables it.
	ProgressEvery int
}

// DefaultRateLimitConfig returns pacing suited to GitHub's secondary limit
// of 900 points per minute on REST.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MinInterval:   100 * time.Millisecond,
		SafetyBuffer:  1 * time.Second,
		FallbackWait:  60 * time.Second,
		MaxRetries:    10,
		ProgressEvery: 10,
	}
}

// RateLimitState paces outbound requests to one endpoint. It is shared by
// every caller in the process; the mutex is held while pacing so concurrent
// callers are serialized.
type RateLimitState struct {
	mu           sync.Mutex
	requestCount int
	lastRequest  time.Time
}

// RequestCount returns the number of requests issued so far, not counting
// throttled attempts.
func (s *RateLimitState) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

func (s *RateLimitState) acquire(ctx context.Context, minInterval time.Duration, now func() time.Time, sleep sleepFunc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastRequest.IsZero() {
		if elapsed := now().Sub(s.lastRequest); elapsed < minInterval {
			if err := sleep(ctx, minInterval-elapsed); err != nil {
				return 0, err
			}
		}
	}
	s.lastRequest = now()
	s.requestCount++
	return s.requestCount, nil
}

// release undoes the bookkeeping of a throttled attempt so the retry goes out
// immediately and is counted once.
func (s *RateLimitState) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount--
	s.lastRequest = time.Time{}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UpstreamError is returned when the contributor endpoint fails. It carries
// everything needed to diagnose the failure without re-running.
type UpstreamError struct {
	Repository string
	URL        string
	StatusCode int
	Status     string
	RateLimit  RateLimitHeaders
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("failed to fetch contributors for %s: status %s, url %s, %s",
		e.Repository, e.Status, e.URL, e.RateLimit)
	if e.Body != "" {
		msg += fmt.Sprintf(", body %q", e.Body)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// RateLimitedContributorFetcher fetches contributor lists from the REST API
// while honoring GitHub's primary and secondary rate limits.
type RateLimitedContributorFetcher struct {
	restClient *github.Client
	httpClient *http.Client
	state      *RateLimitState
	cfg        RateLimitConfig
	metrics    *Metrics
	logger     *zap.Logger

	now   func() time.Time
	sleep sleepFunc
}

// NewRateLimitedContributorFetcher creates a fetcher. apiBaseURL may be empty
// for api.github.com. state may be shared with other fetchers hitting the
// same endpoint; nil creates a private one.
func NewRateLimitedContributorFetcher(
	httpClient *http.Client,
	apiBaseURL string,
	cfg RateLimitConfig,
	state *RateLimitState,
	metrics *Metrics,
	logger *zap.Logger,
) (*RateLimitedContributorFetcher, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if state == nil {
		state = &RateLimitState{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	restClient := github.NewClient(httpClient)
	if apiBaseURL != "" {
		if !strings.HasSuffix(apiBaseURL, "/") {
			apiBaseURL += "/"
		}
		baseURL, err := url.Parse(apiBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse API base URL: %w", err)
		}
		restClient.BaseURL = baseURL
	}

	return &RateLimitedContributorFetcher{
		restClient: restClient,
		httpClient: httpClient,
		state:      state,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

// RequestCount returns the number of contributor requests issued so far.
func (f *RateLimitedContributorFetcher) RequestCount() int {
	return f.state.RequestCount()
}

// FetchContributors fetches up to 100 contributors of nameWithOwner. token is
// optional; anonymous calls get a far lower quota.
func (f *RateLimitedContributorFetcher) FetchContributors(ctx context.Context, _ string, nameWithOwner, token string) ([]domain.Contributor, error) {
	owner, name, ok := strings.Cut(nameWithOwner, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository name %q: want owner/name", nameWithOwner)
	}
	path := fmt.Sprintf("repos/%s/%s/contributors?per_page=%d", url.PathEscape(owner), url.PathEscape(name), contributorsPerPage)

	for attempt := 0; ; attempt++ {
		count, err := f.state.acquire(ctx, f.cfg.MinInterval, f.now, f.sleep)
		if err != nil {
			return nil, err
		}
		if f.cfg.ProgressEvery > 0 && count%f.cfg.ProgressEvery == 0 {
			f.logger.Info("fetching repository contributors", zap.Int("requests", count))
		}

		resp, err := f.do(ctx, path, token)
		if err != nil {
			f.metrics.observeRequest("error")
			return nil, fmt.Errorf("failed to fetch contributors for %s: %w", nameWithOwner, err)
		}
		headers := ParseRateLimitHeaders(resp.Header)

		if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
			if count == 1 {
				f.logQuota(headers)
			}
			return f.handleResponse(ctx, nameWithOwner, resp, headers)
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		f.metrics.observeRequest("throttled")

		if attempt >= f.cfg.MaxRetries {
			f.state.release()
			return nil, &UpstreamError{
				Repository: nameWithOwner,
				URL:        resp.Request.URL.String(),
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				RateLimit:  headers,
				Err:        fmt.Errorf("%w after %d retries", ErrRateLimitRetriesExhausted, attempt),
			}
		}

		wait, reason := headers.ThrottleWait(f.now(), f.cfg.FallbackWait, f.cfg.SafetyBuffer)
		f.logger.Warn("rate limit hit, waiting before retry",
			zap.String("repository", nameWithOwner),
			zap.Int("status", resp.StatusCode),
			zap.String("reason", reason),
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt+1),
			zap.Stringer("rate_limit", headers))
		f.metrics.observeWait(reason, wait)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, err
		}
		f.state.release()
	}
}

func (f *RateLimitedContributorFetcher) do(ctx context.Context, path, token string) (*http.Response, error) {
	req, err := f.restClient.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	return f.httpClient.Do(req.WithContext(ctx))
}

func (f *RateLimitedContributorFetcher) handleResponse(ctx context.Context, nameWithOwner string, resp *http.Response, headers RateLimitHeaders) ([]domain.Contributor, error) {
	defer resp.Body.Close()

	// Leave quota for the next caller.
	if wait, ok := headers.ResetWait(f.now(), f.cfg.SafetyBuffer); ok {
		f.logger.Info("primary rate limit almost exhausted, waiting for reset",
			zap.Duration("wait", wait),
			zap.Stringer("rate_limit", headers))
		f.metrics.observeWait("quota_exhausted", wait)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.metrics.observeRequest("error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamError{
			Repository: nameWithOwner,
			URL:        resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			RateLimit:  headers,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	f.metrics.observeRequest("ok")

	// GitHub answers 204 for empty repositories.
	if resp.StatusCode == http.StatusNoContent {
		return []domain.Contributor{}, nil
	}

	var payload []*github.Contributor
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode contributors for %s: %w", nameWithOwner, err)
	}
	contributors := make([]domain.Contributor, 0, len(payload))
	for _, c := range payload {
		contributors = append(contributors, domain.Contributor{
			Login:         c.GetLogin(),
			Type:          c.GetType(),
			Contributions: c.GetContributions(),
		})
	}
	return contributors, nil
}

func (f *RateLimitedContributorFetcher) logQuota(headers RateLimitHeaders) {
	f.logger.Info("contributor endpoint rate limit", zap.Stringer("rate_limit", headers))
	if headers.HasLimit && headers.Limit == unauthenticatedLimit {
		f.logger.Warn("rate limit is 60/hour, requests are unauthenticated; " +
			"use a personal access token with public_repo scope")
	}
}
