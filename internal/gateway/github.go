// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_primary_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_secondary_ratelimit"
	"github.com/naka-gawa/contributor-stats/internal/domain"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// MaxReposPerQuery is the provider cap on repositories per contribution kind
// in one contributions query. It must match the maxRepositories arguments below.
const MaxReposPerQuery = 100

// Fetcher defines the behavior of a gateway for fetching contribution data from GitHub.
type Fetcher interface {
	FetchContributionYears(ctx context.Context, username string) (*domain.ContributionYears, error)
	FetchContributions(ctx context.Context, username string, r domain.TimeRange) (*domain.ContributionResponse, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	graphqlClient *githubv4.Client
	logger        *zap.Logger
}

// GatewayConfig configures the GraphQL gateway.
type GatewayConfig struct {
	Token string
	// GraphQLURL overrides the public endpoint, e.g. for GitHub Enterprise.
	GraphQLURL string
	// RequestTimeout bounds each attempt, not the rate-limit waits between them.
	RequestTimeout time.Duration
	// MaxRetries bounds retries of one query after primary rate limits.
	MaxRetries int
	// SafetyBuffer is added to every primary reset wait.
	SafetyBuffer time.Duration
	// FallbackWait is used when a throttled response carries no timing hint.
	FallbackWait time.Duration
	Metrics      *Metrics
}

type repositoryNode struct {
	Name           string
	NameWithOwner  string
	URL            string
	StargazerCount int
	Owner          struct {
		Login     string
		AvatarURL string `graphql:"avatarUrl"`
	}
}

type contributionsByRepository struct {
	Contributions struct {
		TotalCount int
	}
	Repository repositoryNode
}

// contributionsQuery asks for both contribution kinds of one time range.
type contributionsQuery struct {
	User struct {
		ContributionsCollection struct {
			CommitContributionsByRepository      []contributionsByRepository `graphql:"commitContributionsByRepository(maxRepositories: 100)"`
			PullRequestContributionsByRepository []contributionsByRepository `graphql:"pullRequestContributionsByRepository(maxRepositories: 100)"`
		} `graphql:"contributionsCollection(from: $from, to: $to)"`
	} `graphql:"user(login: $login)"`
}

type contributionYearsQuery struct {
	User struct {
		ID                      string
		Name                    string
		ContributionsCollection struct {
			ContributionYears []int
		}
	} `graphql:"user(login: $login)"`
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
// Requests flow through the credential, primary-limit retry, secondary and
// primary limiters and a per-attempt timeout, in that order. The client itself
// has no timeout so rate-limit waits are never cut short.
func NewGitHubGateway(cfg GatewayConfig, logger *zap.Logger) (*GitHubGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid max retries %d: must not be negative", cfg.MaxRetries)
	}
	if cfg.FallbackWait <= 0 {
		cfg.FallbackWait = DefaultRateLimitConfig().FallbackWait
	}

	limiter := github_ratelimit.New(
		&attemptTransport{base: http.DefaultTransport, timeout: cfg.RequestTimeout},
		github_primary_ratelimit.WithLimitDetectedCallback(func(cbContext *github_primary_ratelimit.CallbackContext) {
			fields := []zap.Field{zap.String("category", string(cbContext.Category))}
			if cbContext.ResetTime != nil {
				fields = append(fields, zap.Time("reset", *cbContext.ResetTime))
			}
			logger.Warn("GraphQL primary rate limit detected", fields...)
		}),
		github_secondary_ratelimit.WithLimitDetectedCallback(func(cbContext *github_secondary_ratelimit.CallbackContext) {
			fields := []zap.Field{}
			if cbContext.ResetTime != nil {
				fields = append(fields, zap.Time("sleep_until", *cbContext.ResetTime))
			}
			logger.Warn("GraphQL secondary rate limit detected", fields...)
		}),
		github_secondary_ratelimit.WithSingleSleepLimit(1*time.Hour, func(cbContext *github_secondary_ratelimit.CallbackContext) {
			logger.Error("GraphQL secondary rate limit wait exceeds one hour, giving up")
		}),
	)

	var transport http.RoundTripper = &throttleTransport{
		base:       limiter,
		maxRetries: cfg.MaxRetries,
		buffer:     cfg.SafetyBuffer,
		fallback:   cfg.FallbackWait,
		metrics:    cfg.Metrics,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Base:   transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
		}
	}
	httpClient := &http.Client{Transport: transport}

	graphqlClient := githubv4.NewClient(httpClient)
	if cfg.GraphQLURL != "" {
		graphqlClient = githubv4.NewEnterpriseClient(cfg.GraphQLURL, httpClient)
	}
	return &GitHubGateway{
		graphqlClient: graphqlClient,
		logger:        logger,
	}, nil
}

// FetchContributionYears returns the user's id, display name and the calendar
// years in which the user has any contribution activity.
func (g *GitHubGateway) FetchContributionYears(ctx context.Context, username string) (*domain.ContributionYears, error) {
	var q contributionYearsQuery
	variables := map[string]interface{}{"login": githubv4.String(username)}
	if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
		return nil, fmt.Errorf("failed to execute GraphQL query for contribution years: %w", err)
	}
	years := q.User.ContributionsCollection.ContributionYears
	if years == nil {
		years = []int{}
	}
	g.logger.Debug("fetched contribution years", zap.String("user", username), zap.Ints("years", years))
	return &domain.ContributionYears{
		ID:    q.User.ID,
		Name:  q.User.Name,
		Years: years,
	}, nil
}

// FetchContributions issues one contributions query for r. Each list holds at
// most MaxReposPerQuery repositories.
func (g *GitHubGateway) FetchContributions(ctx context.Context, username string, r domain.TimeRange) (*domain.ContributionResponse, error) {
	var q contributionsQuery
	variables := map[string]interface{}{
		"login": githubv4.String(username),
		"from":  githubv4.DateTime{Time: r.From},
		"to":    githubv4.DateTime{Time: r.To},
	}
	if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
		return nil, fmt.Errorf("failed to execute GraphQL query for contributions in %s: %w", r, err)
	}

	collection := q.User.ContributionsCollection
	resp := &domain.ContributionResponse{
		Commits:      toContributions(collection.CommitContributionsByRepository),
		PullRequests: toContributions(collection.PullRequestContributionsByRepository),
	}
	g.logger.Debug("fetched contributions",
		zap.String("user", username),
		zap.Stringer("range", r),
		zap.Int("commit_repositories", len(resp.Commits)),
		zap.Int("pull_request_repositories", len(resp.PullRequests)))
	return resp, nil
}

func toContributions(nodes []contributionsByRepository) []domain.RepositoryContribution {
	out := make([]domain.RepositoryContribution, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, domain.RepositoryContribution{
			Repository: domain.Repository{
				Name:           n.Repository.Name,
				NameWithOwner:  n.Repository.NameWithOwner,
				URL:            n.Repository.URL,
				StargazerCount: n.Repository.StargazerCount,
				Owner: domain.Owner{
					Login:     n.Repository.Owner.Login,
					AvatarURL: n.Repository.Owner.AvatarURL,
				},
			},
			Count: n.Contributions.TotalCount,
		})
	}
	return out
}
