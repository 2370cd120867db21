// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"fmt"

	"github.com/naka-gawa/contributor-stats/internal/domain"
	"github.com/naka-gawa/contributor-stats/internal/gateway"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxSplitDepth bounds the recursion of FetchWithSplitting.
const DefaultMaxSplitDepth = 4

// Aggregator is the use case for aggregating a user's contribution history.
// It orchestrates the fetching and combining of data.
type Aggregator struct {
	fetcher  gateway.Fetcher
	logger   *zap.Logger
	maxDepth int
}

// NewAggregator creates a new Aggregator instance. maxDepth <= 0 selects
// DefaultMaxSplitDepth.
func NewAggregator(fetcher gateway.Fetcher, maxDepth int, logger *zap.Logger) *Aggregator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxSplitDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		fetcher:  fetcher,
		logger:   logger,
		maxDepth: maxDepth,
	}
}

// FetchWithSplitting fetches the contributions of r. When a list reaches the
// per-query cap, r is split and every sub-range is fetched concurrently; the
// results are concatenated, not merged. A capped range that cannot be split
// any further is returned as is.
func (a *Aggregator) FetchWithSplitting(ctx context.Context, username string, r domain.TimeRange, depth int) (*domain.ContributionResponse, error) {
	resp, err := a.fetcher.FetchContributions(ctx, username, r)
	if err != nil {
		return nil, err
	}
	if !capped(resp) {
		return resp, nil
	}

	if depth >= a.maxDepth {
		a.logger.Warn("contribution query capped at max split depth, results may be truncated",
			zap.String("user", username), zap.Stringer("range", r), zap.Int("depth", depth))
		return resp, nil
	}
	subRanges := domain.SplitTimeRange(r)
	if len(subRanges) <= 1 {
		a.logger.Warn("contribution query capped on an unsplittable range, results may be truncated",
			zap.String("user", username), zap.Stringer("range", r), zap.Int("depth", depth))
		return resp, nil
	}

	a.logger.Debug("splitting capped contribution query",
		zap.Stringer("range", r), zap.Int("depth", depth), zap.Int("sub_ranges", len(subRanges)))

	results := make([]*domain.ContributionResponse, len(subRanges))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, sub := range subRanges {
		eg.Go(func() error {
			res, err := a.FetchWithSplitting(egCtx, username, sub, depth+1)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	merged := &domain.ContributionResponse{}
	for _, res := range results {
		merged.Commits = append(merged.Commits, res.Commits...)
		merged.PullRequests = append(merged.PullRequests, res.PullRequests...)
	}
	return merged, nil
}

func capped(resp *domain.ContributionResponse) bool {
	return len(resp.Commits) >= gateway.MaxReposPerQuery || len(resp.PullRequests) >= gateway.MaxReposPerQuery
}

// Aggregate fetches every contribution year of the user concurrently and
// reduces the results to one entry per repository.
func (a *Aggregator) Aggregate(ctx context.Context, username string) (*domain.UserContributions, error) {
	years, err := a.fetcher.FetchContributionYears(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contribution years: %w", err)
	}
	result := &domain.UserContributions{
		ID:           years.ID,
		Name:         years.Name,
		Repositories: []*domain.RepoStats{},
	}
	if len(years.Years) == 0 {
		a.logger.Info("user has no contribution years", zap.String("user", username))
		return result, nil
	}

	ranges := make([]domain.TimeRange, len(years.Years))
	for i, year := range years.Years {
		ranges[i] = domain.YearRange(year)
	}
	responses, err := a.fetchAll(ctx, username, ranges)
	if err != nil {
		return nil, err
	}
	result.Repositories = a.reduce(responses)

	a.logger.Info("aggregated contributions",
		zap.String("user", username),
		zap.Ints("years", years.Years),
		zap.Int("repositories", len(result.Repositories)))
	return result, nil
}

// AggregateRange is Aggregate restricted to a single time range.
func (a *Aggregator) AggregateRange(ctx context.Context, username string, r domain.TimeRange) (*domain.UserContributions, error) {
	years, err := a.fetcher.FetchContributionYears(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contribution years: %w", err)
	}
	responses, err := a.fetchAll(ctx, username, []domain.TimeRange{r})
	if err != nil {
		return nil, err
	}
	return &domain.UserContributions{
		ID:           years.ID,
		Name:         years.Name,
		Repositories: a.reduce(responses),
	}, nil
}

func (a *Aggregator) fetchAll(ctx context.Context, username string, ranges []domain.TimeRange) ([]*domain.ContributionResponse, error) {
	responses := make([]*domain.ContributionResponse, len(ranges))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		eg.Go(func() error {
			resp, err := a.FetchWithSplitting(egCtx, username, r, 0)
			if err != nil {
				return fmt.Errorf("failed to fetch contributions in %s: %w", r, err)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

// reduce sums counts per repository and kind. The commit grouping decides
// which repositories are reported, in order of first appearance.
func (a *Aggregator) reduce(responses []*domain.ContributionResponse) []*domain.RepoStats {
	var commits, prs []domain.RepositoryContribution
	for _, resp := range responses {
		commits = append(commits, resp.Commits...)
		prs = append(prs, resp.PullRequests...)
	}

	commitRepos, commitSums := group(commits)
	_, prSums := group(prs)

	repos := make([]*domain.RepoStats, 0, len(commitRepos))
	for _, repo := range commitRepos {
		stats := &domain.RepoStats{
			Repository:            repo,
			NumContributedCommits: domain.IntPtr(commitSums[repo.NameWithOwner]),
		}
		if sum, ok := prSums[repo.NameWithOwner]; ok {
			stats.NumContributedPRs = domain.IntPtr(sum)
		}
		repos = append(repos, stats)
	}

	if dropped := len(prSums) - countShared(prSums, commitSums); dropped > 0 {
		a.logger.Debug("repositories with pull requests but no commits are not reported", zap.Int("repositories", dropped))
	}
	return repos
}

func group(contributions []domain.RepositoryContribution) ([]domain.Repository, map[string]int) {
	var order []domain.Repository
	sums := make(map[string]int)
	for _, c := range contributions {
		key := c.Repository.NameWithOwner
		if _, ok := sums[key]; !ok {
			order = append(order, c.Repository)
		}
		sums[key] += c.Count
	}
	return order, sums
}

func countShared(a, b map[string]int) int {
	n := 0
	for key := range a {
		if _, ok := b[key]; ok {
			n++
		}
	}
	return n
}
