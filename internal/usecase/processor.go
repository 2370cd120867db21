package usecase

import (
	"context"
	"fmt"
	"slices"

	"github.com/naka-gawa/contributor-stats/internal/domain"
	"github.com/naka-gawa/contributor-stats/internal/gateway"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const avatarConcurrency = 4

// ProcessOptions selects the columns, filters and ordering of the report.
type ProcessOptions struct {
	Username string
	// Columns defaults to a single star_rank column.
	Columns []domain.ColumnCriterion
	OrderBy domain.OrderBy
	// Limit keeps the first Limit rows; 0 keeps all.
	Limit int
	// Exclude holds wildcard patterns matched against owner/name.
	Exclude      []string
	Token        string
	EmbedAvatars bool
}

// Processor turns aggregated repositories into ranked, filtered report rows.
type Processor struct {
	contributors gateway.ContributorFetcher
	avatars      gateway.AvatarLoader
	logger       *zap.Logger
}

// NewProcessor creates a Processor. avatars may be nil when avatars are
// never embedded.
func NewProcessor(contributors gateway.ContributorFetcher, avatars gateway.AvatarLoader, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		contributors: contributors,
		avatars:      avatars,
		logger:       logger,
	}
}

// Process filters, ranks, sorts and truncates repos. Every filter that needs
// no contributor list runs first, so contributor lists are only fetched for
// repositories that can still be reported. They are fetched one repository at
// a time since all calls share one rate-limit state.
func (p *Processor) Process(ctx context.Context, repos []*domain.RepoStats, opts ProcessOptions) ([]*domain.RepoRow, error) {
	columns := opts.Columns
	if len(columns) == 0 {
		columns = []domain.ColumnCriterion{{Name: domain.ColumnStarRank}}
	}
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = domain.OrderByStars
	}
	starColumn, wantStarRank := domain.FindColumn(columns, domain.ColumnStarRank)
	contribColumn, wantContribRank := domain.FindColumn(columns, domain.ColumnContributionRank)

	candidates := make([]*domain.RepoStats, 0, len(repos))
	for _, repo := range repos {
		if domain.MatchAny(repo.NameWithOwner, opts.Exclude) {
			p.logger.Debug("repository excluded", zap.String("repository", repo.NameWithOwner))
			continue
		}
		if belowMinimum(columns, repo) {
			continue
		}
		if wantStarRank && starColumn.Hides(domain.StarRank(repo.StargazerCount)) {
			continue
		}
		candidates = append(candidates, repo)
	}

	rows := make([]*domain.RepoRow, 0, len(candidates))
	for _, repo := range candidates {
		row := &domain.RepoRow{
			Name:                  repo.Name,
			NameWithOwner:         repo.NameWithOwner,
			URL:                   repo.URL,
			NumStars:              repo.StargazerCount,
			NumContributedCommits: repo.NumContributedCommits,
			NumContributedPRs:     repo.NumContributedPRs,
		}

		if wantContribRank {
			contributors, err := p.contributors.FetchContributors(ctx, opts.Username, repo.NameWithOwner, opts.Token)
			if err != nil {
				return nil, err
			}
			if rank, ok := domain.ContributionRank(valueOrZero(repo.NumContributedCommits), contributors); ok {
				if contribColumn.Hides(rank) {
					continue
				}
				row.ContributionRank = rank
			} else {
				p.logger.Debug("no human contributors, contribution rank not computed",
					zap.String("repository", repo.NameWithOwner))
			}
		}
		if wantStarRank {
			row.StarRank = domain.StarRank(repo.StargazerCount)
		}
		rows = append(rows, row)
	}

	sortRows(rows, orderBy)
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}

	if opts.EmbedAvatars && p.avatars != nil {
		if err := p.embedAvatars(ctx, rows, candidates); err != nil {
			return nil, err
		}
	}

	p.logger.Info("processed repositories",
		zap.Int("input", len(repos)),
		zap.Int("output", len(rows)),
		zap.String("order_by", string(orderBy)))
	return rows, nil
}

func belowMinimum(columns []domain.ColumnCriterion, repo *domain.RepoStats) bool {
	for _, c := range columns {
		if c.Minimum == nil {
			continue
		}
		var count *int
		switch c.Name {
		case domain.ColumnCommits:
			count = repo.NumContributedCommits
		case domain.ColumnPullRequests:
			count = repo.NumContributedPRs
		}
		if count != nil && *count < *c.Minimum {
			return true
		}
	}
	return false
}

func sortRows(rows []*domain.RepoRow, orderBy domain.OrderBy) {
	key := func(r *domain.RepoRow) int { return r.NumStars }
	if orderBy == domain.OrderByContributions {
		key = func(r *domain.RepoRow) int { return valueOrZero(r.NumContributedCommits) }
	}
	slices.SortStableFunc(rows, func(a, b *domain.RepoRow) int {
		return key(b) - key(a)
	})
}

// embedAvatars decorates rows with their owner avatar. A failed download
// leaves the row without an image.
func (p *Processor) embedAvatars(ctx context.Context, rows []*domain.RepoRow, repos []*domain.RepoStats) error {
	avatarURLs := make(map[string]string, len(repos))
	for _, repo := range repos {
		avatarURLs[repo.NameWithOwner] = repo.Owner.AvatarURL
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(avatarConcurrency)
	for _, row := range rows {
		avatarURL := avatarURLs[row.NameWithOwner]
		if avatarURL == "" {
			continue
		}
		eg.Go(func() error {
			image, err := p.avatars.LoadAvatar(egCtx, avatarURL)
			if err != nil {
				if egCtx.Err() != nil {
					return fmt.Errorf("failed to load avatar for %s: %w", row.NameWithOwner, egCtx.Err())
				}
				p.logger.Warn("failed to load avatar",
					zap.String("repository", row.NameWithOwner), zap.Error(err))
				return nil
			}
			row.ImageBase64 = image
			return nil
		})
	}
	return eg.Wait()
}

func valueOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
