package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/naka-gawa/contributor-stats/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockContributorFetcher struct {
	mock.Mock
}

func (m *mockContributorFetcher) FetchContributors(ctx context.Context, username, nameWithOwner, token string) ([]domain.Contributor, error) {
	args := m.Called(ctx, username, nameWithOwner, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Contributor), args.Error(1)
}

type mockAvatarLoader struct {
	mock.Mock
}

func (m *mockAvatarLoader) LoadAvatar(ctx context.Context, avatarURL string) (string, error) {
	args := m.Called(ctx, avatarURL)
	return args.String(0), args.Error(1)
}

func repoStats(nameWithOwner string, stars int, commits, prs *int) *domain.RepoStats {
	return &domain.RepoStats{
		Repository:            repo(nameWithOwner, stars),
		NumContributedCommits: commits,
		NumContributedPRs:     prs,
	}
}

func rowNames(rows []*domain.RepoRow) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.NameWithOwner)
	}
	return names
}

func TestProcessor_Process(t *testing.T) {
	repos := []*domain.RepoStats{
		repoStats("org/mid", 50, domain.IntPtr(2), nil),
		repoStats("org/small", 2, domain.IntPtr(30), domain.IntPtr(4)),
		repoStats("org/big", 100, domain.IntPtr(246), domain.IntPtr(1)),
	}

	testCases := []struct {
		name     string
		opts     ProcessOptions
		expected []string
	}{
		{
			name:     "default orders by stars descending",
			opts:     ProcessOptions{},
			expected: []string{"org/big", "org/mid", "org/small"},
		},
		{
			name:     "order by contributions uses commit counts",
			opts:     ProcessOptions{OrderBy: domain.OrderByContributions},
			expected: []string{"org/big", "org/small", "org/mid"},
		},
		{
			name:     "limit keeps the first rows",
			opts:     ProcessOptions{Limit: 2},
			expected: []string{"org/big", "org/mid"},
		},
		{
			name:     "limit larger than the result keeps all rows",
			opts:     ProcessOptions{Limit: 10},
			expected: []string{"org/big", "org/mid", "org/small"},
		},
		{
			name:     "exclude patterns drop matching repositories",
			opts:     ProcessOptions{Exclude: []string{"org/s*", "other/*"}},
			expected: []string{"org/big", "org/mid"},
		},
		{
			name: "commit minimum drops repositories below it",
			opts: ProcessOptions{Columns: []domain.ColumnCriterion{
				{Name: domain.ColumnStarRank},
				{Name: domain.ColumnCommits, Minimum: domain.IntPtr(10)},
			}},
			expected: []string{"org/big", "org/small"},
		},
		{
			name: "pull request minimum ignores repositories without pull requests",
			opts: ProcessOptions{Columns: []domain.ColumnCriterion{
				{Name: domain.ColumnPullRequests, Minimum: domain.IntPtr(2)},
			}},
			expected: []string{"org/mid", "org/small"},
		},
		{
			name: "hidden star ranks are dropped",
			opts: ProcessOptions{Columns: []domain.ColumnCriterion{
				{Name: domain.ColumnStarRank, Hide: domain.RankList{domain.RankB}},
			}},
			expected: []string{"org/big", "org/mid"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			contributors := new(mockContributorFetcher)
			processor := NewProcessor(contributors, nil, zap.NewNop())

			rows, err := processor.Process(context.Background(), repos, tc.opts)

			require.NoError(t, err)
			assert.Equal(t, tc.expected, rowNames(rows))
			contributors.AssertNotCalled(t, "FetchContributors", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessor_Process_RowContents(t *testing.T) {
	repos := []*domain.RepoStats{repoStats("org/big", 1500, domain.IntPtr(12), nil)}

	rows, err := NewProcessor(nil, nil, nil).Process(context.Background(), repos, ProcessOptions{})

	require.NoError(t, err)
	assert.Equal(t, []*domain.RepoRow{{
		Name:                  "big",
		NameWithOwner:         "org/big",
		URL:                   "https://github.com/org/big",
		NumStars:              1500,
		NumContributedCommits: domain.IntPtr(12),
		StarRank:              domain.RankS,
	}}, rows)
}

func TestProcessor_Process_ContributionRank(t *testing.T) {
	humans := []domain.Contributor{
		{Login: "a", Type: "User", Contributions: 100},
		{Login: "b", Type: "User", Contributions: 40},
		{Login: "c", Type: "User", Contributions: 30},
		{Login: "d", Type: "User", Contributions: 10},
		{Login: "dependabot[bot]", Type: "Bot", Contributions: 1000},
	}
	repos := []*domain.RepoStats{
		repoStats("org/ranked", 10, domain.IntPtr(50), nil),
		repoStats("org/excluded", 10, domain.IntPtr(50), nil),
		repoStats("org/bots-only", 5, domain.IntPtr(3), nil),
		repoStats("org/low", 1, domain.IntPtr(1), nil),
	}
	opts := ProcessOptions{
		Username: "any-user",
		Token:    "secret",
		Exclude:  []string{"org/excluded"},
		Columns: []domain.ColumnCriterion{
			{Name: domain.ColumnContributionRank, Hide: domain.RankList{domain.RankB}},
		},
	}

	contributors := new(mockContributorFetcher)
	contributors.On("FetchContributors", mock.Anything, "any-user", "org/ranked", "secret").Return(humans, nil).Once()
	contributors.On("FetchContributors", mock.Anything, "any-user", "org/bots-only", "secret").
		Return([]domain.Contributor{{Login: "renovate[bot]", Type: "Bot", Contributions: 7}}, nil).Once()
	contributors.On("FetchContributors", mock.Anything, "any-user", "org/low", "secret").Return(humans, nil).Once()

	rows, err := NewProcessor(contributors, nil, nil).Process(context.Background(), repos, opts)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "org/ranked", rows[0].NameWithOwner)
	// 3 of 4 humans contributed no more than 50 commits.
	assert.Equal(t, domain.RankAPlus, rows[0].ContributionRank)
	assert.Empty(t, rows[0].StarRank)
	assert.Equal(t, "org/bots-only", rows[1].NameWithOwner)
	assert.Empty(t, rows[1].ContributionRank)
	contributors.AssertExpectations(t)
	contributors.AssertNotCalled(t, "FetchContributors", mock.Anything, mock.Anything, "org/excluded", mock.Anything)
}

func TestProcessor_Process_HiddenStarRankSkipsContributorFetch(t *testing.T) {
	repos := []*domain.RepoStats{
		repoStats("org/popular", 50, domain.IntPtr(5), nil),
		repoStats("org/tiny", 2, domain.IntPtr(5), nil),
	}
	opts := ProcessOptions{
		Username: "any-user",
		Columns: []domain.ColumnCriterion{
			{Name: domain.ColumnContributionRank},
			{Name: domain.ColumnStarRank, Hide: domain.RankList{domain.RankB}},
		},
	}

	contributors := new(mockContributorFetcher)
	contributors.On("FetchContributors", mock.Anything, "any-user", "org/popular", "").
		Return([]domain.Contributor{{Login: "a", Type: "User", Contributions: 5}}, nil).Once()

	rows, err := NewProcessor(contributors, nil, nil).Process(context.Background(), repos, opts)

	require.NoError(t, err)
	assert.Equal(t, []string{"org/popular"}, rowNames(rows))
	contributors.AssertExpectations(t)
	contributors.AssertNotCalled(t, "FetchContributors", mock.Anything, mock.Anything, "org/tiny", mock.Anything)
}

func TestProcessor_Process_ContributorFetchError(t *testing.T) {
	contributors := new(mockContributorFetcher)
	contributors.On("FetchContributors", mock.Anything, "any-user", "org/a", "").Return(nil, errors.New("upstream failure"))

	rows, err := NewProcessor(contributors, nil, nil).Process(context.Background(),
		[]*domain.RepoStats{repoStats("org/a", 1, domain.IntPtr(1), nil)},
		ProcessOptions{Username: "any-user", Columns: []domain.ColumnCriterion{{Name: domain.ColumnContributionRank}}})

	assert.EqualError(t, err, "upstream failure")
	assert.Nil(t, rows)
}

func TestProcessor_Process_EmbedAvatars(t *testing.T) {
	repos := []*domain.RepoStats{
		repoStats("org/a", 2, domain.IntPtr(1), nil),
		repoStats("org/b", 1, domain.IntPtr(1), nil),
	}
	repos[1].Owner.AvatarURL = "https://avatars.example/u/2"

	avatars := new(mockAvatarLoader)
	avatars.On("LoadAvatar", mock.Anything, "https://avatars.example/u/1").Return("data:image/png;base64,YQ==", nil).Once()
	avatars.On("LoadAvatar", mock.Anything, "https://avatars.example/u/2").Return("", errors.New("not found")).Once()

	rows, err := NewProcessor(nil, avatars, nil).Process(context.Background(), repos, ProcessOptions{EmbedAvatars: true})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "data:image/png;base64,YQ==", rows[0].ImageBase64)
	assert.Empty(t, rows[1].ImageBase64)
	avatars.AssertExpectations(t)
}
