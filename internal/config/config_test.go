package config

import (
	"strings"
	"testing"
	"time"

	"github.com/naka-gawa/contributor-stats/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		yaml       string
		wantErr    bool
		errSubstrs []string
		check      func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty document yields defaults",
			yaml: "",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
				assert.True(t, cfg.CombineAllYearlyContributions)
				assert.Equal(t, domain.OrderByStars, cfg.OrderBy)
				assert.Equal(t, []domain.ColumnCriterion{{Name: domain.ColumnStarRank}}, cfg.Columns)
				assert.Equal(t, 100*time.Millisecond, cfg.RateLimit.MinInterval)
				assert.Equal(t, time.Second, cfg.RateLimit.SafetyBuffer)
				assert.Equal(t, 60*time.Second, cfg.RateLimit.FallbackWait)
				assert.Equal(t, 10, cfg.RateLimit.MaxRetries)
				assert.Equal(t, 4, cfg.Contributions.MaxSplitDepth)
				assert.Equal(t, ":9999", cfg.Server.ListenAddr)
				assert.Equal(t, 14400, cfg.Server.CacheSeconds)
			},
		},
		{
			name: "full configuration",
			yaml: `
username: octocat
columns:
  - star_rank
  - name: contribution_rank
    hide: [B, "B+"]
  - name: commits
    minimum: 5
hide: "A"
order_by: contributions
limit: 10
exclude: "octocat/dotfiles, other/*"
combine_all_yearly_contributions: false
embed_avatars: true
output: stats.json
log_level: DEBUG
github:
  api_base_url: "https://ghe.example.com/api/v3"
  graphql_url: "https://ghe.example.com/api/graphql"
  request_timeout: "20s"
rate_limit:
  min_interval: "250ms"
  safety_buffer: "2s"
  fallback_wait: "30s"
  max_retries: 3
  progress_every: 5
contributions:
  max_split_depth: 2
server:
  listen_addr: ":8080"
  cache_seconds: 86400
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "octocat", cfg.Username)
				assert.Equal(t, []domain.ColumnCriterion{
					{Name: domain.ColumnStarRank},
					{Name: domain.ColumnContributionRank, Hide: domain.RankList{domain.RankB, domain.RankBPlus}},
					{Name: domain.ColumnCommits, Minimum: domain.IntPtr(5)},
				}, cfg.Columns)
				assert.Equal(t, domain.RankList{domain.RankA}, cfg.Hide)
				assert.Equal(t, domain.OrderByContributions, cfg.OrderBy)
				assert.Equal(t, 10, cfg.Limit)
				assert.Equal(t, []string{"octocat/dotfiles", "other/*"}, cfg.Exclude)
				assert.False(t, cfg.CombineAllYearlyContributions)
				assert.True(t, cfg.EmbedAvatars)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, 20*time.Second, cfg.GitHub.RequestTimeout)
				assert.Equal(t, RateLimitConfig{
					MinInterval:   250 * time.Millisecond,
					SafetyBuffer:  2 * time.Second,
					FallbackWait:  30 * time.Second,
					MaxRetries:    3,
					ProgressEvery: 5,
				}, cfg.RateLimit)
				assert.Equal(t, 2, cfg.Contributions.MaxSplitDepth)
				assert.Equal(t, ServerConfig{ListenAddr: ":8080", CacheSeconds: 86400}, cfg.Server)
			},
		},
		{
			name: "columns as a comma-separated string",
			yaml: `columns: "commits, pull_requests"`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []domain.ColumnCriterion{
					{Name: domain.ColumnCommits},
					{Name: domain.ColumnPullRequests},
				}, cfg.Columns)
			},
		},
		{
			name: "explicit zero rate limits are kept",
			yaml: `
rate_limit:
  min_interval: "0s"
  safety_buffer: "0s"
  max_retries: 0
  progress_every: 0
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, RateLimitConfig{FallbackWait: 60 * time.Second}, cfg.RateLimit)
			},
		},
		{
			name:       "unknown field",
			yaml:       "usernmae: octocat",
			wantErr:    true,
			errSubstrs: []string{"unmarshal yaml", "usernmae"},
		},
		{
			name:       "invalid rank in hide",
			yaml:       `hide: "Z"`,
			wantErr:    true,
			errSubstrs: []string{"invalid rank"},
		},
		{
			name:       "invalid duration",
			yaml:       "rate_limit:\n  min_interval: soon",
			wantErr:    true,
			errSubstrs: []string{"parse duration"},
		},
		{
			name: "validation errors are joined",
			yaml: `
order_by: forks
limit: -1
log_level: trace
github:
  api_base_url: "not a url"
columns:
  - name: commits
    hide: [B]
`,
			wantErr: true,
			errSubstrs: []string{
				"Config.OrderBy failed on oneof",
				"Config.Limit failed on gte",
				"Config.LogLevel failed on oneof",
				"Config.GitHub.APIBaseURL failed on url",
				"columns[0]: invalid column: commits does not accept hide",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(strings.NewReader(tc.yaml))
			if tc.wantErr {
				require.Error(t, err)
				for _, substr := range tc.errSubstrs {
					assert.Contains(t, err.Error(), substr)
				}
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoad_NilReader(t *testing.T) {
	_, err := Load(nil)
	assert.EqualError(t, err, "config reader is nil")
}
