package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/naka-gawa/contributor-stats/internal/domain"
	"gopkg.in/yaml.v3"
)

type rawConfig struct {
	Username                      string          `yaml:"username"`
	Columns                       columnList      `yaml:"columns"`
	Hide                          domain.RankList `yaml:"hide"`
	OrderBy                       string          `yaml:"order_by"`
	Limit                         int             `yaml:"limit"`
	Exclude                       stringList      `yaml:"exclude"`
	CombineAllYearlyContributions *bool           `yaml:"combine_all_yearly_contributions"`
	EmbedAvatars                  bool            `yaml:"embed_avatars"`
	Output                        string          `yaml:"output"`
	LogLevel                      string          `yaml:"log_level"`
	GitHub                        rawGitHub       `yaml:"github"`
	RateLimit                     rawRateLimit    `yaml:"rate_limit"`
	Contributions                 rawContribution `yaml:"contributions"`
	Server                        rawServer       `yaml:"server"`
}

type rawGitHub struct {
	APIBaseURL     string   `yaml:"api_base_url"`
	GraphQLURL     string   `yaml:"graphql_url"`
	RequestTimeout duration `yaml:"request_timeout"`
}

// rawRateLimit uses pointers where an explicit 0 disables the setting and
// only an absent key selects the default.
type rawRateLimit struct {
	MinInterval   *duration `yaml:"min_interval"`
	SafetyBuffer  *duration `yaml:"safety_buffer"`
	FallbackWait  duration  `yaml:"fallback_wait"`
	MaxRetries    *int      `yaml:"max_retries"`
	ProgressEvery *int      `yaml:"progress_every"`
}

func (r rawRateLimit) toConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		MinInterval:   100 * time.Millisecond,
		SafetyBuffer:  time.Second,
		FallbackWait:  r.FallbackWait.Duration,
		MaxRetries:    10,
		ProgressEvery: 10,
	}
	if r.MinInterval != nil {
		cfg.MinInterval = r.MinInterval.Duration
	}
	if r.SafetyBuffer != nil {
		cfg.SafetyBuffer = r.SafetyBuffer.Duration
	}
	if r.MaxRetries != nil {
		cfg.MaxRetries = *r.MaxRetries
	}
	if r.ProgressEvery != nil {
		cfg.ProgressEvery = *r.ProgressEvery
	}
	return cfg
}

type rawContribution struct {
	MaxSplitDepth int `yaml:"max_split_depth"`
}

type rawServer struct {
	ListenAddr   string `yaml:"listen_addr"`
	CacheSeconds int    `yaml:"cache_seconds"`
}

func (r *rawConfig) toConfig() *Config {
	combine := true
	if r.CombineAllYearlyContributions != nil {
		combine = *r.CombineAllYearlyContributions
	}
	return &Config{
		Username:                      strings.TrimSpace(r.Username),
		Columns:                       r.Columns,
		Hide:                          r.Hide,
		OrderBy:                       domain.OrderBy(strings.TrimSpace(r.OrderBy)),
		Limit:                         r.Limit,
		Exclude:                       r.Exclude,
		CombineAllYearlyContributions: combine,
		EmbedAvatars:                  r.EmbedAvatars,
		Output:                        r.Output,
		LogLevel:                      strings.ToLower(strings.TrimSpace(r.LogLevel)),
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			GraphQLURL:     r.GitHub.GraphQLURL,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
		},
		RateLimit:     r.RateLimit.toConfig(),
		Contributions: ContributionsConfig{MaxSplitDepth: r.Contributions.MaxSplitDepth},
		Server: ServerConfig{
			ListenAddr:   r.Server.ListenAddr,
			CacheSeconds: r.Server.CacheSeconds,
		},
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// stringList accepts either a comma-separated string or a list.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*l = domain.SplitList(value.Value)
		return nil
	}
	var items []string
	if err := value.Decode(&items); err != nil {
		return err
	}
	*l = items
	return nil
}

// columnList accepts a comma-separated string, a JSON array string, or a
// list whose items are column names or criterion mappings.
type columnList []domain.ColumnCriterion

func (l *columnList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		columns, err := domain.ParseColumns(value.Value)
		if err != nil {
			return err
		}
		*l = columns
		return nil
	}
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: columns must be a string or a list", domain.ErrInvalidColumn)
	}

	columns := make(columnList, 0, len(value.Content))
	for _, item := range value.Content {
		var c domain.ColumnCriterion
		if item.Kind == yaml.ScalarNode {
			c.Name = domain.ColumnName(strings.TrimSpace(item.Value))
		} else if err := item.Decode(&c); err != nil {
			return err
		}
		columns = append(columns, c)
	}
	*l = columns
	return nil
}
