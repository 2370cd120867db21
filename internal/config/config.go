// Package config loads the YAML configuration of contributor-stats.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/naka-gawa/contributor-stats/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Username                      string
	Columns                       []domain.ColumnCriterion
	Hide                          domain.RankList
	OrderBy                       domain.OrderBy `validate:"oneof=stars contributions"`
	Limit                         int            `validate:"gte=0"`
	Exclude                       []string
	CombineAllYearlyContributions bool
	EmbedAvatars                  bool
	Output                        string
	LogLevel                      string `validate:"oneof=debug info warn error"`
	GitHub                        GitHubConfig
	RateLimit                     RateLimitConfig
	Contributions                 ContributionsConfig
	Server                        ServerConfig
}

// GitHubConfig configures GitHub API endpoints.
type GitHubConfig struct {
	APIBaseURL     string        `validate:"omitempty,url"`
	GraphQLURL     string        `validate:"omitempty,url"`
	RequestTimeout time.Duration `validate:"gt=0"`
}

// RateLimitConfig configures contributor request pacing.
type RateLimitConfig struct {
	MinInterval   time.Duration `validate:"gte=0"`
	SafetyBuffer  time.Duration `validate:"gte=0"`
	FallbackWait  time.Duration `validate:"gt=0"`
	MaxRetries    int           `validate:"gte=0"`
	ProgressEvery int           `validate:"gte=0"`
}

// ContributionsConfig configures contribution queries.
type ContributionsConfig struct {
	MaxSplitDepth int `validate:"gte=1,lte=8"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr   string `validate:"required"`
	CacheSeconds int    `validate:"gte=0"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := (&rawConfig{}).toConfig()
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
	}

	for i, column := range c.Columns {
		if err := column.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("columns[%d]: %v", i, err))
		}
	}
	for _, pattern := range c.Exclude {
		if strings.TrimSpace(pattern) == "" {
			errs = append(errs, "exclude must not contain empty patterns")
			break
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.OrderBy == "" {
		cfg.OrderBy = domain.OrderByStars
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = []domain.ColumnCriterion{{Name: domain.ColumnStarRank}}
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.RateLimit.FallbackWait == 0 {
		cfg.RateLimit.FallbackWait = 60 * time.Second
	}
	if cfg.Contributions.MaxSplitDepth == 0 {
		cfg.Contributions.MaxSplitDepth = 4
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":9999"
	}
	if cfg.Server.CacheSeconds == 0 {
		cfg.Server.CacheSeconds = 4 * 60 * 60
	}
}
