// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/naka-gawa/contributor-stats/internal/config"
	"github.com/naka-gawa/contributor-stats/internal/gateway"
	"github.com/naka-gawa/contributor-stats/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "contributor-stats",
	Short: "A CLI tool to rank the repositories a GitHub user contributed to.",
	Long: `contributor-stats aggregates every repository a GitHub user has committed to,
across all contribution years, and ranks them by stars and by the user's share
of contributions. The result is printed as JSON or served over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error (overrides the config file)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
}

// loadConfig reads the file named by --config, or returns the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := config.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger builds a JSON logger on stderr so stdout stays reserved for output.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if raw, _ := cmd.Flags().GetString("log-level"); raw != "" {
		level = raw
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(level))
	loggerConfig.OutputPaths = []string{"stderr"}
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// githubToken reads the credential from the environment.
func githubToken() (string, error) {
	for _, key := range []string{"GITHUB_TOKEN", "GITHUB_PERSONAL_ACCESS_TOKEN"} {
		if token := strings.TrimSpace(os.Getenv(key)); token != "" {
			return token, nil
		}
	}
	return "", errors.New("GITHUB_TOKEN environment variable is not set")
}

// newService injects the gateways into the report use cases.
func newService(cfg *config.Config, token string, reg prometheus.Registerer, logger *zap.Logger) (*usecase.Service, error) {
	metrics := gateway.NewMetrics(reg)
	githubGateway, err := gateway.NewGitHubGateway(gateway.GatewayConfig{
		Token:          token,
		GraphQLURL:     cfg.GitHub.GraphQLURL,
		RequestTimeout: cfg.GitHub.RequestTimeout,
		MaxRetries:     cfg.RateLimit.MaxRetries,
		SafetyBuffer:   cfg.RateLimit.SafetyBuffer,
		FallbackWait:   cfg.RateLimit.FallbackWait,
		Metrics:        metrics,
	}, logger.Named("graphql"))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub gateway: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.GitHub.RequestTimeout}
	contributors, err := gateway.NewRateLimitedContributorFetcher(
		httpClient,
		cfg.GitHub.APIBaseURL,
		gateway.RateLimitConfig{
			MinInterval:   cfg.RateLimit.MinInterval,
			SafetyBuffer:  cfg.RateLimit.SafetyBuffer,
			FallbackWait:  cfg.RateLimit.FallbackWait,
			MaxRetries:    cfg.RateLimit.MaxRetries,
			ProgressEvery: cfg.RateLimit.ProgressEvery,
		},
		nil,
		metrics,
		logger.Named("contributors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create contributor fetcher: %w", err)
	}

	aggregator := usecase.NewAggregator(githubGateway, cfg.Contributions.MaxSplitDepth, logger)
	processor := usecase.NewProcessor(contributors, gateway.NewHTTPAvatarLoader(httpClient), logger)
	return usecase.NewService(aggregator, processor, logger), nil
}
