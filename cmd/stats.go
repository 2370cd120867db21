package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/naka-gawa/contributor-stats/internal/config"
	"github.com/naka-gawa/contributor-stats/internal/domain"
	"github.com/naka-gawa/contributor-stats/internal/usecase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Ranks the repositories a GitHub user contributed to and outputs JSON",
	Long: `Aggregates the commit and pull request contributions of a GitHub user per repository,
ranks every repository and outputs the filtered, ordered result in JSON format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyStatsFlags(cmd, cfg); err != nil {
			return err
		}
		if cfg.Username == "" {
			return errors.New("a user name is required: use --user or set username in the config file")
		}

		logger, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		token, err := githubToken()
		if err != nil {
			return err
		}
		service, err := newService(cfg, token, nil, logger)
		if err != nil {
			return err
		}

		report, err := service.Generate(cmd.Context(), usecase.Request{
			ProcessOptions: usecase.ProcessOptions{
				Username:     cfg.Username,
				Columns:      domain.MergeHide(cfg.Columns, cfg.Hide),
				OrderBy:      cfg.OrderBy,
				Limit:        cfg.Limit,
				Exclude:      cfg.Exclude,
				Token:        token,
				EmbedAvatars: cfg.EmbedAvatars,
			},
			CombineAllYears: cfg.CombineAllYearlyContributions,
		})
		if err != nil {
			return fmt.Errorf("failed to generate stats: %w", err)
		}

		jsonData, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results to JSON: %w", err)
		}
		if cfg.Output == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
			return nil
		}
		if err := os.WriteFile(cfg.Output, append(jsonData, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		logger.Info("stats written", zap.String("path", cfg.Output), zap.Int("repositories", len(report.Rows)))
		return nil
	},
}

// applyStatsFlags overrides config values with the flags set on the command line.
func applyStatsFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.Username, _ = flags.GetString("user")
	}
	if flags.Changed("columns") {
		raw, _ := flags.GetString("columns")
		columns, err := domain.ParseColumns(raw)
		if err != nil {
			return err
		}
		cfg.Columns = columns
	}
	if flags.Changed("hide") {
		raw, _ := flags.GetString("hide")
		hide, err := domain.ParseRankList(raw)
		if err != nil {
			return err
		}
		cfg.Hide = hide
	}
	if flags.Changed("order-by") {
		raw, _ := flags.GetString("order-by")
		orderBy, err := domain.ParseOrderBy(raw)
		if err != nil {
			return err
		}
		cfg.OrderBy = orderBy
	}
	if flags.Changed("limit") {
		cfg.Limit, _ = flags.GetInt("limit")
	}
	if flags.Changed("exclude") {
		raw, _ := flags.GetString("exclude")
		cfg.Exclude = domain.SplitList(raw)
	}
	if flags.Changed("combine-all-yearly-contributions") {
		cfg.CombineAllYearlyContributions, _ = flags.GetBool("combine-all-yearly-contributions")
	}
	if flags.Changed("embed-avatars") {
		cfg.EmbedAvatars, _ = flags.GetBool("embed-avatars")
	}
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = []domain.ColumnCriterion{{Name: domain.ColumnStarRank}}
	}
	return cfg.Validate()
}

func init() {
	rootCmd.AddCommand(statsCmd)
	addStatsFlags(statsCmd)
}

func addStatsFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "Target GitHub user name (required unless set in the config file)")
	cmd.Flags().String("columns", "", `Columns as a comma-separated list (star_rank,contribution_rank,commits,pull_requests) or a JSON array such as [{"name":"commits","minimum":5}]`)
	cmd.Flags().String("hide", "", "Comma-separated ranks to hide in every rank column, e.g. B,B+")
	cmd.Flags().String("order-by", "", "Sort key: stars|contributions")
	cmd.Flags().IntP("limit", "l", 0, "Maximum number of repositories, 0 for all")
	cmd.Flags().String("exclude", "", "Comma-separated owner/name patterns to exclude, * is a wildcard")
	cmd.Flags().Bool("combine-all-yearly-contributions", true, "Aggregate every contribution year instead of only the last 12 months")
	cmd.Flags().Bool("embed-avatars", false, "Embed owner avatars as base64 data URIs")
	cmd.Flags().StringP("output", "o", "", "Write the JSON to this file instead of stdout")
}
