package usecase

import (
	"github.com/montanaflynn/stats"
	"github.com/naka-gawa/contributor-stats/internal/domain"
)

// Summarize computes totals and medians over the processed rows. Missing
// counts contribute zero to totals and medians.
func Summarize(rows []*domain.RepoRow) domain.Summary {
	summary := domain.Summary{Repositories: len(rows)}
	if len(rows) == 0 {
		return summary
	}

	starData := make(stats.Float64Data, 0, len(rows))
	commitData := make(stats.Float64Data, 0, len(rows))
	prData := make(stats.Float64Data, 0, len(rows))
	for _, row := range rows {
		starData = append(starData, float64(row.NumStars))
		commitData = append(commitData, float64(valueOrZero(row.NumContributedCommits)))
		prData = append(prData, float64(valueOrZero(row.NumContributedPRs)))
	}

	// Errors are only returned for empty input, which is handled above.
	totalStars, _ := starData.Sum()
	totalCommits, _ := commitData.Sum()
	totalPRs, _ := prData.Sum()
	summary.TotalStars = int(totalStars)
	summary.TotalCommits = int(totalCommits)
	summary.TotalPRs = int(totalPRs)
	summary.MedianStars, _ = starData.Median()
	summary.MedianCommits, _ = commitData.Median()
	return summary
}
