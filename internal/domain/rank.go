package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Rank is a discrete tier, ordered B < B+ < A < A+ < S < S+.
type Rank string

const (
	RankB     Rank = "B"
	RankBPlus Rank = "B+"
	RankA     Rank = "A"
	RankAPlus Rank = "A+"
	RankS     Rank = "S"
	RankSPlus Rank = "S+"
)

// ErrInvalidRank is returned when a string does not name a rank.
var ErrInvalidRank = errors.New("invalid rank")

// Ranks lists every rank from lowest to highest.
var Ranks = []Rank{RankB, RankBPlus, RankA, RankAPlus, RankS, RankSPlus}

type rankThreshold struct {
	rank      Rank
	threshold float64
}

// Highest tier first; the first threshold met wins.
var (
	starThresholds = []rankThreshold{
		{RankSPlus, 10000},
		{RankS, 1000},
		{RankAPlus, 500},
		{RankA, 100},
		{RankBPlus, 50},
	}
	contributionThresholds = []rankThreshold{
		{RankSPlus, 90},
		{RankS, 80},
		{RankAPlus, 70},
		{RankA, 60},
		{RankBPlus, 50},
	}
)

func classify(value float64, thresholds []rankThreshold) Rank {
	for _, t := range thresholds {
		if value >= t.threshold {
			return t.rank
		}
	}
	return RankB
}

// StarRank maps a stargazer count to a rank.
func StarRank(stargazers int) Rank {
	return classify(float64(stargazers), starThresholds)
}

// ContributionRank ranks commits against the human contributors of a
// repository by percentile. It reports false when the repository has no human
// contributors, in which case no rank is computed.
func ContributionRank(commits int, contributors []Contributor) (Rank, bool) {
	humans, over := 0, 0
	for _, c := range contributors {
		if c.Type != ContributorTypeUser {
			continue
		}
		humans++
		if c.Contributions > commits {
			over++
		}
	}
	if humans == 0 {
		return "", false
	}
	percentile := float64(humans-over) / float64(humans) * 100
	return classify(percentile, contributionThresholds), true
}

// ParseRank parses a rank name such as "A+".
func ParseRank(s string) (Rank, error) {
	trimmed := Rank(strings.ToUpper(strings.TrimSpace(s)))
	for _, r := range Ranks {
		if r == trimmed {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRank, s)
}

// Less reports whether r is a lower tier than other.
func (r Rank) Less(other Rank) bool {
	return r.index() < other.index()
}

func (r Rank) index() int {
	for i, v := range Ranks {
		if v == r {
			return i
		}
	}
	return -1
}
