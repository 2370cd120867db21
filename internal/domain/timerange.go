package domain

import (
	"fmt"
	"time"
)

// TimeRange is an inclusive [From, To] interval at second precision.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// YearRange returns the full calendar year in UTC.
func YearRange(year int) TimeRange {
	return TimeRange{
		From: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC),
	}
}

// TrailingYear returns the year-long window ending at now.
func TrailingYear(now time.Time) TimeRange {
	to := now.UTC().Truncate(time.Second)
	return TimeRange{From: to.AddDate(-1, 0, 0), To: to}
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s..%s", r.From.UTC().Format(time.RFC3339), r.To.UTC().Format(time.RFC3339))
}

// monthSpan counts calendar month boundaries between from and to.
func monthSpan(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// SplitTimeRange subdivides r for a retry after a query hit the per-query
// repository cap. Ranges spanning 6 months or more are halved at a month
// boundary; ranges spanning 2 to 5 months are split per calendar month.
// Anything smaller is returned unchanged, meaning it cannot be split further.
func SplitTimeRange(r TimeRange) []TimeRange {
	from := r.From.UTC()
	to := r.To.UTC()
	span := monthSpan(from, to)

	switch {
	case span >= 6:
		mid := time.Date(from.Year(), from.Month()+time.Month(span/2), 1, 0, 0, 0, 0, time.UTC)
		return []TimeRange{
			{From: from, To: mid.Add(-time.Second)},
			{From: mid, To: to},
		}
	case span >= 2:
		ranges := make([]TimeRange, 0, span+1)
		for current := from; current.Before(to); {
			next := time.Date(current.Year(), current.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			end := next.Add(-time.Second)
			if end.After(to) {
				end = to
			}
			ranges = append(ranges, TimeRange{From: current, To: end})
			current = next
		}
		return ranges
	}
	return []TimeRange{r}
}
