package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ColumnName names a report column.
type ColumnName string

const (
	ColumnStarRank         ColumnName = "star_rank"
	ColumnContributionRank ColumnName = "contribution_rank"
	ColumnCommits          ColumnName = "commits"
	ColumnPullRequests     ColumnName = "pull_requests"
)

// ErrInvalidColumn is returned for unknown or malformed column criteria.
var ErrInvalidColumn = errors.New("invalid column")

// IsRank reports whether the column shows a computed rank.
func (n ColumnName) IsRank() bool {
	return n == ColumnStarRank || n == ColumnContributionRank
}

// IsCount reports whether the column shows a raw contribution count.
func (n ColumnName) IsCount() bool {
	return n == ColumnCommits || n == ColumnPullRequests
}

// RankList is a set of ranks. It decodes from either a comma-separated string
// or a list, in JSON and YAML alike.
type RankList []Rank

// ParseRankList parses a comma-separated list of ranks, ignoring empty items.
func ParseRankList(raw string) (RankList, error) {
	var ranks RankList
	for _, item := range SplitList(raw) {
		r, err := ParseRank(item)
		if err != nil {
			return nil, err
		}
		ranks = append(ranks, r)
	}
	return ranks, nil
}

func (l *RankList) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseRankList(raw)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	return l.fromItems(items)
}

func (l *RankList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseRankList(value.Value)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}
	var items []string
	if err := value.Decode(&items); err != nil {
		return err
	}
	return l.fromItems(items)
}

func (l *RankList) fromItems(items []string) error {
	ranks := make(RankList, 0, len(items))
	for _, item := range items {
		r, err := ParseRank(item)
		if err != nil {
			return err
		}
		ranks = append(ranks, r)
	}
	*l = ranks
	return nil
}

// ColumnCriterion is a requested column together with its filtering rules.
// Rank columns carry Hide; count columns carry Minimum.
type ColumnCriterion struct {
	Name    ColumnName `json:"name" yaml:"name"`
	Hide    RankList   `json:"hide,omitempty" yaml:"hide,omitempty"`
	Minimum *int       `json:"minimum,omitempty" yaml:"minimum,omitempty"`
}

// Validate checks that the criterion is well formed for its kind.
func (c ColumnCriterion) Validate() error {
	switch {
	case c.Name.IsRank():
		if c.Minimum != nil {
			return fmt.Errorf("%w: %s does not accept minimum", ErrInvalidColumn, c.Name)
		}
	case c.Name.IsCount():
		if len(c.Hide) > 0 {
			return fmt.Errorf("%w: %s does not accept hide", ErrInvalidColumn, c.Name)
		}
	default:
		return fmt.Errorf("%w: unknown column %q", ErrInvalidColumn, c.Name)
	}
	return nil
}

// Hides reports whether rows with rank r must be dropped.
func (c ColumnCriterion) Hides(r Rank) bool {
	return slices.Contains(c.Hide, r)
}

// ParseColumns parses columns given either as a JSON array of criteria or as
// a comma-separated list of column names.
func ParseColumns(raw string) ([]ColumnCriterion, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var columns []ColumnCriterion
	if !strings.HasPrefix(trimmed, "[") || json.Unmarshal([]byte(trimmed), &columns) != nil {
		columns = nil
		for _, name := range SplitList(trimmed) {
			columns = append(columns, ColumnCriterion{Name: ColumnName(name)})
		}
	}

	for _, c := range columns {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return columns, nil
}

// MergeHide adds the global hide list to every rank column.
func MergeHide(columns []ColumnCriterion, hide []Rank) []ColumnCriterion {
	merged := make([]ColumnCriterion, len(columns))
	for i, c := range columns {
		if c.Name.IsRank() {
			ranks := slices.Clone(c.Hide)
			for _, r := range hide {
				if !slices.Contains(ranks, r) {
					ranks = append(ranks, r)
				}
			}
			c.Hide = ranks
		}
		merged[i] = c
	}
	return merged
}

// FindColumn returns the criterion for name, if requested.
func FindColumn(columns []ColumnCriterion, name ColumnName) (ColumnCriterion, bool) {
	for _, c := range columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnCriterion{}, false
}

// OrderBy selects the sort key of the report.
type OrderBy string

const (
	OrderByStars         OrderBy = "stars"
	OrderByContributions OrderBy = "contributions"
)

// ParseOrderBy parses an ordering mode; empty means stars.
func ParseOrderBy(s string) (OrderBy, error) {
	switch OrderBy(strings.TrimSpace(s)) {
	case "", OrderByStars:
		return OrderByStars, nil
	case OrderByContributions:
		return OrderByContributions, nil
	}
	return "", fmt.Errorf("invalid order_by %q: must be stars or contributions", s)
}

// SplitList splits a comma-separated input, dropping empty items.
func SplitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
