// Package domain contains the core data structures and domain logic for the application.
package domain

// Owner is the account owning a repository.
type Owner struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// Repository identifies a repository. NameWithOwner ("owner/name") is the
// aggregation key: two records with the same NameWithOwner are the same repository.
type Repository struct {
	Name           string `json:"name"`
	NameWithOwner  string `json:"name_with_owner"`
	URL            string `json:"url"`
	StargazerCount int    `json:"stargazer_count"`
	Owner          Owner  `json:"owner"`
}

// RepositoryContribution is one (repository, count) pair returned by a single
// contributions query for one contribution kind.
type RepositoryContribution struct {
	Repository Repository
	Count      int
}

// ContributionResponse holds the per-repository commit and pull request counts
// for one time range. Lists coming from different sub-ranges are concatenated,
// so the same repository may appear more than once.
type ContributionResponse struct {
	Commits      []RepositoryContribution
	PullRequests []RepositoryContribution
}

// ContributionYears is the result of the contribution-years query for a user.
type ContributionYears struct {
	ID    string
	Name  string
	Years []int
}

// RepoStats holds the aggregated contribution counts for a single repository.
// A nil count means no record of that kind exists, which is different from zero.
type RepoStats struct {
	Repository
	NumContributedCommits *int `json:"num_contributed_commits,omitempty"`
	NumContributedPRs     *int `json:"num_contributed_prs,omitempty"`
}

// UserContributions is the aggregated contribution history of a user.
type UserContributions struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Repositories []*RepoStats `json:"repositories"`
}

// Contributor describes one contributor to a repository.
type Contributor struct {
	Login         string `json:"login"`
	Type          string `json:"type"`
	Contributions int    `json:"contributions"`
}

// ContributorTypeUser is the contributor type of human accounts.
const ContributorTypeUser = "User"

// RepoRow is a processed repository row, ready for rendering.
type RepoRow struct {
	Name                  string `json:"name"`
	NameWithOwner         string `json:"name_with_owner"`
	URL                   string `json:"url"`
	ImageBase64           string `json:"image_base64,omitempty"`
	NumStars              int    `json:"num_stars"`
	NumContributedCommits *int   `json:"num_contributed_commits,omitempty"`
	NumContributedPRs     *int   `json:"num_contributed_prs,omitempty"`
	StarRank              Rank   `json:"star_rank,omitempty"`
	ContributionRank      Rank   `json:"contribution_rank,omitempty"`
}

// Summary holds totals over the processed rows.
type Summary struct {
	Repositories  int     `json:"repositories"`
	TotalStars    int     `json:"total_stars"`
	TotalCommits  int     `json:"total_commits"`
	TotalPRs      int     `json:"total_prs"`
	MedianStars   float64 `json:"median_stars"`
	MedianCommits float64 `json:"median_commits"`
}

// Report is the final output handed to renderers.
type Report struct {
	Username string     `json:"username"`
	Name     string     `json:"name"`
	Rows     []*RepoRow `json:"rows"`
	Summary  Summary    `json:"summary"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
