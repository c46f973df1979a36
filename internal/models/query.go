package models

import "fmt"

// Default and maximum number of distinct cards a search returns when the
// caller does not configure otherwise.
const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
)

// SearchQuery is a natural-language card search request.
type SearchQuery struct {
	Query string `json:"query"`
	// Limit is the number of distinct cards wanted.
	Limit int `json:"limit,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is empty; otherwise normalizes the limit to [1, MaxSearchLimit].
func (q *SearchQuery) Validate() error {
	return q.ValidateWithLimits(DefaultSearchLimit, MaxSearchLimit)
}

// ValidateWithLimits is Validate with caller-provided default and maximum limits.
func (q *SearchQuery) ValidateWithLimits(defaultLimit, maxLimit int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxSearchLimit
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}

// LookupQuery is a keyword lookup request over card fields.
type LookupQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}
