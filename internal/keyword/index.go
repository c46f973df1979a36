// Package keyword provides full-text lookup over card fields.
package keyword

import (
	"context"

	"github.com/hyperjump/meishi/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score contribution from matches in the name field.
	// Values > 1 make name matches rank above company or location matches. Use 1.0 for no boost.
	NameBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// KeywordIndex defines keyword lookup operations. There is one document per card,
// keyed by card identity, so results never need deduplication.
type KeywordIndex interface {
	Index(ctx context.Context, identity string, meta models.Metadata) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, identity string) error
	// DocCount returns the total number of cards in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	Identity string
	Score    float64
}

// TermDictionary provides access to the indexed vocabulary for suggestions.
type TermDictionary interface {
	// Terms returns every unique term with its document frequency.
	Terms() (map[string]int, error)
}
