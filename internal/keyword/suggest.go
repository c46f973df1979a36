package keyword

import (
	"sort"
	"strings"
)

// Suggester proposes a corrected lookup query when a name or company is misspelled.
// The vocabulary is read from the dictionary on every call; card indexes are small.
type Suggester struct {
	dictionary  TermDictionary
	maxDistance int
}

// NewSuggester creates a Suggester. maxDistance <= 0 means 2 edits.
func NewSuggester(dict TermDictionary, maxDistance int) *Suggester {
	if maxDistance <= 0 {
		maxDistance = 2
	}
	return &Suggester{dictionary: dict, maxDistance: maxDistance}
}

type candidate struct {
	term     string
	distance int
	freq     int
}

// Suggest returns query with every unknown term replaced by its closest indexed term,
// or "" when nothing was corrected. Closer terms win; ties go to the more frequent term,
// then alphabetical order.
func (s *Suggester) Suggest(query string) (string, error) {
	terms, err := s.dictionary.Terms()
	if err != nil {
		return "", err
	}

	words := tokenizeQuery(query)
	corrected := false
	for i, w := range words {
		if _, ok := terms[w]; ok {
			continue
		}
		var best []candidate
		for t, freq := range terms {
			if abs(len([]rune(t))-len([]rune(w))) > s.maxDistance {
				continue
			}
			if d := EditDistance(w, t); d <= s.maxDistance {
				best = append(best, candidate{term: t, distance: d, freq: freq})
			}
		}
		if len(best) == 0 {
			continue
		}
		sort.Slice(best, func(a, b int) bool {
			if best[a].distance != best[b].distance {
				return best[a].distance < best[b].distance
			}
			if best[a].freq != best[b].freq {
				return best[a].freq > best[b].freq
			}
			return best[a].term < best[b].term
		})
		words[i] = best[0].term
		corrected = true
	}
	if !corrected {
		return "", nil
	}
	return strings.Join(words, " "), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
