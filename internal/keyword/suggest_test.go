package keyword

import (
	"errors"
	"testing"
)

type mapDictionary map[string]int

func (m mapDictionary) Terms() (map[string]int, error) { return m, nil }

type brokenDictionary struct{}

func (brokenDictionary) Terms() (map[string]int, error) { return nil, errors.New("index closed") }

func TestSuggester_Suggest(t *testing.T) {
	dict := mapDictionary{"ada": 1, "lovelace": 1, "london": 3, "loudon": 1, "hopper": 2}
	s := NewSuggester(dict, 2)

	tests := []struct {
		query string
		want  string
	}{
		{"lovelase", "lovelace"},
		{"Ada Lovelase", "ada lovelace"},
		{"ada lovelace", ""},                  // nothing to correct
		{"londan", "london"},                  // closest term wins
		{"zzzzzzzzzz", ""},                    // nothing close enough
		{"hoper londn", "hopper london"},      // every term corrected
		{"", ""},
	}
	for _, tt := range tests {
		got, err := s.Suggest(tt.query)
		if err != nil {
			t.Fatalf("Suggest(%q): %v", tt.query, err)
		}
		if got != tt.want {
			t.Errorf("Suggest(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestSuggester_DictionaryError(t *testing.T) {
	if _, err := NewSuggester(brokenDictionary{}, 0).Suggest("x"); err == nil {
		t.Error("expected dictionary error")
	}
}

func TestSuggester_DefaultDistance(t *testing.T) {
	if s := NewSuggester(mapDictionary{}, 0); s.maxDistance != 2 {
		t.Errorf("maxDistance = %d, want 2", s.maxDistance)
	}
}
