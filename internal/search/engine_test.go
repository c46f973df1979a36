package search

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/hyperjump/meishi/internal/cardstore"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
)

// angleEmbedder places texts on a quarter circle: the query at 0 and each card
// at the angle named by the first keyword it contains.
type angleEmbedder struct{}

var angles = map[string]float64{"alpha": 0.05, "beta": 0.3, "gamma": 0.6, "delta": 0.9}

func (e angleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	theta := 1.5
	if strings.HasPrefix(text, "Find business cards") {
		theta = 0
	}
	for word, a := range angles {
		if strings.Contains(text, word) {
			theta = a
		}
	}
	return []float32{float32(math.Cos(theta)), float32(math.Sin(theta))}, nil
}

func (e angleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (e angleEmbedder) Dimensions() int { return 2 }

func (e angleEmbedder) Close() error { return nil }

func newStore(t *testing.T, emb embedding.Embedder) *cardstore.Store {
	t.Helper()
	idx, err := vector.NewMemoryIndex(emb.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	return newStoreWithIndex(t, emb, idx)
}

func newStoreWithIndex(t *testing.T, emb embedding.Embedder, idx vector.VectorIndex) *cardstore.Store {
	t.Helper()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	s, err := cardstore.New(st, idx, emb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// addCard stores four fragments that all carry word, so every fragment of the card
// lands at the same angle.
func addCard(t *testing.T, s *cardstore.Store, word string, malformed bool) {
	t.Helper()
	rec := &models.Record{}
	rec.ExtractedInfo.PrimaryInfo.Name.Value = word
	src, _ := json.Marshal(rec)
	meta := models.Metadata{Name: word, SourceJSON: string(src)}
	if malformed {
		meta.SourceJSON = "{broken"
	}
	frags := []string{word + " 0", word + " 1", word + " 2", word + " 3"}
	if _, err := s.Add(context.Background(), word+"-h", frags, meta); err != nil {
		t.Fatalf("Add(%s): %v", word, err)
	}
}

func identities(results []*models.CardResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Identity
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngine_SearchOrdersDistinctCards(t *testing.T) {
	s := newStore(t, angleEmbedder{})
	for _, w := range []string{"gamma", "alpha", "delta", "beta"} {
		addCard(t, s, w, false)
	}
	e := NewEngine(s, nil, &config.SearchConfig{})

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "anyone", Limit: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got, want := identities(resp.Results), []string{"alpha-h", "beta-h", "gamma-h"}; !equalStrings(got, want) {
		t.Fatalf("results=%v, want %v", got, want)
	}
	// 3 cards over-fetch 12 of 16 fragments
	if resp.Fetched != 12 {
		t.Errorf("fetched=%d, want 12", resp.Fetched)
	}
	if resp.Total != 3 {
		t.Errorf("total=%d, want 3", resp.Total)
	}
	if resp.ExpandedQuery != ExpandQuery("anyone") {
		t.Errorf("expanded query=%q", resp.ExpandedQuery)
	}
	for i, r := range resp.Results {
		if r.Rank != i+1 {
			t.Errorf("result %d rank=%d", i, r.Rank)
		}
		if math.Abs(1-r.Distance-r.Similarity) > 1e-9 {
			t.Errorf("result %d similarity=%v distance=%v", i, r.Similarity, r.Distance)
		}
	}
}

func TestEngine_SearchRetriesWhenUnderFilled(t *testing.T) {
	s := newStore(t, angleEmbedder{})
	addCard(t, s, "alpha", true) // closest, but unreadable
	addCard(t, s, "beta", false)
	addCard(t, s, "gamma", false)
	ctx := context.Background()

	tests := []struct {
		name    string
		retries int
		want    []string
		fetched int
	}{
		// k=8 covers alpha and beta only and alpha is skipped
		{"no retry", -1, []string{"beta-h"}, 8},
		{"one retry", 1, []string{"beta-h", "gamma-h"}, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(s, nil, &config.SearchConfig{UnderfillRetries: tt.retries})
			resp, err := e.Search(ctx, &models.SearchQuery{Query: "q", Limit: 2})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if got := identities(resp.Results); !equalStrings(got, tt.want) {
				t.Errorf("results=%v, want %v", got, tt.want)
			}
			if resp.Fetched != tt.fetched {
				t.Errorf("fetched=%d, want %d", resp.Fetched, tt.fetched)
			}
		})
	}
}

func TestEngine_SearchEmptyStore(t *testing.T) {
	emb := embedding.NewMockEmbedder(16)
	s := newStore(t, emb)
	e := NewEngine(s, nil, nil)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "AI researcher", Limit: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 || resp.Fetched != 0 {
		t.Errorf("results=%d fetched=%d from an empty store", len(resp.Results), resp.Fetched)
	}
	if emb.Calls() != 0 {
		t.Errorf("embedder called %d times for an empty store", emb.Calls())
	}
}

func TestEngine_SearchValidates(t *testing.T) {
	e := NewEngine(newStore(t, embedding.NewMockEmbedder(8)), nil, &config.SearchConfig{DefaultLimit: 2, MaxLimit: 4})
	if _, err := e.Search(context.Background(), &models.SearchQuery{}); err == nil {
		t.Error("expected error for empty query")
	}

	q := &models.SearchQuery{Query: "x", Limit: 99}
	if _, err := e.Search(context.Background(), q); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if q.Limit != 4 {
		t.Errorf("limit=%d, want clamp to 4", q.Limit)
	}
}

func TestEngine_SearchWithComposedCards(t *testing.T) {
	emb := embedding.NewMockEmbedder(256)
	s := newStore(t, emb)
	idx := indexer.NewIndexer(s, nil, nil, nil)
	ctx := context.Background()

	for _, name := range []string{"Ada Lovelace", "Grace Hopper", "Alan Turing", "Edsger Dijkstra"} {
		rec := &models.Record{}
		rec.ImageMetadata.Hash = "h"
		rec.ExtractedInfo.PrimaryInfo.Name.Value = name
		rec.ExtractedInfo.PrimaryInfo.JobTitle.Value = "researcher"
		rec.ExtractedInfo.ContextualSummary.IndustryInference = "computing"
		if _, err := idx.IndexCard(ctx, rec); err != nil {
			t.Fatalf("IndexCard(%s): %v", name, err)
		}
	}

	e := NewEngine(s, nil, &config.SearchConfig{})
	resp, err := e.Search(ctx, &models.SearchQuery{Query: "AI researcher", Limit: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 3 || resp.Fetched != 12 {
		t.Fatalf("results=%d fetched=%d, want 3 and 12", len(resp.Results), resp.Fetched)
	}

	seen := map[string]bool{}
	for i, r := range resp.Results {
		if seen[r.Identity] {
			t.Errorf("duplicate card %s", r.Identity)
		}
		seen[r.Identity] = true
		if i > 0 && resp.Results[i-1].Distance > r.Distance {
			t.Errorf("results not ordered at %d", i)
		}
		if r.Record == nil {
			t.Fatalf("result %s has no record", r.Identity)
		}
		if r.Metadata.Name != r.Record.PrimaryInfo.Name.Value {
			t.Errorf("metadata name %q, record name %q", r.Metadata.Name, r.Record.PrimaryInfo.Name.Value)
		}
	}
}

func TestEngine_FindCard(t *testing.T) {
	s := newStore(t, angleEmbedder{})
	addCard(t, s, "alpha", false)
	e := NewEngine(s, nil, nil)

	card, err := e.FindCard(context.Background(), "alpha-h")
	if err != nil || !card.Found() {
		t.Fatalf("FindCard(alpha-h)=(%+v, %v)", card, err)
	}

	card, err = e.FindCard(context.Background(), "nobody-h")
	if err != nil {
		t.Fatalf("FindCard(nobody-h): %v", err)
	}
	if card.Status != models.CardNotFound {
		t.Errorf("status=%s, want not_found", card.Status)
	}
}

func TestEngine_Lookup(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	s := newStore(t, emb)
	kw, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })
	idx := indexer.NewIndexer(s, kw, nil, nil)
	ctx := context.Background()

	rec := &models.Record{}
	rec.ImageMetadata.Hash = "abc123"
	rec.ExtractedInfo.PrimaryInfo.Name.Value = "Ada Lovelace"
	rec.ExtractedInfo.PrimaryInfo.Company.TextValue = "Analytical Engines"
	if _, err := idx.IndexCard(ctx, rec); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(s, kw, &config.SearchConfig{LookupNameBoost: 3, LookupFuzziness: 1},
		WithSuggester(keyword.NewSuggester(kw, 2)))

	resp, err := e.Lookup(ctx, &models.LookupQuery{Query: "analytical"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Identity != "Ada Lovelace-abc123" {
		t.Fatalf("results=%+v", resp.Results)
	}
	if resp.Results[0].Score <= 0 {
		t.Errorf("score=%v", resp.Results[0].Score)
	}
	if resp.Suggestion != "" {
		t.Errorf("unexpected suggestion %q", resp.Suggestion)
	}

	// one edit is tolerated
	resp, err = e.Lookup(ctx, &models.LookupQuery{Query: "lovelase"})
	if err != nil || len(resp.Results) != 1 {
		t.Errorf("Lookup(lovelase)=(%d results, %v)", len(resp.Results), err)
	}

	resp, err = e.Lookup(ctx, &models.LookupQuery{Query: "lovlaxe"})
	if err != nil {
		t.Fatalf("Lookup(lovlaxe): %v", err)
	}
	if len(resp.Results) != 0 || resp.Suggestion != "lovelace" {
		t.Errorf("results=%d suggestion=%q, want none and lovelace", len(resp.Results), resp.Suggestion)
	}

	if _, err := e.Lookup(ctx, &models.LookupQuery{Query: "  "}); err == nil {
		t.Error("expected error for blank lookup")
	}
}

func TestEngine_LookupWithoutKeywordIndex(t *testing.T) {
	e := NewEngine(newStore(t, embedding.NewMockEmbedder(8)), nil, nil)
	if _, err := e.Lookup(context.Background(), &models.LookupQuery{Query: "x"}); err == nil {
		t.Error("expected error without a keyword index")
	}
}

func TestEngine_Stats(t *testing.T) {
	s := newStore(t, angleEmbedder{})
	addCard(t, s, "alpha", false)
	addCard(t, s, "beta", false)
	kw, _ := keyword.NewBleveIndex("")
	t.Cleanup(func() { _ = kw.Close() })
	_ = kw.Index(context.Background(), "alpha-h", models.Metadata{Name: "alpha"})

	stats, err := NewEngine(s, kw, nil).Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := models.IndexStats{Cards: 2, Fragments: 8, Vectors: 8, KeywordDocs: 1}
	if *stats != want {
		t.Errorf("stats=%+v, want %+v", *stats, want)
	}
}

// unreachableIndex fails every count, like a remote index that timed out.
type unreachableIndex struct {
	vector.VectorIndex
}

var errUnreachable = errors.New("context deadline exceeded")

func (unreachableIndex) Size(context.Context) (int, error) { return 0, errUnreachable }

func TestEngine_StatsReportsUnreachableIndex(t *testing.T) {
	mem, _ := vector.NewMemoryIndex(2)
	s := newStoreWithIndex(t, angleEmbedder{}, unreachableIndex{mem})
	addCard(t, s, "alpha", false)

	stats, err := NewEngine(s, nil, nil).Stats(context.Background())
	if !errors.Is(err, cardstore.ErrStoreUnavailable) {
		t.Fatalf("err=%v, want ErrStoreUnavailable", err)
	}
	if stats != nil {
		t.Errorf("stats=%+v on failure", stats)
	}
}
