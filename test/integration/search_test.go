// Package integration exercises the card pipeline over real storage and indices.
package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/meishi/internal/cardstore"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/search"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
)

const dims = 16

type stack struct {
	store   *cardstore.Store
	kw      *keyword.BleveIndex
	engine  *search.Engine
	indexer *indexer.Indexer
}

func (s *stack) close(t *testing.T) {
	t.Helper()
	if err := s.kw.Close(); err != nil {
		t.Error(err)
	}
	if err := s.store.Close(); err != nil {
		t.Error(err)
	}
}

func open(t *testing.T, cfg *config.Config) *stack {
	t.Helper()
	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	vecIndex, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	store, err := cardstore.New(st, vecIndex, embedding.NewMockEmbedder(dims),
		cardstore.WithIndexPath(cfg.Storage.VectorIndexPath))
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	return &stack{
		store:   store,
		kw:      kw,
		engine:  search.NewEngine(store, kw, &cfg.Search, search.WithSuggester(keyword.NewSuggester(kw, 2))),
		indexer: indexer.NewIndexer(store, kw, nil, nil),
	}
}

func card(name, title, company, hash string) *models.Record {
	r := &models.Record{}
	r.ImageMetadata.Hash = hash
	r.ExtractedInfo.PrimaryInfo.Name.Value = name
	r.ExtractedInfo.PrimaryInfo.JobTitle.Value = title
	r.ExtractedInfo.PrimaryInfo.Company.TextValue = company
	r.ExtractedInfo.ContextualSummary.ProfessionalSummary = fmt.Sprintf("%s works as %s at %s.", name, title, company)
	return r
}

func TestIntegration_SearchLookupAndRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "cards.db"),
			BleveIndexPath:  filepath.Join(dir, "bleve"),
			VectorIndexPath: filepath.Join(dir, "vectors.bin"),
		},
	}
	config.ApplyDefaults(cfg)
	ctx := context.Background()

	s := open(t, cfg)
	cards := []*models.Record{
		card("Ada Lovelace", "Mathematician", "Analytical Engines", "a1"),
		card("Grace Hopper", "Rear Admiral", "US Navy", "b2"),
		card("Alan Turing", "Cryptanalyst", "Bletchley Park", "c3"),
	}
	for _, r := range cards {
		if _, err := s.indexer.IndexCard(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := s.engine.Search(ctx, &models.SearchQuery{Query: "mathematician", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 {
		t.Errorf("expected every card once, got %d", resp.Total)
	}
	seen := make(map[string]bool)
	for _, r := range resp.Results {
		if seen[r.Identity] {
			t.Errorf("card %s returned twice", r.Identity)
		}
		seen[r.Identity] = true
	}

	lookup, err := s.engine.Lookup(ctx, &models.LookupQuery{Query: "hopper"})
	if err != nil {
		t.Fatal(err)
	}
	if lookup.Total != 1 || lookup.Results[0].Metadata.Name != "Grace Hopper" {
		t.Errorf("lookup hopper: %+v", lookup.Results)
	}
	s.close(t)

	// Reopen: the saved vector index must match the stored fragments.
	s = open(t, cfg)
	defer s.close(t)
	stale, err := s.store.NeedsRebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stale {
		t.Error("vector index should have been restored from disk")
	}
	resp, err = s.engine.Search(ctx, &models.SearchQuery{Query: "cryptanalyst", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Errorf("expected 2 cards after restart, got %d", resp.Total)
	}
}
