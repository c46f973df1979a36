// Package cardstore persists card fragments and answers exact and nearest-neighbour lookups.
//
// Each card is written as models.FragmentSlots fragments under deterministic ids.
// Fragment text and metadata live in SQLite; vectors live in a vector.VectorIndex.
package cardstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperjump/meishi/internal/cardid"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
	"go.uber.org/zap"
)

var (
	// ErrStoreUnavailable wraps failures of the fragment database or vector index.
	ErrStoreUnavailable = errors.New("card store unavailable")
	// ErrMalformedCard is returned when a stored card's source_json cannot be decoded.
	ErrMalformedCard = errors.New("malformed stored card")
)

const rebuildPageSize = 256

// Store is the card store.
type Store struct {
	storage   storage.Storage
	index     vector.VectorIndex
	embedder  embedding.Embedder
	indexPath string
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for debug output (cards added, stale hits, rebuilds).
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIndexPath sets where the vector index is loaded from and saved to.
func WithIndexPath(path string) Option {
	return func(s *Store) { s.indexPath = path }
}

// New creates a store over the given collaborators and loads the persisted vector
// index, if any. The store takes ownership of storage and index; Close closes both.
func New(st storage.Storage, index vector.VectorIndex, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	s := &Store{
		storage:  st,
		index:    index,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.index.Load(s.indexPath); err != nil {
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	return s, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Add writes all fragments of a card under its deterministic fragment ids, each with
// an identical copy of meta. Re-adding an identity overwrites the same ids.
func (s *Store) Add(ctx context.Context, identity string, fragments []string, meta models.Metadata) (string, error) {
	if len(fragments) != models.FragmentSlots {
		return "", fmt.Errorf("card %q: expected %d fragments, got %d", identity, models.FragmentSlots, len(fragments))
	}
	ids := cardid.FragmentIDs(identity)

	vectors := make([][]float32, len(fragments))
	for i, text := range fragments {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return "", fmt.Errorf("embed fragment %s: %w", ids[i], err)
		}
		vectors[i] = vec
	}

	rows := make([]*models.StoredFragment, len(fragments))
	for i, text := range fragments {
		rows[i] = &models.StoredFragment{
			ID:       ids[i],
			CardID:   identity,
			Slot:     i,
			Content:  text,
			Metadata: meta,
		}
	}
	if err := s.storage.UpsertFragments(ctx, rows); err != nil {
		return "", unavailable("write fragments", err)
	}
	if err := s.index.Upsert(ctx, ids, vectors); err != nil {
		return "", unavailable("index fragments", err)
	}
	s.logger.Debug("card stored", zap.String("identity", identity), zap.Int("fragments", len(ids)))
	return identity, nil
}

// Get reads every fragment of a card. A card with no fragments is returned with
// status not_found, one with some but not all fragments with status partial (its
// record is not decoded). A complete card whose source_json does not decode
// yields ErrMalformedCard.
func (s *Store) Get(ctx context.Context, identity string) (*models.CardRecord, error) {
	rows, err := s.storage.GetFragments(ctx, cardid.FragmentIDs(identity))
	if err != nil {
		return nil, unavailable("read fragments", err)
	}
	if len(rows) == 0 {
		return models.NotFoundCard(identity), nil
	}

	card := &models.CardRecord{
		Identity: identity,
		Status:   models.CardFound,
		Metadata: rows[0].Metadata,
	}
	for _, r := range rows {
		card.Slots = append(card.Slots, r.Slot)
		card.Fragments = append(card.Fragments, r.Content)
	}
	if len(rows) < models.FragmentSlots {
		card.Status = models.CardPartial
		return card, nil
	}

	record, err := DecodeRecord(card.Metadata.SourceJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedCard, identity, err)
	}
	card.Record = record
	card.ImageBase64 = record.ImageMetadata.Base64
	return card, nil
}

// DecodeRecord parses a source_json value.
func DecodeRecord(sourceJSON string) (*models.Record, error) {
	if sourceJSON == "" {
		return nil, errors.New("empty source_json")
	}
	var record models.Record
	if err := json.Unmarshal([]byte(sourceJSON), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Search embeds queryText and returns up to want raw fragment hits, closest first.
// Hits are not deduplicated by card. An empty store returns no hits without
// calling the embedder.
func (s *Store) Search(ctx context.Context, queryText string, want int) ([]models.RawHit, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 || want <= 0 {
		return nil, nil
	}
	if want > total {
		want = total
	}

	vec, err := embedding.EmbedQuery(ctx, s.embedder, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.index.Search(ctx, vec, want)
	if err != nil {
		return nil, unavailable("nearest neighbours", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	rows, err := s.storage.GetFragments(ctx, ids)
	if err != nil {
		return nil, unavailable("read hit metadata", err)
	}
	meta := make(map[string]models.Metadata, len(rows))
	for _, r := range rows {
		meta[r.ID] = r.Metadata
	}

	hits := make([]models.RawHit, 0, len(results))
	for _, r := range results {
		m, ok := meta[r.ID]
		if !ok {
			// vector without a stored fragment, e.g. after an interrupted delete
			s.logger.Debug("skipping stale vector hit", zap.String("id", r.ID))
			continue
		}
		hits = append(hits, models.RawHit{ID: r.ID, Metadata: m, Distance: r.Distance()})
	}
	return hits, nil
}

// Delete removes every fragment id of a card together. Deleting an unknown card is not an error.
func (s *Store) Delete(ctx context.Context, identity string) error {
	ids := cardid.FragmentIDs(identity)
	if err := s.storage.DeleteFragments(ctx, ids); err != nil {
		return unavailable("delete fragments", err)
	}
	if err := s.index.Remove(ctx, ids); err != nil {
		return unavailable("remove vectors", err)
	}
	s.logger.Debug("card deleted", zap.String("identity", identity))
	return nil
}

// Count returns the number of stored fragments.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.storage.CountFragments(ctx)
	if err != nil {
		return 0, unavailable("count fragments", err)
	}
	return int(n), nil
}

// CountCards returns the number of cards with at least one stored fragment.
func (s *Store) CountCards(ctx context.Context) (int, error) {
	n, err := s.storage.CountCards(ctx)
	if err != nil {
		return 0, unavailable("count cards", err)
	}
	return int(n), nil
}

// IndexedVectors returns the number of vectors in the nearest-neighbour index.
func (s *Store) IndexedVectors(ctx context.Context) (int, error) {
	n, err := s.index.Size(ctx)
	if err != nil {
		return 0, unavailable("count vectors", err)
	}
	return n, nil
}

// NeedsRebuild reports whether the vector index disagrees with the stored fragments,
// e.g. when the index file was lost.
func (s *Store) NeedsRebuild(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	vectors, err := s.IndexedVectors(ctx)
	if err != nil {
		return false, err
	}
	return n != vectors, nil
}

// Rebuild drops the vector index and re-embeds every stored fragment. Returns the
// number of fragments indexed.
func (s *Store) Rebuild(ctx context.Context) (int, error) {
	if err := s.index.Reset(ctx); err != nil {
		return 0, unavailable("reset vector index", err)
	}
	indexed := 0
	for offset := 0; ; offset += rebuildPageSize {
		rows, err := s.storage.ListFragments(ctx, offset, rebuildPageSize)
		if err != nil {
			return indexed, unavailable("list fragments", err)
		}
		if len(rows) == 0 {
			break
		}
		ids := make([]string, len(rows))
		texts := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
			texts[i] = r.Content
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("embed fragments: %w", err)
		}
		if err := s.index.Upsert(ctx, ids, vectors); err != nil {
			return indexed, unavailable("index fragments", err)
		}
		indexed += len(rows)
		if len(rows) < rebuildPageSize {
			break
		}
	}
	s.logger.Info("vector index rebuilt", zap.Int("fragments", indexed))
	return indexed, nil
}

// WalkCards calls fn once per stored card with the metadata of its lowest stored slot.
// Iteration stops at the first error fn returns.
func (s *Store) WalkCards(ctx context.Context, fn func(identity string, meta models.Metadata) error) error {
	last := ""
	for offset := 0; ; offset += rebuildPageSize {
		rows, err := s.storage.ListFragments(ctx, offset, rebuildPageSize)
		if err != nil {
			return unavailable("list fragments", err)
		}
		for _, r := range rows {
			if r.CardID == last {
				continue
			}
			last = r.CardID
			if err := fn(r.CardID, r.Metadata); err != nil {
				return err
			}
		}
		if len(rows) < rebuildPageSize {
			return nil
		}
	}
}

// Save persists the vector index to the configured path.
func (s *Store) Save() error {
	if err := s.index.Save(s.indexPath); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	return nil
}

// Close saves the vector index and closes the index and fragment storage.
func (s *Store) Close() error {
	return errors.Join(s.Save(), s.index.Close(), s.storage.Close())
}
