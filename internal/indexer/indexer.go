// Package indexer turns card records and card images into stored, searchable cards.
package indexer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/meishi/internal/cardid"
	"github.com/hyperjump/meishi/internal/cardstore"
	"github.com/hyperjump/meishi/internal/extract"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/loader"
	"github.com/hyperjump/meishi/internal/models"
	"go.uber.org/zap"
)

// DefaultImageExtensions are indexed by IndexDirectory when no extensions are given.
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// ImageLoader loads the bytes of a card image.
type ImageLoader interface {
	Load(ctx context.Context, source string) (*loader.Image, error)
}

// Indexer writes cards to the card store and the keyword index.
type Indexer struct {
	store        *cardstore.Store
	keywordIndex keyword.KeywordIndex
	loader       ImageLoader
	extractor    extract.Extractor
	storeImage   bool
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (card indexed, card deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithStoreImage sets whether the base64 image is kept inside each record's
// source_json. Images are kept by default.
func WithStoreImage(enabled bool) IndexerOption {
	return func(idx *Indexer) { idx.storeImage = enabled }
}

// NewIndexer creates an indexer. keywordIndex may be nil to skip keyword lookup.
// imgLoader and extractor may be nil; IndexImage then fails.
func NewIndexer(
	store *cardstore.Store,
	keywordIndex keyword.KeywordIndex,
	imgLoader ImageLoader,
	extractor extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		store:        store,
		keywordIndex: keywordIndex,
		loader:       imgLoader,
		extractor:    extractor,
		storeImage:   true,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexCard composes a record into fragments, stores them under the record's card
// identity and adds the card to the keyword index. Indexing the same record again
// overwrites the same card.
func (idx *Indexer) IndexCard(ctx context.Context, record *models.Record) (string, error) {
	if record == nil {
		return "", errors.New("nil record")
	}
	fragments, meta := Compose(record)
	identity, err := idx.store.Add(ctx, cardid.Identity(record), fragments, meta)
	if err != nil {
		return "", err
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Index(ctx, identity, meta); err != nil {
			return "", fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	idx.logger.Debug("indexer card indexed", zap.String("identity", identity))
	return identity, nil
}

// IndexImage loads an image from a URL or path, extracts its fields and indexes the
// resulting record. A failed extraction is logged and indexes a card with empty fields.
func (idx *Indexer) IndexImage(ctx context.Context, source string) (string, error) {
	if idx.loader == nil || idx.extractor == nil {
		return "", errors.New("image indexing is not configured")
	}
	img, err := idx.loader.Load(ctx, source)
	if err != nil {
		return "", err
	}
	info, err := idx.extractor.Extract(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		idx.logger.Warn("extraction unavailable; indexing empty fields",
			zap.String("source", source), zap.Error(err))
		info = &models.ExtractedInfo{}
	}

	record := &models.Record{
		ImageMetadata: models.ImageMetadata{
			Hash:     img.Hash,
			MIMEType: img.MIMEType,
			Source:   source,
		},
		ExtractedInfo: *info,
	}
	if idx.storeImage {
		record.ImageMetadata.Base64 = base64.StdEncoding.EncodeToString(img.Bytes)
	}
	return idx.IndexCard(ctx, record)
}

// IndexRecordFile indexes a record stored as JSON: a full record, or bare extracted fields.
func (idx *Indexer) IndexRecordFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read record: %w", err)
	}
	record, err := DecodeRecordJSON(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return idx.IndexCard(ctx, record)
}

// DecodeRecordJSON decodes a full record, or bare extracted fields wrapped into a
// record whose image hash is the hash of the JSON itself.
func DecodeRecordJSON(data []byte) (*models.Record, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	var record models.Record
	if _, ok := probe["extracted_info"]; ok {
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		return &record, nil
	}
	if err := json.Unmarshal(data, &record.ExtractedInfo); err != nil {
		return nil, fmt.Errorf("decode extracted info: %w", err)
	}
	record.ImageMetadata.Hash = cardid.ContentHash(data)
	return &record, nil
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension
// is in allowedExts (DefaultImageExtensions when empty). Returns the number of cards
// indexed and the first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	if len(allowedExts) == 0 {
		allowedExts = DefaultImageExtensions
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, indexErr := idx.IndexImage(ctx, path); indexErr != nil {
			return fmt.Errorf("%s: %w", path, indexErr)
		}
		n++
		return nil
	})
	return n, err
}

// ExtensionAllowed reports whether ext (with or without the dot) is in allowed, ignoring case.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteCard removes a card from the keyword index and the card store.
func (idx *Indexer) DeleteCard(ctx context.Context, identity string) error {
	idx.logger.Debug("indexer deleting card", zap.String("identity", identity))
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Delete(ctx, identity); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	return idx.store.Delete(ctx, identity)
}

// Reindex re-embeds every stored fragment into a fresh vector index and re-adds
// every stored card to the keyword index. Returns the number of fragments embedded.
func (idx *Indexer) Reindex(ctx context.Context) (int, error) {
	n, err := idx.store.Rebuild(ctx)
	if err != nil {
		return n, err
	}
	if idx.keywordIndex == nil {
		return n, nil
	}
	cards := 0
	err = idx.store.WalkCards(ctx, func(identity string, meta models.Metadata) error {
		cards++
		return idx.keywordIndex.Index(ctx, identity, meta)
	})
	if err != nil {
		return n, fmt.Errorf("refresh keyword index: %w", err)
	}
	idx.logger.Info("reindex complete", zap.Int("fragments", n), zap.Int("cards", cards))
	return n, nil
}
