package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/meishi/internal/cardstore"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/extract"
	"github.com/hyperjump/meishi/internal/gemini"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/loader"
	"github.com/hyperjump/meishi/internal/search"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// components holds initialized services.
type components struct {
	Store        *cardstore.Store
	Embedder     embedding.Embedder
	KeywordIndex *keyword.BleveIndex
	Engine       *search.Engine
	Indexer      *indexer.Indexer
}

// Close saves the vector index and releases every service.
func (c *components) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.KeywordIndex != nil {
		errs = append(errs, c.KeywordIndex.Close())
	}
	return errors.Join(errs...)
}

// componentOptions tweaks initializeComponents for a command.
type componentOptions struct {
	// rebuildIfStale reindexes when the vector index disagrees with the stored fragments.
	rebuildIfStale bool
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	clients := newGeminiClients(ctx, cfg)
	c.Embedder, err = newEmbedder(cfg, logger, clients)
	if err != nil {
		return nil, err
	}

	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	vectorIndex, err := vector.NewVectorIndex(ctx, vector.Options{
		Type:       cfg.Vector.IndexType,
		Dimensions: c.Embedder.Dimensions(),
		QdrantAddr: cfg.Vector.QdrantAddr,
		Collection: cfg.Vector.Collection,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized", zap.String("type", cfg.Vector.IndexType), zap.Int("dimensions", c.Embedder.Dimensions()))

	c.Store, err = cardstore.New(st, vectorIndex, c.Embedder,
		cardstore.WithIndexPath(cfg.Storage.VectorIndexPath),
		cardstore.WithLogger(logger))
	if err != nil {
		_ = vectorIndex.Close()
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize card store: %w", err)
	}

	c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	extractor, err := newExtractor(cfg, logger, clients)
	if err != nil {
		return nil, err
	}

	c.Engine = search.NewEngine(c.Store, c.KeywordIndex, &cfg.Search,
		search.WithLogger(logger),
		search.WithSuggester(keyword.NewSuggester(c.KeywordIndex, 2)))
	c.Indexer = indexer.NewIndexer(c.Store, c.KeywordIndex, loader.New(), extractor,
		indexer.WithLogger(logger),
		indexer.WithStoreImage(cfg.Extraction.StoreImageOrDefault()))

	if opts.rebuildIfStale {
		stale, err := c.Store.NeedsRebuild(ctx)
		if err != nil {
			return nil, err
		}
		if stale {
			logger.Warn("vector index is out of date; rebuilding")
			if _, err := c.Indexer.Reindex(ctx); err != nil {
				return nil, fmt.Errorf("rebuild indices: %w", err)
			}
		}
	}
	return c, nil
}

// geminiClients creates at most one genai client per API key variable and
// endpoint, so extraction and embedding share a client when they share both.
type geminiClients struct {
	ctx     context.Context
	opts    gemini.Options
	clients map[string]*genai.Client
}

func newGeminiClients(ctx context.Context, cfg *config.Config) *geminiClients {
	return &geminiClients{
		ctx:     ctx,
		opts:    gemini.Options{Timeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second},
		clients: make(map[string]*genai.Client),
	}
}

// get returns the client for keyEnv, or gemini.ErrNoAPIKey when the variable is empty.
func (g *geminiClients) get(keyEnv, baseURL string) (*genai.Client, error) {
	id := keyEnv + "|" + baseURL
	if c, ok := g.clients[id]; ok {
		return c, nil
	}
	opts := g.opts
	opts.APIKey = config.APIKey(keyEnv)
	opts.BaseURL = baseURL
	c, err := gemini.NewClient(g.ctx, opts)
	if err != nil {
		return nil, err
	}
	g.clients[id] = c
	return c, nil
}

// newEmbedder builds the configured embedder. A local ONNX model that cannot be
// loaded falls back to the deterministic mock embedder so the CLI still works.
func newEmbedder(cfg *config.Config, logger *zap.Logger, clients *geminiClients) (embedding.Embedder, error) {
	opts := embedding.Options{
		Provider:       cfg.Embedding.Provider,
		Model:          cfg.Embedding.Model,
		BaseURL:        cfg.Embedding.BaseURL,
		APIKeyEnv:      cfg.Embedding.APIKeyEnv,
		Dimensions:     cfg.Embedding.Dimensions,
		MaxTokens:      cfg.Embedding.MaxTokens,
		CacheSize:      cfg.Embedding.CacheSize,
		ModelPath:      cfg.Embedding.ModelPath,
		ORTLibraryPath: cfg.Embedding.ORTLibraryPath,
	}
	if cfg.Embedding.Provider == embedding.ProviderGemini {
		client, err := clients.get(cfg.Embedding.APIKeyEnv, cfg.Embedding.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		opts.GeminiModels = client.Models
	}
	e, err := embedding.New(opts)
	if err == nil {
		return e, nil
	}
	if cfg.Embedding.Provider != embedding.ProviderONNX {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	logger.Warn("onnx embedder unavailable, falling back to mock embeddings", zap.Error(err))
	opts.Provider = embedding.ProviderMock
	return embedding.New(opts)
}

// newExtractor builds the configured extractor. Gemini without an API key falls back
// to sidecar records so that indexing still works offline.
func newExtractor(cfg *config.Config, logger *zap.Logger, clients *geminiClients) (extract.Extractor, error) {
	switch cfg.Extraction.Provider {
	case "sidecar":
		return extract.NewSidecarExtractor(), nil
	case "gemini", "":
		client, err := clients.get(cfg.Extraction.APIKeyEnv, cfg.Extraction.BaseURL)
		if errors.Is(err, gemini.ErrNoAPIKey) {
			logger.Warn("no extraction API key; reading sidecar records instead",
				zap.String("api_key_env", cfg.Extraction.APIKeyEnv))
			return extract.NewSidecarExtractor(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize extractor: %w", err)
		}
		return extract.NewGeminiExtractor(extract.GeminiOptions{
			Models:            client.Models,
			Model:             cfg.Extraction.Model,
			RequestsPerMinute: cfg.Extraction.RequestsPerMinute,
			Logger:            logger,
		})
	default:
		return nil, fmt.Errorf("unknown extraction provider: %s (supported: gemini, sidecar)", cfg.Extraction.Provider)
	}
}
