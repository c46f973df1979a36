// Package search answers natural-language card searches and keyword lookups.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/meishi/internal/cardstore"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "meishi/search"

// Engine runs semantic card search over the card store and keyword lookup over card fields.
type Engine struct {
	store        *cardstore.Store
	keywordIndex keyword.KeywordIndex
	suggester    *keyword.Suggester
	aggregator   *Aggregator
	config       *config.SearchConfig
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for skipped cards and retry decisions.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithSuggester offers a corrected query when a lookup finds nothing.
func WithSuggester(s *keyword.Suggester) EngineOption {
	return func(e *Engine) { e.suggester = s }
}

// NewEngine creates a search engine. keywordIndex may be nil, which disables Lookup.
func NewEngine(store *cardstore.Store, keywordIndex keyword.KeywordIndex, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	e := &Engine{
		store:        store,
		keywordIndex: keywordIndex,
		config:       cfg,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.aggregator = NewAggregator(store, e.logger)
	return e
}

// Search returns up to query.Limit distinct cards closest to the query, best first.
// When too few distinct cards come back and more fragments exist, the store is
// queried again with twice the over-fetch, at most config.UnderfillRetries times.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (resp *models.SearchResponse, err error) {
	startTime := time.Now()
	if err := query.ValidateWithLimits(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "search.cards")
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("search.results", resp.Total), attribute.Int("search.fetched", resp.Fetched))
		}
		span.End()
	}()

	total, err := e.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	expanded, k := Plan(query.Query, query.Limit, total)
	response := &models.SearchResponse{
		Results:       []*models.CardResult{},
		Query:         query.Query,
		ExpandedQuery: expanded,
	}

	for attempt := 0; ; attempt++ {
		span.AddEvent("fetch", trace.WithAttributes(attribute.Int("k", k)))
		hits, err := e.store.Search(ctx, expanded, k)
		if err != nil {
			return nil, err
		}
		results, err := e.aggregator.Aggregate(ctx, hits, query.Limit)
		if err != nil {
			return nil, err
		}
		response.Results = results
		response.Fetched = k

		if len(results) >= query.Limit || k >= total || attempt >= e.config.UnderfillRetries {
			break
		}
		e.logger.Debug("search under-filled; widening",
			zap.Int("cards", len(results)), zap.Int("wanted", query.Limit), zap.Int("k", k))
		k = min(k*2, total)
	}

	response.Total = len(response.Results)
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// FindCard returns the stored card for identity. A missing card is returned with
// status not_found, not as an error.
func (e *Engine) FindCard(ctx context.Context, identity string) (*models.CardRecord, error) {
	return e.store.Get(ctx, identity)
}

// Lookup runs a keyword search over card fields (name, title, company, location, ...).
func (e *Engine) Lookup(ctx context.Context, query *models.LookupQuery) (*models.LookupResponse, error) {
	startTime := time.Now()
	if e.keywordIndex == nil {
		return nil, fmt.Errorf("keyword lookup is not configured")
	}
	sq := models.SearchQuery{Query: strings.TrimSpace(query.Query), Limit: query.Limit}
	if err := sq.ValidateWithLimits(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}

	opts := &keyword.SearchOptions{
		NameBoost:    e.config.LookupNameBoost,
		FuzzyEnabled: e.config.LookupFuzziness > 0,
		Fuzziness:    e.config.LookupFuzziness,
	}
	hits, err := e.keywordIndex.Search(ctx, sq.Query, sq.Limit, opts)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	response := &models.LookupResponse{Results: make([]*models.CardResult, 0, len(hits)), Query: sq.Query}
	for _, hit := range hits {
		card, err := e.store.Get(ctx, hit.Identity)
		if errors.Is(err, cardstore.ErrMalformedCard) {
			e.logger.Warn("skipping malformed card", zap.String("identity", hit.Identity), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if !card.Found() {
			e.logger.Warn("keyword index references a missing card", zap.String("identity", hit.Identity))
			continue
		}
		response.Results = append(response.Results, &models.CardResult{
			Identity: hit.Identity,
			Metadata: card.Metadata,
			Record:   &card.Record.ExtractedInfo,
			Score:    hit.Score,
			Rank:     len(response.Results) + 1,
		})
	}
	response.Total = len(response.Results)

	if response.Total == 0 && e.suggester != nil {
		suggestion, err := e.suggester.Suggest(sq.Query)
		if err != nil {
			e.logger.Debug("no suggestion", zap.Error(err))
		}
		response.Suggestion = suggestion
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// Stats reports card, fragment, vector and keyword document counts.
func (e *Engine) Stats(ctx context.Context) (*models.IndexStats, error) {
	cards, err := e.store.CountCards(ctx)
	if err != nil {
		return nil, err
	}
	fragments, err := e.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	vectors, err := e.store.IndexedVectors(ctx)
	if err != nil {
		return nil, err
	}
	stats := &models.IndexStats{
		Cards:     cards,
		Fragments: fragments,
		Vectors:   vectors,
	}
	stats.NeedsRebuild = stats.Vectors != stats.Fragments
	if e.keywordIndex != nil {
		if n, err := e.keywordIndex.DocCount(); err == nil {
			stats.KeywordDocs = n
		}
	}
	return stats, nil
}
