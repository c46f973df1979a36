package search

import (
	"context"
	"errors"

	"github.com/hyperjump/meishi/internal/cardid"
	"github.com/hyperjump/meishi/internal/cardstore"
	"github.com/hyperjump/meishi/internal/models"
	"go.uber.org/zap"
)

// CardResolver reads a whole card by identity.
type CardResolver interface {
	Get(ctx context.Context, identity string) (*models.CardRecord, error)
}

// Aggregator collapses fragment hits into one result per card.
type Aggregator struct {
	resolver CardResolver
	logger   *zap.Logger
}

// NewAggregator creates an Aggregator. logger may be nil.
func NewAggregator(resolver CardResolver, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{resolver: resolver, logger: logger}
}

// Aggregate walks hits in order and keeps the first hit of each card, so a card's
// rank and distance come from its best-ranked fragment. Each kept card is resolved
// in full. Cards that are partial or whose stored record is malformed are skipped
// with a warning; store failures are returned. At most desired results are returned.
func (a *Aggregator) Aggregate(ctx context.Context, hits []models.RawHit, desired int) ([]*models.CardResult, error) {
	if desired <= 0 {
		return []*models.CardResult{}, nil
	}
	results := make([]*models.CardResult, 0, min(desired, len(hits)))
	seen := make(map[string]struct{}, len(hits))

	for _, hit := range hits {
		if len(results) >= desired {
			break
		}
		identity, slot, ok := cardid.ParseFragmentID(hit.ID)
		if !ok {
			a.logger.Warn("skipping hit with unexpected id", zap.String("id", hit.ID))
			continue
		}
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}

		card, err := a.resolver.Get(ctx, identity)
		if errors.Is(err, cardstore.ErrMalformedCard) {
			a.logger.Warn("skipping malformed card", zap.String("identity", identity), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if !card.Found() {
			a.logger.Warn("skipping incomplete card",
				zap.String("identity", identity), zap.String("status", string(card.Status)), zap.Ints("slots", card.Slots))
			continue
		}

		results = append(results, &models.CardResult{
			Identity:    identity,
			Metadata:    card.Metadata,
			Distance:    hit.Distance,
			Similarity:  1 - hit.Distance,
			Record:      &card.Record.ExtractedInfo,
			MatchedSlot: models.SlotName(slot),
			Rank:        len(results) + 1,
		})
	}
	return results, nil
}
