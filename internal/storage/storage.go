// Package storage defines the persistence interface for card fragments.
package storage

import (
	"context"

	"github.com/hyperjump/meishi/internal/models"
)

// Storage defines fragment persistence operations. Fragment ids are unique;
// writing an existing id replaces the stored fragment.
type Storage interface {
	// Fragment operations
	UpsertFragments(ctx context.Context, fragments []*models.StoredFragment) error
	GetFragments(ctx context.Context, ids []string) ([]*models.StoredFragment, error)
	DeleteFragments(ctx context.Context, ids []string) error
	ListFragments(ctx context.Context, offset, limit int) ([]*models.StoredFragment, error)

	// Stats
	CountFragments(ctx context.Context) (int64, error)
	CountCards(ctx context.Context) (int64, error)

	Close() error
}
