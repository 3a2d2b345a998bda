package repositories

import (
	"context"

	"secondchance/internal/models"
)

// ItemRepository defines the interface for catalog data access.
type ItemRepository interface {
	// GetAll returns every item ordered by ascending numeric ID.
	GetAll(ctx context.Context) ([]models.Item, error)
	Search(ctx context.Context, filter models.ItemFilter) ([]models.Item, error)
	GetByID(ctx context.Context, id string) (*models.Item, error)
	// MaxID returns the largest numeric item ID, or 0 for an empty catalog.
	MaxID(ctx context.Context) (int64, error)
	// Create inserts item under its ID and fails with ErrDuplicateKey when taken.
	Create(ctx context.Context, item *models.Item) error
	// Update writes only the fields supplied in patch, plus updatedAt, and
	// returns the stored item.
	Update(ctx context.Context, id string, patch models.ItemPatch, updatedAt int64) (*models.Item, error)
	Delete(ctx context.Context, id string) error
}
