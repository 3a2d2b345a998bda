package repositories

import (
	"context"

	"secondchance/internal/models"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// Update replaces the stored record with the same ID.
	Update(ctx context.Context, user *models.User) error
}
