package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"secondchance/internal/models"

	"gorm.io/gorm"
)

const numericIDOrder = "CAST(id AS INTEGER) ASC"

// GORMItemRepository is a GORM implementation of ItemRepository.
type GORMItemRepository struct {
	db *gorm.DB
}

// NewGORMItemRepository creates a new instance of GORMItemRepository.
func NewGORMItemRepository(db *gorm.DB) *GORMItemRepository {
	return &GORMItemRepository{
		db: db,
	}
}

// GetAll retrieves all items from the database.
func (r *GORMItemRepository) GetAll(ctx context.Context) ([]models.Item, error) {
	items := []models.Item{}
	if err := r.db.WithContext(ctx).Order(numericIDOrder).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to get all items: %w", err)
	}
	return items, nil
}

// Search retrieves the items matching every non-empty criterion of filter.
func (r *GORMItemRepository) Search(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	q := r.db.WithContext(ctx).Model(&models.Item{})
	if filter.Name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Name)+"%")
	}
	if filter.Category != "" {
		q = q.Where(map[string]interface{}{"category": filter.Category})
	}
	if filter.Condition != "" {
		q = q.Where(map[string]interface{}{"condition": filter.Condition})
	}
	if filter.MaxAgeYears != nil {
		q = q.Where("age_years <= ?", *filter.MaxAgeYears)
	}

	items := []models.Item{}
	if err := q.Order(numericIDOrder).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	return items, nil
}

// GetByID retrieves a single item by its ID from the database.
func (r *GORMItemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return &item, nil
}

// MaxID returns the highest numeric ID currently stored.
func (r *GORMItemRepository) MaxID(ctx context.Context) (int64, error) {
	var max int64
	row := r.db.WithContext(ctx).Model(&models.Item{}).
		Select("COALESCE(MAX(CAST(id AS INTEGER)), 0)").Row()
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to read max item id: %w", err)
	}
	return max, nil
}

// Create inserts a new item. The ID must already be assigned.
func (r *GORMItemRepository) Create(ctx context.Context, item *models.Item) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("item %s: %w", item.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// Update sets the patched columns in a single UPDATE and reads the row back
// in the same transaction.
func (r *GORMItemRepository) Update(ctx context.Context, id string, patch models.ItemPatch, updatedAt int64) (*models.Item, error) {
	var item models.Item
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Item{}).Where("id = ?", id).Updates(patchColumns(patch, updatedAt))
		if res.Error != nil {
			return fmt.Errorf("failed to update item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		if err := tx.First(&item, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to reload item %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func patchColumns(patch models.ItemPatch, updatedAt int64) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": updatedAt}
	strs := map[string]*string{
		"name":        patch.Name,
		"category":    patch.Category,
		"condition":   patch.Condition,
		"posted_by":   patch.PostedBy,
		"zipcode":     patch.Zipcode,
		"description": patch.Description,
	}
	for col, v := range strs {
		if v != nil {
			cols[col] = *v
		}
	}
	if patch.AgeDays != nil {
		cols["age_days"] = *patch.AgeDays
		cols["age_years"] = models.AgeInYears(*patch.AgeDays)
	}
	return cols
}

// Delete deletes an item by its ID from the database.
func (r *GORMItemRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Item{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}
