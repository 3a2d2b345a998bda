package repositories

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"secondchance/internal/models"
)

// MemoryItemRepository is an in-memory implementation of ItemRepository.
type MemoryItemRepository struct {
	items map[string]models.Item
	mu    sync.RWMutex
}

// NewMemoryItemRepository creates a new instance of MemoryItemRepository.
func NewMemoryItemRepository() *MemoryItemRepository {
	return &MemoryItemRepository{
		items: make(map[string]models.Item),
	}
}

// GetAll returns all items.
func (r *MemoryItemRepository) GetAll(ctx context.Context) ([]models.Item, error) {
	return r.Search(ctx, models.ItemFilter{})
}

// Search returns the items matching filter.
func (r *MemoryItemRepository) Search(_ context.Context, filter models.ItemFilter) ([]models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := strings.ToLower(filter.Name)
	list := make([]models.Item, 0, len(r.items))
	for _, it := range r.items {
		if name != "" && !strings.Contains(strings.ToLower(it.Name), name) {
			continue
		}
		if filter.Category != "" && it.Category != filter.Category {
			continue
		}
		if filter.Condition != "" && it.Condition != filter.Condition {
			continue
		}
		if filter.MaxAgeYears != nil && it.AgeYears > *filter.MaxAgeYears {
			continue
		}
		list = append(list, it)
	}
	sort.Slice(list, func(i, j int) bool {
		return numericID(list[i].ID) < numericID(list[j].ID)
	})
	return list, nil
}

// GetByID returns an item by its ID.
func (r *MemoryItemRepository) GetByID(_ context.Context, id string) (*models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return &item, nil
}

// MaxID returns the highest numeric ID. Non-numeric IDs are ignored.
func (r *MemoryItemRepository) MaxID(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max int64
	for id := range r.items {
		if n := numericID(id); n > max {
			max = n
		}
	}
	return max, nil
}

// Create adds a new item.
func (r *MemoryItemRepository) Create(_ context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ID]; ok {
		return fmt.Errorf("item %s: %w", item.ID, ErrDuplicateKey)
	}
	r.items[item.ID] = *item
	return nil
}

// Update applies patch to the stored item under the write lock.
func (r *MemoryItemRepository) Update(_ context.Context, id string, patch models.ItemPatch, updatedAt int64) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	patch.Apply(&item)
	item.UpdatedAt = updatedAt
	r.items[id] = item
	return &item, nil
}

// Delete removes an item by its ID.
func (r *MemoryItemRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	delete(r.items, id)
	return nil
}

func numericID(id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
