package services_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"secondchance/internal/events"
	"secondchance/internal/logger"
	"secondchance/internal/models"
	"secondchance/internal/repositories"
	"secondchance/internal/services"
	"secondchance/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockItemRepository is a mock implementation of repositories.ItemRepository
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) GetAll(ctx context.Context) ([]models.Item, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Item), args.Error(1)
}

func (m *MockItemRepository) Search(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Item), args.Error(1)
}

func (m *MockItemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}

func (m *MockItemRepository) MaxID(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockItemRepository) Create(ctx context.Context, item *models.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockItemRepository) Update(ctx context.Context, id string, patch models.ItemPatch, updatedAt int64) (*models.Item, error) {
	args := m.Called(ctx, id, patch, updatedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}

func (m *MockItemRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	args := m.Called(ctx, routingKey, body)
	return args.Error(0)
}

const maxUpload = 2 * 1024 * 1024

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newItemService(t *testing.T, repo repositories.ItemRepository, pub services.EventPublisher) (*services.ItemService, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return services.NewItemService(repo, store, pub, maxUpload, logger.Discard()), store
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func validInput() services.CreateItemInput {
	return services.CreateItemInput{
		Name:        "Oak Table",
		Category:    "Furniture",
		Condition:   "Used",
		Description: "Solid oak",
		AgeDays:     intPtr(730),
	}
}

func TestItemService_Create(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, _ := newItemService(t, mockRepo, nil)

	mockRepo.On("MaxID", ctx).Return(int64(4), nil).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*models.Item")).Return(nil).Once()

	item, err := service.Create(ctx, validInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, "5", item.ID)
	assert.Equal(t, 2.0, item.AgeYears)
	assert.NotZero(t, item.DateAdded)
	assert.Empty(t, item.Image)
	mockRepo.AssertExpectations(t)
}

func TestItemService_Create_FirstItemGetsIDOne(t *testing.T) {
	ctx := context.Background()
	service, _ := newItemService(t, repositories.NewMemoryItemRepository(), nil)

	item, err := service.Create(ctx, validInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1", item.ID)

	item, err = service.Create(ctx, validInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2", item.ID)
}

func TestItemService_Create_RetriesOnDuplicateID(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, _ := newItemService(t, mockRepo, nil)

	mockRepo.On("MaxID", ctx).Return(int64(4), nil).Once()
	mockRepo.On("MaxID", ctx).Return(int64(5), nil).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*models.Item")).Return(repositories.ErrDuplicateKey).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*models.Item")).Return(nil).Once()

	item, err := service.Create(ctx, validInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, "6", item.ID)
	mockRepo.AssertExpectations(t)
}

func TestItemService_Create_GivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, _ := newItemService(t, mockRepo, nil)

	mockRepo.On("MaxID", ctx).Return(int64(4), nil)
	mockRepo.On("Create", ctx, mock.AnythingOfType("*models.Item")).Return(repositories.ErrDuplicateKey)

	_, err := service.Create(ctx, validInput(), nil)
	assert.ErrorIs(t, err, services.ErrIDAllocation)
}

func TestItemService_Create_ConcurrentIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryItemRepository()
	service, _ := newItemService(t, repo, nil)

	const n = 8
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := service.Create(ctx, validInput(), nil)
			if assert.NoError(t, err) {
				ids <- item.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	all, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, n)
}

func TestItemService_Create_Validation(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, _ := newItemService(t, mockRepo, nil)

	_, err := service.Create(ctx, services.CreateItemInput{Name: "x", AgeDays: intPtr(-1)}, nil)

	var verr *services.ValidationError
	require.ErrorAs(t, err, &verr)
	paths := []string{}
	for _, f := range verr.Fields {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"category", "condition", "description", "age_days"}, paths)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestItemService_Create_WithAttachment(t *testing.T) {
	ctx := context.Background()
	service, store := newItemService(t, repositories.NewMemoryItemRepository(), nil)

	att := &services.Attachment{
		Filename: "../../etc/passwd.png",
		Size:     int64(len(pngHeader)),
		Content:  bytes.NewReader(pngHeader),
	}
	item, err := service.Create(ctx, validInput(), att)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(item.Image, services.ImageURLPrefix))
	name := strings.TrimPrefix(item.Image, services.ImageURLPrefix)
	assert.True(t, strings.HasSuffix(name, ".png"))
	assert.NotContains(t, name, "passwd", "client file names are never used")

	stored, err := os.ReadFile(filepath.Join(store.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)
}

func TestItemService_Create_RejectsBadAttachments(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, store := newItemService(t, mockRepo, nil)

	cases := map[string]*services.Attachment{
		"not an image":       {Filename: "a.png", Size: 11, Content: strings.NewReader("hello world")},
		"declared too large": {Filename: "a.png", Size: maxUpload + 1, Content: bytes.NewReader(pngHeader)},
		"actually too large": {Filename: "a.png", Size: 10, Content: io.MultiReader(bytes.NewReader(pngHeader), bytes.NewReader(make([]byte, maxUpload)))},
		"empty":              {Filename: "a.png", Size: 0, Content: strings.NewReader("")},
	}
	for name, att := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.Create(ctx, validInput(), att)
			var uerr *services.UploadError
			assert.ErrorAs(t, err, &uerr)
		})
	}

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestItemService_Create_RemovesAttachmentWhenInsertFails(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, store := newItemService(t, mockRepo, nil)

	mockRepo.On("MaxID", ctx).Return(int64(0), nil)
	mockRepo.On("Create", ctx, mock.AnythingOfType("*models.Item")).Return(errors.New("disk full"))

	att := &services.Attachment{Filename: "a.png", Size: int64(len(pngHeader)), Content: bytes.NewReader(pngHeader)}
	_, err := service.Create(ctx, validInput(), att)
	assert.Error(t, err)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestItemService_Create_PublishesEvent(t *testing.T) {
	ctx := context.Background()
	pub := new(MockPublisher)
	service, _ := newItemService(t, repositories.NewMemoryItemRepository(), pub)

	pub.On("Publish", ctx, events.ItemCreated, mock.Anything).Return(nil).Once()

	item, err := service.Create(ctx, validInput(), nil)
	require.NoError(t, err)

	body := pub.Calls[0].Arguments.Get(2).([]byte)
	ev, err := events.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, item.ID, ev.ItemID)
	pub.AssertExpectations(t)
}

func TestItemService_Create_PublishFailureDoesNotFailRequest(t *testing.T) {
	ctx := context.Background()
	pub := new(MockPublisher)
	service, _ := newItemService(t, repositories.NewMemoryItemRepository(), pub)

	pub.On("Publish", ctx, events.ItemCreated, mock.Anything).Return(errors.New("broker down"))

	_, err := service.Create(ctx, validInput(), nil)
	assert.NoError(t, err)
}

func TestItemService_GetByID(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, _ := newItemService(t, mockRepo, nil)

	mockRepo.On("GetByID", ctx, "1").Return(&models.Item{ID: "1", Name: "Oak Table"}, nil).Once()
	mockRepo.On("GetByID", ctx, "99").Return(nil, repositories.ErrNotFound).Once()

	item, err := service.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Oak Table", item.Name)

	_, err = service.GetByID(ctx, "99")
	assert.ErrorIs(t, err, services.ErrItemNotFound)
}

func TestItemService_Update(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryItemRepository()
	service, _ := newItemService(t, repo, nil)

	created, err := service.Create(ctx, validInput(), nil)
	require.NoError(t, err)

	updated, err := service.Update(ctx, created.ID, models.ItemPatch{
		Condition: strPtr("Like New"),
		AgeDays:   intPtr(400),
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.DateAdded, updated.DateAdded)
	assert.Equal(t, "Like New", updated.Condition)
	assert.Equal(t, "Furniture", updated.Category, "fields not in the patch are kept")
	assert.Equal(t, 400, updated.AgeDays)
	assert.Equal(t, 1.1, updated.AgeYears)
	assert.NotZero(t, updated.UpdatedAt)

	stored, err := service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}

func TestItemService_Update_KeepsAgeWhenNotSupplied(t *testing.T) {
	ctx := context.Background()
	service, _ := newItemService(t, repositories.NewMemoryItemRepository(), nil)

	created, err := service.Create(ctx, validInput(), nil)
	require.NoError(t, err)

	updated, err := service.Update(ctx, created.ID, models.ItemPatch{Name: strPtr("Table")})
	require.NoError(t, err)
	assert.Equal(t, 730, updated.AgeDays)
	assert.Equal(t, 2.0, updated.AgeYears)
}

// lockstepRepo holds every Update until all expected callers have arrived,
// so the writes overlap.
type lockstepRepo struct {
	repositories.ItemRepository
	arrived sync.WaitGroup
}

func (r *lockstepRepo) Update(ctx context.Context, id string, patch models.ItemPatch, updatedAt int64) (*models.Item, error) {
	r.arrived.Done()
	r.arrived.Wait()
	return r.ItemRepository.Update(ctx, id, patch, updatedAt)
}

func TestItemService_Update_ConcurrentPatchesOnSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	store, err := repositories.Open("sqlite", dsn, logger.Gorm(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repo := &lockstepRepo{ItemRepository: store.Items}
	service, _ := newItemService(t, repo, nil)

	in := validInput()
	in.Category = "chair"
	created, err := service.Create(ctx, in, nil)
	require.NoError(t, err)

	patches := []models.ItemPatch{
		{Category: strPtr("table")},
		{Description: strPtr("refurbished")},
	}
	repo.arrived.Add(len(patches))

	var wg sync.WaitGroup
	for _, p := range patches {
		wg.Add(1)
		go func(p models.ItemPatch) {
			defer wg.Done()
			_, err := service.Update(ctx, created.ID, p)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	stored, err := service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "table", stored.Category)
	assert.Equal(t, "refurbished", stored.Description)
}

func TestItemService_Update_Errors(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, _ := newItemService(t, mockRepo, nil)

	mockRepo.On("Update", ctx, "99", mock.Anything, mock.Anything).Return(nil, repositories.ErrNotFound).Once()

	_, err := service.Update(ctx, "99", models.ItemPatch{Name: strPtr("x")})
	assert.ErrorIs(t, err, services.ErrItemNotFound)

	_, err = service.Update(ctx, "1", models.ItemPatch{Category: strPtr("  ")})
	var verr *services.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = service.Update(ctx, "1", models.ItemPatch{AgeDays: intPtr(-5)})
	assert.ErrorAs(t, err, &verr)

	mockRepo.AssertNumberOfCalls(t, "Update", 1)
}

func TestItemService_Delete_RemovesAttachmentInline(t *testing.T) {
	ctx := context.Background()
	service, store := newItemService(t, repositories.NewMemoryItemRepository(), nil)

	att := &services.Attachment{Filename: "a.png", Size: int64(len(pngHeader)), Content: bytes.NewReader(pngHeader)}
	item, err := service.Create(ctx, validInput(), att)
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, item.ID))

	_, err = service.GetByID(ctx, item.ID)
	assert.ErrorIs(t, err, services.ErrItemNotFound)
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Deleting again reports not found and leaves the catalog unchanged.
	assert.ErrorIs(t, service.Delete(ctx, item.ID), services.ErrItemNotFound)
}

func TestItemService_Delete_LeavesAttachmentToJanitor(t *testing.T) {
	ctx := context.Background()
	pub := new(MockPublisher)
	service, store := newItemService(t, repositories.NewMemoryItemRepository(), pub)

	pub.On("Publish", ctx, events.ItemCreated, mock.Anything).Return(nil)
	pub.On("Publish", ctx, events.ItemDeleted, mock.Anything).Return(nil).Once()

	att := &services.Attachment{Filename: "a.png", Size: int64(len(pngHeader)), Content: bytes.NewReader(pngHeader)}
	item, err := service.Create(ctx, validInput(), att)
	require.NoError(t, err)
	require.NoError(t, service.Delete(ctx, item.ID))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "file stays until the deletion event is consumed")
	pub.AssertExpectations(t)
}

func TestItemService_Search(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	service, _ := newItemService(t, mockRepo, nil)

	filter := models.ItemFilter{Category: "Furniture"}
	mockRepo.On("Search", ctx, filter).Return([]models.Item{{ID: "1"}}, nil).Once()

	items, err := service.Search(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	mockRepo.AssertExpectations(t)
}
