package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"secondchance/internal/events"
	"secondchance/internal/models"
	"secondchance/internal/repositories"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// maxIDAttempts bounds how often Create re-reads the max ID after losing an
// insert race.
const maxIDAttempts = 10

// ImageURLPrefix is the public path attachments are served under.
const ImageURLPrefix = "/images/"

// EventPublisher delivers catalog events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// AttachmentStore persists uploaded files.
type AttachmentStore interface {
	Save(ctx context.Context, ext string, r io.Reader) (string, error)
	Remove(ctx context.Context, name string) error
}

// Attachment is a file sent along with a new item.
type Attachment struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// CreateItemInput is the body of a create-item request.
type CreateItemInput struct {
	Name        string `json:"name" form:"name"`
	Category    string `json:"category" form:"category" validate:"required"`
	Condition   string `json:"condition" form:"condition" validate:"required"`
	PostedBy    string `json:"posted_by" form:"posted_by"`
	Zipcode     string `json:"zipcode" form:"zipcode"`
	Description string `json:"description" form:"description" validate:"required"`
	AgeDays     *int   `json:"age_days" form:"age_days" validate:"omitempty,gte=0"`
}

var itemMessages = map[string]string{
	"category":    "Category is required",
	"condition":   "Condition is required",
	"description": "Description is required",
	"age_days":    "Age in days must be zero or more",
}

// ItemService handles business logic for catalog items.
type ItemService struct {
	repo           repositories.ItemRepository
	attachments    AttachmentStore
	publisher      EventPublisher
	maxUploadBytes int64
	validate       *validator.Validate
	log            logrus.FieldLogger
	now            func() time.Time
}

// NewItemService creates a new ItemService. publisher may be nil, in which
// case attachments of deleted items are removed inline.
func NewItemService(repo repositories.ItemRepository, attachments AttachmentStore, publisher EventPublisher, maxUploadBytes int64, log logrus.FieldLogger) *ItemService {
	return &ItemService{
		repo:           repo,
		attachments:    attachments,
		publisher:      publisher,
		maxUploadBytes: maxUploadBytes,
		validate:       newValidator(),
		log:            log,
		now:            time.Now,
	}
}

// List returns every item ordered by ID.
func (s *ItemService) List(ctx context.Context) ([]models.Item, error) {
	return s.repo.GetAll(ctx)
}

// Search returns the items matching filter.
func (s *ItemService) Search(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	return s.repo.Search(ctx, filter)
}

// GetByID returns a single item.
func (s *ItemService) GetByID(ctx context.Context, id string) (*models.Item, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// Create validates in, stores the optional attachment and inserts the item
// under the next free numeric ID.
func (s *ItemService) Create(ctx context.Context, in CreateItemInput, att *Attachment) (*models.Item, error) {
	if err := validateStruct(s.validate, in, itemMessages); err != nil {
		return nil, err
	}

	item := &models.Item{
		Name:        in.Name,
		Category:    in.Category,
		Condition:   in.Condition,
		PostedBy:    in.PostedBy,
		Zipcode:     in.Zipcode,
		Description: in.Description,
		DateAdded:   s.now().Unix(),
	}
	if in.AgeDays != nil {
		item.AgeDays = *in.AgeDays
		item.AgeYears = models.AgeInYears(*in.AgeDays)
	}

	if att != nil {
		name, err := s.storeAttachment(ctx, att)
		if err != nil {
			return nil, err
		}
		item.Image = ImageURLPrefix + name
	}

	if err := s.insertWithNextID(ctx, item); err != nil {
		if item.Image != "" {
			s.removeAttachment(ctx, item.ID, item.Image)
		}
		return nil, err
	}

	s.log.WithField("item_id", item.ID).Info("item created")
	s.publish(ctx, events.ItemCreated, item)
	return item, nil
}

func (s *ItemService) insertWithNextID(ctx context.Context, item *models.Item) error {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		max, err := s.repo.MaxID(ctx)
		if err != nil {
			return err
		}
		item.ID = strconv.FormatInt(max+1, 10)

		err = s.repo.Create(ctx, item)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrDuplicateKey) {
			return err
		}
		s.log.WithField("item_id", item.ID).Debug("item id taken, retrying")
	}
	return ErrIDAllocation
}

// Update applies patch to an existing item. Only the supplied fields are
// written; ID and DateAdded never change.
func (s *ItemService) Update(ctx context.Context, id string, patch models.ItemPatch) (*models.Item, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	item, err := s.repo.Update(ctx, id, patch, s.now().Unix())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	s.log.WithField("item_id", item.ID).Info("item updated")
	s.publish(ctx, events.ItemUpdated, item)
	return item, nil
}

// Delete removes an item. Its attachment is cleaned up by the janitor when
// the deletion event is published, and inline otherwise.
func (s *ItemService) Delete(ctx context.Context, id string) error {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrItemNotFound
		}
		return err
	}

	s.log.WithField("item_id", id).Info("item deleted")
	if !s.publish(ctx, events.ItemDeleted, item) && item.Image != "" {
		s.removeAttachment(ctx, item.ID, item.Image)
	}
	return nil
}

// storeAttachment checks size and content type, then saves the file under
// a generated name with the extension of its sniffed type.
func (s *ItemService) storeAttachment(ctx context.Context, att *Attachment) (string, error) {
	if att.Size > s.maxUploadBytes {
		return "", &UploadError{Reason: fmt.Sprintf("file exceeds %d bytes", s.maxUploadBytes)}
	}
	data, err := io.ReadAll(io.LimitReader(att.Content, s.maxUploadBytes+1))
	if err != nil {
		return "", &UploadError{Reason: "unreadable file", Err: err}
	}
	if int64(len(data)) > s.maxUploadBytes {
		return "", &UploadError{Reason: fmt.Sprintf("file exceeds %d bytes", s.maxUploadBytes)}
	}
	if len(data) == 0 {
		return "", &UploadError{Reason: "empty file"}
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", &UploadError{Reason: "unsupported content type " + mtype.String()}
	}

	name, err := s.attachments.Save(ctx, mtype.Extension(), bytes.NewReader(data))
	if err != nil {
		return "", &UploadError{Reason: "could not store file", Err: err}
	}
	s.log.WithFields(logrus.Fields{"file": att.Filename, "stored_as": name, "type": mtype.String()}).Debug("attachment stored")
	return name, nil
}

func (s *ItemService) removeAttachment(ctx context.Context, itemID, image string) {
	if err := s.attachments.Remove(ctx, path.Base(image)); err != nil {
		s.log.WithError(err).WithField("item_id", itemID).Warn("failed to remove attachment")
	}
}

// publish sends a catalog event and reports whether the broker accepted it.
// Failures are logged; they never fail the request.
func (s *ItemService) publish(ctx context.Context, eventType string, item *models.Item) bool {
	if s.publisher == nil {
		return false
	}
	body, err := events.CatalogEvent{
		Type:       eventType,
		ItemID:     item.ID,
		Image:      item.Image,
		OccurredAt: s.now().UTC(),
	}.Encode()
	if err != nil {
		s.log.WithError(err).WithField("item_id", item.ID).Error("failed to encode catalog event")
		return false
	}
	if err := s.publisher.Publish(ctx, eventType, body); err != nil {
		s.log.WithError(err).WithField("item_id", item.ID).Warn("failed to publish catalog event")
		return false
	}
	return true
}

func validatePatch(p models.ItemPatch) error {
	required := []struct {
		path  string
		value *string
	}{
		{"category", p.Category},
		{"condition", p.Condition},
		{"description", p.Description},
	}
	for _, f := range required {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return InvalidField("body", f.path, itemMessages[f.path])
		}
	}
	if p.AgeDays != nil && *p.AgeDays < 0 {
		return InvalidField("body", "age_days", itemMessages["age_days"])
	}
	return nil
}
