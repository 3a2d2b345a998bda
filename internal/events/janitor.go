package events

import (
	"context"
	"errors"
	"fmt"
	"path"

	"secondchance/pkg/rabbitmq"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// ErrMalformed marks a message that can never be processed. It wraps
// rabbitmq.ErrDiscard so the consumer drops it without requeueing.
var ErrMalformed = fmt.Errorf("malformed message: %w", rabbitmq.ErrDiscard)

// AttachmentRemover deletes a stored attachment by name.
type AttachmentRemover interface {
	Remove(ctx context.Context, name string) error
}

// AttachmentJanitor removes the attachments of deleted items.
type AttachmentJanitor struct {
	store AttachmentRemover
	log   logrus.FieldLogger
}

// NewAttachmentJanitor creates a janitor that removes files from store.
func NewAttachmentJanitor(store AttachmentRemover, log logrus.FieldLogger) *AttachmentJanitor {
	return &AttachmentJanitor{store: store, log: log}
}

// Handle processes one catalog event delivery.
func (j *AttachmentJanitor) Handle(msg amqp.Delivery) error {
	ev, err := Decode(msg.Body)
	if err != nil {
		j.log.WithError(err).WithField("delivery_tag", msg.DeliveryTag).Warn("dropping catalog event")
		return errors.Join(ErrMalformed, err)
	}
	if ev.Type != ItemDeleted || ev.Image == "" {
		return nil
	}

	name := path.Base(ev.Image)
	if err := j.store.Remove(context.Background(), name); err != nil {
		return err
	}
	j.log.WithFields(logrus.Fields{"item_id": ev.ItemID, "file": name}).Info("attachment removed")
	return nil
}
