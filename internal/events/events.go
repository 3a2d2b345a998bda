package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Catalog event types, also used as routing keys.
const (
	ItemCreated = "item.created"
	ItemUpdated = "item.updated"
	ItemDeleted = "item.deleted"
)

// CatalogEvent is published whenever an item changes.
type CatalogEvent struct {
	Type       string    `json:"type"`
	ItemID     string    `json:"item_id"`
	Image      string    `json:"image,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Encode marshals e to JSON.
func (e CatalogEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a catalog event and checks that it names a known type and item.
func Decode(body []byte) (CatalogEvent, error) {
	var e CatalogEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("malformed catalog event: %w", err)
	}
	switch e.Type {
	case ItemCreated, ItemUpdated, ItemDeleted:
	default:
		return e, fmt.Errorf("unknown catalog event type %q", e.Type)
	}
	if e.ItemID == "" {
		return e, fmt.Errorf("catalog event %s has no item_id", e.Type)
	}
	return e, nil
}
