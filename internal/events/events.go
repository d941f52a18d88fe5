// Package events publishes item mutation events so downstream consumers can
// react to changes made through the detail session.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/inventory-platform/item-detail-service/internal/domain"
)

// Event types
const (
	TypeItemUpdated = "item.updated"
	TypeItemDeleted = "item.deleted"
)

// ItemEvent is the envelope published after an acknowledged mutation.
type ItemEvent struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	Source string       `json:"source"`
	Time   time.Time    `json:"time"`
	ItemID int64        `json:"itemId"`
	Item   *domain.Item `json:"item,omitempty"`
}

// EventFactory stamps events with their source.
type EventFactory struct {
	source string
}

// NewEventFactory creates an EventFactory for the given source identifier.
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// ItemUpdated builds an event for a persisted item update.
func (f *EventFactory) ItemUpdated(item domain.Item) *ItemEvent {
	return f.newEvent(TypeItemUpdated, item.ID, &item)
}

// ItemDeleted builds an event for a persisted item deletion.
func (f *EventFactory) ItemDeleted(item domain.Item) *ItemEvent {
	return f.newEvent(TypeItemDeleted, item.ID, nil)
}

func (f *EventFactory) newEvent(eventType string, itemID int64, item *domain.Item) *ItemEvent {
	return &ItemEvent{
		ID:     uuid.New().String(),
		Type:   eventType,
		Source: f.source,
		Time:   time.Now().UTC(),
		ItemID: itemID,
		Item:   item,
	}
}
