package content

import (
	"errors"
	"fmt"
	"time"
)

// FieldValue is a raw content field value tagged with its field kind.
type FieldValue struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// Item is a content item as read from the authoritative store.
type Item struct {
	ID         string                `json:"id"`
	SiteID     string                `json:"siteId"`
	Category   string                `json:"category"`
	Subtype    string                `json:"subtype,omitempty"`
	Enabled    bool                  `json:"enabled"`
	Visible    bool                  `json:"visible"`
	PostDate   *time.Time            `json:"postDate,omitempty"`
	ExpiryDate *time.Time            `json:"expiryDate,omitempty"`
	Fields     map[string]FieldValue `json:"fields,omitempty"`
	RelatedIDs []string              `json:"relatedIds,omitempty"`
}

// IsLive reports whether the item should be present in search indexes at now:
// enabled, visible and published (post date reached, not expired).
func (i Item) IsLive(now time.Time) bool {
	if !i.Enabled || !i.Visible {
		return false
	}
	if i.PostDate != nil && i.PostDate.After(now) {
		return false
	}
	if i.ExpiryDate != nil && !i.ExpiryDate.After(now) {
		return false
	}
	return true
}

// Field returns a field value by handle.
func (i Item) Field(handle string) (FieldValue, bool) {
	v, ok := i.Fields[handle]
	return v, ok
}

// EventType is a content lifecycle event kind.
type EventType string

// Event types.
const (
	EventSave   EventType = "save"
	EventDelete EventType = "delete"
)

// ErrInvalidEvent signals a malformed content event.
var ErrInvalidEvent = errors.New("invalid content event")

// Event is a content lifecycle notification as delivered by the CMS.
type Event struct {
	Type EventType `json:"type"`
	Item Item      `json:"item"`
}

// Validate checks the event kind and the item identity.
func (e Event) Validate() error {
	if e.Type != EventSave && e.Type != EventDelete {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.Item.ID == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidEvent)
	}
	if e.Item.SiteID == "" {
		return fmt.Errorf("%w: item site is required", ErrInvalidEvent)
	}
	return nil
}
