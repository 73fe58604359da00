package domain

import (
	"github.com/google/uuid"
)

// Event types tag messages on the wire.
const (
	EventTypeURLCreated = "UrlCreated"
	EventTypeURLClicked = "UrlClicked"
)

// ClickEvent records one successful redirect. EventID is minted once, at
// resolution time, and is the only idempotence key downstream.
type ClickEvent struct {
	EventID uuid.UUID
	Key     string
}

// NewClickEvent mints a fresh event id for key.
func NewClickEvent(key string) ClickEvent {
	return ClickEvent{
		EventID: uuid.Must(uuid.NewV7()),
		Key:     key,
	}
}
