package event

import (
	"fmt"

	"go-shortener-pipeline/internal/domain"

	"github.com/google/uuid"
)

// URLClicked is the update-urls payload.
type URLClicked struct {
	Key string `json:"key"`
	ID  string `json:"event_id"`
}

// NewURLClicked wraps a click minted at redirect time.
func NewURLClicked(c domain.ClickEvent) URLClicked {
	return URLClicked{
		Key: c.Key,
		ID:  c.EventID.String(),
	}
}

func (e URLClicked) EventID() string      { return e.ID }
func (e URLClicked) EventName() string    { return domain.EventTypeURLClicked }
func (e URLClicked) Topic() string        { return TopicURLClicks }
func (e URLClicked) PartitionKey() string { return e.Key }

// ToClickEvent validates the payload.
func (e URLClicked) ToClickEvent() (domain.ClickEvent, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return domain.ClickEvent{}, fmt.Errorf("event_id %q: %w", e.ID, domain.ErrInvalidEventID)
	}
	if e.Key == "" {
		return domain.ClickEvent{}, fmt.Errorf("empty key: %w", domain.ErrInvalidKey)
	}
	return domain.ClickEvent{EventID: id, Key: e.Key}, nil
}
