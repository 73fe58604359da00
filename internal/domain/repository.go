package domain

import (
	"context"

	"github.com/google/uuid"
)

// URLRepository is the persistence protocol of the pipeline.
type URLRepository interface {
	// AddBulk inserts urls, silently skipping keys that already exist.
	// It returns the number of rows actually inserted.
	AddBulk(ctx context.Context, urls []*URL) (int, error)

	// ApplyClickEvents dedups events by EventID and increments clicks_count
	// once per newly seen event. It returns the number of events applied.
	ApplyClickEvents(ctx context.Context, events []ClickEvent) (int, error)

	// Get returns ErrURLNotFound when no row matches key.
	Get(ctx context.Context, key Key) (*URL, error)

	// Update persists the mutable attributes of u.
	Update(ctx context.Context, u *URL) error

	// Delete removes the url. Deleting a missing key returns ErrURLNotFound.
	Delete(ctx context.Context, key Key) error

	// ListByUser pages through a user's urls, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*URL, int, error)
}
