package event

import (
	"fmt"

	"go-shortener-pipeline/internal/domain"

	"github.com/google/uuid"
)

// URLCreated is the new-urls payload.
type URLCreated struct {
	ID        string `json:"-"`
	Key       string `json:"key"`
	TargetURL string `json:"target_url"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
}

// NewURLCreated builds the payload for a freshly keyed url.
func NewURLCreated(u *domain.URL) URLCreated {
	return URLCreated{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Key:       u.Key().String(),
		TargetURL: u.TargetURL().String(),
		UserID:    u.UserID().String(),
		Name:      u.Name(),
	}
}

func (e URLCreated) EventID() string      { return e.ID }
func (e URLCreated) EventName() string    { return domain.EventTypeURLCreated }
func (e URLCreated) Topic() string        { return TopicNewURLs }
func (e URLCreated) PartitionKey() string { return e.Key }

// ToEntity validates the payload and rebuilds the domain url.
func (e URLCreated) ToEntity() (*domain.URL, error) {
	key, err := domain.NewKey(e.Key)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", e.Key, err)
	}
	target, err := domain.NewTargetURL(e.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("target_url %q: %w", e.TargetURL, err)
	}
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		return nil, fmt.Errorf("user_id %q: %w", e.UserID, domain.ErrInvalidUserID)
	}
	return domain.NewURL(key, target, userID, e.Name), nil
}
