package domain

import (
	"time"

	"github.com/google/uuid"
)

// URL is a shortened link and its click aggregate.
// clicksCount only moves through the batched click path.
type URL struct {
	id          int64
	key         Key
	targetURL   TargetURL
	userID      uuid.UUID
	name        string
	isActive    bool
	clicksCount int64
	createdAt   time.Time
	lastUsed    time.Time
}

// NewURL creates an active URL with zero clicks.
func NewURL(key Key, targetURL TargetURL, userID uuid.UUID, name string) *URL {
	now := time.Now().UTC()
	return &URL{
		key:       key,
		targetURL: targetURL,
		userID:    userID,
		name:      name,
		isActive:  true,
		createdAt: now,
		lastUsed:  now,
	}
}

// ReconstructURL rebuilds a URL from persisted state.
func ReconstructURL(
	id int64,
	key Key,
	targetURL TargetURL,
	userID uuid.UUID,
	name string,
	isActive bool,
	clicksCount int64,
	createdAt time.Time,
	lastUsed time.Time,
) *URL {
	return &URL{
		id:          id,
		key:         key,
		targetURL:   targetURL,
		userID:      userID,
		name:        name,
		isActive:    isActive,
		clicksCount: clicksCount,
		createdAt:   createdAt,
		lastUsed:    lastUsed,
	}
}

func (u *URL) ID() int64            { return u.id }
func (u *URL) Key() Key             { return u.key }
func (u *URL) TargetURL() TargetURL { return u.targetURL }
func (u *URL) UserID() uuid.UUID    { return u.userID }
func (u *URL) Name() string         { return u.name }
func (u *URL) IsActive() bool       { return u.isActive }
func (u *URL) ClicksCount() int64   { return u.clicksCount }
func (u *URL) CreatedAt() time.Time { return u.createdAt }
func (u *URL) LastUsed() time.Time  { return u.lastUsed }

// WithKey returns a copy of u bound to key. Keys are allocated after the
// entity is built.
func (u *URL) WithKey(key Key) *URL {
	cp := *u
	cp.key = key
	return &cp
}

// CanRedirect reports whether the URL may be followed.
func (u *URL) CanRedirect() error {
	if !u.isActive {
		return ErrURLInactive
	}
	return nil
}

// Update applies the mutable attributes. Nil leaves a field unchanged.
func (u *URL) Update(name *string, isActive *bool) {
	if name != nil {
		u.name = *name
	}
	if isActive != nil {
		u.isActive = *isActive
	}
}

// SetID is called by the repository after persistence.
func (u *URL) SetID(id int64) {
	u.id = id
}
