package domain

import (
	"errors"

	"go-shortener-pipeline/internal/domain/valueobject"
)

var (
	ErrURLNotFound    = errors.New("url not found")
	ErrURLInactive    = errors.New("url is inactive")
	ErrKeyExhausted   = errors.New("failed to allocate unique key")
	ErrInvalidUserID  = errors.New("invalid user id")
	ErrInvalidEventID = errors.New("invalid event id")

	ErrInvalidURL = valueobject.ErrInvalidURL
	ErrInvalidKey = valueobject.ErrInvalidKey
)
