package valueobject

import "errors"

var (
	ErrInvalidURL = errors.New("invalid url format")
	ErrInvalidKey = errors.New("invalid key format")
)
