package valueobject

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultKeyLength = 5
	MinKeyLength     = 4
	MaxKeyLength     = 32
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var keyRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Key is the short, URL-safe identifier a target URL is reachable under.
type Key struct {
	value string
}

// NewKey validates an existing key.
func NewKey(key string) (Key, error) {
	if err := validation.Validate(key,
		validation.Required.Error("key is required"),
		validation.Length(MinKeyLength, MaxKeyLength).Error("key must be 4-32 characters"),
		validation.Match(keyRegex).Error("key must be alphanumeric"),
	); err != nil {
		return Key{}, ErrInvalidKey
	}
	return Key{value: key}, nil
}

// GenerateKey returns a random alphanumeric key of the given length.
func GenerateKey(length int) (Key, error) {
	if length <= 0 {
		length = DefaultKeyLength
	}

	id, err := gonanoid.Generate(keyAlphabet, length)
	if err != nil {
		return Key{}, err
	}
	return Key{value: id}, nil
}

func (k Key) String() string {
	return k.value
}

func (k Key) IsEmpty() bool {
	return k.value == ""
}
