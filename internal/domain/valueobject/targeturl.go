package valueobject

import (
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const MaxTargetURLLength = 2048

// TargetURL is the destination a key redirects to.
// It is immutable and validated on creation.
type TargetURL struct {
	value  string
	parsed *url.URL
}

// NewTargetURL creates a new TargetURL from a string, validating the format.
func NewTargetURL(rawURL string) (TargetURL, error) {
	if err := validation.Validate(rawURL,
		validation.Required.Error("URL is required"),
		validation.Length(1, MaxTargetURLLength),
		is.URL.Error("invalid URL format"),
	); err != nil {
		return TargetURL{}, ErrInvalidURL
	}

	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return TargetURL{}, ErrInvalidURL
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return TargetURL{}, ErrInvalidURL
	}

	if parsed.Host == "" {
		return TargetURL{}, ErrInvalidURL
	}

	return TargetURL{
		value:  rawURL,
		parsed: parsed,
	}, nil
}

func (t TargetURL) String() string {
	return t.value
}

// Host returns the host portion of the URL.
func (t TargetURL) Host() string {
	if t.parsed == nil {
		return ""
	}
	return t.parsed.Host
}

func (t TargetURL) IsEmpty() bool {
	return t.value == ""
}
