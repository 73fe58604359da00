package problemdetails

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	TypeInvalidRequest  = "invalid-request"
	TypeInvalidURL      = "invalid-url"
	TypeInvalidKey      = "invalid-key"
	TypeNotFound        = "not-found"
	TypeGone            = "gone"
	TypeUnavailable     = "unavailable"
	TypeInternalError   = "internal-error"
	TypeValidationError = "validation-error"
)

const typeBase = "https://shortener.dev/problems/"

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ProblemDetail is an RFC 7807 response body.
type ProblemDetail struct {
	Type   string       `json:"type"`
	Title  string       `json:"title"`
	Status int          `json:"status"`
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

func New(status int, problemType, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("%s%s", typeBase, problemType),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

func NewValidation(errors []FieldError) *ProblemDetail {
	return &ProblemDetail{
		Type:   typeBase + TypeValidationError,
		Title:  "Validation Failed",
		Status: http.StatusBadRequest,
		Detail: "Request validation failed",
		Errors: errors,
	}
}

// Write sends p as application/problem+json.
func Write(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
