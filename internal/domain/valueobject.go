package domain

import (
	"go-shortener-pipeline/internal/domain/valueobject"
)

// Re-export value object types for convenience.
type (
	Key       = valueobject.Key
	TargetURL = valueobject.TargetURL
)

var (
	NewKey       = valueobject.NewKey
	GenerateKey  = valueobject.GenerateKey
	NewTargetURL = valueobject.NewTargetURL
)

const DefaultKeyLength = valueobject.DefaultKeyLength
