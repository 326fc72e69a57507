package models

import "github.com/google/uuid"

// NewID returns a fresh opaque identifier for any stored row.
func NewID() string {
	return uuid.NewString()
}
