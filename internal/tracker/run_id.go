package tracker

import "github.com/google/uuid"

// NewRunID returns an identifier for one process lifetime.
func NewRunID() string {
	return uuid.NewString()
}
