package id

import "github.com/google/uuid"

// New returns a random invocation identifier.
func New() string {
	return uuid.NewString()
}
