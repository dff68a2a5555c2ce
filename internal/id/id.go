// Package id generates and checks run identifiers.
package id

import (
	"github.com/google/uuid"
)

// New returns a UUIDv7 string, so identifiers sort by creation time. It falls
// back to a random UUIDv4 if the v7 clock sequence cannot be read.
func New() string {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v.String()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
