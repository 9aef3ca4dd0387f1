package local

import "errors"

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidKey is returned for path elements that would escape the store
	ErrInvalidKey = errors.New("invalid key")
)
