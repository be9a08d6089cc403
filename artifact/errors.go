package artifact

import "fmt"

var (
	// ErrNotFound is returned when an artifact with the given name does not
	// exist in the underlying store.
	ErrNotFound = fmt.Errorf("artifact not found")

	// ErrInvalidName is returned for empty names or names escaping the store.
	ErrInvalidName = fmt.Errorf("invalid artifact name")
)
