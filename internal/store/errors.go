package store

import "errors"

// Error Handling Guidelines:
// - Stores: return these sentinels, wrapped with fmt.Errorf("context: %w", err)
// - Models: translate sentinels into apperrors.* for callers

// Predefined errors for the store layer.
var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates an insert collided with an existing id.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrVersionConflict indicates a compare-and-swap write lost to a
	// concurrent update. The caller must re-read before retrying.
	ErrVersionConflict = errors.New("version conflict")
)
