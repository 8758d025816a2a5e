package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown item ids.
	ErrNotFound = errors.New("not found")

	// ErrEmpty means the clipboard holds nothing of the requested type.
	ErrEmpty = errors.New("clipboard empty")

	// ErrPrerequisiteMissing means the clipboard tool or display session is
	// unavailable.
	ErrPrerequisiteMissing = errors.New("clipboard prerequisite missing")

	// ErrToolMissing means the clipboard write tool is not installed.
	ErrToolMissing = errors.New("clipboard tool missing")
)

// NotFoundError names the missing item.
func NotFoundError(id int64) error {
	return fmt.Errorf("%w: item %d", ErrNotFound, id)
}

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
