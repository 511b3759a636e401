package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a window or exception was not located
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidWindow indicates a record failed validation
	ErrInvalidWindow = errors.New("store: invalid window")
	// ErrStaleStatus indicates a compare-and-swap lost to a concurrent writer
	ErrStaleStatus = errors.New("store: status changed concurrently")
	// ErrProtectedDeletion indicates an attempt to delete a window in a protected status
	ErrProtectedDeletion = errors.New("store: protected deletion")
)

// ProtectedDeletionError reports which windows blocked a delete.
// Nothing is deleted when it is returned.
type ProtectedDeletionError struct {
	Requested  int
	BlockedIDs []int64
}

func (e *ProtectedDeletionError) Error() string {
	return fmt.Sprintf("maintenance windows that are approved, rejected, aborted, or completed cannot be deleted: %d of %d blocked (ids %v)",
		len(e.BlockedIDs), e.Requested, e.BlockedIDs)
}

// Blocked returns the number of blocking records
func (e *ProtectedDeletionError) Blocked() int {
	return len(e.BlockedIDs)
}

func (e *ProtectedDeletionError) Unwrap() error {
	return ErrProtectedDeletion
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
}
