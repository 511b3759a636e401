package lifecycle

import (
	"errors"
	"fmt"

	"go_maintenance/internal/model"
)

// ErrInvalidTransition is returned when an operation violates the window state machine.
// It is an expected outcome and is never retried.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError carries the details of a rejected transition
type TransitionError struct {
	WindowID int64
	Op       string
	Status   model.WindowStatus
	Reason   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s maintenance window %d (status %s): %s", e.Op, e.WindowID, e.Status, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func invalidTransition(w *model.MaintenanceWindow, op, reason string) error {
	return &TransitionError{WindowID: w.ID, Op: op, Status: w.Status, Reason: reason}
}
