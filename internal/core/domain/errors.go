package domain

import "errors"

var (
	// ErrInvalidDocument rejects empty or non-PDF input before any task exists.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrDuplicateTask means a task id collided on insert. Task ids are
	// random UUIDs, so hitting this indicates an internal invariant violation.
	ErrDuplicateTask = errors.New("task already exists")

	// ErrTaskNotFound means the task id is unknown to the registry.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotReady means the task exists but its output is not available yet.
	// Distinct from ErrTaskNotFound so callers can answer 400 vs 404.
	ErrNotReady = errors.New("conversion not completed")
)

// ConversionError is an engine-reported failure. It is terminal for the task
// and its message ends up in the task record, never in a caller's face.
type ConversionError struct {
	Message string
}

func (e *ConversionError) Error() string {
	return "conversion failed: " + e.Message
}
