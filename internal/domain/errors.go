package domain

import "errors"

var (
	// ErrNotFound is returned when a user, task, habit, definition or notification does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller may not read a resource that exists.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument is returned for malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConstraintViolation is returned by stores when a uniqueness constraint rejects a write.
	// Callers on the unlock and notification paths treat it as a no-op.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrProgressConflict is returned by UpdateProgress when the stored progress
	// no longer matches the expected previous value.
	ErrProgressConflict = errors.New("progress changed concurrently")
	// ErrTransport wraps delivery failures of outbound channels.
	ErrTransport = errors.New("transport failure")
)
