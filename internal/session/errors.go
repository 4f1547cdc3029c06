package session

import "errors"

var (
	// ErrInvalidTransition is returned when a step change or input prompt is
	// not legal from the current step.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrSessionConflict is returned when a new session is requested for a
	// target that already has a non-terminal one.
	ErrSessionConflict = errors.New("session already active for target")

	// ErrNotFound is returned when no session exists for a target.
	ErrNotFound = errors.New("session not found")
)
