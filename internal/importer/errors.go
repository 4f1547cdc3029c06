package importer

import "errors"

var (
	// ErrBusy is returned when an invocation for the target is already in
	// flight. The caller should tell the operator to wait or cancel.
	ErrBusy = errors.New("target busy")

	// ErrGuardedPath is returned when a destructive operation points outside
	// the import root.
	ErrGuardedPath = errors.New("path outside import root")
)
