package beets

import "errors"

var (
	// ErrInvocationTimeout marks an invocation killed after exceeding its
	// wall-clock budget. The session that triggered it must stay unchanged.
	ErrInvocationTimeout = errors.New("beet invocation timed out")
	// ErrInvocationFailure marks a nonzero exit without recognizable output.
	ErrInvocationFailure = errors.New("beet invocation failed")
	// ErrParse marks output with no recognizable markers.
	ErrParse = errors.New("unrecognized beet output")
)
