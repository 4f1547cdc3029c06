// Package beets wraps the beets CLI. The Client builds and executes
// invocations (optionally through docker exec) with wall-clock timeouts; the
// parser in output.go recovers structured candidate, field-change, and track
// data from the tool's terminal output.
//
// Beets was never designed to be machine-read, so the parser is built to be
// tolerant: unrecognized lines are skipped and classification is explicit
// (NoMatches, Matches, InLibrary, ParseError) so callers can tell "no data"
// from "malformed output".
package beets
