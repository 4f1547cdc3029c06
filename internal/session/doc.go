// Package session owns per-target import state: the step machine, the
// pending-input flag that routes free-text operator messages, and the SQLite
// store that makes sessions survive restarts.
//
// The store only serializes; all transition decisions happen here. Every
// applied transition bumps the revision counter so a resume after a crash is
// idempotent with respect to the last completed transition.
package session
