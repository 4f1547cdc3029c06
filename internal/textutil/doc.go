// Package textutil provides text processing utilities shared across the
// beets client and the chat presentation layer.
//
// The primary use cases are:
//   - Stripping ANSI escape sequences from beets terminal output before parsing
//   - Splitting long tool output into chat-safe chunks
//   - Truncating raw output tails for error excerpts
package textutil
