// Package state provides the persisted sync record and its file-backed store.
//
// The record is a single JSON document. Writes go through a temporary file and
// a rename so readers never observe a partial document. Two advisory locks live
// next to it:
//   - <state>.lock serializes read-modify-write updates (set commands, daemon commits)
//   - <state>.daemon.lock is held by a running daemon so a second one fails fast
package state
