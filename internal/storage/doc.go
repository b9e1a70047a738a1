// Package storage persists tasks and the lifecycle audit trail.
//
// Backends:
//   - file: JSON snapshot plus an append-only JSON Lines journal, compacted
//     periodically, on an afero filesystem
//   - sqlite: a single database file through the pure Go modernc driver
//   - memory: process lifetime only
package storage
