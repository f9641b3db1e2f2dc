// Package storage defines the persistence interfaces for the engine.
//
// It provides a high-level abstraction for storing sessions,
// conversation history, long-term memory, quest progress, and
// companion personality state. Implementations (SQLite and bbolt) live
// in subpackages.
//
// # Error Types
//
//   - ErrNotFound: Indicates a requested record is missing.
package storage
