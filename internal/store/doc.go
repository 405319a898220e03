// Package store provides durable storage for the local gallery using SQLite.
//
// # Architecture
//
// Two narrow interfaces are composed into Store:
//
//   - ProfileStore: the singleton Profile record (display name)
//   - ImageStore: SavedImage records (accepted image bytes plus prompt)
//
// SQLiteStore implements Store on modernc.org/sqlite. MockStore is an
// in-memory implementation with error injection for tests.
//
// # Data Models
//
//   - Profile: one row at most, pinned by a CHECK constraint on the table
//   - SavedImage: immutable bytes and prompt; only ReplaceSavedImageBytes
//     changes a row in place
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The pool is limited to a single connection. The gallery has one local
// writer, and a single connection keeps transactions free of SQLITE_BUSY.
//
// Timestamps are stored as fixed-width UTC text so that ORDER BY on the
// column matches chronological order.
//
// # Error Handling
//
//   - ErrNotFound: requested record does not exist (failure.NotFound)
//   - ErrEmptyImage: write rejected before touching the database (failure.InvalidInput)
//   - ErrDuplicateProfile: CreateProfile while a profile exists
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests of callers and NewSQLiteStore with a path
// under t.TempDir() for integration tests.
package store
