// Package sqlite implements store.LedgerStore on an embedded SQLite database
// through the pure-Go modernc.org/sqlite driver.
//
// Connections are opened with _txlock=immediate, so every transaction takes
// the database write lock at BEGIN. Concurrent applies therefore run one at a
// time; waiting writers block for up to the busy timeout and surface
// store.ErrConflict if it expires. Timestamps are stored as Unix nanoseconds
// and decimals as text.
package sqlite
