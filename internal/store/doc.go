// Package store defines the persistence contract of the contacts ledger.
//
// LedgerStore abstracts the backend (PostgreSQL, SQLite, MongoDB or memory)
// from the ledger service. Its central primitive, ApplyOperation, runs a
// caller-supplied ApplyFunc against the contact as read inside a transaction
// that serializes writers on the same contact, then persists the returned
// operation and the contact's new balance atomically.
package store
