// Package postgres implements store.LedgerStore on PostgreSQL through the pgx
// database/sql driver.
//
// ApplyOperation locks the contact row with SELECT ... FOR UPDATE inside
// store.RunInTransaction, so concurrent applies on the same contact queue
// behind each other while different contacts proceed in parallel. The schema
// is managed by embedded goose migrations (see Migrate) and backs the
// invariants with CHECK constraints, a unique (contact_id, sequence) key and
// a trigger that rejects UPDATE and DELETE on operations.
package postgres
