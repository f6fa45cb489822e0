// Package ledger implements the Ledger Service: the business operations on
// contacts and their credit/debit history.
//
// The service validates requests, drives store.OperationStore.ApplyOperation
// with a bounded retry on transaction conflicts, publishes domain events once
// a change is committed, and renders the CSV export. It never caches
// balances; every read goes to the store.
package ledger
