// Package events provides the domain events the ledger publishes after a
// change has been committed, and an in-memory emitter that fans them out.
//
// The primary components are:
// - Event: a typed envelope with a JSON payload
// - EventHandler: interface for components that react to events
// - EventEmitter: interface for components that publish events
// - AuditLogHandler: writes every event to a structured audit log
package events
