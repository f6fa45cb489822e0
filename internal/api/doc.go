// Package api exposes the contacts ledger over HTTP. Handlers decode and
// validate JSON requests, call ledger.Service, and translate results and
// errors into JSON (or CSV, for exports). Every error body carries a stable
// kind alongside a message that is safe to show to clients.
package api
