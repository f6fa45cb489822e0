// Package domain contains the core business entities of the contacts ledger:
// contacts, their append-only operations, and the rules that keep a contact's
// balance equal to the running sum of its operations. It is independent of
// any specific infrastructure or delivery mechanism.
package domain
