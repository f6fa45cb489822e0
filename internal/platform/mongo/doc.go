// Package mongo implements store.LedgerStore on MongoDB with the official v2
// driver.
//
// Contacts and operations live in two collections. ApplyOperation runs inside
// a multi-document transaction (snapshot read concern, majority write
// concern), so the server must be a replica set or a sharded cluster.
// Write conflicts between concurrent applies abort one transaction; the
// driver retries it and, once retries are exhausted, the store reports
// store.ErrConflict. Timestamps are stored as BSON datetimes and therefore
// truncated to milliseconds; amounts and balances are Decimal128.
package mongo
