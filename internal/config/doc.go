// Package config handles configuration loading, parsing, and validation
// from defaults, an optional YAML file, and LEDGER_-prefixed environment
// variables. It provides type-safe access to the settings needed by the
// server, the selected store backend, the ledger service and CSV export.
package config
