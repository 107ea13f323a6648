// Package stores keeps the generation history of bindforge in SQLite.
//
// Every generate run is recorded with its plan and symbol table paths, a
// BLAKE2b fingerprint of their contents, its status, the diagnostics it
// reported and, for successful runs, the resolved model as JSON. Diagnostics
// are also stored one row each so runs can be filtered and aggregated by kind.
// Migrations are embedded and applied with golang-migrate.
package stores
