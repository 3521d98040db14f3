// Package sqlstore implements every service contract on top of a single
// SQLite table.
//
// The store backs the demo binary and the HTTP server mode, and it is the
// reference the table model is tested against end to end. Columns are
// configured up front; filters and sort keys naming anything else are
// rejected as constraint violations. Every row carries a server generated
// ULID and a version that Update and Delete check for optimistic
// concurrency. Deleting more than ConfirmDeleteAbove rows asks the calling
// execution task for confirmation first.
package sqlstore
