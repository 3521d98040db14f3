// Package bean holds the client-side proxy around a remote bean snapshot.
//
// A Proxy tracks pending property edits against the snapshot it wraps, the
// single execution slot used while a save, create or delete is in flight,
// messages produced by validation or failed operations, and whether the
// bean is still transient. Every change is announced on the proxy's event
// bus so the tracker and the table can react without polling.
package bean
