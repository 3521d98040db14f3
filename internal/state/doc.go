// Package state shares the table model's status with readers on other
// goroutines.
//
// # Overview
//
// The table model runs on the dispatch goroutine and publishes a Status after
// every change it makes: row count, whether the count is authoritative, how
// many pages are loading, and how many beans are modified, transient,
// executing or selected. Backend failures are recorded separately so the
// status bar can show "offline" after repeated errors while still rendering
// the last good status.
//
// # Concurrency Model
//
// The Store uses a readers-writer lock:
//
//   - Update(), Succeeded(): write lock
//   - Snapshot(): read lock
//
// The auto-refresh poller reads snapshots from its own goroutine to decide
// whether a reload is safe (no pending edits, nothing executing).
//
// # Update Semantics
//
//	// Status change: replace the status, keep error bookkeeping
//	store.Update(&status, nil)
//
//	// Failure: keep the old status, record the error
//	store.Update(nil, err)
//	→ snapshot.LastError = err
//	→ snapshot.ConsecutiveFailures++
//
//	// Backend answered: reset error bookkeeping
//	store.Succeeded()
//
// # Defensive Copying
//
// Sort and filter descriptions are cloned on the way in and on the way out so
// neither side can mutate the other's slices.
//
// The Store is safe to construct with zero value.
package state
