// Package dispatch models the single logical UI thread.
//
// All table, tracker and bean state is owned by one goroutine. Background work
// (reads, counts, saves, debounce timers) runs elsewhere and hands its results
// back through Dispatcher.InvokeLater; nothing else is allowed to touch model
// state. There is no fine-grained locking in the model packages because of
// this rule.
//
// # Queue
//
// Queue is the only Dispatcher implementation. It collects continuations from
// any goroutine and runs them, in order, on the goroutine that called Bind.
// It can be driven three ways:
//
//   - Run(ctx) blocks and drains until the context ends (headless use)
//   - the TUI drains it from the bubbletea Update loop via Ready()
//   - tests call Bind, then Wait/RunPending to step through callbacks
//
// # Thread checks
//
// Go has no thread identity, so the owner is recorded as the goroutine id of
// the Bind caller. CheckThread returns ErrNotDispatchThread for every other
// goroutine; model entry points that must not run off-thread use it to fail
// fast.
package dispatch
