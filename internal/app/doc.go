// Package app is the composition root of captable.
//
// # Overview
//
// This package wires configuration, preferences, the backing service, the
// table model, the auto-refresh poller and the UI. Run must be called on the
// goroutine that later runs the Bubble Tea program: it binds the dispatch
// queue there, so the Update loop becomes the only goroutine touching table
// state.
//
// # Startup
//
//  1. LoadConfig reads ~/.config/captable/config.toml and applies flags
//  2. prefs.Load restores the theme and the table's widths and sort
//  3. openBackend opens the sqlite file (seeding it once) or an HTTP client
//  4. table.New builds the paged model over the service
//  5. StartPoller schedules reloads on the dispatch queue
//  6. ui.Run starts the TUI and blocks until the user quits
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> openBackend()     sqlstore.Store or service.Client
//	       ├─────> dispatch.Queue    bound to the calling goroutine
//	       ├─────> table.New()       reads pages through the service
//	       ├─────> StartPoller()     reload via queue.InvokeLater
//	       └─────> ui.Run()          drains the queue from Update
//
//	Poller goroutine:
//	┌─────────────────────────────────────────┐
//	│ wait interval (backoff on failures)     │
//	│  ├─> store.Snapshot().Pending()? skip   │
//	│  └─> queue.InvokeLater(model.Load)      │
//	└─────────────────────────────────────────┘
//
// # Polling Behavior
//
// The poller reloads the table every PollInterval (default 30 seconds).
// While the backend keeps failing the interval doubles per consecutive
// failure, capped at five minutes. Reloads never discard work: they are
// skipped while the table has unsaved edits, transient rows or running
// executions.
//
// # Serving
//
// With Options.Serve the sqlite table is exposed over HTTP on the configured
// api_bind instead of starting the TUI. Another captable instance configured
// with backend = "http" then edits the same table remotely.
//
// # Error Handling
//
// Fatal errors are returned from Run: an unreadable config, a database that
// cannot be opened or seeded, an unknown execution policy. Backend failures
// during use are not fatal; the table model turns them into row messages and
// the status bar shows the last error.
package app
