// Package ui provides the terminal front end for captable.
//
// The UI is a bubbletea program. Its Update loop is the UI thread of the
// table model: background loads and executions hand their results back
// through a dispatch.Queue, and the program drains that queue on a
// re-armed command so every mutation of the table happens inside Update.
//
// # Layout
//
//   - Header: table name, row count (or a lower bound while counting), sort and filters
//   - Grid: the visible window of rows with a marker column and per-column widths
//   - Status: cursor, selection, pending edits, running tasks and the last backend error
//   - Command bar: short key help
//
// Questions raised by background executions (for example a conflict on
// save) arrive through Questions and are shown as modal dialogs. The
// answer is delivered back on the UI thread.
//
// # Key Bindings
//
//   - Arrows, PgUp/PgDn, g/G: move the cursor
//   - space: toggle selection of the current row, V clears it
//   - s / S: cycle sort on the current column, S keeps the existing keys
//   - / and F: set a filter, clear all filters
//   - enter or e: edit the current cell, a: add a row
//   - w: save, d: delete, u: undo edits, r: refresh selected rows
//   - x: cancel running executions
//   - < / >: narrow or widen the current column
//   - T: cycle theme, ?: help, q: quit
package ui
