// Package table implements the paged, lazily loaded bean table model.
//
// A Model never blocks the goroutine that renders it. Asking for a row whose
// page is absent starts a page loader and returns a dummy placeholder; the
// loader's result is marshaled back through the dispatcher and the model
// publishes DataChanged so the view asks again. Background loaders rotate
// through two slots by page parity, so scrolling past a page cancels its
// stale load; LoadPage requests a page explicitly and preempts the
// background loader for it.
//
// # Row count
//
// Until the reader's count arrives the model reports a speculative size:
// the rows seen so far plus one placeholder row while more may follow. The
// count is only requested on the first row access. Once it arrives the size
// is EffectiveSize(speculative, count).
//
// # Editing
//
// Edits go through bean proxies and are tracked by a tracker.Tracker. Save
// submits updates and creations as one batch each; the beans leave the
// tracker while the call is in flight and rejoin it with the result.
// Delete removes confirmed beans by compacting the page map in place:
// survivors are renumbered without gaps and unloaded rows keep their
// relative position, so nothing is read again until it is shown.
//
// # Failures
//
// Read failures turn the page's placeholder into a dummy carrying an error
// message. User cancellation leaves an informational message instead.
// Contract violations, such as calls from the wrong goroutine or saving
// without an updater, are returned as errors before anything is sent.
package table
