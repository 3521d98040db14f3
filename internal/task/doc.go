// Package task implements execution tasks: the cancelable handle attached to
// every remote operation a table model starts.
//
// A Task wraps a context. Cancelling the task cancels the context, which is
// what the service call observes; the task additionally carries a description
// and progress for the UI, fires OnCancel listeners exactly once, and can route
// questions from the service back to the user ("delete 1200 rows?").
//
// Tasks travel to services inside the request context:
//
//	ctx := task.WithTask(t.Context(), t)
//	rows, err := reader.Read(ctx, query)
//
//	// inside a service implementation
//	if t := task.FromContext(ctx); t != nil {
//		t.SetProgress(0.5)
//	}
//
// All methods are safe for concurrent use.
package task
