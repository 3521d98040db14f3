// Package service defines the remote contracts a table model consumes and the
// JSON/HTTP transport that carries them.
//
// # Contracts
//
// Reader, Creator, Updater, Refresher and Deleter are opaque collaborators.
// Their methods block and take a context; the table model runs them on worker
// goroutines through Invoke and gets the outcome back as exactly one of
// Finished, Failed or TimedOut on a ResultCallback:
//
//	service.Invoke(t, 10*time.Second, func(ctx context.Context) ([]service.Bean, error) {
//		return reader.Read(ctx, query)
//	}, callback)
//
// The execution task travels inside the context (task.FromContext), so an
// implementation can report progress or ask the user a question.
//
// # Data
//
//   - Bean: immutable snapshot (ID, Version, Values)
//   - Key: ID plus Version, the optimistic concurrency token
//   - BeanModification / Change: pending edits sent to Update
//   - BeanData: payload for beans that only exist client side
//   - Filter / SortKey: evaluated remotely; the client never sorts or filters
//
// # Errors
//
// Sentinels classify failures so they can be turned into bean messages:
//
//   - ErrTimeout: synthesized when a deadline expires (IsTimeout)
//   - ErrCanceled: user cancellation, reported as information, not failure
//   - ErrStale / ErrNotFound: concurrency conflicts
//   - ErrConstraint: rejected values
//   - *BatchError: per-bean failures of a batch call, nothing applied
//
// # Transport
//
// Client implements every contract against the endpoints Handler serves:
//
//   - POST /api/read, /api/count
//   - POST /api/create, /api/update, /api/refresh, /api/delete
//
// Requests and responses are JSON. Error responses carry a "kind" so the
// sentinels survive the round trip (409 stale, 404 not found, 422 constraint,
// 504 timeout). Integral JSON numbers are decoded as int64.
package service
