// Package execution assigns execution tasks to beans and merges the results
// of remote calls back into them.
//
// A Helper partitions the beans of one user action into batches according
// to its Policy, marks each bean as executing, and builds the result
// callbacks handed to service.Invoke. Callbacks never touch bean state on
// the calling goroutine: every continuation is marshaled through the
// model's dispatcher first.
package execution
