// Package event provides typed, single-goroutine publish/subscribe.
//
// A Bus replaces the add/remove listener pairs a model would otherwise carry
// per event kind. Every component publishes one event type describing what
// changed, and subscribers switch on its kind:
//
//	unsubscribe := proxy.Subscribe(func(e bean.Event) {
//		if e.Kind == bean.ModificationStateChanged {
//			redraw()
//		}
//	})
//	defer unsubscribe()
//
// # Concurrency
//
// A Bus is not safe for concurrent use. It is owned by the dispatch goroutine
// of the model it belongs to; workers hand results to that goroutine through
// dispatch.Dispatcher before anything is published.
package event
