package event

// Bus fans events of type E out to subscribers in subscription order.
// The zero value is ready to use.
type Bus[E any] struct {
	subs   []*subscription[E]
	nextID uint64
}

type subscription[E any] struct {
	id     uint64
	fn     func(E)
	active bool
}

// Subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is harmless.
func (b *Bus[E]) Subscribe(fn func(E)) func() {
	if fn == nil {
		return func() {}
	}
	b.nextID++
	sub := &subscription[E]{id: b.nextID, fn: fn, active: true}
	b.subs = append(b.subs, sub)
	return func() { b.remove(sub) }
}

// Publish delivers e to every active subscriber. Subscribers added while
// publishing receive the next event, not this one.
func (b *Bus[E]) Publish(e E) {
	if len(b.subs) == 0 {
		return
	}
	snapshot := make([]*subscription[E], len(b.subs))
	copy(snapshot, b.subs)
	for _, sub := range snapshot {
		if sub.active {
			sub.fn(e)
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus[E]) Len() int {
	return len(b.subs)
}

// Clear drops every subscriber.
func (b *Bus[E]) Clear() {
	for _, sub := range b.subs {
		sub.active = false
	}
	b.subs = nil
}

func (b *Bus[E]) remove(target *subscription[E]) {
	if !target.active {
		return
	}
	target.active = false
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}
