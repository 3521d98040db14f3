package tracker

import (
	"sort"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/event"
	"github.com/five82/captable/internal/task"
)

// Validator returns the validation messages for one bean. A nil or empty
// result means the bean is valid.
type Validator func(*bean.Proxy) []bean.Message

// Result is the outcome of Validate.
type Result struct {
	Valid   bool
	Bean    *bean.Proxy
	Message bean.Message
}

// Event is published whenever one of the aggregate counts changes or the
// cached validation result becomes stale.
type Event struct {
	Modified  int
	Transient int
	Executing int
	// Invalidated is set when the cached validation result must be
	// recomputed.
	Invalidated bool
}

type entry struct {
	seq         uint64
	unsubscribe func()
	clientID    string
}

// Tracker is owned by the dispatch goroutine of its model.
type Tracker struct {
	validator Validator
	seq       uint64

	beans     map[*bean.Proxy]*entry
	modified  map[*bean.Proxy]uint64
	transient map[string]*bean.Proxy
	executing map[*bean.Proxy]uint64
	dirty     map[*bean.Proxy]uint64
	results   map[*bean.Proxy]Result

	bus event.Bus[Event]
}

// New creates an empty tracker. validator may be nil.
func New(validator Validator) *Tracker {
	return &Tracker{
		validator: validator,
		beans:     make(map[*bean.Proxy]*entry),
		modified:  make(map[*bean.Proxy]uint64),
		transient: make(map[string]*bean.Proxy),
		executing: make(map[*bean.Proxy]uint64),
		dirty:     make(map[*bean.Proxy]uint64),
		results:   make(map[*bean.Proxy]Result),
	}
}

// Subscribe registers fn for tracker events.
func (t *Tracker) Subscribe(fn func(Event)) func() {
	return t.bus.Subscribe(fn)
}

// Register starts tracking b. Registering a bean twice does nothing.
func (t *Tracker) Register(b *bean.Proxy) {
	if b == nil {
		return
	}
	if _, ok := t.beans[b]; ok {
		return
	}
	before := t.counts()
	t.seq++
	e := &entry{seq: t.seq}
	e.unsubscribe = b.Subscribe(t.onBeanEvent)
	t.beans[b] = e
	t.classify(b)
	t.publishIfChanged(before, t.invalidate(b))
}

// Unregister stops tracking b. With suppressValidation the validation cache
// is left alone; bulk removals invalidate it once at the end instead.
func (t *Tracker) Unregister(b *bean.Proxy, suppressValidation bool) {
	e, ok := t.beans[b]
	if !ok {
		return
	}
	before := t.counts()
	t.remove(b, e)
	if !suppressValidation {
		t.publishIfChanged(before, true)
		return
	}
	t.publishIfChanged(before, false)
}

// ClearAll unregisters every bean.
func (t *Tracker) ClearAll() {
	if len(t.beans) == 0 {
		return
	}
	before := t.counts()
	for b, e := range t.beans {
		t.remove(b, e)
	}
	clear(t.dirty)
	clear(t.results)
	t.publishIfChanged(before, true)
}

// Dispose unregisters everything and drops subscribers.
func (t *Tracker) Dispose() {
	t.ClearAll()
	t.bus.Clear()
}

func (t *Tracker) remove(b *bean.Proxy, e *entry) {
	e.unsubscribe()
	delete(t.beans, b)
	delete(t.modified, b)
	delete(t.executing, b)
	delete(t.dirty, b)
	delete(t.results, b)
	if e.clientID != "" {
		delete(t.transient, e.clientID)
	}
}

// Len returns the number of registered beans.
func (t *Tracker) Len() int { return len(t.beans) }

// IsRegistered reports whether b is tracked.
func (t *Tracker) IsRegistered(b *bean.Proxy) bool {
	_, ok := t.beans[b]
	return ok
}

// Counts returns the current aggregate counts.
func (t *Tracker) Counts() Event { return t.counts() }

// HasModifications reports whether anything needs saving.
func (t *Tracker) HasModifications() bool {
	return len(t.modified) > 0 || len(t.transient) > 0
}

// HasExecutions reports whether any tracked bean has an operation in flight.
func (t *Tracker) HasExecutions() bool {
	return len(t.executing) > 0
}

// BeansToUpdate returns persisted beans with pending edits in registration
// order.
func (t *Tracker) BeansToUpdate() []*bean.Proxy {
	return ordered(t.modified)
}

// BeansToCreate returns transient beans in registration order.
func (t *Tracker) BeansToCreate() []*bean.Proxy {
	seqs := make(map[*bean.Proxy]uint64, len(t.transient))
	for _, b := range t.transient {
		seqs[b] = t.beans[b].seq
	}
	return ordered(seqs)
}

// ModifiedBeans returns every bean that BeansToCreate or BeansToUpdate
// would return.
func (t *Tracker) ModifiedBeans() []*bean.Proxy {
	return append(t.BeansToCreate(), t.BeansToUpdate()...)
}

// Executing returns the beans with an operation in flight.
func (t *Tracker) Executing() []*bean.Proxy {
	return ordered(t.executing)
}

// Transient returns the transient bean with the given client id.
func (t *Tracker) Transient(clientID string) (*bean.Proxy, bool) {
	b, ok := t.transient[clientID]
	return b, ok
}

// Validate revalidates the beans changed since the last call and returns the
// first invalid result it finds, or a valid result when every tracked bean
// passes. Beans after the first invalid one stay dirty for the next call.
func (t *Tracker) Validate() Result {
	if t.validator == nil {
		clear(t.dirty)
		return Result{Valid: true}
	}
	for _, b := range ordered(t.dirty) {
		delete(t.dirty, b)
		res := t.check(b)
		t.results[b] = res
		if !res.Valid {
			return res
		}
	}
	var worst *Result
	for _, b := range t.all() {
		res, ok := t.results[b]
		if !ok || res.Valid {
			continue
		}
		if worst == nil || res.Message.Severity > worst.Message.Severity {
			worst = &res
		}
	}
	if worst != nil {
		return *worst
	}
	return Result{Valid: true}
}

// Result returns the cached validation result for b.
func (t *Tracker) Result(b *bean.Proxy) (Result, bool) {
	res, ok := t.results[b]
	return res, ok
}

func (t *Tracker) check(b *bean.Proxy) Result {
	if b.IsDummy() {
		return Result{Valid: true, Bean: b}
	}
	msg, ok := bean.Worst(t.validator(b))
	if !ok || msg.Severity < bean.Error {
		return Result{Valid: true, Bean: b, Message: msg}
	}
	return Result{Valid: false, Bean: b, Message: msg}
}

// CancelExecutions detaches every in-flight task right away and cancels the
// tasks on a separate goroutine. It returns the number of tasks detached.
func (t *Tracker) CancelExecutions() int {
	beans := t.Executing()
	if len(beans) == 0 {
		return 0
	}
	tasks := make([]*task.Task, 0, len(beans))
	for _, b := range beans {
		if tk := b.DetachExecution(); tk != nil {
			tasks = append(tasks, tk)
		}
	}
	go func() {
		for _, tk := range tasks {
			tk.Cancel()
		}
	}()
	return len(tasks)
}

func (t *Tracker) onBeanEvent(e bean.Event) {
	b := e.Bean
	if _, ok := t.beans[b]; !ok {
		return
	}
	before := t.counts()
	switch e.Kind {
	case bean.PropertyChanged:
		t.publishIfChanged(before, t.invalidate(b))
	case bean.ModificationStateChanged, bean.TransientStateChanged, bean.SnapshotReplaced:
		t.classify(b)
		t.publishIfChanged(before, t.invalidate(b))
	case bean.ProcessStateChanged:
		t.classify(b)
		t.publishIfChanged(before, false)
	}
}

// classify moves b into the subsets matching its current state.
func (t *Tracker) classify(b *bean.Proxy) {
	e := t.beans[b]
	if b.IsTransient() {
		if e.clientID == "" {
			e.clientID = b.ID()
			t.transient[e.clientID] = b
		}
		delete(t.modified, b)
	} else {
		if e.clientID != "" {
			delete(t.transient, e.clientID)
			e.clientID = ""
		}
		if b.HasModifications() {
			t.modified[b] = e.seq
		} else {
			delete(t.modified, b)
		}
	}
	if b.HasExecution() {
		t.executing[b] = e.seq
	} else {
		delete(t.executing, b)
	}
}

// invalidate marks b validation-dirty and reports whether the cache was
// clean before.
func (t *Tracker) invalidate(b *bean.Proxy) bool {
	wasClean := len(t.dirty) == 0
	t.dirty[b] = t.beans[b].seq
	delete(t.results, b)
	return wasClean
}

func (t *Tracker) counts() Event {
	return Event{Modified: len(t.modified), Transient: len(t.transient), Executing: len(t.executing)}
}

func (t *Tracker) publishIfChanged(before Event, invalidated bool) {
	after := t.counts()
	if after == before && !invalidated {
		return
	}
	after.Invalidated = invalidated
	t.bus.Publish(after)
}

func (t *Tracker) all() []*bean.Proxy {
	seqs := make(map[*bean.Proxy]uint64, len(t.beans))
	for b, e := range t.beans {
		seqs[b] = e.seq
	}
	return ordered(seqs)
}

func ordered(set map[*bean.Proxy]uint64) []*bean.Proxy {
	out := make([]*bean.Proxy, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return set[out[i]] < set[out[j]] })
	return out
}
