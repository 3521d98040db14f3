package bean

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/five82/captable/internal/event"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/task"
)

var (
	// ErrIDMismatch is returned by Update when the snapshot belongs to
	// another bean.
	ErrIDMismatch = errors.New("bean: snapshot id does not match proxy id")
	// ErrExecutionBusy is returned when a second execution is started on a
	// bean that already has one in flight.
	ErrExecutionBusy = errors.New("bean: execution already in flight")
	// ErrNotTransient is returned by Persist on beans that already exist
	// remotely.
	ErrNotTransient = errors.New("bean: bean is not transient")
)

// ExecutionState is the lifecycle of the single execution slot of a bean.
type ExecutionState int

const (
	Idle ExecutionState = iota
	Running
	Canceling
)

func (s ExecutionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Canceling:
		return "canceling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind says what changed on a proxy.
type EventKind int

const (
	PropertyChanged EventKind = iota
	ModificationStateChanged
	ProcessStateChanged
	MessagesChanged
	TransientStateChanged
	SnapshotReplaced
)

// Event is published on a proxy's bus.
type Event struct {
	Kind     EventKind
	Bean     *Proxy
	Property string
	Old      any
	New      any
}

// Proxy is the mutable client-side view of a bean snapshot.
//
// A proxy is owned by the dispatch goroutine of the model that created it.
// Callers must check HasExecution before SetValue: edits made while a save is
// in flight are discarded when the result arrives.
type Proxy struct {
	snapshot  service.Bean
	mods      map[string]service.Change
	state     ExecutionState
	task      *task.Task
	messages  []Message
	transient bool
	dummy     bool
	disposed  bool
	bus       event.Bus[Event]
}

// New wraps a remote snapshot.
func New(dto service.Bean) *Proxy {
	return &Proxy{snapshot: dto.Clone(), mods: make(map[string]service.Change)}
}

// NewTransient creates a bean that only exists client side. Its id is the
// client id until the creator confirms it.
func NewTransient(clientID string, defaults map[string]any) *Proxy {
	p := New(service.Bean{ID: clientID, Values: defaults})
	p.transient = true
	return p
}

// NewDummy creates a placeholder shown while a page loads.
func NewDummy() *Proxy {
	p := New(service.Bean{})
	p.dummy = true
	return p
}

// ID returns the snapshot id.
func (p *Proxy) ID() string { return p.snapshot.ID }

// Version returns the snapshot version.
func (p *Proxy) Version() int64 { return p.snapshot.Version }

// Key returns id and version.
func (p *Proxy) Key() service.Key { return p.snapshot.Key() }

// Snapshot returns a copy of the wrapped snapshot.
func (p *Proxy) Snapshot() service.Bean { return p.snapshot.Clone() }

// IsTransient reports whether the bean still waits for creation.
func (p *Proxy) IsTransient() bool { return p.transient }

// IsDummy reports whether p is a loading or error placeholder.
func (p *Proxy) IsDummy() bool { return p.dummy }

// IsDisposed reports whether Dispose was called.
func (p *Proxy) IsDisposed() bool { return p.disposed }

// Equal compares snapshot identity (id and version), ignoring pending edits.
func (p *Proxy) Equal(other *Proxy) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.snapshot.ID == other.snapshot.ID && p.snapshot.Version == other.snapshot.Version
}

// Value returns the pending value of property if modified, else the snapshot
// value.
func (p *Proxy) Value(property string) any {
	if change, ok := p.mods[property]; ok {
		return change.New
	}
	return p.snapshot.Value(property)
}

// OriginalValue returns the snapshot value of property.
func (p *Proxy) OriginalValue(property string) any {
	return p.snapshot.Value(property)
}

// Values returns the effective values of every known property.
func (p *Proxy) Values() map[string]any {
	out := make(map[string]any, len(p.snapshot.Values)+len(p.mods))
	for k, v := range p.snapshot.Values {
		out[k] = v
	}
	for k, change := range p.mods {
		out[k] = change.New
	}
	return out
}

// SetValue records an edit. Setting the original value drops the pending
// modification; setting the current value does nothing.
func (p *Proxy) SetValue(property string, value any) {
	current := p.Value(property)
	if valuesEqual(current, value) {
		return
	}
	had := p.HasModifications()
	original := p.snapshot.Value(property)
	if valuesEqual(original, value) {
		delete(p.mods, property)
	} else {
		p.mods[property] = service.Change{Property: property, Old: original, New: value}
	}
	p.publish(Event{Kind: PropertyChanged, Property: property, Old: current, New: value})
	if had != p.HasModifications() {
		p.publish(Event{Kind: ModificationStateChanged})
	}
}

// HasModifications reports whether any edit is pending.
func (p *Proxy) HasModifications() bool {
	return len(p.mods) > 0
}

// IsModified reports whether property has a pending edit.
func (p *Proxy) IsModified(property string) bool {
	_, ok := p.mods[property]
	return ok
}

// Modifications returns the pending edits ordered by property.
func (p *Proxy) Modifications() []service.Change {
	out := make([]service.Change, 0, len(p.mods))
	for _, change := range p.mods {
		out = append(out, change)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Property < out[j].Property })
	return out
}

// Modification packages the pending edits for an update call.
func (p *Proxy) Modification() service.BeanModification {
	return service.BeanModification{Key: p.Key(), Changes: p.Modifications()}
}

// Data packages the bean for a create call.
func (p *Proxy) Data() service.BeanData {
	return service.BeanData{ClientID: p.snapshot.ID, Values: p.Values()}
}

// Update replaces the snapshot with a newer version of the same bean and
// drops pending edits. It fails without side effects on an id mismatch.
func (p *Proxy) Update(dto service.Bean) error {
	if dto.ID != p.snapshot.ID {
		return fmt.Errorf("%w: have %q, got %q", ErrIDMismatch, p.snapshot.ID, dto.ID)
	}
	had := p.HasModifications()
	p.snapshot = dto.Clone()
	p.mods = make(map[string]service.Change)
	p.publish(Event{Kind: SnapshotReplaced})
	if had {
		p.publish(Event{Kind: ModificationStateChanged})
	}
	return nil
}

// Persist turns a transient bean into a persisted one using the snapshot the
// creator returned.
func (p *Proxy) Persist(dto service.Bean) error {
	if !p.transient {
		return ErrNotTransient
	}
	had := p.HasModifications()
	p.snapshot = dto.Clone()
	p.mods = make(map[string]service.Change)
	p.transient = false
	p.publish(Event{Kind: TransientStateChanged})
	p.publish(Event{Kind: SnapshotReplaced})
	if had {
		p.publish(Event{Kind: ModificationStateChanged})
	}
	return nil
}

// UndoModifications drops every pending edit.
func (p *Proxy) UndoModifications() {
	if !p.HasModifications() {
		return
	}
	for property, change := range p.mods {
		delete(p.mods, property)
		p.publish(Event{Kind: PropertyChanged, Property: property, Old: change.New, New: change.Old})
	}
	p.publish(Event{Kind: ModificationStateChanged})
}

// ExecutionState returns the state of the execution slot.
func (p *Proxy) ExecutionState() ExecutionState { return p.state }

// ExecutionTask returns the in-flight task, or nil.
func (p *Proxy) ExecutionTask() *task.Task { return p.task }

// HasExecution reports whether a remote operation is in flight.
func (p *Proxy) HasExecution() bool { return p.state != Idle }

// StartExecution assigns t. A bean runs one execution at a time.
func (p *Proxy) StartExecution(t *task.Task) error {
	if t == nil {
		return errors.New("bean: nil execution task")
	}
	if p.state != Idle {
		if p.task == t {
			return nil
		}
		return ErrExecutionBusy
	}
	p.state = Running
	p.task = t
	p.publish(Event{Kind: ProcessStateChanged})
	return nil
}

// SetExecutionTask starts t, or finishes the current execution when t is nil.
// Replacing a different in-flight task is ErrExecutionBusy.
func (p *Proxy) SetExecutionTask(t *task.Task) error {
	if t == nil {
		p.FinishExecution()
		return nil
	}
	return p.StartExecution(t)
}

// FinishExecution returns the slot to Idle.
func (p *Proxy) FinishExecution() {
	if p.state == Idle {
		return
	}
	p.state = Idle
	p.task = nil
	p.publish(Event{Kind: ProcessStateChanged})
}

// DetachExecution clears the slot without canceling and returns the task
// that was in flight, or nil.
func (p *Proxy) DetachExecution() *task.Task {
	t := p.task
	p.FinishExecution()
	return t
}

// CancelExecution asks the in-flight task to stop. The slot stays occupied
// (Canceling) until the result callback finishes the execution.
func (p *Proxy) CancelExecution() {
	if p.state != Running {
		return
	}
	p.state = Canceling
	t := p.task
	go t.Cancel()
	p.publish(Event{Kind: ProcessStateChanged})
}

// Messages returns a copy of the attached messages.
func (p *Proxy) Messages() []Message {
	if len(p.messages) == 0 {
		return nil
	}
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// AddMessage attaches m.
func (p *Proxy) AddMessage(m Message) {
	p.messages = append(p.messages, m)
	p.publish(Event{Kind: MessagesChanged})
}

// SetMessages replaces all messages.
func (p *Proxy) SetMessages(messages []Message) {
	if len(messages) == 0 && len(p.messages) == 0 {
		return
	}
	p.messages = append([]Message(nil), messages...)
	p.publish(Event{Kind: MessagesChanged})
}

// ClearMessages removes all messages.
func (p *Proxy) ClearMessages() {
	p.SetMessages(nil)
}

// Subscribe registers fn for every event of this proxy.
func (p *Proxy) Subscribe(fn func(Event)) func() {
	return p.bus.Subscribe(fn)
}

// Dispose releases every listener. The proxy must not be used afterwards.
func (p *Proxy) Dispose() {
	p.disposed = true
	p.bus.Clear()
}

func (p *Proxy) publish(e Event) {
	e.Bean = p
	p.bus.Publish(e)
}

// Get returns property as T.
func Get[T any](p *Proxy, property string) (T, bool) {
	v, ok := p.Value(property).(T)
	return v, ok
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == tb && ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
