package bean

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/task"
	"github.com/google/go-cmp/cmp"
)

func newProxy() *Proxy {
	return New(service.Bean{ID: "a", Version: 1, Values: map[string]any{"name": "x", "count": int64(3)}})
}

func recordKinds(p *Proxy) *[]EventKind {
	var kinds []EventKind
	p.Subscribe(func(e Event) { kinds = append(kinds, e.Kind) })
	return &kinds
}

func TestSetValue_RoundTripRestoresUnmodified(t *testing.T) {
	p := newProxy()
	kinds := recordKinds(p)

	p.SetValue("name", "y")
	if !p.HasModifications() || !p.IsModified("name") {
		t.Fatalf("expected name to be modified")
	}
	if got := p.Value("name"); got != "y" {
		t.Fatalf("Value(name) = %v, want y", got)
	}
	p.SetValue("name", "x")
	if p.HasModifications() {
		t.Fatalf("HasModifications() = true after restoring the original value")
	}

	want := []EventKind{PropertyChanged, ModificationStateChanged, PropertyChanged, ModificationStateChanged}
	if diff := cmp.Diff(want, *kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestSetValue_SameValueIsNoOp(t *testing.T) {
	p := newProxy()
	kinds := recordKinds(p)

	p.SetValue("count", int64(3))

	if len(*kinds) != 0 {
		t.Fatalf("events = %v, want none", *kinds)
	}
	if p.HasModifications() {
		t.Fatalf("HasModifications() = true, want false")
	}
}

func TestSetValue_SecondEditKeepsOriginalOld(t *testing.T) {
	p := newProxy()
	p.SetValue("count", int64(4))
	p.SetValue("count", int64(5))

	want := []service.Change{{Property: "count", Old: int64(3), New: int64(5)}}
	if diff := cmp.Diff(want, p.Modifications()); diff != "" {
		t.Fatalf("modifications mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_ReplacesSnapshotAndDropsEdits(t *testing.T) {
	p := newProxy()
	p.SetValue("name", "edited")
	kinds := recordKinds(p)

	err := p.Update(service.Bean{ID: "a", Version: 2, Values: map[string]any{"name": "server"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.HasModifications() {
		t.Fatalf("HasModifications() = true after Update")
	}
	if got := p.Value("name"); got != "server" {
		t.Fatalf("Value(name) = %v, want server", got)
	}
	if p.Version() != 2 {
		t.Fatalf("Version() = %d, want 2", p.Version())
	}
	if diff := cmp.Diff([]EventKind{SnapshotReplaced, ModificationStateChanged}, *kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_IDMismatchLeavesProxyUntouched(t *testing.T) {
	p := newProxy()
	p.SetValue("name", "edited")

	err := p.Update(service.Bean{ID: "b", Version: 9})
	if !errors.Is(err, ErrIDMismatch) {
		t.Fatalf("Update err = %v, want ErrIDMismatch", err)
	}
	if p.Version() != 1 || p.Value("name") != "edited" {
		t.Fatalf("proxy changed after rejected update: version=%d name=%v", p.Version(), p.Value("name"))
	}
}

func TestUndoModifications(t *testing.T) {
	p := newProxy()
	p.SetValue("name", "y")
	p.SetValue("count", int64(9))

	p.UndoModifications()

	if p.HasModifications() {
		t.Fatalf("HasModifications() = true after undo")
	}
	if got := p.Value("count"); got != int64(3) {
		t.Fatalf("Value(count) = %v, want 3", got)
	}
}

func TestExecution_SingleSlot(t *testing.T) {
	p := newProxy()
	kinds := recordKinds(p)
	first := task.New(context.Background(), "save")
	second := task.New(context.Background(), "save again")

	if err := p.StartExecution(first); err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if err := p.StartExecution(first); err != nil {
		t.Fatalf("StartExecution with the same task: %v", err)
	}
	if err := p.StartExecution(second); !errors.Is(err, ErrExecutionBusy) {
		t.Fatalf("StartExecution err = %v, want ErrExecutionBusy", err)
	}
	if p.ExecutionTask() != first {
		t.Fatalf("ExecutionTask() replaced by a rejected start")
	}
	p.FinishExecution()
	p.FinishExecution()

	if p.HasExecution() {
		t.Fatalf("HasExecution() = true after finish")
	}
	if diff := cmp.Diff([]EventKind{ProcessStateChanged, ProcessStateChanged}, *kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestCancelExecution_MovesToCancelingAndCancelsTask(t *testing.T) {
	p := newProxy()
	tk := task.New(context.Background(), "save")
	if err := p.SetExecutionTask(tk); err != nil {
		t.Fatalf("SetExecutionTask: %v", err)
	}

	p.CancelExecution()

	if p.ExecutionState() != Canceling {
		t.Fatalf("ExecutionState() = %v, want canceling", p.ExecutionState())
	}
	select {
	case <-tk.Context().Done():
	case <-time.After(time.Second):
		t.Fatalf("task was not canceled")
	}
	if err := p.SetExecutionTask(nil); err != nil {
		t.Fatalf("SetExecutionTask(nil): %v", err)
	}
	if p.ExecutionState() != Idle {
		t.Fatalf("ExecutionState() = %v, want idle", p.ExecutionState())
	}
}

func TestDetachExecution(t *testing.T) {
	p := newProxy()
	tk := task.New(context.Background(), "delete")
	_ = p.StartExecution(tk)

	if got := p.DetachExecution(); got != tk {
		t.Fatalf("DetachExecution() returned %p, want %p", got, tk)
	}
	if tk.Canceled() {
		t.Fatalf("detach must not cancel the task")
	}
	if p.DetachExecution() != nil {
		t.Fatalf("second detach returned a task")
	}
}

func TestPersist(t *testing.T) {
	p := NewTransient("client-1", map[string]any{"name": ""})
	p.SetValue("name", "new")
	if got := p.Data(); got.ClientID != "client-1" || got.Values["name"] != "new" {
		t.Fatalf("Data() = %+v", got)
	}

	if err := p.Persist(service.Bean{ID: "server-1", Version: 1, Values: map[string]any{"name": "new"}}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if p.IsTransient() || p.HasModifications() || p.ID() != "server-1" {
		t.Fatalf("after Persist: transient=%v modified=%v id=%q", p.IsTransient(), p.HasModifications(), p.ID())
	}
	if err := p.Persist(service.Bean{ID: "server-1"}); !errors.Is(err, ErrNotTransient) {
		t.Fatalf("second Persist err = %v, want ErrNotTransient", err)
	}
}

func TestMessages(t *testing.T) {
	p := newProxy()
	kinds := recordKinds(p)

	p.AddMessage(Message{Severity: Warning, Text: "slow"})
	p.AddMessage(Message{Severity: Error, Text: "broken"})
	p.AddMessage(Message{Severity: Error, Text: "also broken"})

	worst, ok := Worst(p.Messages())
	if !ok || worst.Text != "broken" {
		t.Fatalf("Worst() = %+v, %v, want first error", worst, ok)
	}
	p.ClearMessages()
	p.ClearMessages()
	if len(*kinds) != 4 {
		t.Fatalf("events = %v, want 4 MessagesChanged", *kinds)
	}
}

func TestEqualIgnoresEdits(t *testing.T) {
	a := newProxy()
	b := newProxy()
	b.SetValue("name", "other")

	if !a.Equal(b) {
		t.Fatalf("Equal() = false for same id and version")
	}
	if a.Equal(New(service.Bean{ID: "a", Version: 2})) {
		t.Fatalf("Equal() = true for different versions")
	}
}

func TestDisposeDropsListeners(t *testing.T) {
	p := newProxy()
	calls := 0
	p.Subscribe(func(Event) { calls++ })
	p.Dispose()
	p.SetValue("name", "y")

	if calls != 0 {
		t.Fatalf("listener called %d times after Dispose", calls)
	}
}

func TestGet(t *testing.T) {
	p := newProxy()
	if n, ok := Get[int64](p, "count"); !ok || n != 3 {
		t.Fatalf("Get[int64] = %v, %v", n, ok)
	}
	if _, ok := Get[string](p, "count"); ok {
		t.Fatalf("Get[string] on int64 succeeded")
	}
}
