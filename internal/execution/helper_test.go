package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/dispatch"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/task"
	"github.com/google/go-cmp/cmp"
)

func newQueue(t *testing.T) *dispatch.Queue {
	t.Helper()
	q := dispatch.NewQueue()
	q.Bind()
	return q
}

func beans(ids ...string) []*bean.Proxy {
	out := make([]*bean.Proxy, len(ids))
	for i, id := range ids {
		out[i] = bean.New(service.Bean{ID: id, Version: 1, Values: map[string]any{"name": id}})
	}
	return out
}

// await runs queued continuations until done was called.
func await(t *testing.T, q *dispatch.Queue, got *Outcome) Outcome {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for got.Unit.Task == nil {
		if time.Now().After(deadline) {
			t.Fatalf("callback did not complete")
		}
		q.Wait(50 * time.Millisecond)
	}
	return *got
}

func TestPrepareExecutions_Policies(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		wantUnits int
		shared    bool
	}{
		{name: "serial", policy: Serial, wantUnits: 1, shared: true},
		{name: "parallel", policy: Parallel, wantUnits: 3},
		{name: "batch", policy: Batch, wantUnits: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(newQueue(t), tt.policy, nil)
			bs := beans("a", "b", "c")

			units := h.PrepareExecutions(context.Background(), "save", bs)

			if len(units) != tt.wantUnits {
				t.Fatalf("len(units) = %d, want %d", len(units), tt.wantUnits)
			}
			for _, b := range bs {
				if !b.HasExecution() {
					t.Fatalf("bean %s has no execution", b.ID())
				}
			}
			sameTask := bs[0].ExecutionTask() == bs[1].ExecutionTask()
			if sameTask != tt.shared {
				t.Fatalf("beans share a task = %v, want %v", sameTask, tt.shared)
			}
		})
	}
}

func TestPrepareExecutions_SkipsExecutingBeans(t *testing.T) {
	h := New(newQueue(t), Serial, nil)
	bs := beans("a", "b")
	busy := task.New(context.Background(), "busy")
	_ = bs[0].StartExecution(busy)

	units := h.PrepareExecutions(context.Background(), "save", append(bs, nil, bean.NewDummy()))

	if len(units) != 1 || len(units[0].Beans) != 1 || units[0].Beans[0] != bs[1] {
		t.Fatalf("units = %+v, want only bean b", units)
	}
	if bs[0].ExecutionTask() != busy {
		t.Fatalf("executing bean was reassigned")
	}
	if units := h.PrepareExecutions(context.Background(), "save", bs); units != nil {
		t.Fatalf("PrepareExecutions on busy beans = %+v, want nil", units)
	}
}

func TestPrepareExecutions_BatchChildrenCancelWithParent(t *testing.T) {
	h := New(newQueue(t), Batch, nil)
	bs := beans("a", "b")

	u := h.PrepareExecutions(context.Background(), "delete", bs)[0]
	u.Task.Cancel()

	for _, b := range bs {
		if !b.ExecutionTask().Canceled() {
			t.Fatalf("child task of %s not canceled with the parent", b.ID())
		}
	}
}

func TestMergeCallback_MergesByIDOnDispatchGoroutine(t *testing.T) {
	q := newQueue(t)
	h := New(q, Serial, nil)
	bs := beans("a", "b")
	bs[0].SetValue("name", "edited")
	u := h.PrepareExecutions(context.Background(), "save", bs)[0]

	var got Outcome
	service.Invoke(u.Task, 0, func(ctx context.Context) ([]service.Bean, error) {
		return []service.Bean{{ID: "a", Version: 2, Values: map[string]any{"name": "edited"}}}, nil
	}, h.MergeCallback(u, func(o Outcome) { got = o }))

	if !bs[0].HasExecution() {
		t.Fatalf("result applied before the dispatch queue ran")
	}
	out := await(t, q, &got)

	if out.Err != nil {
		t.Fatalf("Outcome.Err = %v, want nil", out.Err)
	}
	if bs[0].Version() != 2 || bs[0].HasModifications() || bs[0].HasExecution() {
		t.Fatalf("bean a not merged: version=%d modified=%v executing=%v", bs[0].Version(), bs[0].HasModifications(), bs[0].HasExecution())
	}
	msgs := bs[1].Messages()
	if len(msgs) != 1 || msgs[0].Severity != bean.Warning {
		t.Fatalf("missing bean messages = %+v, want one warning", msgs)
	}
	if len(out.Applied) != 1 || len(out.Failed) != 1 {
		t.Fatalf("Applied=%d Failed=%d, want 1 and 1", len(out.Applied), len(out.Failed))
	}
}

func TestMergeCallback_FailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		timeout time.Duration
		want    []bean.Severity
	}{
		{name: "generic", err: errors.New("boom"), want: []bean.Severity{bean.Error, bean.Error}},
		{name: "stale", err: service.ErrStale, want: []bean.Severity{bean.Warning, bean.Warning}},
		{name: "canceled", err: context.Canceled, want: []bean.Severity{bean.Info, bean.Info}},
		{name: "timeout", timeout: 10 * time.Millisecond, want: []bean.Severity{bean.Error, bean.Error}},
		{
			name: "batch",
			err:  &service.BatchError{Failures: map[string]error{"b": service.ErrConstraint}},
			want: []bean.Severity{bean.Error},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue(t)
			h := New(q, Batch, nil)
			bs := beans("a", "b")
			u := h.PrepareExecutions(context.Background(), "save", bs)[0]

			var got Outcome
			service.Invoke(u.Task, tt.timeout, func(ctx context.Context) ([]service.Bean, error) {
				if tt.timeout > 0 {
					<-ctx.Done()
					return nil, ctx.Err()
				}
				return nil, tt.err
			}, h.MergeCallback(u, func(o Outcome) { got = o }))
			out := await(t, q, &got)

			if out.Err == nil {
				t.Fatalf("Outcome.Err = nil, want failure")
			}
			var severities []bean.Severity
			for _, b := range bs {
				if b.HasExecution() {
					t.Fatalf("bean %s still executing after failure", b.ID())
				}
				for _, m := range b.Messages() {
					severities = append(severities, m.Severity)
				}
			}
			if diff := cmp.Diff(tt.want, severities); diff != "" {
				t.Fatalf("severities mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeCallback_SkipsBeansRunningAnotherTask(t *testing.T) {
	q := newQueue(t)
	h := New(q, Serial, nil)
	bs := beans("a")
	u := h.PrepareExecutions(context.Background(), "refresh", bs)[0]
	bs[0].DetachExecution()
	next := task.New(context.Background(), "save")
	_ = bs[0].StartExecution(next)

	var got Outcome
	service.Invoke(u.Task, 0, func(ctx context.Context) ([]service.Bean, error) {
		return []service.Bean{{ID: "a", Version: 7}}, nil
	}, h.MergeCallback(u, func(o Outcome) { got = o }))
	await(t, q, &got)

	if bs[0].ExecutionTask() != next || bs[0].Version() != 1 {
		t.Fatalf("stale result touched a bean owned by another execution")
	}
}

func TestCreateCallback_MatchesByPosition(t *testing.T) {
	q := newQueue(t)
	h := New(q, Serial, nil)
	bs := []*bean.Proxy{bean.NewTransient("c1", nil), bean.NewTransient("c2", nil)}
	u := h.PrepareExecutions(context.Background(), "create", bs)[0]

	var got Outcome
	service.Invoke(u.Task, 0, func(ctx context.Context) ([]service.Bean, error) {
		return []service.Bean{{ID: "s1", Version: 1}, {ID: "s2", Version: 1}}, nil
	}, h.CreateCallback(u, func(o Outcome) { got = o }))
	await(t, q, &got)

	if diff := cmp.Diff([]string{"s1", "s2"}, []string{bs[0].ID(), bs[1].ID()}); diff != "" {
		t.Fatalf("persisted ids mismatch (-want +got):\n%s", diff)
	}
	if bs[0].IsTransient() || bs[1].IsTransient() {
		t.Fatalf("beans still transient after create")
	}
}

func TestCreateCallback_CountMismatchFailsAll(t *testing.T) {
	q := newQueue(t)
	h := New(q, Serial, nil)
	bs := []*bean.Proxy{bean.NewTransient("c1", nil), bean.NewTransient("c2", nil)}
	u := h.PrepareExecutions(context.Background(), "create", bs)[0]

	var got Outcome
	service.Invoke(u.Task, 0, func(ctx context.Context) ([]service.Bean, error) {
		return []service.Bean{{ID: "s1", Version: 1}}, nil
	}, h.CreateCallback(u, func(o Outcome) { got = o }))
	out := await(t, q, &got)

	if out.Err == nil || len(out.Failed) != 2 || !bs[0].IsTransient() {
		t.Fatalf("Outcome = %+v, want both beans failed and still transient", out)
	}
}

func TestDeleteCallback(t *testing.T) {
	q := newQueue(t)
	h := New(q, Parallel, nil)
	bs := beans("a", "b")
	units := h.PrepareExecutions(context.Background(), "delete", bs)

	deleted := 0
	for _, u := range units {
		var got Outcome
		service.Invoke(u.Task, 0, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, nil
		}, h.DeleteCallback(u, func(o Outcome) { got = o }))
		deleted += len(await(t, q, &got).Applied)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{Serial, Parallel, Batch} {
		got, err := ParsePolicy(p.String())
		if err != nil || got != p {
			t.Fatalf("ParsePolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePolicy("bogus"); err == nil {
		t.Fatalf("ParsePolicy(bogus) succeeded")
	}
}
