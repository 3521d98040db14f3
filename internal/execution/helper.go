package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/dispatch"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/task"
)

// Policy decides how beans are grouped into execution tasks.
type Policy int

const (
	// Serial runs every bean under one shared task.
	Serial Policy = iota
	// Parallel gives every bean its own task and its own service call.
	Parallel
	// Batch issues one service call whose task has one child task per bean,
	// so single beans can be canceled individually.
	Batch
)

func (p Policy) String() string {
	switch p {
	case Serial:
		return "serial"
	case Parallel:
		return "parallel"
	case Batch:
		return "batch"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts the names returned by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range []Policy{Serial, Parallel, Batch} {
		if p.String() == s {
			return p, nil
		}
	}
	return Serial, fmt.Errorf("unknown execution policy %q", s)
}

// MessageConverter turns a failed call into a bean message.
type MessageConverter func(error) bean.Message

// DefaultConverter maps timeouts and unknown failures to errors, conflicts
// to warnings and user cancellation to an informational message.
func DefaultConverter(err error) bean.Message {
	switch {
	case service.IsTimeout(err):
		return bean.Message{Severity: bean.Error, Text: service.ErrTimeout.Error()}
	case service.IsCanceled(err):
		return bean.Message{Severity: bean.Info, Text: service.ErrCanceled.Error()}
	case errors.Is(err, service.ErrStale), errors.Is(err, service.ErrNotFound):
		return bean.Message{Severity: bean.Warning, Text: err.Error()}
	default:
		return bean.Message{Severity: bean.Error, Text: err.Error()}
	}
}

// Unit is one service call worth of beans.
type Unit struct {
	Task  *task.Task
	Beans []*bean.Proxy
	// tasks holds the execution task assigned to each bean.
	tasks []*task.Task
}

// Keys returns the keys of the unit's beans.
func (u Unit) Keys() []service.Key {
	keys := make([]service.Key, len(u.Beans))
	for i, b := range u.Beans {
		keys[i] = b.Key()
	}
	return keys
}

// Modifications returns the pending edits of the unit's beans.
func (u Unit) Modifications() []service.BeanModification {
	mods := make([]service.BeanModification, len(u.Beans))
	for i, b := range u.Beans {
		mods[i] = b.Modification()
	}
	return mods
}

// Data returns the create payload of the unit's beans.
func (u Unit) Data() []service.BeanData {
	data := make([]service.BeanData, len(u.Beans))
	for i, b := range u.Beans {
		data[i] = b.Data()
	}
	return data
}

// Outcome is handed to the done function of a callback on the dispatch
// goroutine after the beans were updated.
type Outcome struct {
	Unit Unit
	// Err is nil on success.
	Err error
	// Applied lists the beans the result was merged into.
	Applied []*bean.Proxy
	// Failed lists the beans that received an error or warning message.
	Failed []*bean.Proxy
}

// Helper is configured once per model.
type Helper struct {
	dispatcher dispatch.Dispatcher
	policy     Policy
	convert    MessageConverter
}

// New returns a helper. A nil converter means DefaultConverter.
func New(d dispatch.Dispatcher, policy Policy, convert MessageConverter) *Helper {
	if convert == nil {
		convert = DefaultConverter
	}
	return &Helper{dispatcher: d, policy: policy, convert: convert}
}

// Policy returns the helper's policy.
func (h *Helper) Policy() Policy { return h.policy }

// Convert applies the helper's message converter.
func (h *Helper) Convert(err error) bean.Message { return h.convert(err) }

// PrepareExecutions assigns execution tasks to beans and groups them into
// units. Beans that are already executing, dummies and nil entries are
// skipped. Units without beans are not returned.
func (h *Helper) PrepareExecutions(ctx context.Context, description string, beans []*bean.Proxy) []Unit {
	return h.prepare(ctx, h.policy, description, beans)
}

// PrepareWith is PrepareExecutions with an explicit policy.
func (h *Helper) PrepareWith(ctx context.Context, policy Policy, description string, beans []*bean.Proxy) []Unit {
	return h.prepare(ctx, policy, description, beans)
}

func (h *Helper) prepare(ctx context.Context, policy Policy, description string, beans []*bean.Proxy) []Unit {
	eligible := make([]*bean.Proxy, 0, len(beans))
	seen := make(map[*bean.Proxy]bool, len(beans))
	for _, b := range beans {
		if b == nil || b.IsDummy() || b.HasExecution() || seen[b] {
			continue
		}
		seen[b] = true
		eligible = append(eligible, b)
	}
	if len(eligible) == 0 {
		return nil
	}

	switch policy {
	case Parallel:
		units := make([]Unit, 0, len(eligible))
		for _, b := range eligible {
			t := task.New(ctx, description)
			if b.StartExecution(t) != nil {
				continue
			}
			units = append(units, Unit{Task: t, Beans: []*bean.Proxy{b}, tasks: []*task.Task{t}})
		}
		return units
	case Batch:
		parent := task.New(ctx, description)
		u := Unit{Task: parent}
		for _, b := range eligible {
			child := parent.Child(description + " " + b.ID())
			if b.StartExecution(child) != nil {
				continue
			}
			u.Beans = append(u.Beans, b)
			u.tasks = append(u.tasks, child)
		}
		return []Unit{u}
	default:
		t := task.New(ctx, description)
		u := Unit{Task: t}
		for _, b := range eligible {
			if b.StartExecution(t) != nil {
				continue
			}
			u.Beans = append(u.Beans, b)
			u.tasks = append(u.tasks, t)
		}
		return []Unit{u}
	}
}

// owns reports whether the i-th bean of u may receive u's result: it still
// runs u's task, or its execution was detached without a replacement.
func (u Unit) owns(i int) bool {
	cur := u.Beans[i].ExecutionTask()
	return cur == nil || cur == u.tasks[i]
}

// MergeCallback merges returned snapshots into the unit's beans by id. Beans
// missing from the result get a not-found message. It serves update and
// refresh calls.
func (h *Helper) MergeCallback(u Unit, done func(Outcome)) service.ResultCallback[[]service.Bean] {
	return newCallback(h, u, func(result []service.Bean, out *Outcome) {
		byID := make(map[string]service.Bean, len(result))
		for _, dto := range result {
			byID[dto.ID] = dto
		}
		for i, b := range u.Beans {
			if !u.owns(i) {
				continue
			}
			b.FinishExecution()
			dto, ok := byID[b.ID()]
			if !ok {
				b.SetMessages([]bean.Message{h.convert(fmt.Errorf("%w: %s", service.ErrNotFound, b.ID()))})
				out.Failed = append(out.Failed, b)
				continue
			}
			if err := b.Update(dto); err != nil {
				b.SetMessages([]bean.Message{h.convert(err)})
				out.Failed = append(out.Failed, b)
				continue
			}
			b.ClearMessages()
			out.Applied = append(out.Applied, b)
		}
	}, done)
}

// CreateCallback matches created snapshots to the unit's transient beans by
// position.
func (h *Helper) CreateCallback(u Unit, done func(Outcome)) service.ResultCallback[[]service.Bean] {
	return newCallback(h, u, func(result []service.Bean, out *Outcome) {
		if len(result) != len(u.Beans) {
			err := fmt.Errorf("create returned %d beans for %d requested", len(result), len(u.Beans))
			out.Err = err
			h.fail(u, err, out)
			return
		}
		for i, b := range u.Beans {
			if !u.owns(i) {
				continue
			}
			b.FinishExecution()
			if err := b.Persist(result[i]); err != nil {
				b.SetMessages([]bean.Message{h.convert(err)})
				out.Failed = append(out.Failed, b)
				continue
			}
			b.ClearMessages()
			out.Applied = append(out.Applied, b)
		}
	}, done)
}

// DeleteCallback finishes the executions of deleted beans. Applied holds the
// beans that are gone remotely.
func (h *Helper) DeleteCallback(u Unit, done func(Outcome)) service.ResultCallback[struct{}] {
	return newCallback(h, u, func(_ struct{}, out *Outcome) {
		for i, b := range u.Beans {
			if !u.owns(i) {
				continue
			}
			b.FinishExecution()
			out.Applied = append(out.Applied, b)
		}
	}, done)
}

// newCallback marshals every outcome onto the dispatch goroutine, applies it
// to the unit's beans and then calls done.
func newCallback[T any](h *Helper, u Unit, apply func(T, *Outcome), done func(Outcome)) service.ResultCallback[T] {
	finish := func(run func(*Outcome)) {
		h.dispatcher.InvokeLater(func() {
			out := Outcome{Unit: u}
			run(&out)
			if done != nil {
				done(out)
			}
		})
	}
	return service.Callbacks[T]{
		OnFinished: func(result T) {
			finish(func(out *Outcome) { apply(result, out) })
		},
		OnFailed: func(err error) {
			finish(func(out *Outcome) {
				out.Err = err
				h.fail(u, err, out)
			})
		},
	}
}

// fail finishes the unit's executions and attaches a message per bean. A
// BatchError contributes its per-bean failure where one exists.
func (h *Helper) fail(u Unit, err error, out *Outcome) {
	var batch *service.BatchError
	errors.As(err, &batch)
	for i, b := range u.Beans {
		if !u.owns(i) {
			continue
		}
		b.FinishExecution()
		beanErr := err
		if batch != nil {
			beanErr = batch.ErrorFor(b.ID())
			if beanErr == nil {
				continue
			}
		}
		b.SetMessages([]bean.Message{h.convert(beanErr)})
		out.Failed = append(out.Failed, b)
	}
}
