package task

import (
	"context"
	"errors"
	"sync"
)

// ErrNoQuestionHandler is returned by Ask when nobody can answer.
var ErrNoQuestionHandler = errors.New("task: no question handler")

// Question asks the user to pick one of Options.
type Question struct {
	Text    string
	Options []string
	// Default is the option index used when the question cannot be shown.
	Default int
}

// Answer is the index of the chosen option.
type Answer int

// QuestionHandler presents q to the user and calls reply exactly once.
// It is invoked on the goroutine that asked; implementations marshal to the
// UI themselves.
type QuestionHandler func(q Question, reply func(Answer))

// Task is a cancelable unit of remote work.
type Task struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	description string
	progress    float64
	canceled    bool
	listeners   map[int]func()
	nextID      int
	questions   QuestionHandler
	parent      *Task
}

// New creates a task whose context derives from parent.
func New(parent context.Context, description string) *Task {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		ctx:         ctx,
		cancel:      cancel,
		description: description,
		listeners:   make(map[int]func()),
	}
}

// Child creates a task that is canceled together with t. Question routing is
// inherited unless the child sets its own handler.
func (t *Task) Child(description string) *Task {
	child := New(t.ctx, description)
	child.parent = t
	t.OnCancel(child.Cancel)
	return child
}

// Context returns the task's context.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Description returns the current description.
func (t *Task) Description() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.description
}

// SetDescription replaces the description.
func (t *Task) SetDescription(description string) {
	t.mu.Lock()
	t.description = description
	t.mu.Unlock()
}

// Progress returns the completed fraction in [0, 1].
func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// SetProgress records progress, clamped to [0, 1].
func (t *Task) SetProgress(p float64) {
	switch {
	case p < 0:
		p = 0
	case p > 1:
		p = 1
	}
	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()
}

// Cancel cancels the context and fires cancel listeners. Only the first call
// has an effect.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		return
	}
	t.canceled = true
	listeners := make([]func(), 0, len(t.listeners))
	for id := 0; id <= t.nextID; id++ {
		if fn, ok := t.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	t.listeners = nil
	t.mu.Unlock()

	t.cancel()
	for _, fn := range listeners {
		fn()
	}
}

// Canceled reports whether Cancel was called.
func (t *Task) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// OnCancel registers fn to run once when the task is canceled. If the task is
// already canceled fn runs immediately. The returned function unregisters fn.
func (t *Task) OnCancel(fn func()) func() {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	t.nextID++
	id := t.nextID
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// SetQuestionHandler installs the handler used by Ask.
func (t *Task) SetQuestionHandler(h QuestionHandler) {
	t.mu.Lock()
	t.questions = h
	t.mu.Unlock()
}

func (t *Task) questionHandler() QuestionHandler {
	for cur := t; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		h := cur.questions
		cur.mu.Unlock()
		if h != nil {
			return h
		}
	}
	return nil
}

// Ask blocks until the user answers q, ctx ends or the task is canceled.
func (t *Task) Ask(ctx context.Context, q Question) (Answer, error) {
	h := t.questionHandler()
	if h == nil {
		return Answer(q.Default), ErrNoQuestionHandler
	}
	answers := make(chan Answer, 1)
	var once sync.Once
	h(q, func(a Answer) {
		once.Do(func() { answers <- a })
	})
	select {
	case a := <-answers:
		return a, nil
	case <-ctx.Done():
		return Answer(q.Default), ctx.Err()
	case <-t.ctx.Done():
		return Answer(q.Default), t.ctx.Err()
	}
}

type contextKey struct{}

// WithTask returns a context carrying t.
func WithTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the task stored in ctx, or nil.
func FromContext(ctx context.Context) *Task {
	t, _ := ctx.Value(contextKey{}).(*Task)
	return t
}
