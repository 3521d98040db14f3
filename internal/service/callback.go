package service

import (
	"context"
	"errors"
	"time"

	"github.com/five82/captable/internal/task"
)

// ResultCallback receives the outcome of an asynchronous call. Exactly one
// method is called, once.
type ResultCallback[T any] interface {
	Finished(result T)
	Failed(err error)
	TimedOut()
}

// Callbacks adapts plain functions to ResultCallback. Nil fields are skipped;
// a nil OnTimeout falls back to OnFailed with ErrTimeout.
type Callbacks[T any] struct {
	OnFinished func(T)
	OnFailed   func(error)
	OnTimeout  func()
}

func (c Callbacks[T]) Finished(result T) {
	if c.OnFinished != nil {
		c.OnFinished(result)
	}
}

func (c Callbacks[T]) Failed(err error) {
	if c.OnFailed != nil {
		c.OnFailed(err)
	}
}

func (c Callbacks[T]) TimedOut() {
	switch {
	case c.OnTimeout != nil:
		c.OnTimeout()
	case c.OnFailed != nil:
		c.OnFailed(ErrTimeout)
	}
}

// IsTimeout reports whether err means the call ran out of time.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// IsCanceled reports whether err means the call was aborted on purpose.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// Deliver routes a call outcome to exactly one callback method.
func Deliver[T any](cb ResultCallback[T], result T, err error) {
	switch {
	case err == nil:
		cb.Finished(result)
	case IsTimeout(err):
		cb.TimedOut()
	case IsCanceled(err) && !errors.Is(err, ErrCanceled):
		cb.Failed(errors.Join(ErrCanceled, err))
	default:
		cb.Failed(err)
	}
}

// Invoke runs call on its own goroutine with the task's context, bounded by
// timeout when positive, and delivers the outcome to cb from that goroutine.
func Invoke[T any](t *task.Task, timeout time.Duration, call func(ctx context.Context) (T, error), cb ResultCallback[T]) {
	go func() {
		ctx := task.WithTask(t.Context(), t)
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		result, err := call(ctx)
		if err == nil && t.Canceled() {
			err = ErrCanceled
		}
		Deliver(cb, result, err)
	}()
}
