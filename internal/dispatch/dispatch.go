package dispatch

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotDispatchThread is returned when model state is touched from a
// goroutine other than the dispatch goroutine.
var ErrNotDispatchThread = errors.New("dispatch: called off the dispatch goroutine")

// Dispatcher marshals continuations onto the owning goroutine.
type Dispatcher interface {
	// InvokeLater schedules fn to run on the dispatch goroutine. It never
	// blocks and may be called from any goroutine.
	InvokeLater(fn func())
	// IsDispatchThread reports whether the caller is the dispatch goroutine.
	IsDispatchThread() bool
}

// CheckThread returns ErrNotDispatchThread unless the caller runs on d's
// dispatch goroutine.
func CheckThread(d Dispatcher) error {
	if d == nil || !d.IsDispatchThread() {
		return ErrNotDispatchThread
	}
	return nil
}

// Queue is a FIFO of continuations executed on one bound goroutine.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	ready   chan struct{}
	owner   atomic.Int64
}

// Ensure Queue implements Dispatcher at compile time.
var _ Dispatcher = (*Queue)(nil)

// NewQueue returns an unbound queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Bind makes the calling goroutine the dispatch goroutine.
func (q *Queue) Bind() {
	q.owner.Store(goroutineID())
}

// InvokeLater implements Dispatcher.
func (q *Queue) InvokeLater(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// IsDispatchThread implements Dispatcher.
func (q *Queue) IsDispatchThread() bool {
	owner := q.owner.Load()
	return owner != 0 && owner == goroutineID()
}

// Ready fires at least once after continuations were queued.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued continuations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// RunPending executes queued continuations until the queue is empty,
// including ones queued by the continuations themselves. It returns how many
// ran. Calling it off the dispatch goroutine runs nothing.
func (q *Queue) RunPending() int {
	if !q.IsDispatchThread() {
		return 0
	}
	ran := 0
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			fn()
			ran++
		}
	}
}

// Wait blocks until a continuation is queued or timeout elapses, then runs
// everything pending. It reports whether anything ran.
func (q *Queue) Wait(timeout time.Duration) bool {
	if q.Len() > 0 {
		return q.RunPending() > 0
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.ready:
		return q.RunPending() > 0
	case <-timer.C:
		return false
	}
}

// Run binds the calling goroutine and drains the queue until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	q.Bind()
	for {
		q.RunPending()
		select {
		case <-ctx.Done():
			return
		case <-q.ready:
		}
	}
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the id out of the current goroutine's stack header
// ("goroutine 18 [running]:").
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
