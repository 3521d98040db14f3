package app

import (
	"context"
	"log"
	"time"

	"github.com/five82/captable/internal/dispatch"
	"github.com/five82/captable/internal/state"
)

const (
	defaultPollInterval = 30 * time.Second
	maxBackoff          = 5 * time.Minute
)

// StartPoller launches a background goroutine that reloads the table at a
// fixed cadence, backing off while the backend keeps failing. Reloads are
// skipped while edits or executions are pending. It returns immediately.
func StartPoller(ctx context.Context, store *state.Store, d dispatch.Dispatcher, reload func() error, interval time.Duration) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	go func() {
		timer := time.NewTimer(nextPoll(store, interval))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			poll(store, d, reload)
			timer.Reset(nextPoll(store, interval))
		}
	}()
}

func nextPoll(store *state.Store, interval time.Duration) time.Duration {
	return calculateBackoff(store.Snapshot().ConsecutiveFailures, interval)
}

// poll hands one reload to the dispatch goroutine. It reports whether a
// reload was scheduled.
func poll(store *state.Store, d dispatch.Dispatcher, reload func() error) bool {
	if store.Snapshot().Pending() {
		return false
	}
	d.InvokeLater(func() {
		if err := reload(); err != nil {
			log.Printf("reload failed: %v", err)
		}
	})
	return true
}

// calculateBackoff doubles base for every consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}
