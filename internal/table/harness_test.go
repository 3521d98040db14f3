package table

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/five82/captable/internal/dispatch"
	"github.com/five82/captable/internal/service"
)

// fakeBackend serves an in-memory slice. Gates, when set, hold calls until
// a value is received or the call's context ends.
type fakeBackend struct {
	mu sync.Mutex

	rows      []service.Bean
	reads     []service.ReadQuery
	counts    int
	updates   [][]service.BeanModification
	creates   [][]service.BeanData
	deletes   [][]service.Key
	refreshes [][]service.Key

	readGate   chan struct{}
	countGate  chan struct{}
	updateGate chan struct{}
	readErr    error
	countErr   error
}

func newBackend(n int) *fakeBackend {
	f := &fakeBackend{}
	for i := 0; i < n; i++ {
		f.rows = append(f.rows, service.Bean{
			ID:      fmt.Sprintf("r%02d", i),
			Version: 1,
			Values:  map[string]any{"title": fmt.Sprintf("row %d", i), "n": int64(i)},
		})
	}
	return f
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) Read(ctx context.Context, q service.ReadQuery) ([]service.Bean, error) {
	f.mu.Lock()
	f.reads = append(f.reads, q)
	gate, readErr := f.readGate, f.readErr
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []service.Bean{}
	for i := q.FirstRow; i < len(f.rows) && i < q.FirstRow+q.MaxRows; i++ {
		out = append(out, f.rows[i].Clone())
	}
	return out, nil
}

func (f *fakeBackend) Count(ctx context.Context, q service.CountQuery) (int, error) {
	f.mu.Lock()
	f.counts++
	gate, countErr := f.countGate, f.countErr
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return 0, err
	}
	if countErr != nil {
		return 0, countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows), nil
}

func (f *fakeBackend) Update(ctx context.Context, mods []service.BeanModification) ([]service.Bean, error) {
	f.mu.Lock()
	f.updates = append(f.updates, mods)
	gate := f.updateGate
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []service.Bean
	for _, m := range mods {
		for i := range f.rows {
			if f.rows[i].ID != m.Key.ID {
				continue
			}
			b := f.rows[i].Clone()
			for _, c := range m.Changes {
				b.Values[c.Property] = c.New
			}
			b.Version++
			f.rows[i] = b
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

func (f *fakeBackend) Create(ctx context.Context, parentKeys []service.Key, data []service.BeanData) ([]service.Bean, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, data)
	out := make([]service.Bean, len(data))
	for i, d := range data {
		b := service.Bean{ID: fmt.Sprintf("new%02d", len(f.rows)), Version: 1, Values: d.Values}
		f.rows = append(f.rows, b)
		out[i] = b.Clone()
	}
	return out, nil
}

func (f *fakeBackend) Refresh(ctx context.Context, keys []service.Key) ([]service.Bean, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, keys)
	var out []service.Bean
	for _, k := range keys {
		for _, b := range f.rows {
			if b.ID == k.ID {
				out = append(out, b.Clone())
			}
		}
	}
	return out, nil
}

func (f *fakeBackend) Delete(ctx context.Context, keys []service.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, keys)
	gone := make(map[string]bool, len(keys))
	for _, k := range keys {
		gone[k.ID] = true
	}
	kept := f.rows[:0]
	for _, b := range f.rows {
		if !gone[b.ID] {
			kept = append(kept, b)
		}
	}
	f.rows = kept
	return nil
}

func (f *fakeBackend) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

func (f *fakeBackend) lastRead() service.ReadQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[len(f.reads)-1]
}

func (f *fakeBackend) countCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

func (f *fakeBackend) updateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type harness struct {
	t  *testing.T
	q  *dispatch.Queue
	be *fakeBackend
	m  *Model
}

// newHarness binds a dispatch queue to the test goroutine and builds a model
// over be. Only the reader is wired unless configure adds more.
func newHarness(t *testing.T, be *fakeBackend, configure func(*Config)) *harness {
	t.Helper()
	q := dispatch.NewQueue()
	q.Bind()
	cfg := Config{
		Reader:     be,
		Dispatcher: q,
		Columns: []Column{
			{Property: "title", Title: "Title", Editable: true},
			{Property: "n", Title: "N"},
		},
		Timeout: 5 * time.Second,
	}
	if configure != nil {
		configure(&cfg)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{t: t, q: q, be: be, m: m}
}

// until runs dispatched continuations until cond holds.
func (h *harness) until(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		h.q.Wait(10 * time.Millisecond)
	}
}

// loadAll loads the model and touches every page until nothing is loading.
func (h *harness) loadAll() {
	h.t.Helper()
	if err := h.m.Load(); err != nil {
		h.t.Fatalf("Load: %v", err)
	}
	h.until("count", func() bool {
		h.m.Bean(0)
		return h.m.CountKnown()
	})
	for p := 0; p*h.m.PageSize() < h.m.RowCount(); p++ {
		if err := h.m.LoadPage(p); err != nil {
			h.t.Fatalf("LoadPage(%d): %v", p, err)
		}
	}
	h.until("pages", func() bool { return h.m.loading() == 0 })
}
