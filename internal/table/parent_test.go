package table

import (
	"testing"
	"time"

	"github.com/five82/captable/internal/clock"
	"github.com/five82/captable/internal/service"
	"github.com/google/go-cmp/cmp"
)

func TestParentBinding_DebouncesSelection(t *testing.T) {
	parent := newHarness(t, newBackend(3), nil)
	parent.loadAll()

	fake := clock.NewFake(time.Unix(0, 0))
	childBackend := newBackend(2)
	child := newHarness(t, childBackend, func(c *Config) {
		c.Dispatcher = parent.q
		c.Clock = fake
	})
	b := BindParent(parent.m, child.m, 100*time.Millisecond)
	defer b.Close()

	parent.m.SetSelection(0)
	parent.m.SetSelection(1)
	if got := fake.Pending(); got != 1 {
		t.Fatalf("pending timers = %d, want 1", got)
	}
	fake.Advance(100 * time.Millisecond)
	parent.until("reload", func() bool { return b.Reloads() == 1 })

	want := []service.Key{parent.m.Bean(1).Key()}
	if diff := cmp.Diff(want, child.m.ParentKeys()); diff != "" {
		t.Fatalf("parent keys mismatch (-want +got):\n%s", diff)
	}
	child.m.Bean(0)
	parent.until("child page", func() bool { return childBackend.readCount() == 1 && !child.m.IsLoading(0) })
	if diff := cmp.Diff(want, childBackend.lastRead().ParentKeys); diff != "" {
		t.Fatalf("read parent keys mismatch (-want +got):\n%s", diff)
	}

	parent.m.ClearSelection()
	fake.Advance(100 * time.Millisecond)
	parent.until("clear", func() bool { return b.Reloads() == 2 })
	if child.m.ParentKeys() != nil || child.m.RowCount() != 0 {
		t.Fatalf("child not cleared: keys %v rows %d", child.m.ParentKeys(), child.m.RowCount())
	}
}

func TestParentBinding_CloseStopsFollowing(t *testing.T) {
	parent := newHarness(t, newBackend(3), nil)
	parent.loadAll()
	fake := clock.NewFake(time.Unix(0, 0))
	child := newHarness(t, newBackend(2), func(c *Config) {
		c.Dispatcher = parent.q
		c.Clock = fake
	})
	b := BindParent(parent.m, child.m, 0)

	parent.m.SetSelection(2)
	b.Close()
	if got := fake.Pending(); got != 0 {
		t.Fatalf("pending timers after Close = %d, want 0", got)
	}
	parent.m.SetSelection(0)
	fake.Advance(DefaultParentDebounce)
	parent.q.Wait(10 * time.Millisecond)
	if got := b.Reloads(); got != 0 {
		t.Fatalf("Reloads = %d, want 0", got)
	}
}
