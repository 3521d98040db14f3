package table

import (
	"slices"
	"time"

	"github.com/five82/captable/internal/clock"
)

// ParentBinding reloads a detail table with the keys selected in a master
// table. Bursts of selection changes collapse into one reload after the
// debounce delay.
type ParentBinding struct {
	parent      *Model
	child       *Model
	delay       time.Duration
	timer       clock.Timer
	seq         int
	unsubscribe func()
	reloads     int
}

// BindParent makes child follow parent's selection. A non-positive delay
// means DefaultParentDebounce.
func BindParent(parent, child *Model, delay time.Duration) *ParentBinding {
	if delay <= 0 {
		delay = DefaultParentDebounce
	}
	b := &ParentBinding{parent: parent, child: child, delay: delay}
	b.unsubscribe = parent.Subscribe(func(e Event) {
		if e.Kind == SelectionChanged {
			b.schedule()
		}
	})
	return b
}

func (b *ParentBinding) schedule() {
	b.seq++
	seq := b.seq
	if b.timer != nil {
		b.timer.Stop()
	}
	d := b.child.cfg.Dispatcher
	b.timer = b.child.clock.AfterFunc(b.delay, func() {
		d.InvokeLater(func() {
			if seq == b.seq {
				b.reload()
			}
		})
	})
}

func (b *ParentBinding) reload() {
	if b.child.disposed || b.parent.disposed {
		return
	}
	keys := b.parent.SelectedKeys()
	if slices.Equal(keys, b.child.parentKeys) {
		return
	}
	b.reloads++
	if len(keys) == 0 {
		b.child.parentKeys = nil
		if err := b.child.Clear(); err != nil {
			b.child.log.Printf("table: clear detail: %v", err)
		}
		return
	}
	if err := b.child.SetParentKeys(keys); err != nil {
		b.child.log.Printf("table: reload detail: %v", err)
	}
}

// Reloads returns how many times the child was reloaded or cleared.
func (b *ParentBinding) Reloads() int { return b.reloads }

// Close stops following the parent.
func (b *ParentBinding) Close() {
	b.unsubscribe()
	b.seq++
	if b.timer != nil {
		b.timer.Stop()
	}
}
