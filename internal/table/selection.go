package table

import (
	"sort"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/service"
)

// SetSelection selects the beans shown in rows. Rows without a loaded bean
// are ignored. Selection follows the beans when rows are renumbered.
func (m *Model) SetSelection(rows ...int) {
	beans := make([]*bean.Proxy, 0, len(rows))
	for _, row := range rows {
		beans = append(beans, m.Bean(row))
	}
	m.SelectBeans(beans...)
}

// SelectBeans replaces the selection.
func (m *Model) SelectBeans(beans ...*bean.Proxy) {
	next := make(map[*bean.Proxy]struct{}, len(beans))
	for _, b := range beans {
		if b != nil && !b.IsDummy() {
			next[b] = struct{}{}
		}
	}
	m.pendingSelection = nil
	if sameSelection(m.selection, next) {
		return
	}
	m.selection = next
	m.publish(Event{Kind: SelectionChanged, Page: -1})
	m.publishStatus()
}

// ToggleSelection adds or removes the bean in row.
func (m *Model) ToggleSelection(row int) {
	b := m.Bean(row)
	if b == nil || b.IsDummy() {
		return
	}
	next := make([]*bean.Proxy, 0, len(m.selection)+1)
	found := false
	for sel := range m.selection {
		if sel == b {
			found = true
			continue
		}
		next = append(next, sel)
	}
	if !found {
		next = append(next, b)
	}
	m.SelectBeans(next...)
}

// ClearSelection deselects everything.
func (m *Model) ClearSelection() {
	m.SelectBeans()
}

// IsSelected reports whether b is selected.
func (m *Model) IsSelected(b *bean.Proxy) bool {
	_, ok := m.selection[b]
	return ok
}

// SelectedBeans returns the selected beans in row order.
func (m *Model) SelectedBeans() []*bean.Proxy {
	rows := m.SelectedRows()
	out := make([]*bean.Proxy, 0, len(rows))
	for _, row := range rows {
		out = append(out, m.Bean(row))
	}
	return out
}

// SelectedRows returns the rows of the selected beans in ascending order.
func (m *Model) SelectedRows() []int {
	if len(m.selection) == 0 {
		return nil
	}
	rows := make([]int, 0, len(m.selection))
	for b := range m.selection {
		if row, ok := m.RowOf(b); ok {
			rows = append(rows, row)
		}
	}
	sort.Ints(rows)
	return rows
}

// SelectedKeys returns the keys of the selected persisted beans in row
// order.
func (m *Model) SelectedKeys() []service.Key {
	var keys []service.Key
	for _, b := range m.SelectedBeans() {
		if !b.IsTransient() {
			keys = append(keys, b.Key())
		}
	}
	return keys
}

func sameSelection(a, b map[*bean.Proxy]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
