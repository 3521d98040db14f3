package table

import (
	"fmt"
	"maps"
	"slices"

	"github.com/five82/captable/internal/service"
)

// Sort returns the current sort keys, most significant first.
func (m *Model) Sort() []service.SortKey {
	return slices.Clone(m.sort)
}

// SetSort replaces the sort keys and reloads.
func (m *Model) SetSort(keys ...service.SortKey) error {
	if err := m.check(); err != nil {
		return err
	}
	m.sort = slices.Clone(keys)
	return m.Load()
}

// ToggleSort cycles property through ascending, descending and unsorted.
// Without additive the property becomes the only sort key; with additive
// the other keys keep their positions.
func (m *Model) ToggleSort(property string, additive bool) error {
	if err := m.check(); err != nil {
		return err
	}
	idx := slices.IndexFunc(m.sort, func(k service.SortKey) bool { return k.Property == property })
	var next []service.SortKey
	switch {
	case !additive && idx < 0:
		next = []service.SortKey{{Property: property}}
	case !additive && !m.sort[idx].Descending:
		next = []service.SortKey{{Property: property, Descending: true}}
	case !additive:
		next = nil
	case idx < 0:
		next = append(slices.Clone(m.sort), service.SortKey{Property: property})
	case !m.sort[idx].Descending:
		next = slices.Clone(m.sort)
		next[idx].Descending = true
	default:
		next = slices.Delete(slices.Clone(m.sort), idx, idx+1)
	}
	return m.SetSort(next...)
}

// SortIndex returns the position of property among the sort keys.
func (m *Model) SortIndex(property string) (index int, descending bool, ok bool) {
	for i, k := range m.sort {
		if k.Property == property {
			return i, k.Descending, true
		}
	}
	return 0, false, false
}

// Filters returns a copy of the named filters.
func (m *Model) Filters() map[string]service.Filter {
	return maps.Clone(m.filters)
}

// SetFilter installs or replaces the filter named id and reloads.
func (m *Model) SetFilter(id string, f service.Filter) error {
	if err := m.check(); err != nil {
		return err
	}
	if !f.Valid() {
		return fmt.Errorf("invalid filter %s", f)
	}
	m.filters[id] = f
	return m.Load()
}

// RemoveFilter drops the filter named id and reloads if it existed.
func (m *Model) RemoveFilter(id string) error {
	if err := m.check(); err != nil {
		return err
	}
	if _, ok := m.filters[id]; !ok {
		return nil
	}
	delete(m.filters, id)
	return m.Load()
}

// ClearFilters drops every filter and reloads.
func (m *Model) ClearFilters() error {
	if err := m.check(); err != nil {
		return err
	}
	if len(m.filters) == 0 {
		return nil
	}
	clear(m.filters)
	return m.Load()
}

// ParentKeys returns the keys restricting the rows of a detail table.
func (m *Model) ParentKeys() []service.Key {
	return slices.Clone(m.parentKeys)
}

// SetParentKeys restricts the rows to children of keys and reloads.
func (m *Model) SetParentKeys(keys []service.Key) error {
	if err := m.check(); err != nil {
		return err
	}
	m.parentKeys = slices.Clone(keys)
	return m.Load()
}

// ViewConfig is the user-adjustable presentation of a table.
type ViewConfig struct {
	Widths map[string]int
	Sort   []service.SortKey
}

// ViewConfig returns the current widths and sort keys.
func (m *Model) ViewConfig() ViewConfig {
	widths := make(map[string]int, len(m.cfg.Columns))
	for _, c := range m.cfg.Columns {
		if c.Width > 0 {
			widths[c.Property] = c.Width
		}
	}
	return ViewConfig{Widths: widths, Sort: m.Sort()}
}

// SetViewConfig applies widths and reloads when the sort keys differ.
func (m *Model) SetViewConfig(vc ViewConfig) error {
	if err := m.check(); err != nil {
		return err
	}
	for i, c := range m.cfg.Columns {
		if w, ok := vc.Widths[c.Property]; ok && w > 0 {
			m.cfg.Columns[i].Width = w
		}
	}
	if slices.Equal(vc.Sort, m.sort) {
		return nil
	}
	return m.SetSort(vc.Sort...)
}
