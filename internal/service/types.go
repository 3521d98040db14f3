package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key identifies one version of a persisted bean.
type Key struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.ID, k.Version)
}

// Bean is the immutable snapshot of a remote bean.
type Bean struct {
	ID      string         `json:"id"`
	Version int64          `json:"version"`
	Values  map[string]any `json:"values"`
}

// Key returns the bean's identity.
func (b Bean) Key() Key {
	return Key{ID: b.ID, Version: b.Version}
}

// Value returns the snapshot value of property, or nil.
func (b Bean) Value(property string) any {
	if b.Values == nil {
		return nil
	}
	return b.Values[property]
}

// Clone returns a copy whose Values map is independent of b's.
func (b Bean) Clone() Bean {
	dup := b
	if b.Values != nil {
		dup.Values = make(map[string]any, len(b.Values))
		for k, v := range b.Values {
			dup.Values[k] = v
		}
	}
	return dup
}

// Change is one pending property edit.
type Change struct {
	Property string `json:"property"`
	Old      any    `json:"old"`
	New      any    `json:"new"`
}

// BeanModification carries the edits of one bean for an update call.
type BeanModification struct {
	Key     Key      `json:"key"`
	Changes []Change `json:"changes"`
}

// BeanData is the payload of a bean that does not exist remotely yet.
type BeanData struct {
	ClientID string         `json:"clientId"`
	Values   map[string]any `json:"values"`
}

// SortKey orders by one property.
type SortKey struct {
	Property   string `json:"property"`
	Descending bool   `json:"descending,omitempty"`
}

func (s SortKey) String() string {
	if s.Descending {
		return s.Property + " desc"
	}
	return s.Property + " asc"
}

// ParseSortKey accepts "title", "title asc", "title desc" and "-title".
func ParseSortKey(expr string) (SortKey, error) {
	fields := strings.Fields(expr)
	switch len(fields) {
	case 1:
		if rest, ok := strings.CutPrefix(fields[0], "-"); ok && rest != "" {
			return SortKey{Property: rest, Descending: true}, nil
		}
		return SortKey{Property: fields[0]}, nil
	case 2:
		switch strings.ToLower(fields[1]) {
		case "asc":
			return SortKey{Property: fields[0]}, nil
		case "desc":
			return SortKey{Property: fields[0], Descending: true}, nil
		}
	}
	return SortKey{}, fmt.Errorf("invalid sort key %q", expr)
}

// Operator compares a property against a filter value.
type Operator string

const (
	OpEqual     Operator = "="
	OpNotEqual  Operator = "!="
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
	OpContains  Operator = "~"
)

// operators is ordered so two-character operators match before their prefixes.
var operators = []Operator{OpNotEqual, OpLessEq, OpGreaterEq, OpEqual, OpLess, OpGreater, OpContains}

// Filter restricts rows by one property. Filters passed together are ANDed.
type Filter struct {
	Property string   `json:"property"`
	Op       Operator `json:"op"`
	Value    any      `json:"value"`
}

func (f Filter) String() string {
	return fmt.Sprintf("%s%s%v", f.Property, f.Op, f.Value)
}

// Valid reports whether the operator is known and a property is set.
func (f Filter) Valid() bool {
	if strings.TrimSpace(f.Property) == "" {
		return false
	}
	for _, op := range operators {
		if f.Op == op {
			return true
		}
	}
	return false
}

// ParseFilter parses expressions such as "status=open" or "title~disc".
func ParseFilter(expr string) (Filter, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return Filter{}, fmt.Errorf("filter is empty")
	}
	for i := 0; i < len(trimmed); i++ {
		for _, op := range operators {
			if strings.HasPrefix(trimmed[i:], string(op)) {
				property := strings.TrimSpace(trimmed[:i])
				if property == "" {
					return Filter{}, fmt.Errorf("filter %q has no property", expr)
				}
				value := strings.TrimSpace(trimmed[i+len(op):])
				return Filter{Property: property, Op: op, Value: value}, nil
			}
		}
	}
	return Filter{}, fmt.Errorf("filter %q has no operator", expr)
}

// ReadQuery selects one window of rows.
type ReadQuery struct {
	ParentKeys []Key             `json:"parentKeys,omitempty"`
	Filters    []Filter          `json:"filters,omitempty"`
	Sort       []SortKey         `json:"sort,omitempty"`
	FirstRow   int               `json:"firstRow"`
	MaxRows    int               `json:"maxRows"`
	Parameter  map[string]string `json:"parameter,omitempty"`
}

// CountQuery counts the rows a ReadQuery without paging would return.
type CountQuery struct {
	ParentKeys []Key             `json:"parentKeys,omitempty"`
	Filters    []Filter          `json:"filters,omitempty"`
	Parameter  map[string]string `json:"parameter,omitempty"`
}

// SortedFilters returns the values of filters ordered by their ids so a
// query built from a map is deterministic.
func SortedFilters(filters map[string]Filter) []Filter {
	if len(filters) == 0 {
		return nil
	}
	ids := make([]string, 0, len(filters))
	for id := range filters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Filter, 0, len(ids))
	for _, id := range ids {
		out = append(out, filters[id])
	}
	return out
}

// beansResponse is the envelope for endpoints returning beans.
type beansResponse struct {
	Beans []Bean `json:"beans"`
}

type countResponse struct {
	Count int `json:"count"`
}

type createRequest struct {
	ParentKeys []Key      `json:"parentKeys,omitempty"`
	Beans      []BeanData `json:"beans"`
}

type updateRequest struct {
	Modifications []BeanModification `json:"modifications"`
}

type keysRequest struct {
	Keys []Key `json:"keys"`
}

type errorResponse struct {
	Error    string            `json:"error"`
	Kind     string            `json:"kind,omitempty"`
	Failures map[string]string `json:"failures,omitempty"`
}

// decodeValues normalizes JSON numbers: integral values become int64 so
// snapshots round-trip the same way they come out of the sqlite store.
func decodeValues(values map[string]any) {
	for k, v := range values {
		values[k] = decodeNumber(v)
	}
}

func decodeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
