package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Reader pages through rows and counts them.
type Reader interface {
	Read(ctx context.Context, q ReadQuery) ([]Bean, error)
	Count(ctx context.Context, q CountQuery) (int, error)
}

// Creator persists new beans and returns them in input order.
type Creator interface {
	Create(ctx context.Context, parentKeys []Key, data []BeanData) ([]Bean, error)
}

// Updater applies modifications and returns the updated beans.
type Updater interface {
	Update(ctx context.Context, mods []BeanModification) ([]Bean, error)
}

// Refresher returns the current snapshots for keys. Beans that no longer
// exist are omitted from the result.
type Refresher interface {
	Refresh(ctx context.Context, keys []Key) ([]Bean, error)
}

// Deleter removes beans.
type Deleter interface {
	Delete(ctx context.Context, keys []Key) error
}

// Service bundles every contract; sqlstore.Store and Client implement it.
type Service interface {
	Reader
	Creator
	Updater
	Refresher
	Deleter
}

var (
	// ErrTimeout is synthesized when a call does not answer in time.
	ErrTimeout = errors.New("request timed out")
	// ErrCanceled marks calls aborted by the user.
	ErrCanceled = errors.New("canceled")
	// ErrStale reports an optimistic concurrency conflict.
	ErrStale = errors.New("bean was modified concurrently")
	// ErrNotFound reports a bean that no longer exists.
	ErrNotFound = errors.New("bean not found")
	// ErrConstraint reports a rejected value.
	ErrConstraint = errors.New("constraint violation")
)

// BatchError carries per-bean failures of a batch call. Nothing of the batch
// was applied.
type BatchError struct {
	Failures map[string]error
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[id]))
	}
	return "batch failed: " + strings.Join(parts, "; ")
}

// ErrorFor returns the failure recorded for id, or nil.
func (e *BatchError) ErrorFor(id string) error {
	if e == nil {
		return nil
	}
	return e.Failures[id]
}

// Unwrap exposes the per-bean errors to errors.Is.
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}

type errorKind struct {
	name     string
	sentinel error
}

// errorKinds maps sentinel errors to wire names and back.
var errorKinds = []errorKind{
	{"timeout", ErrTimeout},
	{"canceled", ErrCanceled},
	{"stale", ErrStale},
	{"not_found", ErrNotFound},
	{"constraint", ErrConstraint},
}

func kindOf(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.name
		}
	}
	return ""
}

func sentinelFor(kind string) error {
	for _, k := range errorKinds {
		if k.name == kind {
			return k.sentinel
		}
	}
	return nil
}
