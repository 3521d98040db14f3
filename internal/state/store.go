package state

import (
	"fmt"
	"sync"
	"time"
)

// Status summarizes one table model for the status bar.
type Status struct {
	Rows         int
	CountKnown   bool
	Counted      int
	LoadingPages int
	Modified     int
	Transient    int
	Executing    int
	Selected     int
	Sort         []string
	Filters      []string
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Status              Status
	HasStatus           bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive failed backend calls
}

// IsOffline returns true when the backend failed several calls in a row.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Pending reports whether unsaved edits or running operations exist.
func (s Snapshot) Pending() bool {
	return s.Status.Modified > 0 || s.Status.Transient > 0 || s.Status.Executing > 0
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored status. When err is non-nil the previous status
// is kept but the error is recorded for visibility.
func (s *Store) Update(status *Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	if status != nil {
		s.snapshot.Status = cloneStatus(*status)
		s.snapshot.HasStatus = true
	} else {
		s.snapshot.HasStatus = false
	}
	s.snapshot.LastUpdated = time.Now()
}

// Succeeded records a successful backend call, clearing the last error.
func (s *Store) Succeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Status = cloneStatus(s.snapshot.Status)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneStatus(st Status) Status {
	st.Sort = cloneStrings(st.Sort)
	st.Filters = cloneStrings(st.Filters)
	return st
}

func cloneStrings(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	dup := make([]string, len(items))
	copy(dup, items)
	return dup
}
