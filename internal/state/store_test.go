package state

import (
	"errors"
	"testing"
	"time"
)

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	before := time.Now()
	s.Update(&Status{Rows: 5, CountKnown: true, Counted: 5, Sort: []string{"title"}}, nil)

	snap := s.Snapshot()
	if !snap.HasStatus || snap.Status.Rows != 5 {
		t.Fatalf("snapshot status = %#v, want rows=5 HasStatus=true", snap.Status)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Status.Sort[0] = "mutated"
	snap2 := s.Snapshot()
	if snap2.Status.Sort[0] != "title" {
		t.Fatalf("Snapshot should clone sort; got %q want title", snap2.Status.Sort[0])
	}
}

func TestStore_UpdateErrorKeepsPreviousStatus(t *testing.T) {
	var s Store

	s.Update(&Status{Rows: 3}, nil)
	origErr := errors.New("boom")
	s.Update(nil, origErr)
	s.Update(nil, origErr)

	snap := s.Snapshot()
	if snap.Status.Rows != 3 || !snap.HasStatus {
		t.Fatalf("status changed on error: got %#v", snap.Status)
	}
	if !errors.Is(snap.LastError, origErr) {
		t.Fatalf("LastError = %v, want wrapped %v", snap.LastError, origErr)
	}
	if !snap.IsOffline() {
		t.Fatalf("IsOffline() = false after 2 failures")
	}

	s.Succeeded()
	snap = s.Snapshot()
	if snap.LastError != nil || snap.ConsecutiveFailures != 0 {
		t.Fatalf("Succeeded did not reset errors: %#v", snap)
	}
}

func TestSnapshot_Pending(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{Status{}, false},
		{Status{Modified: 1}, true},
		{Status{Transient: 1}, true},
		{Status{Executing: 2}, true},
		{Status{Rows: 100, LoadingPages: 1}, false},
	}
	for _, tt := range tests {
		if got := (Snapshot{Status: tt.status}).Pending(); got != tt.want {
			t.Fatalf("Pending(%+v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
