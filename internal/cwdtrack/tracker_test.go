package cwdtrack

import (
	"errors"
	"testing"
	"time"
)

func newTestTracker() (*Tracker, *int, *string) {
	calls := 0
	dir := "/home/user"
	t := New(1234)
	t.lookup = func(int32) (string, error) {
		calls++
		return dir, nil
	}
	return t, &calls, &dir
}

func TestTracker_CachesWithinTTL(t *testing.T) {
	tr, calls, _ := newTestTracker()
	base := time.Now()
	tr.now = func() time.Time { return base }

	if got := tr.Cwd(); got != "/home/user" {
		t.Fatalf("got %q", got)
	}
	tr.Cwd()
	tr.Cwd()
	if *calls != 1 {
		t.Fatalf("expected a single procfs lookup, got %d", *calls)
	}
}

func TestTracker_RefreshesAfterTTL(t *testing.T) {
	tr, calls, dir := newTestTracker()
	base := time.Now()
	tr.now = func() time.Time { return base }

	tr.Cwd()
	*dir = "/tmp/elsewhere"
	tr.now = func() time.Time { return base.Add(2 * time.Second) }
	if got := tr.Cwd(); got != "/tmp/elsewhere" {
		t.Fatalf("stale cwd after TTL: %q", got)
	}
	if *calls != 2 {
		t.Fatalf("expected 2 lookups, got %d", *calls)
	}
}

func TestTracker_LookupFailureKeepsLastValue(t *testing.T) {
	tr, _, _ := newTestTracker()
	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.Cwd()

	tr.lookup = func(int32) (string, error) { return "", errors.New("gone") }
	tr.now = func() time.Time { return base.Add(2 * time.Second) }
	if got := tr.Cwd(); got != "/home/user" {
		t.Fatalf("should fall back to last known cwd, got %q", got)
	}
}

func TestTracker_InvalidateForcesRefresh(t *testing.T) {
	tr, calls, _ := newTestTracker()
	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.Cwd()
	tr.Invalidate()
	tr.Cwd()
	if *calls != 2 {
		t.Fatalf("invalidate should force a lookup, got %d", *calls)
	}
}

func TestTracker_NilReceiver(t *testing.T) {
	var tr *Tracker
	if got := tr.Cwd(); got != "" {
		t.Fatalf("nil tracker should return empty, got %q", got)
	}
	tr.Invalidate()
}
