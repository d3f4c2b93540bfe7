// Package cwdtrack reports the working directory of the wrapped shell
// process. The value is best-effort: the shell can cd at any moment, so
// callers treat it as an approximation for display, never a correctness
// input.
package cwdtrack

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const cacheTTL = time.Second

// Tracker caches the shell's cwd briefly so confirmation prompts do not
// hit procfs on every call.
type Tracker struct {
	pid int32

	mu      sync.Mutex
	cached  string
	fetched time.Time

	now    func() time.Time
	lookup func(pid int32) (string, error)
}

func New(pid int) *Tracker {
	return &Tracker{
		pid: int32(pid),
		now: time.Now,
		lookup: func(pid int32) (string, error) {
			p, err := process.NewProcess(pid)
			if err != nil {
				return "", err
			}
			return p.Cwd()
		},
	}
}

// Cwd returns the shell's current working directory, or "" when it cannot
// be determined. Stale values up to one second old may be returned.
func (t *Tracker) Cwd() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cached != "" && t.now().Sub(t.fetched) < cacheTTL {
		return t.cached
	}
	dir, err := t.lookup(t.pid)
	if err != nil {
		// Keep whatever we had; an exiting or restricted process is not
		// worth surfacing to the user.
		return t.cached
	}
	t.cached = dir
	t.fetched = t.now()
	return dir
}

// Invalidate drops the cache, forcing the next Cwd call to re-query.
func (t *Tracker) Invalidate() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetched = time.Time{}
}
