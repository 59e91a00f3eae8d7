package http

import (
	"sync"

	"github.com/melih/diskforge/internal/core/ports"
	"github.com/melih/diskforge/internal/core/services/build"
)

// Snapshot is the live state of a build started through the API.
type Snapshot struct {
	Percent   int    `json:"percent"`
	Done      bool   `json:"done"`
	Skipped   bool   `json:"skipped,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Tracker keeps the progress of builds started by this process.
type Tracker struct {
	mu     sync.RWMutex
	builds map[string]*Snapshot
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{builds: make(map[string]*Snapshot)}
}

// Start resets the progress of id and returns its ports.Progress.
func (t *Tracker) Start(id string) ports.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.builds[id] = &Snapshot{}
	return &buildProgress{tracker: t, id: id}
}

// Finish records how the build ended.
func (t *Tracker) Finish(id string, res build.Result, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.builds[id]
	if !ok {
		return
	}
	s.Done = true
	s.Skipped = res.Skipped
	s.Cancelled = res.Cancelled
	if err != nil {
		s.Error = err.Error()
	} else if !res.Skipped && !res.Cancelled {
		s.Percent = 100
	}
}

// Get returns a copy of the progress of id, if it is tracked.
func (t *Tracker) Get(id string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.builds[id]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

// Forget drops id from the tracker.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.builds, id)
}

type buildProgress struct {
	tracker *Tracker
	id      string
}

// Increment moves the build forward to the milestone delta. Negative deltas
// mark the end of the build task and are left to Finish.
func (p *buildProgress) Increment(delta int) {
	if delta < 0 {
		return
	}
	p.tracker.mu.Lock()
	defer p.tracker.mu.Unlock()
	if s, ok := p.tracker.builds[p.id]; ok && delta > s.Percent {
		s.Percent = min(delta, 100)
	}
}
