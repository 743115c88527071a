package evaluation

import "sync"

// DefaultRunHistory is the number of runs kept by a RunStore.
const DefaultRunHistory = 20

// RunStore keeps the most recent runs in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs []*Run // oldest first
	max  int
}

// NewRunStore creates a store holding at most max runs.
func NewRunStore(max int) *RunStore {
	if max <= 0 {
		max = DefaultRunHistory
	}
	return &RunStore{max: max}
}

// Add stores run, evicting the oldest run when full.
func (s *RunStore) Add(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run)
	if len(s.runs) > s.max {
		s.runs = append([]*Run(nil), s.runs[len(s.runs)-s.max:]...)
	}
}

// Get returns the run with id.
func (s *RunStore) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.runs {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// List returns the stored runs, newest first.
func (s *RunStore) List() []RunInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunInfo, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, s.runs[i].Info())
	}
	return out
}
