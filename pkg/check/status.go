package check

import (
	"sync"
)

// Status keeps the latest probe Result per hostname so that readers outside
// the scheduler (the status API) can report latency. It is safe for
// concurrent use.
type Status struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewStatus creates an empty Status.
func NewStatus() *Status {
	return &Status{results: make(map[string]Result)}
}

// SetResult stores the latest result for hostname.
func (s *Status) SetResult(hostname string, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[hostname] = result
}

// Result returns the latest result for hostname.
func (s *Status) Result(hostname string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[hostname]
	return r, ok
}

// Alive reports whether the last probe of hostname succeeded.
func (s *Status) Alive(hostname string) bool {
	r, _ := s.Result(hostname)
	return r.Success
}

// Retain drops every entry whose hostname is not in keep.
func (s *Status) Retain(keep []string) {
	set := make(map[string]struct{}, len(keep))
	for _, h := range keep {
		set[h] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.results {
		if _, ok := set[h]; !ok {
			delete(s.results, h)
		}
	}
}

// Len returns the number of tracked hostnames.
func (s *Status) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
