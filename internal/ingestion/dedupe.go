package ingestion

import "sync"

// recentSet remembers the last max keys and forgets the oldest first.
type recentSet struct {
	mu    sync.Mutex
	max   int
	keys  map[string]struct{}
	order []string
	next  int
}

func newRecentSet(max int) *recentSet {
	return &recentSet{
		max:   max,
		keys:  make(map[string]struct{}, max),
		order: make([]string, 0, max),
	}
}

// add returns false if key was already present.
func (s *recentSet) add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return false
	}

	if len(s.order) < s.max {
		s.order = append(s.order, key)
	} else {
		delete(s.keys, s.order[s.next])
		s.order[s.next] = key
		s.next = (s.next + 1) % s.max
	}
	s.keys[key] = struct{}{}
	return true
}
