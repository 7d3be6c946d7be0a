package cart

import "sync"

// sequencer serialises work per key. Entries are dropped once nobody holds or waits on them.
type sequencer struct {
	mu    sync.Mutex
	locks map[string]*seqEntry
}

type seqEntry struct {
	mu   sync.Mutex
	refs int
}

func newSequencer() *sequencer {
	return &sequencer{locks: make(map[string]*seqEntry)}
}

// Lock blocks until key is free and returns the matching unlock.
func (s *sequencer) Lock(key string) func() {
	s.mu.Lock()
	e, ok := s.locks[key]
	if !ok {
		e = &seqEntry{}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *sequencer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
