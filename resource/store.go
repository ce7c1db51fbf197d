package resource

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("resource store closed")

// store is slot storage with free-list reuse and per-slot generations.
type store struct {
	entries  []entry
	freeList []uint32
	live     int
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	gen   uint32
	kind  Kind
	valid bool
}

func newStore() *store {
	return &store{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

func (s *store) create(kind Kind, value any) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	s.live++

	if n := len(s.freeList); n > 0 {
		slot := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		e := &s.entries[slot-1]
		e.gen++
		e.kind = kind
		e.value = value
		e.valid = true
		return makeID(slot, e.gen), nil
	}

	s.entries = append(s.entries, entry{kind: kind, value: value, valid: true, gen: 1})
	return makeID(uint32(len(s.entries)), 1), nil
}

// lookup returns the entry for id. The caller holds s.mu.
func (s *store) lookup(id ID) *entry {
	slot := id.slot()
	if slot == 0 || int(slot) > len(s.entries) {
		return nil
	}
	e := &s.entries[slot-1]
	if !e.valid || e.gen != id.gen() {
		return nil
	}
	return e
}

func (s *store) get(id ID) (any, Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.lookup(id)
	if e == nil {
		return nil, 0, false
	}
	return e.value, e.kind, true
}

func (s *store) drop(id ID) (any, Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(id)
	if e == nil {
		return nil, 0, false
	}
	value, kind := e.value, e.kind
	e.valid = false
	e.value = nil
	s.live--
	s.freeList = append(s.freeList, id.slot())
	return value, kind, true
}

func (s *store) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

func (s *store) each(fn func(ID, Kind, any) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, e := range s.entries {
		if e.valid {
			if !fn(makeID(uint32(i+1), e.gen), e.kind, e.value) {
				break
			}
		}
	}
}

// close invalidates every entry and returns the values that were live.
func (s *store) close() []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var values []any
	for i := range s.entries {
		if s.entries[i].valid {
			values = append(values, s.entries[i].value)
		}
	}
	s.entries = nil
	s.freeList = nil
	s.live = 0
	return values
}
