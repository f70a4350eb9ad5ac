package analysis

import "sync"

// TypeSet is a growable union of values. Adding a value already present is a
// no-op; every growth bumps the version.
type TypeSet struct {
	mu      sync.RWMutex
	index   map[Value]struct{}
	order   []Value
	version uint64
}

func NewTypeSet(values ...Value) *TypeSet {
	s := &TypeSet{index: make(map[Value]struct{}, len(values))}
	s.AddAll(values)
	return s
}

// Add reports whether v was new.
func (s *TypeSet) Add(v Value) bool {
	if v == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(v)
}

func (s *TypeSet) addLocked(v Value) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.order = append(s.order, v)
	s.version++
	return true
}

// AddAll reports whether the set grew.
func (s *TypeSet) AddAll(values []Value) bool {
	if len(values) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	grew := false
	for _, v := range values {
		if v != nil && s.addLocked(v) {
			grew = true
		}
	}
	return grew
}

func (s *TypeSet) Contains(v Value) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[v]
	return ok
}

// Values returns the members in insertion order.
func (s *TypeSet) Values() []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Value, len(s.order))
	copy(out, s.order)
	return out
}

func (s *TypeSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *TypeSet) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *TypeSet) Clone() *TypeSet {
	return NewTypeSet(s.Values()...)
}

// Union merges several lists, keeping first-seen order.
func Union(lists ...[]Value) []Value {
	set := NewTypeSet()
	for _, l := range lists {
		set.AddAll(l)
	}
	return set.Values()
}
