package analysis

import (
	"slices"
	"sync"
)

// Results holds the types that rules have added, layered over the module's
// walked variables.
type Results struct {
	mu        sync.RWMutex
	vars      *VariableMap
	sets      map[string]*TypeSet
	listeners []*listener
	frozen    bool
}

type listener struct {
	reads, writes map[string]struct{}
}

func NewResults(vars *VariableMap) *Results {
	if vars == nil {
		vars = NewVariableMap()
	}
	return &Results{vars: vars, sets: make(map[string]*TypeSet)}
}

// Variables returns the walked variables beneath the results.
func (r *Results) Variables() *VariableMap { return r.vars }

// Track records every key read or written until the returned stop func is
// called. Either map may be nil.
func (r *Results) Track(reads, writes map[string]struct{}) (stop func()) {
	l := &listener{reads: reads, writes: writes}
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if i := slices.Index(r.listeners, l); i >= 0 {
			r.listeners = slices.Delete(r.listeners, i, i+1)
		}
	}
}

// AddTypes reports whether the set stored for key grew. Growth counts as a
// write for every active tracker.
func (r *Results) AddTypes(key string, values []Value) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("analysis: AddTypes on frozen results")
	}
	set, ok := r.sets[key]
	if !ok {
		set = NewTypeSet()
		r.sets[key] = set
	}
	if !set.AddAll(values) {
		return false
	}
	for _, l := range r.listeners {
		if l.writes != nil {
			l.writes[key] = struct{}{}
		}
	}
	return true
}

// TryTypes returns only the rule-derived types for key.
func (r *Results) TryTypes(key string) ([]Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noteReadLocked(key)
	set, ok := r.sets[key]
	if !ok {
		return nil, false
	}
	return set.Values(), true
}

// Types returns the union of the walked variable and the rule results.
func (r *Results) Types(key string) []Value {
	local, _ := r.TryTypes(key)
	return Union(r.vars.Types(key), local)
}

func (r *Results) noteReadLocked(key string) {
	for _, l := range r.listeners {
		if l.reads != nil {
			l.reads[key] = struct{}{}
		}
	}
}

// Keys returns the keys that have rule results, sorted.
func (r *Results) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.sets))
	for k := range r.sets {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Len counts keys with rule results.
func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

// All returns every key known to the variables or the results with its full
// type list.
func (r *Results) All() map[string][]Value {
	out := make(map[string][]Value)
	for _, k := range r.vars.Keys() {
		out[k] = r.vars.Types(k)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, set := range r.sets {
		out[k] = Union(out[k], set.Values())
	}
	return out
}

// Clone copies the result sets. The clone is never frozen.
func (r *Results) Clone() *Results {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewResults(r.vars)
	for k, set := range r.sets {
		out.sets[k] = set.Clone()
	}
	return out
}

// Freeze makes the results read-only.
func (r *Results) Freeze() *Results {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
	return r
}

func (r *Results) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
