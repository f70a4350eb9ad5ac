package analysis

import (
	"fmt"
	"slices"
	"sync"
)

// Variable is a binding identified by its scope-qualified key.
type Variable struct {
	Key   string
	types *TypeSet
}

func NewVariable(key string) *Variable {
	return &Variable{Key: key, types: NewTypeSet()}
}

// AddType ignores nil.
func (v *Variable) AddType(t Value) bool { return v.types.Add(t) }

func (v *Variable) AddTypes(ts []Value) bool { return v.types.AddAll(ts) }

func (v *Variable) Types() []Value { return v.types.Values() }

func (v *Variable) Version() uint64 { return v.types.Version() }

func (v *Variable) String() string {
	return fmt.Sprintf("{%s}", Annotations(v.Types()))
}

// VariableMap is the flat key -> Variable table of one module.
type VariableMap struct {
	mu   sync.RWMutex
	vars map[string]*Variable
}

func NewVariableMap() *VariableMap {
	return &VariableMap{vars: make(map[string]*Variable)}
}

// Get returns the variable for key, or nil.
func (m *VariableMap) Get(key string) *Variable {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vars[key]
}

// GetOrAdd creates the variable on first use.
func (m *VariableMap) GetOrAdd(key string) *Variable {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vars[key]
	if !ok {
		v = NewVariable(key)
		m.vars[key] = v
	}
	return v
}

// Put replaces the variable stored under v.Key.
func (m *VariableMap) Put(v *Variable) {
	m.mu.Lock()
	m.vars[v.Key] = v
	m.mu.Unlock()
}

func (m *VariableMap) Remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.vars[key]
	delete(m.vars, key)
	return ok
}

func (m *VariableMap) Clear() {
	m.mu.Lock()
	m.vars = make(map[string]*Variable)
	m.mu.Unlock()
}

// Keys returns every key in sorted order.
func (m *VariableMap) Keys() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	keys := make([]string, 0, len(m.vars))
	for k := range m.vars {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

func (m *VariableMap) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vars)
}

// Types returns the variable's types, or nil when it does not exist.
func (m *VariableMap) Types(key string) []Value {
	if v := m.Get(key); v != nil {
		return v.Types()
	}
	return nil
}

// Clone copies the table. Variables are shared.
func (m *VariableMap) Clone() *VariableMap {
	out := NewVariableMap()
	if m == nil {
		return out
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.vars {
		out.vars[k] = v
	}
	return out
}
