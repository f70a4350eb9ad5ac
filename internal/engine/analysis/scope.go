package analysis

import (
	"fmt"
	"strings"
	"sync"

	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

// ScopeError is the panic value for unbalanced scope tracking. It indicates
// a walker bug, never bad input.
type ScopeError struct {
	Expected string
	Popped   string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("scopes were not processed correctly: expected %q, popped %q", e.Expected, e.Popped)
}

type scopeEntry struct {
	key, suffix string
}

// ScopeTracker is the stack of enclosing scopes. Keys compose: entering
// "g@1" with suffix "#" inside "f@1#" yields the key "f@1#g@1".
type ScopeTracker struct {
	stack []scopeEntry
}

func (t *ScopeTracker) Enter(name, suffix string) {
	key := name
	if n := len(t.stack); n > 0 {
		top := t.stack[n-1]
		key = top.key + top.suffix + name
	}
	t.stack = append(t.stack, scopeEntry{key: key, suffix: suffix})
}

// Leave pops the innermost scope, which must have been entered as name.
func (t *ScopeTracker) Leave(name, suffix string) {
	n := len(t.stack)
	if n == 0 {
		panic(&ScopeError{Expected: name + suffix})
	}
	top := t.stack[n-1]
	t.stack = t.stack[:n-1]
	if !strings.HasSuffix(top.key, name) || top.suffix != suffix {
		panic(&ScopeError{Expected: name + suffix, Popped: top.key + top.suffix})
	}
}

func (t *ScopeTracker) Depth() int { return len(t.stack) }

func (t *ScopeTracker) Reset() { t.stack = t.stack[:0] }

func (t *ScopeTracker) Current() string {
	if len(t.stack) == 0 {
		return ""
	}
	return t.stack[len(t.stack)-1].key
}

func (t *ScopeTracker) CurrentWithSuffix() string {
	if len(t.stack) == 0 {
		return ""
	}
	top := t.stack[len(t.stack)-1]
	return top.key + top.suffix
}

// ScopesWithSuffix lists every enclosing scope prefix, innermost first.
func (t *ScopeTracker) ScopesWithSuffix() []string {
	out := make([]string, 0, len(t.stack))
	for i := len(t.stack) - 1; i >= 0; i-- {
		out = append(out, t.stack[i].key+t.stack[i].suffix)
	}
	return out
}

// Scope is where the walker records bindings and node values.
type Scope interface {
	Types(key string) []Value
	Variable(key string) *Variable
	AddVariable(key string) *Variable
	RemoveVariable(key string) bool
	ClearVariables()
	AddNodeValue(n ast.Node, values []Value)
	NodeValue(n ast.Node) []Value
	RemoveNodeValue(n ast.Node) bool
	ClearNodeValues()
}

// ModuleScope stores bindings in a module's flat variable map. When results
// are attached, type lookups include rule-derived types.
type ModuleScope struct {
	vars    *VariableMap
	results *Results

	mu    sync.RWMutex
	nodes map[ast.Node][]Value
}

func NewModuleScope(vars *VariableMap) *ModuleScope {
	if vars == nil {
		vars = NewVariableMap()
	}
	return &ModuleScope{vars: vars, nodes: make(map[ast.Node][]Value)}
}

// WithResults returns a view of s whose lookups include results.
func (s *ModuleScope) WithResults(results *Results) *ModuleScope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &ModuleScope{vars: s.vars, results: results, nodes: s.nodes}
}

func (s *ModuleScope) Variables() *VariableMap { return s.vars }

func (s *ModuleScope) Types(key string) []Value {
	if s.results != nil {
		return s.results.Types(key)
	}
	return s.vars.Types(key)
}

func (s *ModuleScope) Variable(key string) *Variable     { return s.vars.Get(key) }
func (s *ModuleScope) AddVariable(key string) *Variable  { return s.vars.GetOrAdd(key) }
func (s *ModuleScope) RemoveVariable(key string) bool    { return s.vars.Remove(key) }
func (s *ModuleScope) ClearVariables()                   { s.vars.Clear() }

func (s *ModuleScope) AddNodeValue(n ast.Node, values []Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n] = Union(s.nodes[n], values)
}

func (s *ModuleScope) NodeValue(n ast.Node) []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[n]
}

func (s *ModuleScope) RemoveNodeValue(n ast.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[n]
	delete(s.nodes, n)
	return ok
}

func (s *ModuleScope) ClearNodeValues() {
	s.mu.Lock()
	s.nodes = make(map[ast.Node][]Value)
	s.mu.Unlock()
}

// IsInstanceScope narrows variables checked with isinstance inside a
// conditional body. Only type lookups of narrowed keys are answered here;
// everything else goes to the outer scope.
type IsInstanceScope struct {
	outer    Scope
	span     tokenizer.Span
	narrowed map[string]*TypeSet
}

func NewIsInstanceScope(outer Scope, span tokenizer.Span) *IsInstanceScope {
	return &IsInstanceScope{outer: outer, span: span, narrowed: make(map[string]*TypeSet)}
}

func (s *IsInstanceScope) Outer() Scope          { return s.outer }
func (s *IsInstanceScope) Span() tokenizer.Span  { return s.span }
func (s *IsInstanceScope) Contains(index int) bool { return s.span.Contains(index) }

// Narrow restricts key to instances of the given classes. Values that are
// not classes are ignored.
func (s *IsInstanceScope) Narrow(key string, classes []Value) {
	set, ok := s.narrowed[key]
	if !ok {
		set = NewTypeSet()
		s.narrowed[key] = set
	}
	for _, c := range classes {
		if inst := InstanceOf(c); inst != nil {
			set.Add(inst)
		}
	}
}

// Narrowed reports whether key has narrowed types here.
func (s *IsInstanceScope) Narrowed(key string) bool {
	set, ok := s.narrowed[key]
	return ok && set.Len() > 0
}

func (s *IsInstanceScope) Types(key string) []Value {
	if set, ok := s.narrowed[key]; ok && set.Len() > 0 {
		return set.Values()
	}
	return s.outer.Types(key)
}

func (s *IsInstanceScope) Variable(key string) *Variable    { return s.outer.Variable(key) }
func (s *IsInstanceScope) AddVariable(key string) *Variable { return s.outer.AddVariable(key) }
func (s *IsInstanceScope) RemoveVariable(key string) bool   { return s.outer.RemoveVariable(key) }
func (s *IsInstanceScope) ClearVariables()                  { s.outer.ClearVariables() }

func (s *IsInstanceScope) AddNodeValue(n ast.Node, values []Value) { s.outer.AddNodeValue(n, values) }
func (s *IsInstanceScope) NodeValue(n ast.Node) []Value            { return s.outer.NodeValue(n) }
func (s *IsInstanceScope) RemoveNodeValue(n ast.Node) bool         { return s.outer.RemoveNodeValue(n) }
func (s *IsInstanceScope) ClearNodeValues()                        { s.outer.ClearNodeValues() }

// Narrowing records an isinstance check found by the walker.
type Narrowing struct {
	Span tokenizer.Span
	Key  string
	// ClassKeys are variables holding the checked classes.
	ClassKeys []string
	// Builtins are checked builtin classes.
	Builtins []Value
}

// ScopeAt wraps base in one IsInstanceScope per narrowing that covers index,
// outermost first.
func ScopeAt(base Scope, narrowings []Narrowing, index int) Scope {
	scope := base
	for _, n := range narrowings {
		if !n.Span.Contains(index) {
			continue
		}
		classes := append([]Value(nil), n.Builtins...)
		for _, k := range n.ClassKeys {
			classes = append(classes, base.Types(k)...)
		}
		is := NewIsInstanceScope(scope, n.Span)
		is.Narrow(n.Key, classes)
		scope = is
	}
	return scope
}
