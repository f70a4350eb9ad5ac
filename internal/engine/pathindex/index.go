// Package pathindex implements a case- and separator-insensitive trie of
// filesystem paths.
package pathindex

import (
	"sort"
	"strings"
	"sync"

	domainerrors "pyanalyzer/internal/core/errors"
)

// ErrOutsidePrefix is returned by Add for paths not under the index prefix.
var ErrOutsidePrefix = domainerrors.New(domainerrors.CodeValidationError, "path does not match index prefix")

type part struct {
	key  string
	name string
}

type node[T any] struct {
	name     string
	path     string
	value    T
	children map[string]*node[T]
}

func (n *node[T]) terminal() bool {
	return n.path != ""
}

// Index maps normalized paths to values. Intermediate directories without a
// value of their own are kept as pass-through nodes.
type Index[T any] struct {
	mu     sync.RWMutex
	root   *node[T]
	prefix []part
	count  int
}

// New creates an index. A non-empty prefix restricts the index to paths
// under it, and stored keys are relative to it.
func New[T any](prefix string) *Index[T] {
	idx := &Index[T]{root: &node[T]{}}
	if trimmed := strings.TrimRight(prefix, `/\`); trimmed != "" {
		idx.root.name = trimmed
		idx.prefix = split(trimmed, nil)
	}
	return idx
}

// Prefix returns the configured prefix as given.
func (i *Index[T]) Prefix() string {
	return i.root.name
}

func normalizeKey(s string) string {
	return strings.ToUpper(s)
}

func split(path string, extra []string) []part {
	fields := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	parts := make([]part, 0, len(fields)+len(extra))
	for _, f := range fields {
		parts = append(parts, part{key: normalizeKey(f), name: f})
	}
	for _, e := range extra {
		if e == "" {
			continue
		}
		parts = append(parts, part{key: normalizeKey(e), name: e})
	}
	return parts
}

// relativize splits path and strips the prefix. ok is false if the path is
// empty or lies outside the prefix.
func (i *Index[T]) relativize(path string, extra []string) ([]part, bool) {
	if path == "" {
		return nil, false
	}
	parts := split(path, extra)
	if len(parts) < len(i.prefix) {
		return nil, false
	}
	for n, p := range i.prefix {
		if parts[n].key != p.key {
			return nil, false
		}
	}
	return parts[len(i.prefix):], true
}

// Add stores value under path. It reports whether the path was newly added
// rather than overwritten.
func (i *Index[T]) Add(path string, value T) (bool, error) {
	parts, ok := i.relativize(path, nil)
	if !ok {
		return false, domainerrors.Wrap(ErrOutsidePrefix, domainerrors.CodeValidationError, "add "+path)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	n := i.root
	for _, p := range parts {
		if n.children == nil {
			n.children = make(map[string]*node[T])
		}
		child, exists := n.children[p.key]
		if !exists {
			child = &node[T]{name: p.name}
			n.children[p.key] = child
		}
		n = child
	}
	created := !n.terminal()
	n.path = path
	n.value = value
	if created {
		i.count++
	}
	return created, nil
}

// Remove deletes path and everything beneath it.
func (i *Index[T]) Remove(path string) bool {
	parts, ok := i.relativize(path, nil)
	if !ok || len(parts) == 0 {
		return false
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	parent := i.root
	for _, p := range parts[:len(parts)-1] {
		next, exists := parent.children[p.key]
		if !exists {
			return false
		}
		parent = next
	}
	last := parts[len(parts)-1].key
	target, exists := parent.children[last]
	if !exists {
		return false
	}
	delete(parent.children, last)

	removed := 0
	stack := []*node[T]{target}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.terminal() {
			removed++
		}
		for _, c := range n.children {
			stack = append(stack, c)
		}
	}
	i.count -= removed
	return removed > 0
}

func (i *Index[T]) find(parts []part) (*node[T], bool) {
	n := i.root
	for _, p := range parts {
		next, exists := n.children[p.key]
		if !exists {
			return nil, false
		}
		n = next
	}
	return n, true
}

// TryGet looks up an exact path.
func (i *Index[T]) TryGet(path string) (T, bool) {
	var zero T
	parts, ok := i.relativize(path, nil)
	if !ok {
		return zero, false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	n, found := i.find(parts)
	if !found || !n.terminal() {
		return zero, false
	}
	return n.value, true
}

func (i *Index[T]) Contains(path string) bool {
	_, ok := i.TryGet(path)
	return ok
}

// TryFindByParts looks up root joined with relative parts, as used when a
// dotted module name is resolved against a search path.
func (i *Index[T]) TryFindByParts(root string, rel []string) (T, bool) {
	var zero T
	parts, ok := i.relativize(root, rel)
	if !ok {
		return zero, false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	n, found := i.find(parts)
	if !found || !n.terminal() {
		return zero, false
	}
	return n.value, true
}

// Children lists the immediate child segment names under root+extra, in
// their original spelling.
func (i *Index[T]) Children(root string, extra []string) []string {
	parts, ok := i.relativize(root, extra)
	if !ok {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	n, found := i.find(parts)
	if !found {
		return nil
	}
	names := make([]string, 0, len(n.children))
	for _, c := range n.children {
		if c.name != "" {
			names = append(names, c.name)
		}
	}
	sort.Strings(names)
	return names
}

// walk visits terminal nodes in key order without recursion.
func (i *Index[T]) walk(fn func(n *node[T])) {
	type frame struct {
		keys []string
		kids map[string]*node[T]
	}
	sortedKeys := func(m map[string]*node[T]) []string {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}

	stack := []*frame{{keys: sortedKeys(i.root.children), kids: i.root.children}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top.keys) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		n := top.kids[top.keys[0]]
		top.keys = top.keys[1:]
		if n.terminal() {
			fn(n)
		}
		if len(n.children) > 0 {
			stack = append(stack, &frame{keys: sortedKeys(n.children), kids: n.children})
		}
	}
}

// Values returns every stored value.
func (i *Index[T]) Values() []T {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]T, 0, i.count)
	i.walk(func(n *node[T]) { out = append(out, n.value) })
	return out
}

// Paths returns every stored path as it was added.
func (i *Index[T]) Paths() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, 0, i.count)
	i.walk(func(n *node[T]) { out = append(out, n.path) })
	return out
}

func (i *Index[T]) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.count
}

func (i *Index[T]) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.root.children = nil
	i.count = 0
}
