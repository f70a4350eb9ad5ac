package service

import (
	"context"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/engine/analysis"
)

var importNameRegex = regexp.MustCompile(`(?i)^([\w_][\w\d_]+)(\.py[wcd]?)?$`)

// AddSearchPath appends a search root. Prefix is a dotted package name that
// imports must start with for the root to be consulted.
func (s *LanguageService) AddSearchPath(ctx context.Context, root, prefix string) error {
	if err := ctx.Err(); err != nil {
		return domainerrors.Cancelled(err)
	}
	if err := s.checkDisposed(); err != nil {
		return err
	}
	if root == "" {
		return domainerrors.New(domainerrors.CodeValidationError, "search path root is empty")
	}
	sp := SearchPath{Root: filepath.Clean(root)}
	if prefix != "" {
		sp.Prefix = strings.Split(prefix, ".")
	}
	s.searchMu.Lock()
	s.searchPaths = append(s.searchPaths, sp)
	s.searchMu.Unlock()
	return nil
}

func (s *LanguageService) ClearSearchPaths(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domainerrors.Cancelled(err)
	}
	if err := s.checkDisposed(); err != nil {
		return err
	}
	s.searchMu.Lock()
	s.searchPaths = nil
	s.searchMu.Unlock()
	return nil
}

// SearchPaths returns a copy of the search paths in lookup order.
func (s *LanguageService) SearchPaths() []SearchPath {
	s.searchMu.RLock()
	defer s.searchMu.RUnlock()
	out := make([]SearchPath, len(s.searchPaths))
	for i, sp := range s.searchPaths {
		out[i] = SearchPath{Root: sp.Root, Prefix: slices.Clone(sp.Prefix)}
	}
	return out
}

// ModuleFullNameParts splits a possibly relative import name into absolute
// parts. Each leading dot drops one trailing segment of from.
func ModuleFullNameParts(name, from string) []string {
	if name == "" {
		return nil
	}
	rest := strings.TrimLeft(name, ".")
	dots := len(name) - len(rest)
	var parts []string
	if rest != "" {
		parts = strings.Split(rest, ".")
	}
	if dots == 0 {
		return parts
	}
	var base []string
	if from != "" {
		base = strings.Split(from, ".")
	}
	keep := len(base) - dots
	if keep < 0 {
		keep = 0
	}
	out := append(slices.Clone(base[:keep]), parts...)
	return slices.DeleteFunc(out, func(p string) bool { return p == "" })
}

// skipPrefix returns how many leading parts the search path's prefix
// consumes, or false if the prefix does not match.
func skipPrefix(sp SearchPath, parts []string) (int, bool) {
	if len(sp.Prefix) > len(parts) {
		return 0, false
	}
	for i, p := range sp.Prefix {
		if p != parts[i] {
			return 0, false
		}
	}
	return len(sp.Prefix), true
}

// ResolveImport maps an import to the moniker of the module that defines
// it, or "" when no search path has it.
func (s *LanguageService) ResolveImport(ctx context.Context, name, from string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domainerrors.Cancelled(err)
	}
	if err := s.checkDisposed(); err != nil {
		return "", err
	}
	return s.resolveImport(name, from), nil
}

func (s *LanguageService) resolveImport(name, from string) string {
	switch name {
	case "operator":
		return analysis.OperatorMoniker
	case "builtins", "__builtin__":
		return analysis.BuiltinsMoniker
	}
	parts := ModuleFullNameParts(name, from)
	if len(parts) == 0 {
		return ""
	}
	entries := s.entries()
	for _, sp := range s.SearchPaths() {
		skip, ok := skipPrefix(sp, parts)
		if !ok {
			continue
		}
		rel := parts[skip:]
		// A prefix naming the whole import resolves to the root's __init__.py.
		candidates := [][]string{append(slices.Clone(rel), "__init__.py")}
		if len(rel) > 0 {
			asFile := append(slices.Clone(rel[:len(rel)-1]), rel[len(rel)-1]+".py")
			candidates = append([][]string{asFile}, candidates...)
		}
		for _, candidate := range candidates {
			for _, e := range entries {
				e.mu.RLock()
				st, found := e.states.TryFindByParts(sp.Root, candidate)
				e.mu.RUnlock()
				if found {
					return st.Moniker()
				}
			}
		}
	}
	return ""
}

// ModuleName is the dotted name moniker is imported as. Search paths are
// tried first, then the package layout of the owning context.
func (s *LanguageService) ModuleName(moniker string) string {
	if moniker == analysis.BuiltinsMoniker {
		return s.builtins.ModuleName()
	}
	if moniker == analysis.OperatorMoniker {
		return "operator"
	}
	for _, sp := range s.SearchPaths() {
		if rel, ok := relativeModule(sp.Root, moniker); ok {
			return strings.Join(append(slices.Clone(sp.Prefix), rel...), ".")
		}
	}
	for _, e := range s.entries() {
		if !e.fc.Contains(moniker) {
			continue
		}
		if rel, ok := relativeModule(e.fc.Root(), moniker); ok {
			if pkg := e.fc.PackageName(); pkg != "" {
				rel = append([]string{pkg}, rel...)
			}
			return strings.Join(rel, ".")
		}
	}
	return strings.TrimSuffix(filepath.Base(moniker), filepath.Ext(moniker))
}

func relativeModule(root, path string) ([]string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	last := len(parts) - 1
	parts[last] = strings.TrimSuffix(parts[last], filepath.Ext(parts[last]))
	return parts, true
}

// ImportableModules lists the names that can follow name in an import
// statement, mapped to the path each one was found at.
func (s *LanguageService) ImportableModules(ctx context.Context, name, from string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.Cancelled(err)
	}
	if err := s.checkDisposed(); err != nil {
		return nil, err
	}
	parts := ModuleFullNameParts(name, from)
	entries := s.entries()
	result := make(map[string]string)
	for _, sp := range s.SearchPaths() {
		if len(sp.Prefix) > len(parts) {
			if slices.Equal(sp.Prefix[:len(parts)], parts) {
				result[sp.Prefix[len(parts)]] = sp.Root
			}
			continue
		}
		skip, ok := skipPrefix(sp, parts)
		if !ok {
			continue
		}
		rel := parts[skip:]
		for _, e := range entries {
			e.mu.RLock()
			children := e.states.Children(sp.Root, rel)
			e.mu.RUnlock()
			for _, c := range children {
				m := importNameRegex.FindStringSubmatch(c)
				if m == nil || m[1] == "__init__" {
					continue
				}
				result[m[1]] = filepath.Join(append([]string{sp.Root}, append(slices.Clone(rel), c)...)...)
			}
		}
	}
	return result, nil
}

// GetFullName returns the scope-qualified variable keys name may refer to at
// loc, innermost first.
func (s *LanguageService) GetFullName(ctx context.Context, contextID, moniker string, line, column int, name string) ([]string, error) {
	st, err := s.readyState(ctx, contextID, moniker, func(st *AnalysisState) bool {
		_, _, ok := st.Walk()
		return ok
	})
	if err != nil || st == nil {
		return nil, err
	}
	res, _, ok := st.Walk()
	if !ok {
		return nil, nil
	}
	return analysis.FindScopeNames(res.Regions, locationOf(line, column), name), nil
}

// readyState finds a state and waits until ready holds for it.
func (s *LanguageService) readyState(ctx context.Context, contextID, moniker string, ready func(*AnalysisState) bool) (*AnalysisState, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.Cancelled(err)
	}
	if err := s.checkDisposed(); err != nil {
		return nil, err
	}
	st := s.stateFor(contextID, moniker)
	if st == nil {
		return nil, nil
	}
	if st.Sourceless() {
		return st, nil
	}
	if err := st.waitUntil(ctx, func() bool { return ready(st) }); err != nil {
		if domainerrors.IsCode(err, domainerrors.CodeCancelled) {
			return nil, err
		}
		return st, err
	}
	return st, nil
}
