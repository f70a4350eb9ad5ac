package analysis

import (
	"slices"
	"strings"

	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

type MemberKind uint8

const (
	MemberUnknown MemberKind = iota
	MemberClass
	MemberFunction
	MemberField
	MemberModule
)

func (k MemberKind) String() string {
	switch k {
	case MemberClass:
		return "class"
	case MemberFunction:
		return "function"
	case MemberField:
		return "field"
	case MemberModule:
		return "module"
	}
	return "unknown"
}

// mergeMembers resolves a name bound more than once. Functions win over
// classes, which win over everything else.
func mergeMembers(x, y MemberKind) MemberKind {
	switch {
	case x == y:
		return x
	case x == MemberFunction || y == MemberFunction:
		return MemberFunction
	case x == MemberClass || y == MemberClass:
		return MemberClass
	case x == MemberUnknown:
		return y
	case y == MemberUnknown:
		return x
	}
	return MemberUnknown
}

// MemberList names every module-level and class-level binding of m, keyed by
// dotted name ("C.method").
func MemberList(m *ast.Module) map[string]MemberKind {
	mw := &memberWalker{members: make(map[string]MemberKind)}
	if m != nil && m.Body != nil {
		ast.Walk(mw, m.Body)
	}
	return mw.members
}

type memberWalker struct {
	members map[string]MemberKind
	names   []string
}

func (mw *memberWalker) fullName(name string) string {
	if len(mw.names) == 0 {
		return name
	}
	return strings.Join(mw.names, ".") + "." + name
}

func (mw *memberWalker) add(name string, kind MemberKind) {
	fn := mw.fullName(name)
	if existing, ok := mw.members[fn]; ok {
		kind = mergeMembers(kind, existing)
	}
	mw.members[fn] = kind
}

func (mw *memberWalker) Visit(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.Suite, *ast.If, *ast.IfTest, *ast.For, *ast.While, *ast.With, *ast.Try, *ast.Handler:
		return true
	case *ast.ClassDef:
		mw.add(n.Name, MemberClass)
		mw.names = append(mw.names, n.Name)
		if n.Body != nil {
			ast.Walk(mw, n.Body)
		}
		mw.names = mw.names[:len(mw.names)-1]
	case *ast.FunctionDef:
		mw.add(n.Name, MemberFunction)
	case *ast.Assign:
		for _, t := range n.Targets {
			if name, ok := t.(*ast.Name); ok {
				mw.add(name.Id, MemberField)
			}
		}
	case *ast.Import:
		for _, name := range n.Names {
			switch {
			case name.AsName != "":
				mw.add(name.AsName, MemberModule)
			case name.Module != nil && len(name.Module.Names) > 0:
				mw.add(name.Module.Names[0], MemberModule)
			}
		}
	case *ast.Del:
		for _, t := range n.Targets {
			if name, ok := t.(*ast.Name); ok {
				delete(mw.members, mw.fullName(name.Id))
			}
		}
	}
	return false
}

func (mw *memberWalker) PostVisit(ast.Node) {}

// PrefixView returns the entries of m directly under prefix, keyed by the
// remainder. Keys whose remainder contains any of exclude are skipped.
func PrefixView[T any](m map[string]T, prefix, exclude string) map[string]T {
	out := make(map[string]T)
	for k, v := range m {
		if len(k) <= len(prefix) || !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		if exclude != "" && strings.ContainsAny(rest, exclude) {
			continue
		}
		out[rest] = v
	}
	return out
}

// FindScopeNames returns the candidate full keys for name at loc, innermost
// scope first. With an empty name it returns the scope prefixes themselves.
func FindScopeNames(regions []ScopeRegion, loc tokenizer.Location, name string) []string {
	var best *ScopeRegion
	for i := range regions {
		r := &regions[i]
		if r.Body.Start.Line > loc.Line || r.Body.End.Line < loc.Line {
			continue
		}
		if loc.Column < r.Body.Start.Column {
			continue
		}
		if best == nil || len(r.Scopes) >= len(best.Scopes) {
			best = r
		}
	}
	if best == nil {
		return []string{name}
	}
	out := make([]string, len(best.Scopes))
	for i, s := range best.Scopes {
		out[i] = s + name
	}
	return slices.Clip(out)
}
