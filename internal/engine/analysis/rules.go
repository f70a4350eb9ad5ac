package analysis

import (
	"context"
	"fmt"
	"strings"

	"pyanalyzer/internal/engine/ast"
)

// ModuleState is the read side of another module's analysis.
type ModuleState interface {
	Moniker() string
	// Version increases whenever the module's types change.
	Version() uint64
	Types(name string) []Value
	AllTypes() map[string][]Value
}

// Env gives rules access to modules other than the one being evaluated.
type Env interface {
	// Module returns the state for moniker, or nil when it is unknown.
	Module(ctx context.Context, moniker string) (ModuleState, error)
	// Depend records that the evaluated module reads from dep, so it is
	// re-evaluated when dep changes.
	Depend(dep ModuleState)
}

// Rule is a deferred type-flow edge.
type Rule interface {
	Apply(ctx context.Context, env Env, results *Results) error
	Targets() []string
	String() string
}

// CallSite identifies the pseudo-variable "()@n" synthesized for a call and
// the results its arguments are read from.
type CallSite struct {
	Key     string
	moniker string
	results *Results
	// reflected swaps the first two positional arguments.
	reflected bool
}

func NewCallSite(key, moniker string, results *Results) CallSite {
	return CallSite{Key: key, moniker: moniker, results: results}
}

func (c CallSite) Moniker() string { return c.moniker }

// Reflected returns the site with its first two positional arguments
// swapped, for right-hand operator methods.
func (c CallSite) Reflected() CallSite {
	c.reflected = !c.reflected
	return c
}

// Callables returns the types bound to the callee.
func (c CallSite) Callables() []Value {
	return c.results.Types(c.Key)
}

// Arg returns the values of positional argument index, falling back to the
// keyword argument name.
func (c CallSite) Arg(index int, name string) []Value {
	if c.reflected && index < 2 {
		index = 1 - index
	}
	if index >= 0 {
		if v := c.results.Types(fmt.Sprintf("%s#$%d", c.Key, index)); len(v) > 0 {
			return v
		}
	}
	if name != "" {
		return c.results.Types(c.Key + "#$" + name)
	}
	return nil
}

// ArgFor returns the values bound to a parameter placeholder.
func (c CallSite) ArgFor(p ParameterValue) []Value {
	switch p.Kind {
	case ast.ParamList:
		return c.results.Types(c.Key + "#*")
	case ast.ParamDict:
		return c.results.Types(c.Key + "#**")
	}
	return c.Arg(p.Index, "")
}

func (c CallSite) String() string { return "Call " + c.Key }

type targets []string

func (t targets) Targets() []string { return t }

// NameLookup copies the types of one variable into its targets.
type NameLookup struct {
	targets
	Source string
}

func NewNameLookup(source string, to ...string) *NameLookup {
	return &NameLookup{targets: to, Source: source}
}

func (r *NameLookup) Apply(_ context.Context, _ Env, results *Results) error {
	types := results.Types(r.Source)
	r.addToTargets(results, types)
	return nil
}

func (r *ImportFromModule) addToTargets(results *Results, types []Value) {
	if len(types) == 0 {
		return
	}
	for _, t := range r.targets {
		results.AddTypes(t, types)
	}
}

func (r *NameLookup) String() string {
	return fmt.Sprintf("%s -> {%s}", r.Source, strings.Join(r.targets, ", "))
}

// ImportFromModule copies a name, or every name for "*", out of another
// module. When the module does not bind Name and Submodule is set, the
// submodule's module value is copied instead.
type ImportFromModule struct {
	targets
	Moniker   string
	Name      string
	Submodule string

	lastVersion    uint64
	lastSubVersion uint64
}

func NewImportFromModule(moniker, name string, to ...string) *ImportFromModule {
	if name == "" {
		name = ModuleVariable
	}
	return &ImportFromModule{targets: to, Moniker: moniker, Name: name}
}

// WithSubmodule sets the fallback for "from pkg import x" where x is a
// module inside pkg.
func (r *ImportFromModule) WithSubmodule(moniker string) *ImportFromModule {
	r.Submodule = moniker
	return r
}

func (r *ImportFromModule) Apply(ctx context.Context, env Env, results *Results) error {
	var types []Value
	if r.Moniker != "" {
		mod, err := env.Module(ctx, r.Moniker)
		if err != nil {
			return err
		}
		if mod != nil {
			env.Depend(mod)
			version := mod.Version()
			if r.Name == "*" {
				if version > r.lastVersion {
					for key, vals := range mod.AllTypes() {
						if strings.HasPrefix(key, "$") || strings.ContainsAny(key, ".#@") {
							continue
						}
						results.AddTypes(key, vals)
					}
					r.lastVersion = version
				}
				return nil
			}
			fresh := version > r.lastVersion
			r.lastVersion = version
			if bound := mod.Types(r.Name); len(bound) > 0 {
				if fresh {
					r.addToTargets(results, bound)
				}
				return nil
			}
		}
	}
	if r.Submodule != "" && r.Name != "*" {
		sub, err := env.Module(ctx, r.Submodule)
		if err != nil || sub == nil {
			return err
		}
		env.Depend(sub)
		version := sub.Version()
		if version <= r.lastSubVersion {
			return nil
		}
		types = sub.Types(ModuleVariable)
		r.lastSubVersion = version
	}
	r.addToTargets(results, types)
	return nil
}

func (r *ImportFromModule) addToTargets(results *Results, types []Value) {
	if len(types) == 0 {
		return
	}
	for _, t := range r.targets {
		results.AddTypes(t, types)
	}
}

func (r *ImportFromModule) String() string {
	moniker := r.Moniker
	if moniker == "" {
		moniker = "(null)"
	} else if i := strings.IndexByte(moniker, '$'); i >= 0 {
		moniker = moniker[i+1:]
	}
	return fmt.Sprintf("from %s import %s as %s", moniker, r.Name, strings.Join(r.targets, ", "))
}

// ReturnValueLookup calls whatever is bound to a call site and copies the
// return types into its targets.
type ReturnValueLookup struct {
	targets
	Site CallSite
}

func NewReturnValueLookup(site CallSite, to ...string) *ReturnValueLookup {
	return &ReturnValueLookup{targets: to, Site: site}
}

func (r *ReturnValueLookup) Apply(ctx context.Context, env Env, results *Results) error {
	site := r.Site
	site.results = results
	set := NewTypeSet()
	for _, v := range site.Callables() {
		fn, ok := v.(Callable)
		if !ok {
			continue
		}
		returned, err := fn.Call(ctx, site, env)
		if err != nil {
			return err
		}
		set.AddAll(returned)
	}
	if set.Len() == 0 {
		return nil
	}
	values := set.Values()
	for _, t := range r.targets {
		results.AddTypes(t, values)
	}
	return nil
}

func (r *ReturnValueLookup) String() string {
	return fmt.Sprintf("Call{%s} -> {%s}", r.Site, strings.Join(r.targets, ", "))
}
