// Package analysis turns a parsed module into flat, scope-qualified variables
// and the deferred rules that propagate inferred types between them.
package analysis

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"pyanalyzer/internal/engine/ast"
)

// Reserved variable names.
const (
	ModuleVariable = "$module"
	ReturnVariable = "$r"
)

// Value is one inferred type or value that can flow through a variable.
// Implementations must be comparable; sets collapse equal values.
type Value interface {
	Key() string
	Annotation() string
}

// Callable values produce return types for a call site.
type Callable interface {
	Value
	Call(ctx context.Context, site CallSite, env Env) ([]Value, error)
}

// BuiltinType is a builtin class such as int or str.
type BuiltinType struct {
	Name string
}

func (t BuiltinType) Key() string        { return "builtins." + t.Name }
func (t BuiltinType) Annotation() string { return "type" }

// Instance returns the value of an object of this type.
func (t BuiltinType) Instance() Instance { return Instance{Type: t.Name} }

// Call constructs an instance.
func (t BuiltinType) Call(context.Context, CallSite, Env) ([]Value, error) {
	return []Value{t.Instance()}, nil
}

// Instance is an object of a builtin type.
type Instance struct {
	Type string
}

func (i Instance) Key() string        { return "builtins." + i.Type + "()" }
func (i Instance) Annotation() string { return i.Type }

// CallFunc computes the return types of a builtin function.
type CallFunc func(ctx context.Context, site CallSite, env Env) ([]Value, error)

// BuiltinFunction is a function implemented by the runtime.
type BuiltinFunction struct {
	Module    string
	Name      string
	Signature string
	fn        CallFunc
}

func (f *BuiltinFunction) Key() string        { return f.Module + "." + f.Name }
func (f *BuiltinFunction) Annotation() string { return f.Signature }

func (f *BuiltinFunction) Call(ctx context.Context, site CallSite, env Env) ([]Value, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(ctx, site, env)
}

// FunctionValue is a function defined in source. Its return types live in
// the variable Key()+"#$r" of the module that defined it.
type FunctionValue struct {
	key      string
	moniker  string
	FullName string
	Node     *ast.FunctionDef
}

func NewFunctionValue(key, moniker, fullName string, node *ast.FunctionDef) *FunctionValue {
	return &FunctionValue{key: key, moniker: moniker, FullName: fullName, Node: node}
}

func (f *FunctionValue) Key() string     { return f.key }
func (f *FunctionValue) Moniker() string { return f.moniker }

func (f *FunctionValue) Annotation() string {
	return "Callable[" + f.FullName + "]"
}

// Call reads the function's return variable and substitutes parameter
// placeholders with the arguments bound at site.
func (f *FunctionValue) Call(ctx context.Context, site CallSite, env Env) ([]Value, error) {
	returnKey := f.key + "#" + ReturnVariable
	var returned []Value
	if f.moniker == site.Moniker() {
		returned = site.results.Types(returnKey)
	} else {
		mod, err := env.Module(ctx, f.moniker)
		if err != nil || mod == nil {
			return nil, err
		}
		env.Depend(mod)
		returned = mod.Types(returnKey)
	}

	set := NewTypeSet()
	for _, v := range returned {
		p, ok := v.(ParameterValue)
		if !ok || p.Function != f.key {
			set.Add(v)
			continue
		}
		set.AddAll(site.ArgFor(p))
	}
	return set.Values(), nil
}

// ParameterValue is the placeholder bound to a parameter until a call site
// supplies real arguments.
type ParameterValue struct {
	Function string
	Kind     ast.ParameterKind
	Index    int
}

// NewParameterValue panics for keyword-only parameters, which are never bound.
func NewParameterValue(function string, kind ast.ParameterKind, index int) ParameterValue {
	if kind == ast.ParamKeywordOnly {
		panic("analysis: keyword-only parameters have no positional value")
	}
	return ParameterValue{Function: function, Kind: kind, Index: index}
}

func (p ParameterValue) Key() string {
	switch p.Kind {
	case ast.ParamList:
		return p.Function + "$*"
	case ast.ParamDict:
		return p.Function + "$**"
	default:
		return fmt.Sprintf("%s$%d", p.Function, p.Index)
	}
}

func (p ParameterValue) Annotation() string {
	switch p.Kind {
	case ast.ParamList:
		return "Parameter[*]"
	case ast.ParamDict:
		return "Parameter[**]"
	default:
		return fmt.Sprintf("Parameter[%d]", p.Index)
	}
}

// ClassValue is a class defined in source.
type ClassValue struct {
	key  string
	Node *ast.ClassDef
}

func NewClassValue(key string, node *ast.ClassDef) *ClassValue {
	return &ClassValue{key: key, Node: node}
}

func (c *ClassValue) Key() string        { return c.key }
func (c *ClassValue) Annotation() string { return c.Node.Name }

// Call constructs an instance of the class.
func (c *ClassValue) Call(context.Context, CallSite, Env) ([]Value, error) {
	return []Value{InstanceValue{Class: c}}, nil
}

// InstanceValue is an object of a source-defined class.
type InstanceValue struct {
	Class *ClassValue
}

func (i InstanceValue) Key() string        { return i.Class.key + "()" }
func (i InstanceValue) Annotation() string { return i.Class.Node.Name }

// ModuleValue is the value of an imported module.
type ModuleValue struct {
	FullName string
	Moniker  string
}

func (m ModuleValue) Key() string        { return m.Moniker + "$" + ModuleVariable }
func (m ModuleValue) Annotation() string { return m.FullName }

// InstanceOf converts a class-like value into the value of its instances.
// Anything else yields nil.
func InstanceOf(v Value) Value {
	switch v := v.(type) {
	case BuiltinType:
		return v.Instance()
	case *ClassValue:
		return InstanceValue{Class: v}
	}
	return nil
}

// Annotations renders a type list as a sorted, de-duplicated string.
func Annotations(values []Value) string {
	if len(values) == 0 {
		return "<unknown>"
	}
	seen := make(map[string]struct{}, len(values))
	var names []string
	for _, v := range values {
		a := v.Annotation()
		if _, ok := seen[a]; ok || a == "" {
			continue
		}
		seen[a] = struct{}{}
		names = append(names, a)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}
