package analysis

import (
	"fmt"
	"strings"

	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

// ImportResolver maps a possibly relative dotted module name to the moniker
// of the document that defines it, or "" when it cannot be found.
type ImportResolver interface {
	ResolveImport(name, from string) string
}

// ImportResolverFunc adapts a function to ImportResolver.
type ImportResolverFunc func(name, from string) string

func (f ImportResolverFunc) ResolveImport(name, from string) string { return f(name, from) }

// ScopeRegion is the body of a module, class or function together with the
// scope prefixes visible inside it, innermost first.
type ScopeRegion struct {
	Body   tokenizer.Span
	Scopes []string
}

// WalkResult is everything one walk produced.
type WalkResult struct {
	Variables  *VariableMap
	Rules      []Rule
	Narrowings []Narrowing
	Regions    []ScopeRegion
	Scope      *ModuleScope
}

// Walker binds every name in a module to a scope-qualified key and emits the
// rules that connect them.
type Walker struct {
	Moniker    string
	ModuleName string

	builtins *Builtins
	resolver ImportResolver

	scopes      ScopeTracker
	nested      []int
	knownNested map[ast.Node]int

	module     *ModuleScope
	scope      Scope
	rules      []Rule
	narrowings []Narrowing
	regions    []ScopeRegion
}

// NewWalker extends the given variables and rules, either of which may be
// nil. resolver may be nil, in which case no import resolves.
func NewWalker(moniker, moduleName string, builtins *Builtins, resolver ImportResolver, vars *VariableMap, rules []Rule) *Walker {
	if resolver == nil {
		resolver = ImportResolverFunc(func(string, string) string { return "" })
	}
	module := NewModuleScope(vars.Clone())
	return &Walker{
		Moniker:     moniker,
		ModuleName:  moduleName,
		builtins:    builtins,
		resolver:    resolver,
		knownNested: make(map[ast.Node]int),
		module:      module,
		scope:       module,
		rules:       append([]Rule(nil), rules...),
	}
}

// Walk processes m and returns the accumulated bindings.
func (w *Walker) Walk(m *ast.Module) *WalkResult {
	w.scopes.Reset()
	w.nested = []int{0}
	w.enterScope("", "")
	w.add(ModuleVariable, ModuleValue{FullName: w.ModuleName, Moniker: w.Moniker})
	if m != nil && m.Body != nil {
		w.region(m.Body)
		ast.Walk(w, m.Body)
	}
	w.leaveScope("", "")

	return &WalkResult{
		Variables:  w.module.Variables(),
		Rules:      w.rules,
		Narrowings: w.narrowings,
		Regions:    w.regions,
		Scope:      w.module,
	}
}

func (w *Walker) enterScope(name, suffix string) {
	w.scopes.Enter(name, suffix)
	w.nested = append(w.nested, 0)
}

func (w *Walker) leaveScope(name, suffix string) {
	w.scopes.Leave(name, suffix)
	w.nested = w.nested[:len(w.nested)-1]
}

func (w *Walker) region(body *ast.Suite) {
	w.regions = append(w.regions, ScopeRegion{Body: body.Span(), Scopes: w.scopes.ScopesWithSuffix()})
}

// nestingID numbers nodes within the current scope. Ids are stable for a
// node across repeated walks.
func (w *Walker) nestingID(n ast.Node) int {
	if id, ok := w.knownNested[n]; ok {
		return id
	}
	top := len(w.nested) - 1
	w.nested[top]++
	id := w.nested[top]
	w.knownNested[n] = id
	return id
}

// add binds a value to name in the current scope and returns the full key.
// A nil value only ensures the variable exists.
func (w *Walker) add(name string, value Value) string {
	key := w.scopes.CurrentWithSuffix() + name
	v := w.scope.AddVariable(key)
	if value != nil {
		v.AddType(value)
	}
	return key
}

func (w *Walker) addRule(r Rule) {
	w.rules = append(w.rules, r)
}

func (w *Walker) Visit(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.Assign:
		w.assignTargets(n.Targets, n.Value)
		return false
	case *ast.Call, *ast.Lambda:
		return false
	case *ast.ClassDef:
		w.classDef(n)
		return false
	case *ast.FunctionDef:
		w.functionDef(n)
		return false
	case *ast.Return:
		if n.Value != nil {
			w.assign([]string{ReturnVariable}, n.Value)
		}
		return false
	case *ast.Import:
		w.importStmt(n)
		return false
	case *ast.FromImport:
		w.fromImport(n)
		return false
	case *ast.IfTest:
		return w.ifTest(n)
	}
	return true
}

func (w *Walker) PostVisit(ast.Node) {}

func targetName(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.Name:
		return e.Id
	case *ast.Paren:
		return targetName(e.Inner)
	}
	return ""
}

func (w *Walker) assignTargets(targets []ast.Expr, value ast.Expr) {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		if n := targetName(t); n != "" {
			names = append(names, n)
		}
	}
	w.assign(names, value)
}

// assign binds local names to the flow of value.
func (w *Walker) assign(names []string, value ast.Expr) {
	for p, ok := value.(*ast.Paren); ok; p, ok = value.(*ast.Paren) {
		value = p.Inner
	}

	var literal Value
	if value != nil {
		literal = w.builtins.Literal(value)
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = w.add(n, literal)
	}
	if literal != nil {
		w.scope.AddNodeValue(value, []Value{literal})
	}
	if len(keys) == 0 {
		return
	}

	switch v := value.(type) {
	case *ast.Name:
		w.nameValue(v, keys)
	case *ast.Member:
		// Attribute flow has no rule yet; the targets stay untyped.
	case *ast.Binary:
		w.binaryValue(v, keys)
	case *ast.Call:
		w.returnValue(v, keys)
	}
}

// lookup finds the innermost existing key for name.
func (w *Walker) lookup(name string) (string, bool) {
	for _, s := range w.scopes.ScopesWithSuffix() {
		if w.scope.Variable(s+name) != nil {
			return s + name, true
		}
	}
	return "", false
}

func (w *Walker) nameValue(e *ast.Name, targets []string) {
	if source, ok := w.lookup(e.Id); ok {
		w.addRule(NewNameLookup(source, targets...))
		return
	}
	if builtin := w.builtins.Attribute(e.Id); builtin != nil {
		for _, t := range targets {
			w.scope.AddVariable(t).AddTypes(builtin)
		}
	}
}

func (w *Walker) binaryValue(e *ast.Binary, targets []string) {
	method := OperatorMethod(e.Op, w.builtins.Version().Is3x())
	if method == "" {
		return
	}
	call := fmt.Sprintf("()@%d", w.nestingID(e))
	callKey := w.add(call, nil)
	w.addRule(NewImportFromModule(w.resolver.ResolveImport("operator", ""), method, callKey))
	w.assign([]string{call + "#$0"}, e.Left)
	w.assign([]string{call + "#$1"}, e.Right)
	w.assign([]string{call + "#" + ReturnVariable}, nil)
	w.addRule(NewReturnValueLookup(NewCallSite(callKey, w.Moniker, nil), targets...))
}

func (w *Walker) returnValue(e *ast.Call, targets []string) {
	call := fmt.Sprintf("()@%d", w.nestingID(e))
	callKey := w.scopes.CurrentWithSuffix() + call
	w.assign([]string{call}, e.Target)
	index := 0
	for _, a := range e.Args {
		switch a.Kind {
		case ast.ArgStar:
			w.assign([]string{call + "#*"}, a.Value)
		case ast.ArgDoubleStar:
			w.assign([]string{call + "#**"}, a.Value)
		case ast.ArgKeyword:
			w.assign([]string{call + "#$" + a.Name}, a.Value)
		default:
			w.assign([]string{fmt.Sprintf("%s#$%d", call, index)}, a.Value)
			index++
		}
	}
	w.assign([]string{call + "#" + ReturnVariable}, nil)
	w.addRule(NewReturnValueLookup(NewCallSite(callKey, w.Moniker, nil), targets...))
}

func (w *Walker) classDef(n *ast.ClassDef) {
	key := w.scopes.CurrentWithSuffix() + n.Name
	w.add(n.Name, NewClassValue(key, n))
	for _, d := range n.Decorators {
		ast.Walk(w, d)
	}
	if n.Body == nil {
		return
	}
	w.enterScope(n.Name, ".")
	w.region(n.Body)
	ast.Walk(w, n.Body)
	w.leaveScope(n.Name, ".")
}

func parameterField(kind ast.ParameterKind, index int) string {
	switch kind {
	case ast.ParamList:
		return "$*"
	case ast.ParamDict:
		return "$**"
	}
	return fmt.Sprintf("$%d", index)
}

func (w *Walker) functionDef(n *ast.FunctionDef) {
	local := fmt.Sprintf("%s@%d", n.Name, w.nestingID(n))
	fullName := w.scopes.CurrentWithSuffix() + n.Name
	fnKey := w.scopes.CurrentWithSuffix() + local
	w.add(local, NewFunctionValue(fnKey, w.Moniker, fullName, n))
	for _, d := range n.Decorators {
		ast.Walk(w, d)
	}

	w.enterScope(local, "#")
	index := 0
	for _, p := range n.Params {
		if p.Name == "" {
			continue
		}
		if p.Kind == ast.ParamKeywordOnly {
			w.add(p.Name, nil)
		} else {
			w.add(p.Name, NewParameterValue(fnKey, p.Kind, index))
			w.add(parameterField(p.Kind, index), nil)
			index++
		}
		if p.Default != nil {
			if d := w.builtins.Literal(p.Default); d != nil {
				w.add(p.Name, d)
			}
		}
	}
	if n.Body != nil {
		w.region(n.Body)
		ast.Walk(w, n.Body)
	}
	w.leaveScope(local, "#")

	w.addRule(NewNameLookup(fnKey, w.add(n.Name, nil)))
}

func (w *Walker) importStmt(n *ast.Import) {
	for _, name := range n.Names {
		if name.Module == nil || len(name.Module.Names) == 0 {
			continue
		}
		asName, imported := name.AsName, name.Module.String()
		if asName == "" {
			asName, imported = name.Module.Names[0], name.Module.Names[0]
		}
		moniker := w.resolver.ResolveImport(imported, w.ModuleName)
		key := w.add(asName, nil)
		w.addRule(NewImportFromModule(moniker, ModuleVariable, key))
	}
}

func (w *Walker) fromImport(n *ast.FromImport) {
	if n.Module == nil {
		return
	}
	module := n.Module.String()
	moniker := w.resolver.ResolveImport(module, w.ModuleName)
	if n.Star {
		w.addRule(NewImportFromModule(moniker, "*"))
		return
	}
	for _, name := range n.Names {
		if name.Name == "" {
			continue
		}
		asName := name.AsName
		if asName == "" {
			asName = name.Name
		}
		key := w.add(asName, nil)
		sub := w.resolver.ResolveImport(submoduleName(module, name.Name), w.ModuleName)
		w.addRule(NewImportFromModule(moniker, name.Name, key).WithSubmodule(sub))
	}
}

// submoduleName joins a from-import's module and one imported name. A bare
// relative module ("." or "..") already ends in its separator.
func submoduleName(module, name string) string {
	if strings.HasSuffix(module, ".") {
		return module + name
	}
	return module + "." + name
}

// ifTest walks a body guarded by isinstance(name, classes) inside an
// IsInstanceScope.
func (w *Walker) ifTest(n *ast.IfTest) bool {
	narrowing, ok := w.isInstanceCheck(n.Test)
	if !ok || n.Body == nil {
		return true
	}
	narrowing.Span = n.Body.Span()
	w.narrowings = append(w.narrowings, narrowing)

	outer := w.scope
	is := NewIsInstanceScope(outer, narrowing.Span)
	classes := append([]Value(nil), narrowing.Builtins...)
	for _, k := range narrowing.ClassKeys {
		classes = append(classes, outer.Types(k)...)
	}
	is.Narrow(narrowing.Key, classes)

	w.scope = is
	ast.Walk(w, n.Body)
	w.scope = outer
	return false
}

func (w *Walker) isInstanceCheck(test ast.Expr) (Narrowing, bool) {
	call, ok := test.(*ast.Call)
	if !ok || len(call.Args) != 2 {
		return Narrowing{}, false
	}
	if fn, ok := call.Target.(*ast.Name); !ok || fn.Id != "isinstance" {
		return Narrowing{}, false
	}
	subject, ok := call.Args[0].Value.(*ast.Name)
	if !ok || call.Args[0].Kind != ast.ArgPositional || call.Args[1].Kind != ast.ArgPositional {
		return Narrowing{}, false
	}

	var out Narrowing
	if key, found := w.lookup(subject.Id); found {
		out.Key = key
	} else {
		out.Key = w.scopes.CurrentWithSuffix() + subject.Id
	}

	classes := []ast.Expr{call.Args[1].Value}
	if p, ok := classes[0].(*ast.Paren); ok {
		classes[0] = p.Inner
	}
	if t, ok := classes[0].(*ast.Tuple); ok {
		classes = t.Items
	}
	for _, c := range classes {
		name, ok := c.(*ast.Name)
		if !ok {
			continue
		}
		if key, found := w.lookup(name.Id); found {
			out.ClassKeys = append(out.ClassKeys, key)
			continue
		}
		for _, v := range w.builtins.Attribute(name.Id) {
			if _, isType := v.(BuiltinType); isType {
				out.Builtins = append(out.Builtins, v)
			}
		}
	}
	if len(out.ClassKeys) == 0 && len(out.Builtins) == 0 {
		return Narrowing{}, false
	}
	return out, true
}
