package analysis

import (
	"context"
	"maps"
	"slices"
	"strings"

	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

// Monikers of the modules that have no source.
const (
	BuiltinsMoniker = "$builtins"
	OperatorMoniker = "$operator"
)

// Builtins is the catalogue of builtin types and functions for one language
// version.
type Builtins struct {
	version   tokenizer.LanguageVersion
	types     map[string]BuiltinType
	functions map[string]*BuiltinFunction

	NoneType, Bool, Int, Long, Float, Complex BuiltinType
	Bytes, Str, Unicode                       BuiltinType
	List, Tuple, Dict, Set, Object, Type      BuiltinType
}

func NewBuiltins(version tokenizer.LanguageVersion) *Builtins {
	b := &Builtins{
		version:   version,
		types:     make(map[string]BuiltinType),
		functions: make(map[string]*BuiltinFunction),
		NoneType:  BuiltinType{Name: "None"},
		Bool:      BuiltinType{Name: "bool"},
		Int:       BuiltinType{Name: "int"},
		Float:     BuiltinType{Name: "float"},
		Complex:   BuiltinType{Name: "complex"},
		List:      BuiltinType{Name: "list"},
		Tuple:     BuiltinType{Name: "tuple"},
		Dict:      BuiltinType{Name: "dict"},
		Set:       BuiltinType{Name: "set"},
		Object:    BuiltinType{Name: "object"},
		Type:      BuiltinType{Name: "type"},
	}
	if version.Is2x() {
		b.Long = BuiltinType{Name: "long"}
		b.Bytes = BuiltinType{Name: "str"}
		b.Unicode = BuiltinType{Name: "unicode"}
		b.Str = b.Bytes
	} else {
		b.Long = b.Int
		b.Bytes = BuiltinType{Name: "bytes"}
		b.Unicode = BuiltinType{Name: "str"}
		b.Str = b.Unicode
	}

	b.types["NoneType"] = b.NoneType
	b.types["bool"] = b.Bool
	b.types["int"] = b.Int
	b.types["long"] = b.Long
	b.types["float"] = b.Float
	b.types["complex"] = b.Complex
	b.types["bytes"] = b.Bytes
	b.types["str"] = b.Str
	b.types["unicode"] = b.Unicode
	for _, t := range []BuiltinType{b.List, b.Tuple, b.Dict, b.Set, b.Object, b.Type} {
		b.types[t.Name] = t
	}

	module := b.ModuleName()
	f := func(name, sig string, fn CallFunc) {
		b.functions[name] = &BuiltinFunction{Module: module, Name: name, Signature: sig, fn: fn}
	}
	returns := func(t BuiltinType) CallFunc {
		return func(context.Context, CallSite, Env) ([]Value, error) {
			return []Value{t.Instance()}, nil
		}
	}
	param := func(i int) CallFunc {
		return func(_ context.Context, site CallSite, _ Env) ([]Value, error) {
			return site.Arg(i, ""), nil
		}
	}

	f("abs", "Callable[[T], T]", param(0))
	f("all", "Callable[..., bool]", returns(b.Bool))
	f("any", "Callable[..., bool]", returns(b.Bool))
	f("ascii", "Callable[[Any], str]", returns(b.Str))
	f("bin", "Callable[[Any], str]", returns(b.Str))
	f("callable", "Callable[[Any], bool]", returns(b.Bool))
	f("chr", "Callable[[Any], str]", returns(b.Str))
	f("dir", "Callable[[Any], List[str]]", nil)
	f("divmod", "Callable[[Any, Any], Tuple[Any, Any]]", nil)
	f("enumerate", "Callable[[Iterable], Iterable]", nil)
	f("eval", "Callable[[Any, Optional[Mapping], Optional[Mapping]], Any]", nil)
	if !version.Is2x() {
		f("exec", "Callable[[Any, Optional[Mapping], Optional[Mapping]]]", nil)
	}
	f("exit", "Callable[[Any]]", nil)
	f("filter", "Callable[[Callable[Any, bool], Iterable], Iterable]", param(1))
	f("format", "Callable[[...], str]", returns(b.Str))
	f("getattr", "Callable[[Any, str, Optional[Any]], Any]", param(2))
	f("globals", "Callable[[], Mapping[str, Any]]", nil)
	f("hasattr", "Callable[[Any, str], bool]", returns(b.Bool))
	f("hash", "Callable[[Any], int]", returns(b.Int))
	f("help", "Callable[[Any]]", nil)
	f("hex", "Callable[[Any], str]", returns(b.Str))
	f("id", "Callable[[Any], int]", returns(b.Int))
	f("input", "Callable[[str], Any]", nil)
	f("isinstance", "Callable[[Any, Type], bool]", returns(b.Bool))
	f("issubclass", "Callable[[Type, Type], bool]", returns(b.Bool))
	f("iter", "Callable[[Any], Iterator]", nil)
	f("len", "Callable[[Any], int]", returns(b.Int))
	f("locals", "Callable[[], Mapping[str, Any]]", nil)
	f("map", "Callable[[Callable[Any, Any], Iterable], Iterable]", nil)
	f("max", "Callable[[...], Any]", nil)
	f("min", "Callable[[...], Any]", nil)
	f("oct", "Callable[[Any], str]", returns(b.Str))
	f("ord", "Callable[[str], int]", returns(b.Int))
	f("repr", "Callable[[Any], str]", returns(b.Str))
	return b
}

func (b *Builtins) Version() tokenizer.LanguageVersion { return b.version }

// ModuleName is the importable name of the builtins module.
func (b *Builtins) ModuleName() string {
	if b.version.Is2x() {
		return "__builtin__"
	}
	return "builtins"
}

// Attribute returns the values of a builtin name, or nil.
func (b *Builtins) Attribute(name string) []Value {
	switch name {
	case "None":
		return []Value{b.NoneType.Instance()}
	case "True", "False":
		return []Value{b.Bool.Instance()}
	case "copyright", "credits":
		return []Value{b.Str.Instance()}
	}
	if t, ok := b.types[name]; ok {
		return []Value{t}
	}
	if fn, ok := b.functions[name]; ok {
		return []Value{fn}
	}
	return nil
}

// Names lists every builtin attribute, sorted.
func (b *Builtins) Names() []string {
	names := slices.Collect(maps.Keys(b.types))
	names = append(names, "copyright", "credits")
	names = append(names, slices.Collect(maps.Keys(b.functions))...)
	slices.Sort(names)
	return names
}

// Literal returns the instance type of a constant, string or display
// expression, or nil for anything else.
func (b *Builtins) Literal(e ast.Expr) Value {
	switch e := e.(type) {
	case *ast.Constant:
		switch e.Kind {
		case ast.ConstNone:
			return b.NoneType.Instance()
		case ast.ConstTrue, ast.ConstFalse:
			return b.Bool.Instance()
		case ast.ConstInt:
			if fitsInt32(e.Text) {
				return b.Int.Instance()
			}
			return b.Long.Instance()
		case ast.ConstLong:
			return b.Long.Instance()
		case ast.ConstFloat:
			return b.Float.Instance()
		case ast.ConstImaginary:
			return b.Complex.Instance()
		}
	case *ast.Str:
		if len(e.Parts) == 0 {
			return nil
		}
		if e.IsBytes() {
			return b.Bytes.Instance()
		}
		if b.version.Is2x() && !e.IsUnicode() {
			return b.Bytes.Instance()
		}
		return b.Unicode.Instance()
	case *ast.List:
		return b.List.Instance()
	case *ast.Tuple:
		return b.Tuple.Instance()
	case *ast.Dict:
		return b.Dict.Instance()
	case *ast.Set:
		return b.Set.Instance()
	case *ast.Comprehension:
		switch e.Kind {
		case ast.ListComp:
			return b.List.Instance()
		case ast.SetComp:
			return b.Set.Instance()
		case ast.DictComp:
			return b.Dict.Instance()
		}
	}
	return nil
}

func fitsInt32(text string) bool {
	text = strings.ReplaceAll(text, "_", "")
	var v uint64
	base := uint64(10)
	switch {
	case len(text) > 1 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X'):
		base, text = 16, text[2:]
	case len(text) > 1 && text[0] == '0' && (text[1] == 'o' || text[1] == 'O'):
		base, text = 8, text[2:]
	case len(text) > 1 && text[0] == '0' && (text[1] == 'b' || text[1] == 'B'):
		base, text = 2, text[2:]
	case len(text) > 1 && text[0] == '0':
		base, text = 8, text[1:]
	}
	for i := 0; i < len(text); i++ {
		d := digitValue(text[i])
		if d >= base {
			return false
		}
		v = v*base + d
		if v > 1<<31-1 {
			return false
		}
	}
	return true
}

func digitValue(c byte) uint64 {
	switch {
	case c >= '0' && c <= '9':
		return uint64(c - '0')
	case c >= 'a' && c <= 'f':
		return uint64(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return uint64(c-'A') + 10
	}
	return 99
}

// SourcelessModule is a module whose members are computed rather than parsed.
type SourcelessModule struct {
	moniker string
	members map[string][]Value
}

func (m *SourcelessModule) Moniker() string { return m.moniker }

// Version is constant; sourceless modules never change.
func (m *SourcelessModule) Version() uint64 { return 1 }

func (m *SourcelessModule) Types(name string) []Value { return m.members[name] }

func (m *SourcelessModule) AllTypes() map[string][]Value {
	return maps.Clone(m.members)
}

// Names lists the module's members, sorted.
func (m *SourcelessModule) Names() []string {
	names := slices.Collect(maps.Keys(m.members))
	slices.Sort(names)
	return names
}

// NewBuiltinsModule exposes b as an importable module.
func NewBuiltinsModule(b *Builtins) *SourcelessModule {
	m := &SourcelessModule{moniker: BuiltinsMoniker, members: make(map[string][]Value)}
	for _, name := range b.Names() {
		m.members[name] = b.Attribute(name)
	}
	m.members[ModuleVariable] = []Value{ModuleValue{FullName: b.ModuleName(), Moniker: BuiltinsMoniker}}
	return m
}

var arithmeticOps = []string{"add", "sub", "mul", "div", "truediv", "floordiv", "matmul"}

// OperatorMethod maps a binary operator token to the operator module's
// method name. trueDivision selects __truediv__ for "/".
func OperatorMethod(op tokenizer.Kind, trueDivision bool) string {
	switch op {
	case tokenizer.Add:
		return "__add__"
	case tokenizer.Subtract:
		return "__sub__"
	case tokenizer.Multiply:
		return "__mul__"
	case tokenizer.Divide:
		if trueDivision {
			return "__truediv__"
		}
		return "__div__"
	case tokenizer.FloorDivide:
		return "__floordiv__"
	case tokenizer.MatMultiply:
		return "__matmul__"
	}
	return ""
}

// NewOperatorModule builds the "operator" module used to type binary
// expressions.
func NewOperatorModule(b *Builtins) *SourcelessModule {
	m := &SourcelessModule{moniker: OperatorMoniker, members: make(map[string][]Value)}
	for _, n := range arithmeticOps {
		dunder := "__" + n + "__"
		fn := &BuiltinFunction{
			Module:    "operator",
			Name:      dunder,
			Signature: "Callable[[Any, Any], Any]",
			fn:        b.arithmetic(n),
		}
		m.members[n] = []Value{fn}
		m.members[dunder] = []Value{fn}
	}
	m.members[ModuleVariable] = []Value{ModuleValue{FullName: "operator", Moniker: OperatorMoniker}}
	return m
}

func (b *Builtins) numericRank(v Value) int {
	i, ok := v.(Instance)
	if !ok {
		return -1
	}
	switch i.Type {
	case b.Bool.Name:
		return 0
	case b.Int.Name:
		return 1
	case b.Long.Name:
		return 2
	case b.Float.Name:
		return 3
	case b.Complex.Name:
		return 4
	}
	return -1
}

func (b *Builtins) isText(v Value) bool {
	i, ok := v.(Instance)
	return ok && (i.Type == b.Bytes.Name || i.Type == b.Unicode.Name)
}

// arithmetic combines the operand types pairwise. Numbers widen, true
// division of integers yields float, and text concatenates or repeats.
func (b *Builtins) arithmetic(op string) CallFunc {
	numeric := []BuiltinType{b.Bool, b.Int, b.Long, b.Float, b.Complex}
	return func(_ context.Context, site CallSite, _ Env) ([]Value, error) {
		left, right := site.Arg(0, ""), site.Arg(1, "")
		out := NewTypeSet()
		for _, x := range left {
			for _, y := range right {
				rx, ry := b.numericRank(x), b.numericRank(y)
				switch {
				case rx >= 0 && ry >= 0:
					r := max(rx, ry, 1)
					if op == "truediv" && r < 3 {
						r = 3
					}
					out.Add(numeric[r].Instance())
				case op == "add" && b.isText(x) && x == y:
					out.Add(x)
				case op == "mul" && b.isText(x) && ry >= 0 && ry <= 2:
					out.Add(x)
				case op == "mul" && b.isText(y) && rx >= 0 && rx <= 2:
					out.Add(y)
				}
			}
		}
		return out.Values(), nil
	}
}
