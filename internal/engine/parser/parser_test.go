package parser

import (
	"strings"
	"testing"

	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

func parse(t *testing.T, src string, version tokenizer.LanguageVersion) (*ast.Module, []ErrorResult) {
	t.Helper()
	return New(tokenizer.TokenizeString(src, version)).Parse()
}

func parseClean(t *testing.T, src string) []ast.Stmt {
	t.Helper()
	mod, errs := parse(t, src, tokenizer.V36)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors for %q: %v", src, errs)
	}
	return mod.Body.Stmts
}

func mustBe[T any](t *testing.T, v any) T {
	t.Helper()
	out, ok := v.(T)
	if !ok {
		t.Fatalf("expected %T, got %T", out, v)
	}
	return out
}

func TestParseAssignments(t *testing.T) {
	stmts := parseClean(t, "x = 1\ny = x\n")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}

	first := mustBe[*ast.Assign](t, stmts[0])
	c := mustBe[*ast.Constant](t, first.Value)
	if c.Kind != ast.ConstInt || c.Text != "1" || c.Radix != 10 {
		t.Errorf("unexpected constant %+v", c)
	}
	if got := first.Span(); got.Start.Index != 0 || got.End.Index != 5 {
		t.Errorf("unexpected span %v", got)
	}

	second := mustBe[*ast.Assign](t, stmts[1])
	if n := mustBe[*ast.Name](t, second.Value); n.Id != "x" {
		t.Errorf("expected name x, got %q", n.Id)
	}
	if n := mustBe[*ast.Name](t, second.Targets[0]); n.Id != "y" {
		t.Errorf("expected target y, got %q", n.Id)
	}
}

func TestParseRecoversFromBadStatement(t *testing.T) {
	mod, errs := parse(t, "a = 1\nb = )\nc = 2\n", tokenizer.V36)
	stmts := mod.Body.Stmts
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}

	errorStmts := 0
	for _, s := range stmts {
		if es, ok := s.(*ast.ErrorStmt); ok {
			errorStmts++
			if es.Message == "" {
				t.Error("error statement has an empty message")
			}
		}
	}
	if errorStmts != 1 {
		t.Fatalf("expected exactly one error statement, got %d", errorStmts)
	}
	if len(errs) != errorStmts {
		t.Fatalf("expected %d errors, got %v", errorStmts, errs)
	}
	mustBe[*ast.Assign](t, stmts[0])
	mustBe[*ast.ErrorStmt](t, stmts[1])
	mustBe[*ast.Assign](t, stmts[2])
	if errs[0].Severity != SeverityError {
		t.Errorf("expected error severity, got %s", errs[0].Severity)
	}
}

func TestParseSuiteIndentation(t *testing.T) {
	t.Run("matching indent stays in suite", func(t *testing.T) {
		stmts := parseClean(t, "if x:\n    a = 1\n    b = 2\nc = 3\n")
		if len(stmts) != 2 {
			t.Fatalf("expected 2 top-level statements, got %d", len(stmts))
		}
		ifs := mustBe[*ast.If](t, stmts[0])
		if n := len(ifs.Tests[0].Body.Stmts); n != 2 {
			t.Fatalf("expected 2 statements in body, got %d", n)
		}
	})

	t.Run("tab after spaces ends the suite", func(t *testing.T) {
		mod, errs := parse(t, "if x:\n    a = 1\n\tb = 2\n", tokenizer.V36)
		stmts := mod.Body.Stmts
		if len(stmts) != 2 {
			t.Fatalf("expected 2 top-level statements, got %d", len(stmts))
		}
		ifs := mustBe[*ast.If](t, stmts[0])
		if n := len(ifs.Tests[0].Body.Stmts); n != 1 {
			t.Fatalf("expected the tab-indented line to leave the suite, body has %d", n)
		}
		mustBe[*ast.Assign](t, stmts[1])
		if len(errs) != 1 || errs[0].Message != "unexpected indent" {
			t.Fatalf("expected one unexpected indent error, got %v", errs)
		}
	})

	t.Run("blank and comment lines are ignored", func(t *testing.T) {
		stmts := parseClean(t, "if a:\n    x = 1\n\n    # note\n    y = 2\n")
		ifs := mustBe[*ast.If](t, stmts[0])
		if n := len(ifs.Tests[0].Body.Stmts); n != 2 {
			t.Fatalf("expected 2 statements in body, got %d", n)
		}
	})

	t.Run("missing block", func(t *testing.T) {
		mod, errs := parse(t, "if a:\nb = 1\n", tokenizer.V36)
		if len(mod.Body.Stmts) != 2 {
			t.Fatalf("expected 2 statements, got %d", len(mod.Body.Stmts))
		}
		if len(errs) != 1 || errs[0].Message != "expected an indented block" {
			t.Fatalf("unexpected errors %v", errs)
		}
	})

	t.Run("nested clauses", func(t *testing.T) {
		src := "def f():\n    if a:\n        pass\n    elif b:\n        pass\n    else:\n        pass\n    return 1\n"
		stmts := parseClean(t, src)
		fn := mustBe[*ast.FunctionDef](t, stmts[0])
		if len(fn.Body.Stmts) != 2 {
			t.Fatalf("expected 2 statements in function, got %d", len(fn.Body.Stmts))
		}
		ifs := mustBe[*ast.If](t, fn.Body.Stmts[0])
		if len(ifs.Tests) != 2 || ifs.Else == nil {
			t.Fatalf("expected if/elif/else, got %d tests else=%v", len(ifs.Tests), ifs.Else != nil)
		}
		mustBe[*ast.Return](t, fn.Body.Stmts[1])
	})

	t.Run("single line suite", func(t *testing.T) {
		stmts := parseClean(t, "while x: a = 1; b = 2\n")
		w := mustBe[*ast.While](t, stmts[0])
		if len(w.Body.Stmts) != 2 {
			t.Fatalf("expected 2 statements, got %d", len(w.Body.Stmts))
		}
	})
}

func TestParseParameters(t *testing.T) {
	stmts := parseClean(t, "def f(a, b=1, *args, c, **kw):\n    return a\n")
	fn := mustBe[*ast.FunctionDef](t, stmts[0])
	if fn.Name != "f" {
		t.Fatalf("expected f, got %q", fn.Name)
	}
	want := []struct {
		name string
		kind ast.ParameterKind
	}{
		{"a", ast.ParamNormal}, {"b", ast.ParamNormal}, {"args", ast.ParamList},
		{"c", ast.ParamKeywordOnly}, {"kw", ast.ParamDict},
	}
	if len(fn.Params) != len(want) {
		t.Fatalf("expected %d params, got %d", len(want), len(fn.Params))
	}
	for i, w := range want {
		if fn.Params[i].Name != w.name || fn.Params[i].Kind != w.kind {
			t.Errorf("param %d: got %s/%d, want %s/%d", i, fn.Params[i].Name, fn.Params[i].Kind, w.name, w.kind)
		}
	}
	if fn.Params[1].Default == nil {
		t.Error("expected default for b")
	}

	t.Run("lambda", func(t *testing.T) {
		stmts := parseClean(t, "f = lambda x, *y: x\n")
		l := mustBe[*ast.Lambda](t, mustBe[*ast.Assign](t, stmts[0]).Value)
		if len(l.Params) != 2 || l.Params[1].Kind != ast.ParamList {
			t.Fatalf("unexpected lambda params %+v", l.Params)
		}
		mustBe[*ast.Name](t, l.Body)
	})

	t.Run("annotations and bare star", func(t *testing.T) {
		stmts := parseClean(t, "def g(a: int, *, b=2) -> str:\n    pass\n")
		fn := mustBe[*ast.FunctionDef](t, stmts[0])
		if fn.Returns == nil || fn.Params[0].Annotation == nil {
			t.Fatal("expected annotations")
		}
		if fn.Params[1].Kind != ast.ParamList || fn.Params[1].Name != "" {
			t.Fatalf("expected bare star, got %+v", fn.Params[1])
		}
		if fn.Params[2].Kind != ast.ParamKeywordOnly {
			t.Fatalf("expected keyword-only b, got %d", fn.Params[2].Kind)
		}
	})
}

func TestParseClassAndDecorators(t *testing.T) {
	stmts := parseClean(t, "@dec\nclass C(Base, metaclass=M):\n    @property\n    def m(self):\n        pass\n")
	c := mustBe[*ast.ClassDef](t, stmts[0])
	if c.Name != "C" || len(c.Decorators) != 1 || len(c.Bases) != 2 {
		t.Fatalf("unexpected class %+v", c)
	}
	if c.Bases[1].Kind != ast.ArgKeyword || c.Bases[1].Name != "metaclass" {
		t.Fatalf("expected metaclass keyword, got %+v", c.Bases[1])
	}
	m := mustBe[*ast.FunctionDef](t, c.Body.Stmts[0])
	if len(m.Decorators) != 1 || m.Name != "m" {
		t.Fatalf("unexpected method %+v", m)
	}
}

func TestParseImports(t *testing.T) {
	stmts := parseClean(t, "import os.path as p, sys\nfrom ..pkg import (a, b as c)\nfrom . import *\n")

	imp := mustBe[*ast.Import](t, stmts[0])
	if len(imp.Names) != 2 || imp.Names[0].Module.String() != "os.path" || imp.Names[0].AsName != "p" {
		t.Fatalf("unexpected import %+v", imp.Names)
	}

	from := mustBe[*ast.FromImport](t, stmts[1])
	if from.Module.LeadingDots != 2 || from.Module.String() != "..pkg" {
		t.Fatalf("unexpected module %q", from.Module.String())
	}
	if len(from.Names) != 2 || from.Names[1].Name != "b" || from.Names[1].AsName != "c" {
		t.Fatalf("unexpected names %+v", from.Names)
	}

	star := mustBe[*ast.FromImport](t, stmts[2])
	if !star.Star || star.Module.LeadingDots != 1 || len(star.Module.Names) != 0 {
		t.Fatalf("unexpected star import %+v", star)
	}
}

func TestParseVersionGatedStatements(t *testing.T) {
	t.Run("print statement in 2.7", func(t *testing.T) {
		mod, errs := parse(t, "print >>f, 'a', b,\n", tokenizer.V27)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors %v", errs)
		}
		p := mustBe[*ast.Print](t, mod.Body.Stmts[0])
		if p.Dest == nil || len(p.Values) != 2 || !p.TrailingComma {
			t.Fatalf("unexpected print %+v", p)
		}
	})

	t.Run("print function in 3.x", func(t *testing.T) {
		stmts := parseClean(t, "print('a')\n")
		mustBe[*ast.Call](t, mustBe[*ast.ExprStmt](t, stmts[0]).Value)
	})

	t.Run("nonlocal in 3.x", func(t *testing.T) {
		stmts := parseClean(t, "def f():\n    nonlocal a, b\n")
		n := mustBe[*ast.Nonlocal](t, mustBe[*ast.FunctionDef](t, stmts[0]).Body.Stmts[0])
		if strings.Join(n.Names, ",") != "a,b" {
			t.Fatalf("unexpected names %v", n.Names)
		}
	})

	t.Run("exec in 2.7", func(t *testing.T) {
		mod, errs := parse(t, "exec code in g, l\n", tokenizer.V27)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors %v", errs)
		}
		e := mustBe[*ast.Exec](t, mod.Body.Stmts[0])
		if e.Globals == nil || e.Locals == nil {
			t.Fatalf("unexpected exec %+v", e)
		}
	})
}

func TestParseExpressionPrecedence(t *testing.T) {
	stmts := parseClean(t, "x = a + b * c ** -d\n")
	add := mustBe[*ast.Binary](t, mustBe[*ast.Assign](t, stmts[0]).Value)
	if add.Op != tokenizer.Add {
		t.Fatalf("expected +, got %s", add.Op)
	}
	mul := mustBe[*ast.Binary](t, add.Right)
	if mul.Op != tokenizer.Multiply {
		t.Fatalf("expected *, got %s", mul.Op)
	}
	pow := mustBe[*ast.Binary](t, mul.Right)
	if pow.Op != tokenizer.Power {
		t.Fatalf("expected **, got %s", pow.Op)
	}
	if u := mustBe[*ast.Unary](t, pow.Right); u.Op != tokenizer.Subtract {
		t.Fatalf("expected unary -, got %s", u.Op)
	}

	cases := map[string]string{
		"a < b":      "<",
		"a not in b": "not in",
		"a is not b": "is not",
		"a in b":     "in",
	}
	for src, op := range cases {
		stmts := parseClean(t, src+"\n")
		cmp := mustBe[*ast.Compare](t, mustBe[*ast.ExprStmt](t, stmts[0]).Value)
		if cmp.Op != op {
			t.Errorf("%s: expected %q, got %q", src, op, cmp.Op)
		}
	}

	chain := parseClean(t, "a < b < c\n")
	outer := mustBe[*ast.Compare](t, mustBe[*ast.ExprStmt](t, chain[0]).Value)
	mustBe[*ast.Compare](t, outer.Left)

	cond := parseClean(t, "x = a if b else c\n")
	mustBe[*ast.Conditional](t, mustBe[*ast.Assign](t, cond[0]).Value)

	boolean := parseClean(t, "x = not a and b or c\n")
	or := mustBe[*ast.BoolOp](t, mustBe[*ast.Assign](t, boolean[0]).Value)
	if or.Op != tokenizer.KeywordOr {
		t.Fatalf("expected or at the top, got %s", or.Op)
	}
}

func TestParseDisplaysAndComprehensions(t *testing.T) {
	value := func(src string) ast.Expr {
		stmts := parseClean(t, "x = "+src+"\n")
		return mustBe[*ast.Assign](t, stmts[0]).Value
	}

	lc := mustBe[*ast.Comprehension](t, value("[x for x in y if x]"))
	if lc.Kind != ast.ListComp || len(lc.Fors) != 1 || len(lc.Fors[0].Ifs) != 1 {
		t.Fatalf("unexpected list comprehension %+v", lc)
	}

	dc := mustBe[*ast.Comprehension](t, value("{k: v for k, v in d}"))
	if dc.Kind != ast.DictComp {
		t.Fatalf("expected dict comprehension, got %d", dc.Kind)
	}
	mustBe[*ast.DictItem](t, dc.Elt)
	mustBe[*ast.Tuple](t, dc.Fors[0].Target)

	if s := mustBe[*ast.Set](t, value("{1, 2}")); len(s.Items) != 2 {
		t.Fatalf("expected 2 set items, got %d", len(s.Items))
	}
	if d := mustBe[*ast.Dict](t, value("{}")); len(d.Items) != 0 {
		t.Fatal("expected empty dict")
	}
	if d := mustBe[*ast.Dict](t, value("{'a': 1, **rest}")); len(d.Items) != 2 || d.Items[1].Key != nil {
		t.Fatalf("unexpected dict %+v", d.Items)
	}
	if g := mustBe[*ast.Comprehension](t, value("(x for x in y)")); g.Kind != ast.GeneratorComp {
		t.Fatal("expected generator")
	}
	if tup := mustBe[*ast.Tuple](t, value("(1,\n     2)")); len(tup.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(tup.Items))
	}

	call := mustBe[*ast.Call](t, value("f(x for x in y)"))
	mustBe[*ast.Comprehension](t, call.Args[0].Value)

	idx := mustBe[*ast.Index](t, value("a[1:2, ::3]"))
	items := mustBe[*ast.Tuple](t, idx.Index)
	first := mustBe[*ast.Slice](t, items.Items[0])
	if first.Lower == nil || first.Upper == nil || first.Step != nil {
		t.Fatalf("unexpected slice %+v", first)
	}
	second := mustBe[*ast.Slice](t, items.Items[1])
	if second.Lower != nil || second.Upper != nil || second.Step == nil {
		t.Fatalf("unexpected slice %+v", second)
	}

	m := mustBe[*ast.Member](t, value("a.b.c"))
	if m.Name != "c" {
		t.Fatalf("expected member c, got %q", m.Name)
	}
}

func TestParseStrings(t *testing.T) {
	stmts := parseClean(t, "s = \"a\" 'b'\n")
	s := mustBe[*ast.Str](t, mustBe[*ast.Assign](t, stmts[0]).Value)
	if len(s.Parts) != 2 || s.Value() != "ab" {
		t.Fatalf("unexpected string %+v", s.Parts)
	}

	stmts = parseClean(t, "s = \"\"\"a\nb\"\"\"\n")
	if v := mustBe[*ast.Str](t, mustBe[*ast.Assign](t, stmts[0]).Value).Value(); v != "a\nb" {
		t.Fatalf("unexpected triple-quoted value %q", v)
	}

	stmts = parseClean(t, "s = b'x'\n")
	if b := mustBe[*ast.Str](t, mustBe[*ast.Assign](t, stmts[0]).Value); !b.IsBytes() {
		t.Fatal("expected bytes literal")
	}

	mod, errs := parse(t, "s = \"abc\nt = 1\n", tokenizer.V36)
	if len(errs) != 1 || errs[0].Message != "unterminated string literal" {
		t.Fatalf("unexpected errors %v", errs)
	}
	mustBe[*ast.ErrorExpr](t, mustBe[*ast.Assign](t, mod.Body.Stmts[0]).Value)
	if len(mod.Body.Stmts) != 2 {
		t.Fatalf("expected parsing to continue, got %d statements", len(mod.Body.Stmts))
	}
}

func TestParseCompoundStatements(t *testing.T) {
	src := "try:\n    pass\nexcept ValueError as e:\n    pass\nexcept:\n    pass\nelse:\n    pass\nfinally:\n    pass\n"
	try := mustBe[*ast.Try](t, parseClean(t, src)[0])
	if len(try.Handlers) != 2 || try.Else == nil || try.Finally == nil {
		t.Fatalf("unexpected try %+v", try)
	}
	if n := mustBe[*ast.Name](t, try.Handlers[0].Target); n.Id != "e" {
		t.Fatalf("expected target e, got %q", n.Id)
	}

	stmts := parseClean(t, "for i, j in pairs:\n    pass\nelse:\n    pass\n")
	f := mustBe[*ast.For](t, stmts[0])
	mustBe[*ast.Tuple](t, f.Target)
	if f.Else == nil {
		t.Fatal("expected for/else")
	}

	stmts = parseClean(t, "with open(p) as f, lock:\n    pass\n")
	w := mustBe[*ast.With](t, stmts[0])
	if len(w.Items) != 2 || w.Items[0].Target == nil || w.Items[1].Target != nil {
		t.Fatalf("unexpected with %+v", w.Items)
	}

	stmts = parseClean(t, "async def f():\n    await g()\n")
	fn := mustBe[*ast.FunctionDef](t, stmts[0])
	if !fn.Async {
		t.Fatal("expected async def")
	}
	mustBe[*ast.Await](t, mustBe[*ast.ExprStmt](t, fn.Body.Stmts[0]).Value)

	stmts = parseClean(t, "x += 1\ny: int = 5\na = b = 3\n")
	if aug := mustBe[*ast.AugAssign](t, stmts[0]); aug.Op != tokenizer.AddEqual {
		t.Fatalf("expected +=, got %s", aug.Op)
	}
	if ann := mustBe[*ast.Assign](t, stmts[1]); ann.Annotation == nil {
		t.Fatal("expected annotation")
	}
	if chain := mustBe[*ast.Assign](t, stmts[2]); len(chain.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(chain.Targets))
	}

	stmts = parseClean(t, "def g():\n    yield 1\n    x = yield\n")
	body := mustBe[*ast.FunctionDef](t, stmts[0]).Body.Stmts
	mustBe[*ast.Yield](t, mustBe[*ast.ExprStmt](t, body[0]).Value)
	mustBe[*ast.Yield](t, mustBe[*ast.Assign](t, body[1]).Value)
}

func TestParseEmptyDocument(t *testing.T) {
	mod, errs := parse(t, "", tokenizer.V36)
	if len(errs) != 0 || len(mod.Body.Stmts) != 0 {
		t.Fatalf("expected empty module, got %d statements and %v", len(mod.Body.Stmts), errs)
	}
	if mod.Tokenization == nil || mod.Version != tokenizer.V36 {
		t.Fatal("module should carry its tokenization and version")
	}
}

func TestWalkVisitsNames(t *testing.T) {
	mod, _ := parse(t, "def f(a):\n    return a + b\n", tokenizer.V36)
	var names []string
	ast.Inspect(mod, func(n ast.Node) bool {
		if name, ok := n.(*ast.Name); ok {
			names = append(names, name.Id)
		}
		return true
	})
	if strings.Join(names, ",") != "a,b" {
		t.Fatalf("unexpected names %v", names)
	}

	count := 0
	ast.Inspect(mod, func(n ast.Node) bool {
		count++
		_, isFunc := n.(*ast.FunctionDef)
		return !isFunc
	})
	if count != 3 {
		t.Fatalf("expected pruning at the function, visited %d nodes", count)
	}
}
