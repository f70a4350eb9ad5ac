package analysis

import (
	"maps"
	"slices"
	"testing"

	"pyanalyzer/internal/engine/tokenizer"
)

func TestMemberList(t *testing.T) {
	src := "import os\nimport xml.dom as dom\nclass C:\n    def m(self):\n        pass\n    x = 1\n" +
		"def f():\n    pass\nf = 1\nv = 2\ndel v\nif True:\n    w = 3\n"
	members := MemberList(parseModule(t, src))

	want := map[string]MemberKind{
		"os":  MemberModule,
		"dom": MemberModule,
		"C":   MemberClass,
		"C.m": MemberFunction,
		"C.x": MemberField,
		"f":   MemberFunction,
		"w":   MemberField,
	}
	if !maps.Equal(members, want) {
		t.Fatalf("got %v, want %v", members, want)
	}
}

func TestMergeMembers(t *testing.T) {
	cases := []struct {
		x, y, want MemberKind
	}{
		{MemberField, MemberField, MemberField},
		{MemberField, MemberFunction, MemberFunction},
		{MemberClass, MemberField, MemberClass},
		{MemberFunction, MemberClass, MemberFunction},
		{MemberUnknown, MemberModule, MemberModule},
		{MemberField, MemberUnknown, MemberField},
		{MemberField, MemberModule, MemberUnknown},
	}
	for _, tc := range cases {
		if got := mergeMembers(tc.x, tc.y); got != tc.want {
			t.Errorf("merge(%s, %s) = %s, want %s", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestPrefixView(t *testing.T) {
	m := map[string]MemberKind{
		"C":     MemberClass,
		"C.m":   MemberFunction,
		"C.x":   MemberField,
		"C.D.y": MemberField,
		"Cx":    MemberField,
	}
	got := PrefixView(m, "C.", ".")
	keys := slices.Sorted(maps.Keys(got))
	if !slices.Equal(keys, []string{"m", "x"}) {
		t.Fatalf("got %v", keys)
	}

	all := PrefixView(m, "", ".")
	if len(all) != 2 {
		t.Fatalf("expected only top-level names, got %v", all)
	}
}

func TestFindScopeNames(t *testing.T) {
	b := NewBuiltins(tokenizer.V36)
	res := NewWalker("test", "test", b, nil, nil, nil).Walk(parseModule(t, "x = 1\ndef f():\n    v = 1\n    w = 2\n"))

	inFunction := tokenizer.Location{Line: 3, Column: 5}
	if got := FindScopeNames(res.Regions, inFunction, "v"); !slices.Equal(got, []string{"f@1#v", "v"}) {
		t.Fatalf("got %v", got)
	}
	atModule := tokenizer.Location{Line: 1, Column: 1}
	if got := FindScopeNames(res.Regions, atModule, "x"); !slices.Equal(got, []string{"x"}) {
		t.Fatalf("got %v", got)
	}
	if got := FindScopeNames(res.Regions, inFunction, ""); !slices.Equal(got, []string{"f@1#", ""}) {
		t.Fatalf("expected scope prefixes, got %v", got)
	}
}

func TestTypeSet(t *testing.T) {
	s := NewTypeSet()
	if !s.Add(Instance{Type: "int"}) || s.Version() != 1 {
		t.Fatal("expected growth")
	}
	if s.Add(Instance{Type: "int"}) || s.Version() != 1 {
		t.Fatal("duplicates must collapse without a version bump")
	}
	if s.Add(nil) {
		t.Fatal("nil is never added")
	}
	if !s.AddAll([]Value{Instance{Type: "int"}, Instance{Type: "str"}}) || s.Len() != 2 {
		t.Fatal("expected one new value")
	}
	clone := s.Clone()
	clone.Add(Instance{Type: "float"})
	if s.Len() != 2 || clone.Len() != 3 {
		t.Fatal("clone must be independent")
	}
	if got := Annotations(clone.Values()); got != "float, int, str" {
		t.Fatalf("got %q", got)
	}
	if got := Annotations(nil); got != "<unknown>" {
		t.Fatalf("got %q", got)
	}
}

func TestResults_FreezeAndClone(t *testing.T) {
	vars := NewVariableMap()
	vars.GetOrAdd("a").AddType(Instance{Type: "int"})
	r := NewResults(vars)
	r.AddTypes("a", []Value{Instance{Type: "str"}})

	if got := r.Types("a"); len(got) != 2 {
		t.Fatalf("expected variable and rule types, got %v", got)
	}
	if got, _ := r.TryTypes("a"); len(got) != 1 {
		t.Fatalf("TryTypes should only see rule types, got %v", got)
	}

	clone := r.Clone()
	r.Freeze()
	if !r.Frozen() || clone.Frozen() {
		t.Fatal("freeze must not affect clones")
	}
	clone.AddTypes("b", []Value{Instance{Type: "float"}})
	if slices.Contains(r.Keys(), "b") {
		t.Fatal("clone writes leaked into the original")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected AddTypes on frozen results to panic")
		}
	}()
	r.AddTypes("c", []Value{Instance{Type: "int"}})
}

func TestBuiltins(t *testing.T) {
	b3 := NewBuiltins(tokenizer.V36)
	if b3.Long != b3.Int || b3.ModuleName() != "builtins" {
		t.Fatal("3.x has no separate long type")
	}
	if b3.Attribute("exec") == nil {
		t.Fatal("exec is a builtin function in 3.x")
	}
	b2 := NewBuiltins(tokenizer.V27)
	if b2.Long.Name != "long" || b2.ModuleName() != "__builtin__" {
		t.Fatal("2.x keeps long")
	}
	if b2.Attribute("exec") != nil {
		t.Fatal("exec is a statement in 2.x")
	}
	if b3.Attribute("nope") != nil {
		t.Fatal("unknown builtin should be nil")
	}

	mod := NewBuiltinsModule(b3)
	if mod.Types("len") == nil || mod.Types(ModuleVariable) == nil {
		t.Fatal("builtins module should expose functions and $module")
	}
	if !slices.IsSorted(mod.Names()) {
		t.Fatal("names should be sorted")
	}
}

func TestFitsInt32(t *testing.T) {
	cases := map[string]bool{
		"0":           true,
		"2147483647":  true,
		"2147483648":  false,
		"0x7fffffff":  true,
		"0x80000000":  false,
		"0o17":        true,
		"017":         true,
		"0b101":       true,
		"1_000_000":   true,
		"99999999999": false,
	}
	for text, want := range cases {
		if got := fitsInt32(text); got != want {
			t.Errorf("fitsInt32(%q) = %v, want %v", text, got, want)
		}
	}
}
