package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/data/queue"
	"pyanalyzer/internal/engine/analysis"
	"pyanalyzer/internal/engine/workspace"
)

func absPath(parts ...string) string {
	return filepath.Join(append([]string{string(filepath.Separator)}, parts...)...)
}

func newTestContext(t *testing.T, root string, files map[string]string) *workspace.FileContext {
	t.Helper()
	fc := workspace.NewFileContext(root, "")
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fc.AddDocuments(workspace.NewStringDocument(filepath.Join(root, filepath.FromSlash(name)), files[name]))
	}
	t.Cleanup(fc.Close)
	return fc
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestService(t *testing.T, opts Options) *LanguageService {
	t.Helper()
	svc := New(opts)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestModuleFullNameParts(t *testing.T) {
	cases := []struct {
		name, from string
		want       []string
	}{
		{"mod1", "mod9.__init__", []string{"mod1"}},
		{"mod1.mod2", "mod9.__init__", []string{"mod1", "mod2"}},
		{".mod2", "mod9.__init__", []string{"mod9", "mod2"}},
		{"..mod2", "mod9.__init__", []string{"mod2"}},
		{"...mod2", "mod9.__init__", []string{"mod2"}},
		{".sibling", "pkg.sub.mod", []string{"pkg", "sub", "sibling"}},
		{"", "pkg", nil},
		{".", "pkg.c", []string{"pkg"}},
		{".", "pkg.__init__", []string{"pkg"}},
		{"..", "pkg.sub.d", []string{"pkg"}},
		{"..a", "pkg.sub.d", []string{"pkg", "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name+"_from_"+tc.from, func(t *testing.T) {
			assert.Equal(t, tc.want, ModuleFullNameParts(tc.name, tc.from))
		})
	}

	assert.Empty(t, ModuleFullNameParts("..", "pkg.c"), "climbing above the top package")
}

func TestLanguageService_ResolveImport(t *testing.T) {
	ctx := testCtx(t)
	lib, proj, ext := absPath("lib"), absPath("proj"), absPath("ext")
	svc := newTestService(t, Options{})

	require.NoError(t, svc.AddFileContext(ctx, newTestContext(t, lib, map[string]string{
		"pkg/__init__.py": "",
		"pkg/mod.py":      "",
	})))
	require.NoError(t, svc.AddFileContext(ctx, newTestContext(t, proj, map[string]string{
		"main.py": "",
		"pkg.py":  "",
	})))
	require.NoError(t, svc.AddFileContext(ctx, newTestContext(t, ext, map[string]string{
		"__init__.py": "",
		"tool.py":     "",
	})))
	require.NoError(t, svc.AddSearchPath(ctx, lib, ""))
	require.NoError(t, svc.AddSearchPath(ctx, proj, ""))
	require.NoError(t, svc.AddSearchPath(ctx, ext, "vendor"))

	cases := []struct {
		name, from, want string
	}{
		{"pkg.mod", "", filepath.Join(lib, "pkg", "mod.py")},
		// The earlier search path wins over proj/pkg.py.
		{"pkg", "", filepath.Join(lib, "pkg", "__init__.py")},
		{"main", "", filepath.Join(proj, "main.py")},
		{".mod", "pkg.__init__", filepath.Join(lib, "pkg", "mod.py")},
		{"vendor.tool", "", filepath.Join(ext, "tool.py")},
		{"vendor", "", filepath.Join(ext, "__init__.py")},
		{"tool", "", ""},
		{"missing", "", ""},
		{"operator", "", analysis.OperatorMoniker},
		{"builtins", "", analysis.BuiltinsMoniker},
		{"__builtin__", "", analysis.BuiltinsMoniker},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.ResolveImport(ctx, tc.name, tc.from)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, "pkg.mod", svc.ModuleName(filepath.Join(lib, "pkg", "mod.py")))
	assert.Equal(t, "vendor.tool", svc.ModuleName(filepath.Join(ext, "tool.py")))

	require.NoError(t, svc.ClearSearchPaths(ctx))
	assert.Empty(t, svc.SearchPaths())
	got, err := svc.ResolveImport(ctx, "pkg.mod", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLanguageService_ImportableModules(t *testing.T) {
	ctx := testCtx(t)
	lib, ext := absPath("lib"), absPath("ext")
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddFileContext(ctx, newTestContext(t, lib, map[string]string{
		"pkg/__init__.py": "",
		"pkg/mod.py":      "",
		"top.py":          "",
		"bad-name.py":     "",
	})))
	require.NoError(t, svc.AddSearchPath(ctx, lib, ""))
	require.NoError(t, svc.AddSearchPath(ctx, ext, "vendor"))

	top, err := svc.ImportableModules(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"pkg":    filepath.Join(lib, "pkg"),
		"top":    filepath.Join(lib, "top.py"),
		"vendor": ext,
	}, top)

	inPkg, err := svc.ImportableModules(ctx, "pkg", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mod": filepath.Join(lib, "pkg", "mod.py")}, inPkg)

	_, err = svc.ImportableModules(cancelledCtx(), "", "")
	assert.True(t, errors.Is(err, domainerrors.ErrCancelled))
}

func cancelledCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestLanguageService_InfersAliasTypes(t *testing.T) {
	ctx := testCtx(t)
	proj := absPath("proj")
	fc := newTestContext(t, proj, map[string]string{"main.py": "x = 1\ny = x\n"})
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddFileContext(ctx, fc))
	require.NoError(t, svc.AddSearchPath(ctx, proj, ""))
	moniker := filepath.Join(proj, "main.py")

	types, err := svc.GetModuleMemberTypes(ctx, fc.ID(), moniker, "")
	require.NoError(t, err)
	assert.Equal(t, "int", analysis.Annotations(types["y"]))

	members, err := svc.GetModuleMembers(ctx, "", moniker, "")
	require.NoError(t, err)
	assert.Contains(t, members, "x")
	assert.Contains(t, members, "y")
	assert.NotContains(t, members, "$module")

	tree, err := svc.GetAST(ctx, fc.ID(), moniker)
	require.NoError(t, err)
	require.NotNil(t, tree)

	tok, err := svc.GetTokenization(ctx, fc.ID(), moniker)
	require.NoError(t, err)
	assert.Equal(t, 2, tok.LineCount())

	atY, err := svc.GetTypesAt(ctx, fc.ID(), moniker, 2, 1, "y")
	require.NoError(t, err)
	assert.Equal(t, "int", analysis.Annotations(atY))

	names, err := svc.GetFullName(ctx, fc.ID(), moniker, 1, 1, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names)

	st, err := svc.WaitForUpToDate(ctx, fc.ID(), moniker)
	require.NoError(t, err)
	require.True(t, st.UpToDate())

	var buf bytes.Buffer
	require.NoError(t, st.Dump(&buf))
	assert.Contains(t, buf.String(), "## variables")
	assert.Contains(t, buf.String(), "y: int")
}

func TestLanguageService_UnknownMonikerReturnsNil(t *testing.T) {
	ctx := testCtx(t)
	svc := newTestService(t, Options{})

	tree, err := svc.GetAST(ctx, "", absPath("nowhere.py"))
	require.NoError(t, err)
	assert.Nil(t, tree)

	ok, err := svc.WaitForUpdate(ctx, "", absPath("nowhere.py"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLanguageService_SourcelessModules(t *testing.T) {
	ctx := testCtx(t)
	svc := newTestService(t, Options{})

	members, err := svc.GetModuleMembers(ctx, "", analysis.BuiltinsMoniker, "")
	require.NoError(t, err)
	assert.Contains(t, members, "int")

	types, err := svc.GetModuleMemberTypes(ctx, "", analysis.OperatorMoniker, "")
	require.NoError(t, err)
	assert.NotEmpty(t, types)
}

func TestLanguageService_CrossModuleImport(t *testing.T) {
	ctx := testCtx(t)
	proj := absPath("proj")
	fc := newTestContext(t, proj, map[string]string{
		"a.py": "value = 1.5\n",
		"b.py": "from a import value\nv = value\n",
	})
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddFileContext(ctx, fc))
	require.NoError(t, svc.AddSearchPath(ctx, proj, ""))
	b := filepath.Join(proj, "b.py")

	require.Eventually(t, func() bool {
		types, err := svc.GetModuleMemberTypes(ctx, fc.ID(), b, "")
		return err == nil && analysis.Annotations(types["v"]) == "float"
	}, 5*time.Second, 10*time.Millisecond)

	svc.depMu.Lock()
	_, tracked := svc.dependents[filepath.Join(proj, "a.py")][stateKey{contextID: fc.ID(), moniker: b}]
	svc.depMu.Unlock()
	assert.True(t, tracked, "b should be registered as a dependent of a")
}

func TestLanguageService_RelativeFromImport(t *testing.T) {
	ctx := testCtx(t)
	proj := absPath("proj")
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddSearchPath(ctx, proj, ""))
	fc := newTestContext(t, proj, map[string]string{
		"pkg/__init__.py":     "",
		"pkg/a.py":            "x = 1\n",
		"pkg/b.py":            "",
		"pkg/c.py":            "from . import a\nw = a\n",
		"pkg/sub/__init__.py": "",
		"pkg/sub/d.py":        "from .. import a, b\nv = a\nu = b\n",
	})
	require.NoError(t, svc.AddFileContext(ctx, fc))

	got, err := svc.ResolveImport(ctx, ".", "pkg.c")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(proj, "pkg", "__init__.py"), got)
	got, err = svc.ResolveImport(ctx, "..", "pkg.sub.d")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(proj, "pkg", "__init__.py"), got)

	c := filepath.Join(proj, "pkg", "c.py")
	require.Eventually(t, func() bool {
		types, err := svc.GetModuleMemberTypes(ctx, fc.ID(), c, "")
		return err == nil && analysis.Annotations(types["w"]) == "pkg.a"
	}, 5*time.Second, 10*time.Millisecond)

	d := filepath.Join(proj, "pkg", "sub", "d.py")
	require.Eventually(t, func() bool {
		types, err := svc.GetModuleMemberTypes(ctx, fc.ID(), d, "")
		return err == nil && analysis.Annotations(types["v"]) == "pkg.a" &&
			analysis.Annotations(types["u"]) == "pkg.b"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLanguageService_ContentChangeReanalyzes(t *testing.T) {
	ctx := testCtx(t)
	proj := absPath("proj")
	fc := newTestContext(t, proj, map[string]string{"main.py": "x = 1\n"})
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddFileContext(ctx, fc))
	moniker := filepath.Join(proj, "main.py")

	types, err := svc.GetModuleMemberTypes(ctx, fc.ID(), moniker, "")
	require.NoError(t, err)
	require.Equal(t, "int", analysis.Annotations(types["x"]))

	require.NoError(t, fc.ReplaceDocument(workspace.NewStringDocument(moniker, "x = 'a'\n")))
	require.Eventually(t, func() bool {
		types, err := svc.GetModuleMemberTypes(ctx, fc.ID(), moniker, "")
		return err == nil && analysis.Annotations(types["x"]) == "str"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLanguageService_CancelledQueryLeavesQueueAlone(t *testing.T) {
	ctx := testCtx(t)
	proj := absPath("proj")
	fc := newTestContext(t, proj, map[string]string{"main.py": "x = 1\n"})
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddFileContext(ctx, fc))
	moniker := filepath.Join(proj, "main.py")

	_, err := svc.GetAST(cancelledCtx(), fc.ID(), moniker)
	require.True(t, errors.Is(err, domainerrors.ErrCancelled))

	e, ok := svc.entry(fc.ID())
	require.True(t, ok)
	assert.Equal(t, 0, e.queue.Len())
	st, ok := e.state(moniker)
	require.True(t, ok)
	assert.Equal(t, uint64(0), st.Version())
	assert.False(t, st.requested.Load())
}

func TestLanguageService_ReadErrorKeepsWorkerRunning(t *testing.T) {
	ctx := testCtx(t)
	root := t.TempDir()
	fc := workspace.NewFileContext(root, "")
	t.Cleanup(fc.Close)
	missing := filepath.Join(root, "missing.py")
	fc.AddDocuments(
		workspace.NewFileDocument(missing),
		workspace.NewStringDocument(filepath.Join(root, "ok.py"), "x = 1\n"),
	)
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddFileContext(ctx, fc))

	_, err := svc.GetAST(ctx, fc.ID(), missing)
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeIO), "got %v", err)

	tree, err := svc.GetAST(ctx, fc.ID(), filepath.Join(root, "ok.py"))
	require.NoError(t, err)
	assert.NotNil(t, tree)
	assert.NoError(t, svc.Close())
}

type failingTask struct {
	err   error
	panic bool
}

func (failingTask) Priority() queue.Priority { return queue.High }
func (failingTask) Kind() string             { return "failing" }
func (failingTask) String() string           { return "failing" }

func (f failingTask) Perform(context.Context, *LanguageService, *workspace.FileContext) error {
	if f.panic {
		panic("boom")
	}
	return f.err
}

func TestLanguageService_WorkerFailure(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		ctx := testCtx(t)
		fc := newTestContext(t, absPath("proj"), map[string]string{"main.py": ""})
		svc := New(Options{})
		require.NoError(t, svc.AddFileContext(ctx, fc))

		injected := errors.New("injected failure")
		require.NoError(t, svc.Enqueue(fc.ID(), failingTask{err: injected}))
		require.Eventually(t, func() bool {
			return svc.Enqueue(fc.ID(), failingTask{}) != nil
		}, 5*time.Second, 10*time.Millisecond)

		err := svc.Close()
		assert.ErrorIs(t, err, injected)
	})

	t.Run("panic", func(t *testing.T) {
		ctx := testCtx(t)
		fc := newTestContext(t, absPath("proj"), map[string]string{"main.py": ""})
		svc := New(Options{})
		require.NoError(t, svc.AddFileContext(ctx, fc))

		require.NoError(t, svc.Enqueue(fc.ID(), failingTask{panic: true}))
		require.Eventually(t, func() bool {
			return svc.Enqueue(fc.ID(), failingTask{}) != nil
		}, 5*time.Second, 10*time.Millisecond)

		err := svc.Close()
		assert.True(t, domainerrors.IsCode(err, domainerrors.CodeInternal), "got %v", err)
	})

	t.Run("unknown context", func(t *testing.T) {
		svc := newTestService(t, Options{})
		err := svc.Enqueue("nope", failingTask{})
		assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))
	})
}

func TestLanguageService_CrossCheckLeases(t *testing.T) {
	_, _, ok := newTestService(t, Options{}).CrossCheckLeases()
	assert.False(t, ok, "no cross checker without the option")

	ctx := testCtx(t)
	proj := absPath("proj")
	fc := newTestContext(t, proj, map[string]string{"main.py": "x = 1\n"})
	svc := newTestService(t, Options{CrossCheck: true})
	require.NoError(t, svc.AddFileContext(ctx, fc))
	_, err := svc.GetModuleMemberTypes(ctx, fc.ID(), filepath.Join(proj, "main.py"), "")
	require.NoError(t, err)

	leased, oldest, ok := svc.CrossCheckLeases()
	require.True(t, ok)
	assert.Zero(t, leased, "parsers go back to the pool after each check")
	assert.Zero(t, oldest)
}

func TestLanguageService_References(t *testing.T) {
	ctx := testCtx(t)
	svc := New(Options{})
	require.True(t, svc.AddReference())

	require.NoError(t, svc.Close())
	require.NoError(t, svc.AddSearchPath(ctx, absPath("lib"), ""), "one reference is still held")

	require.NoError(t, svc.Close())
	assert.False(t, svc.AddReference())
	assert.ErrorIs(t, svc.AddSearchPath(ctx, absPath("lib"), ""), domainerrors.ErrDisposed)
	assert.ErrorIs(t, svc.ClearSearchPaths(ctx), domainerrors.ErrDisposed)
	_, err := svc.ResolveImport(ctx, "pkg", "")
	assert.ErrorIs(t, err, domainerrors.ErrDisposed)
	_, err = svc.ImportableModules(ctx, "", "")
	assert.ErrorIs(t, err, domainerrors.ErrDisposed)
	assert.NoError(t, svc.Close(), "closing a disposed service is a no-op")
}

func TestLanguageService_RemoveFileContext(t *testing.T) {
	ctx := testCtx(t)
	fc := newTestContext(t, absPath("proj"), map[string]string{"main.py": "x = 1\n"})
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddFileContext(ctx, fc))
	require.NoError(t, svc.AddFileContext(ctx, fc), "adding twice is a no-op")
	require.Len(t, svc.FileContexts(), 1)

	assert.True(t, svc.RemoveFileContext(fc.ID()))
	assert.False(t, svc.RemoveFileContext(fc.ID()))
	assert.Empty(t, svc.FileContexts())
}

func TestLanguageService_ClosedContextIsForgotten(t *testing.T) {
	ctx := testCtx(t)
	fc := workspace.NewFileContext(absPath("proj"), "")
	fc.AddDocuments(workspace.NewStringDocument(absPath("proj", "main.py"), ""))
	svc := newTestService(t, Options{})
	require.NoError(t, svc.AddFileContext(ctx, fc))

	fc.Close()
	require.Eventually(t, func() bool {
		return len(svc.FileContexts()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServiceProvider_SharesByInterpreter(t *testing.T) {
	ctx := testCtx(t)
	p := NewServiceProvider()

	a, err := p.Get(ctx, Options{InterpreterPath: absPath("usr", "bin", "python3")}, nil)
	require.NoError(t, err)
	b, err := p.Get(ctx, Options{InterpreterPath: absPath("usr", "bin", "python3")}, nil)
	require.NoError(t, err)
	c, err := p.Get(ctx, Options{}, nil)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	for _, svc := range []*LanguageService{a, b, c} {
		require.NoError(t, svc.Close())
	}
	require.True(t, a.AddReference(), "the provider still holds a reference")
	require.NoError(t, a.Close())

	require.NoError(t, p.Close())
	assert.False(t, a.AddReference())
	assert.False(t, c.AddReference())

	_, err = p.Get(ctx, Options{}, nil)
	assert.ErrorIs(t, err, domainerrors.ErrDisposed)
}

func TestServiceProvider_LoadsInterpreterContexts(t *testing.T) {
	ctx := testCtx(t)
	sys := t.TempDir()
	writeFile(t, filepath.Join(sys, "json", "__init__.py"), "")
	writeFile(t, filepath.Join(sys, "os.py"), "sep = '/'\n")

	wp, err := workspace.NewProvider(workspace.Exclusions{})
	require.NoError(t, err)
	t.Cleanup(wp.Close)

	p := NewServiceProvider()
	t.Cleanup(func() { _ = p.Close() })
	svc, err := p.Get(ctx, Options{InterpreterPath: "python", SysPath: []string{sys}}, wp)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	assert.NotEmpty(t, svc.FileContexts())
	got, err := svc.ResolveImport(ctx, "os", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sys, "os.py"), got)
	got, err = svc.ResolveImport(ctx, "json", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sys, "json", "__init__.py"), got)

	roots := make([]string, 0)
	for _, fc := range svc.FileContexts() {
		roots = append(roots, fc.Root())
	}
	assert.True(t, slices.Contains(roots, sys), "got %v", roots)
}
