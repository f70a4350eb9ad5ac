package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/engine/workspace"
)

func newMatcher(t *testing.T, ex workspace.Exclusions) *workspace.Matcher {
	t.Helper()
	m, err := workspace.NewMatcher(ex)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func waitFor(t *testing.T, changed <-chan []string, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case paths := <-changed:
			for _, p := range paths {
				if p == want {
					return
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for change to %s", want)
		}
	}
}

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(100*time.Millisecond, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !domainerrors.IsCode(err, domainerrors.CodeValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "__pycache__"), 0o755); err != nil {
		t.Fatal(err)
	}

	changedFiles := make(chan []string, 8)
	m := newMatcher(t, workspace.Exclusions{Dirs: []string{"__pycache__"}, Files: []string{"*_pb2.py"}})
	w, err := NewWatcher(100*time.Millisecond, m, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	testFile := filepath.Join(tmpDir, "mod.py")
	if err := os.WriteFile(testFile, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, testFile)

	// Excluded names, non-Python files and excluded directories stay quiet.
	excluded := map[string]bool{
		filepath.Join(tmpDir, "api_pb2.py"):            true,
		filepath.Join(tmpDir, "notes.txt"):             true,
		filepath.Join(tmpDir, "__pycache__", "mod.py"): true,
	}
	for p := range excluded {
		if err := os.WriteFile(p, []byte("ignored"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	quiet := time.After(500 * time.Millisecond)
	for waiting := true; waiting; {
		select {
		case paths := <-changedFiles:
			for _, p := range paths {
				if excluded[p] {
					t.Errorf("excluded file triggered event: %s", p)
				}
			}
		case <-quiet:
			waiting = false
		}
	}

	// New directory should be recursively watched after create.
	subdir := filepath.Join(tmpDir, "pkg")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatal(err)
	}
	subFile := filepath.Join(subdir, "__init__.py")
	if err := os.WriteFile(subFile, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, subFile)
}

func TestWatcher_RenameTriggersChange(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(100*time.Millisecond, nil, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(tmpDir, "old.py")
	newPath := filepath.Join(tmpDir, "new.py")
	if err := os.WriteFile(oldPath, []byte("pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case paths := <-changedFiles:
			for _, p := range paths {
				if p == oldPath || p == newPath {
					return
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for rename event, old=%s new=%s", oldPath, newPath)
		}
	}
}

func TestWatcher_DebounceBatchesAndSorts(t *testing.T) {
	changed := make(chan []string, 4)
	w, err := NewWatcher(50*time.Millisecond, nil, func(paths []string) {
		changed <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.scheduleChange("/src/b.py")
	w.scheduleChange("/src/a.py")
	w.scheduleChange("/src/b.py")

	select {
	case paths := <-changed:
		if len(paths) != 2 || paths[0] != "/src/a.py" || paths[1] != "/src/b.py" {
			t.Fatalf("unexpected batch: %v", paths)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestWatcher_PathExclusionsAreRootRelative(t *testing.T) {
	w, err := NewWatcher(time.Millisecond, newMatcher(t, workspace.Exclusions{Paths: []string{"build/**"}}), func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.roots = []string{"/proj", "/proj/vendor"}

	if !w.shouldExcludeFile("/proj/build/gen.py") {
		t.Fatal("expected build/** to exclude /proj/build/gen.py")
	}
	if w.shouldExcludeFile("/proj/vendor/lib.py") {
		t.Fatal("expected /proj/vendor/lib.py to be watched")
	}
	if !w.shouldExcludeFile("/proj/vendor/build/x.py") {
		t.Fatal("expected the vendor root's build dir to be excluded")
	}
	if !w.shouldExcludeFile("/proj/readme.md") {
		t.Fatal("expected non-Python files to be excluded")
	}
	if got := w.rootFor("/proj/vendor/pkg/m.py"); got != "/proj/vendor" {
		t.Fatalf("expected longest root, got %q", got)
	}
}

func TestWatcher_CloseDropsPending(t *testing.T) {
	called := make(chan struct{}, 1)
	w, err := NewWatcher(20*time.Millisecond, nil, func([]string) { called <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	w.scheduleChange("/src/a.py")
	select {
	case <-called:
		t.Fatal("callback ran after close")
	case <-time.After(100 * time.Millisecond):
	}
}
