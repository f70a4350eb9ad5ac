package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSortedStringKeys(t *testing.T) {
	input := map[string]int{
		"b": 2,
		"a": 1,
		"c": 3,
	}
	got := SortedStringKeys(input)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("len(keys)=%d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys[%d]=%q, want %q", i, got[i], want[i])
		}
	}
	if keys := SortedStringKeys(map[string]bool(nil)); len(keys) != 0 {
		t.Fatalf("expected no keys for nil map, got %v", keys)
	}
}

func TestWriteFileWithDirs(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "dir", "report.json")
	want := []byte("{}")

	if err := WriteFileWithDirs(path, want, 0o644); err != nil {
		t.Fatalf("WriteFileWithDirs() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("content=%q, want %q", string(got), string(want))
	}
}

func TestHeapAllocMB(t *testing.T) {
	buf := make([]byte, 8<<20)
	buf[0] = 1
	if HeapAllocMB() == 0 {
		t.Fatal("expected a non-zero heap after an 8MB allocation")
	}
	_ = buf[0]
}
