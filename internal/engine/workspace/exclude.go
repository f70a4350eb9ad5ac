package workspace

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

// Exclusions are the configured skip patterns. Dirs and Files match base
// names with gobwas syntax; Paths match slash-separated paths relative to
// the scan root with doublestar syntax.
type Exclusions struct {
	Dirs  []string
	Files []string
	Paths []string
}

type Matcher struct {
	dirs  []glob.Glob
	files []glob.Glob
	paths []string
}

func NewMatcher(ex Exclusions) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range ex.Dirs {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude dir pattern %q: %w", p, err)
		}
		m.dirs = append(m.dirs, g)
	}
	for _, p := range ex.Files {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude file pattern %q: %w", p, err)
		}
		m.files = append(m.files, g)
	}
	for _, p := range ex.Paths {
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude path pattern %q", p)
		}
		m.paths = append(m.paths, p)
	}
	return m, nil
}

func (m *Matcher) matchPath(root, path string) bool {
	if len(m.paths) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range m.paths {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// ExcludeDir reports whether the directory path under root is skipped.
func (m *Matcher) ExcludeDir(root, path string) bool {
	if m == nil {
		return false
	}
	base := filepath.Base(path)
	for _, g := range m.dirs {
		if g.Match(base) {
			return true
		}
	}
	return path != root && m.matchPath(root, path)
}

// ExcludeFile reports whether the file path under root is skipped.
func (m *Matcher) ExcludeFile(root, path string) bool {
	if m == nil {
		return false
	}
	base := filepath.Base(path)
	for _, g := range m.files {
		if g.Match(base) {
			return true
		}
	}
	return m.matchPath(root, path)
}

var pythonExtensions = map[string]bool{".py": true, ".pyw": true}

// IsPythonFile reports whether path names Python source.
func IsPythonFile(path string) bool {
	return pythonExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsPackageInit reports whether path is a package's __init__ module.
func IsPackageInit(path string) bool {
	base := filepath.Base(path)
	return IsPythonFile(base) && strings.EqualFold(strings.TrimSuffix(base, filepath.Ext(base)), "__init__")
}
