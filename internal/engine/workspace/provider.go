package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/engine/pathindex"
)

// Provider discovers FileContexts on disk and keeps one per root.
type Provider struct {
	matcher *Matcher

	mu       sync.Mutex
	contexts *pathindex.Index[*FileContext]
	closed   bool
}

func NewProvider(ex Exclusions) (*Provider, error) {
	m, err := NewMatcher(ex)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "compile exclusions")
	}
	return &Provider{matcher: m, contexts: pathindex.New[*FileContext]("")}, nil
}

func (p *Provider) Matcher() *Matcher { return p.matcher }

type group struct {
	root        string
	packageName string
	files       []string
}

type scanDir struct {
	path  string
	group *group
}

// ContextsFor walks root breadth first. A directory without an __init__
// module starts a new group; one with it joins its parent's group. Groups
// without Python files are dropped. Unreadable directories are skipped.
func (p *Provider) ContextsFor(ctx context.Context, root string) ([]*FileContext, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "resolve root "+root)
	}
	root = filepath.Clean(abs)

	var groups []*group
	queue := []scanDir{{path: root}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, domainerrors.Cancelled(err)
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir.path)
		if err != nil {
			slog.Debug("skipping unreadable directory", "path", dir.path, "error", err)
			continue
		}

		var files, subdirs []string
		hasInit := false
		for _, e := range entries {
			full := filepath.Join(dir.path, e.Name())
			if e.IsDir() {
				if !p.matcher.ExcludeDir(root, full) {
					subdirs = append(subdirs, full)
				}
				continue
			}
			if !IsPythonFile(full) || p.matcher.ExcludeFile(root, full) {
				continue
			}
			if IsPackageInit(full) {
				hasInit = true
			}
			files = append(files, full)
		}

		g := dir.group
		if g == nil || !hasInit {
			g = &group{root: dir.path}
			if hasInit {
				g.packageName = filepath.Base(dir.path)
			}
			groups = append(groups, g)
		}
		g.files = append(g.files, files...)
		for _, sub := range subdirs {
			queue = append(queue, scanDir{path: sub, group: g})
		}
	}

	var out []*FileContext
	for _, g := range groups {
		if len(g.files) == 0 {
			continue
		}
		fc, err := p.GetOrCreate(g.root, g.packageName)
		if err != nil {
			return nil, err
		}
		docs := make([]SourceDocument, 0, len(g.files))
		for _, f := range g.files {
			docs = append(docs, NewFileDocument(f))
		}
		fc.AddDocuments(docs...)
		out = append(out, fc)
	}
	return out, nil
}

// ContextsForInterpreter scans every sys.path entry that is a directory.
func (p *Provider) ContextsForInterpreter(ctx context.Context, sysPath []string) ([]*FileContext, error) {
	var out []*FileContext
	for _, dir := range sysPath {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		found, err := p.ContextsFor(ctx, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

// GetOrCreate returns the context rooted at root, creating an empty one if
// needed.
func (p *Provider) GetOrCreate(root, packageName string) (*FileContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, domainerrors.Disposed("file context provider")
	}
	if fc, ok := p.contexts.TryGet(root); ok {
		return fc, nil
	}
	fc := NewFileContext(root, packageName)
	if _, err := p.contexts.Add(root, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// Contexts returns every known context ordered by root.
func (p *Provider) Contexts() []*FileContext {
	p.mu.Lock()
	all := p.contexts.Values()
	p.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].Root() < all[j].Root() })
	return all
}

// ContextsForFile returns the contexts that hold path.
func (p *Provider) ContextsForFile(path string) []*FileContext {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	var out []*FileContext
	for _, fc := range p.Contexts() {
		if fc.Contains(path) {
			out = append(out, fc)
		}
	}
	return out
}

// Close closes every context the provider created.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	all := p.contexts.Values()
	p.contexts.Clear()
	p.mu.Unlock()

	for _, fc := range all {
		fc.Close()
	}
}
