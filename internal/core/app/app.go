package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pyanalyzer/internal/core/config"
	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/core/ports"
	"pyanalyzer/internal/core/service"
	"pyanalyzer/internal/core/watcher"
	"pyanalyzer/internal/data/history"
	"pyanalyzer/internal/data/queue"
	"pyanalyzer/internal/engine/tokenizer"
	"pyanalyzer/internal/engine/workspace"
	"pyanalyzer/internal/shared/observability"
	"pyanalyzer/internal/shared/util"
)

const (
	limiterTTL = 10 * time.Minute

	changeQueueCapacity = 1024
	changeBatchSize     = 64
)

// App wires configuration, discovery, the language service and the optional
// history store together.
type App struct {
	Config   *config.Config
	Paths    config.ResolvedPaths
	Manifest *config.InterpreterManifest
	Service  *service.LanguageService

	provider *workspace.Provider
	services *service.ServiceProvider
	history  ports.HistoryStore
	gitMeta  ports.GitMetadataResolver
	limiters *util.LimiterRegistry

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.RWMutex
	projectContexts map[string]*workspace.FileContext
	activeWatcher   *watcher.Watcher
	changes         *queue.BatchQueue[string]
	drained         chan struct{}
	lastReport      *Report
	closed          bool
}

var _ ports.ChangeSink = (*App)(nil)

// New discovers the configured roots and starts analyzing them.
func New(ctx context.Context, cfg *config.Config, paths config.ResolvedPaths) (*App, error) {
	if cfg == nil {
		return nil, domainerrors.New(domainerrors.CodeValidationError, "config is required")
	}

	var manifest *config.InterpreterManifest
	if paths.Manifest != "" {
		m, err := config.LoadInterpreterManifest(paths.Manifest)
		if err != nil {
			return nil, err
		}
		manifest = m
	}
	opts, err := serviceOptions(cfg, manifest)
	if err != nil {
		return nil, err
	}

	provider, err := workspace.NewProvider(workspace.Exclusions{
		Dirs:  cfg.Exclude.Dirs,
		Files: cfg.Exclude.Files,
		Paths: cfg.Exclude.Paths,
	})
	if err != nil {
		return nil, err
	}

	services := service.NewServiceProvider()
	svc, err := services.Get(ctx, opts, provider)
	if err != nil {
		provider.Close()
		return nil, err
	}

	appCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:          cfg,
		Paths:           paths,
		Manifest:        manifest,
		Service:         svc,
		provider:        provider,
		services:        services,
		gitMeta:         history.ResolveGitMetadata,
		limiters:        util.NewLimiterRegistry(cfg.Analysis.ReanalysisRate, cfg.Analysis.ReanalysisBurst, limiterTTL),
		ctx:             appCtx,
		cancel:          cancel,
		projectContexts: make(map[string]*workspace.FileContext),
	}

	if err := a.loadRoots(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.DB.Enabled {
		store, err := history.Open(paths.DBPath)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.history = store
	}

	slog.Info("analyzer ready",
		"version", svc.Version().String(),
		"contexts", len(a.ProjectContexts()),
		"search_paths", len(svc.SearchPaths()))
	return a, nil
}

func serviceOptions(cfg *config.Config, manifest *config.InterpreterManifest) (service.Options, error) {
	opts := service.Options{
		InterpreterPath:   cfg.Interpreter.Path,
		MaxRuleIterations: cfg.Analysis.MaxRuleIterations,
		WorkerJoinTimeout: cfg.Analysis.WorkerJoinTimeout,
		TraceCapacity:     cfg.Analysis.TraceCapacity,
		CrossCheck:        cfg.Analysis.CrossCheck,
	}

	version := cfg.Interpreter.Version
	if manifest != nil {
		if manifest.InterpreterPath != "" {
			opts.InterpreterPath = manifest.InterpreterPath
		}
		if version == "" {
			version = manifest.Version
		}
		opts.SysPath = manifest.SysPath
	}
	if version != "" {
		v, err := tokenizer.ParseVersion(version)
		if err != nil {
			return service.Options{}, err
		}
		opts.Version = v
	}
	return opts, nil
}

// loadRoots registers search paths and the contexts of every watch path and
// search root. Watch paths double as unprefixed search paths.
func (a *App) loadRoots(ctx context.Context) error {
	for _, sp := range a.Paths.SearchPaths {
		if err := a.Service.AddSearchPath(ctx, sp.Root, sp.Prefix); err != nil {
			return err
		}
	}
	roots := make([]string, 0, len(a.Paths.WatchPaths)+len(a.Paths.SearchPaths))
	for _, wp := range a.Paths.WatchPaths {
		if err := a.Service.AddSearchPath(ctx, wp, ""); err != nil {
			return err
		}
		roots = append(roots, wp)
	}
	for _, sp := range a.Paths.SearchPaths {
		roots = append(roots, sp.Root)
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			slog.Warn("skipping missing analysis root", "path", root)
			continue
		}
		contexts, err := a.provider.ContextsFor(ctx, root)
		if err != nil {
			return err
		}
		for _, fc := range contexts {
			if err := a.Service.AddFileContext(ctx, fc); err != nil {
				return err
			}
			a.mu.Lock()
			a.projectContexts[fc.ID()] = fc
			a.mu.Unlock()
			slog.Debug("loaded file context", "root", fc.Root(), "package", fc.PackageName(), "documents", fc.Len())
		}
	}
	return nil
}

// ProjectContexts returns the contexts discovered under watch paths and
// search roots, ordered by root. Interpreter library contexts are excluded.
func (a *App) ProjectContexts() []*workspace.FileContext {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*workspace.FileContext, 0, len(a.projectContexts))
	for _, fc := range a.projectContexts {
		out = append(out, fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root() < out[j].Root() })
	return out
}

// SetHistoryStore replaces the history backend. A nil store disables history.
func (a *App) SetHistoryStore(store ports.HistoryStore) {
	a.mu.Lock()
	a.history = store
	a.mu.Unlock()
}

func (a *App) historyStore() ports.HistoryStore {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history
}

// HandleChanges re-reads changed sources. Each context has its own token
// bucket; a burst beyond it waits for tokens instead of being dropped.
func (a *App) HandleChanges(paths []string) {
	for _, path := range paths {
		if err := a.handleChange(path); err != nil {
			if domainerrors.IsCode(err, domainerrors.CodeCancelled) {
				return
			}
			slog.Warn("failed to apply change", "path", path, "error", err)
		}
	}
}

func (a *App) handleChange(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeValidationError, "resolve changed path")
	}
	if !workspace.IsPythonFile(abs) {
		return nil
	}

	targets := a.provider.ContextsForFile(abs)
	if len(targets) == 0 {
		if fc := a.owningContext(abs); fc != nil {
			targets = append(targets, fc)
		}
	}
	if len(targets) == 0 {
		slog.Debug("change outside every context", "path", abs)
		return nil
	}

	for _, fc := range targets {
		limiter := a.limiters.Get(fc.ID())
		if !limiter.Allow(1) {
			observability.ReanalysisThrottledTotal.Inc()
			slog.Debug("re-analysis throttled", "context", fc.Root(), "delay", limiter.Delay(1))
			if err := limiter.Wait(a.ctx, 1); err != nil {
				return domainerrors.Cancelled(err)
			}
		}
		if err := fc.ReplaceDocument(workspace.NewFileDocument(abs)); err != nil {
			return err
		}
		slog.Debug("document changed", "path", abs, "context", fc.Root())
	}
	return nil
}

// owningContext picks the project context with the deepest root that sits
// in the same directory as path or above it.
func (a *App) owningContext(path string) *workspace.FileContext {
	dir := filepath.Dir(path)
	var best *workspace.FileContext
	for _, fc := range a.ProjectContexts() {
		root := fc.Root()
		if dir != root && !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(root) > len(best.Root()) {
			best = fc
		}
	}
	return best
}

// StartWatcher watches the configured roots. Changed paths go through a
// bounded queue so a throttled context does not stall the watcher; when the
// queue is full the change is applied on the watcher's goroutine instead.
func (a *App) StartWatcher() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return domainerrors.Disposed("app")
	}
	if a.activeWatcher != nil {
		return nil
	}
	changes := queue.NewBatchQueue[string](changeQueueCapacity)
	w, err := watcher.NewWatcher(a.Config.Watch.Debounce, a.provider.Matcher(), func(paths []string) {
		for _, p := range paths {
			if !changes.Enqueue(p) {
				a.HandleChanges([]string{p})
			}
		}
		observability.ChangeQueueDepth.Set(float64(changes.Len()))
	})
	if err != nil {
		return err
	}
	roots := append([]string(nil), a.Paths.WatchPaths...)
	for _, sp := range a.Paths.SearchPaths {
		roots = append(roots, sp.Root)
	}
	if err := w.Watch(existingDirs(roots)); err != nil {
		_ = w.Close()
		return err
	}
	a.activeWatcher = w
	a.changes = changes
	a.drained = make(chan struct{})
	go a.drainChanges(changes, a.drained)
	return nil
}

func (a *App) drainChanges(changes *queue.BatchQueue[string], done chan<- struct{}) {
	defer close(done)
	for {
		batch, err := changes.DequeueBatch(a.ctx, changeBatchSize, time.Second)
		if len(batch) > 0 {
			observability.ChangeQueueDepth.Set(float64(changes.Len()))
			a.HandleChanges(batch)
		}
		if err != nil {
			return
		}
	}
}

func existingDirs(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	w := a.activeWatcher
	a.activeWatcher = nil
	changes, drained := a.changes, a.drained
	store := a.history
	a.history = nil
	a.mu.Unlock()

	a.cancel()
	var errs []error
	if w != nil {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", err))
		}
	}
	if changes != nil {
		_ = changes.Close()
		<-drained
	}
	a.limiters.Close()
	if a.Service != nil {
		if err := a.Service.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.services.Close(); err != nil {
		errs = append(errs, err)
	}
	a.provider.Close()
	if store != nil {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}
