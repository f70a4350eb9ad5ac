// Package service runs the analysis pipeline for Python file contexts and
// answers queries against its results.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/data/queue"
	"pyanalyzer/internal/engine/analysis"
	"pyanalyzer/internal/engine/parser"
	"pyanalyzer/internal/engine/pathindex"
	"pyanalyzer/internal/engine/tokenizer"
	"pyanalyzer/internal/engine/workspace"
	"pyanalyzer/internal/shared/observability"
)

const defaultJoinTimeout = 5 * time.Second

// Options configure a LanguageService. They replace process-wide settings.
type Options struct {
	InterpreterPath string
	Version         tokenizer.LanguageVersion
	// SysPath entries become unprefixed search paths.
	SysPath           []string
	MaxRuleIterations int
	WorkerJoinTimeout time.Duration
	TraceCapacity     int
	CrossCheck        bool
}

func (o Options) withDefaults() Options {
	if o.Version == 0 {
		o.Version = tokenizer.DefaultVersion
	}
	if o.MaxRuleIterations <= 0 {
		o.MaxRuleIterations = analysis.DefaultMaxIterations
	}
	if o.WorkerJoinTimeout <= 0 {
		o.WorkerJoinTimeout = defaultJoinTimeout
	}
	if o.TraceCapacity == 0 {
		o.TraceCapacity = defaultTraceCapacity
	}
	return o
}

// SearchPath is a directory consulted by import resolution. A non-empty
// Prefix restricts it to imports whose dotted name starts with it.
type SearchPath struct {
	Root   string
	Prefix []string
}

type contextEntry struct {
	fc    *workspace.FileContext
	queue *queue.PriorityQueue[Task]

	mu     sync.RWMutex
	states *pathindex.Index[*AnalysisState]
	byName map[string]*AnalysisState

	failMu sync.Mutex
	failed error

	unsubscribe func()
}

func (e *contextEntry) state(moniker string) (*AnalysisState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.byName[moniker]
	return st, ok
}

func (e *contextEntry) allStates() []*AnalysisState {
	e.mu.RLock()
	out := make([]*AnalysisState, 0, len(e.byName))
	for _, st := range e.byName {
		out = append(out, st)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Moniker() < out[j].Moniker() })
	return out
}

func (e *contextEntry) failure() error {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	return e.failed
}

type stateKey struct {
	contextID string
	moniker   string
}

// LanguageService owns a set of FileContexts, one worker per context, and
// the search paths used to resolve imports. Instances are shared through
// AddReference and torn down by the last Close.
type LanguageService struct {
	opts     Options
	builtins *analysis.Builtins
	modules  map[string]*AnalysisState
	checker  *parser.CrossChecker

	ctx    context.Context
	cancel context.CancelFunc

	refMu    sync.Mutex
	refs     int
	disposed bool

	searchMu    sync.RWMutex
	searchPaths []SearchPath

	mu       sync.RWMutex
	contexts map[string]*contextEntry

	depMu      sync.Mutex
	dependents map[string]map[stateKey]struct{}

	workers sync.WaitGroup
	errMu   sync.Mutex
	errs    []error
}

func New(opts Options) *LanguageService {
	opts = opts.withDefaults()
	b := analysis.NewBuiltins(opts.Version)
	ctx, cancel := context.WithCancel(context.Background())
	s := &LanguageService{
		opts:     opts,
		builtins: b,
		modules: map[string]*AnalysisState{
			analysis.BuiltinsMoniker: newSourcelessState(analysis.NewBuiltinsModule(b)),
			analysis.OperatorMoniker: newSourcelessState(analysis.NewOperatorModule(b)),
		},
		ctx:        ctx,
		cancel:     cancel,
		refs:       1,
		contexts:   make(map[string]*contextEntry),
		dependents: make(map[string]map[stateKey]struct{}),
	}
	if opts.CrossCheck {
		s.checker = parser.NewCrossChecker()
	}
	for _, p := range opts.SysPath {
		s.searchPaths = append(s.searchPaths, SearchPath{Root: p})
	}
	observability.LiveServices.Inc()
	return s
}

// CrossCheckLeases reports how many grammar parsers the cross checker has
// checked out and how long the oldest has been out. ok is false when cross
// checking is off.
func (s *LanguageService) CrossCheckLeases() (leased int, oldest time.Duration, ok bool) {
	if s.checker == nil {
		return 0, 0, false
	}
	pool := s.checker.Pool()
	return pool.Leased(), pool.OldestLease(), true
}

func (s *LanguageService) Options() Options                   { return s.opts }
func (s *LanguageService) Builtins() *analysis.Builtins       { return s.builtins }
func (s *LanguageService) Version() tokenizer.LanguageVersion { return s.opts.Version }

// AddReference takes another shared reference. It fails once the service
// has been disposed.
func (s *LanguageService) AddReference() bool {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if s.disposed {
		return false
	}
	s.refs++
	return true
}

func (s *LanguageService) checkDisposed() error {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if s.disposed {
		return domainerrors.Disposed("language service")
	}
	return nil
}

// Close drops one reference. The last one cancels every worker, waits up
// to WorkerJoinTimeout for them, and returns the first worker error.
func (s *LanguageService) Close() error {
	s.refMu.Lock()
	if s.disposed {
		s.refMu.Unlock()
		return nil
	}
	s.refs--
	if s.refs > 0 {
		s.refMu.Unlock()
		return nil
	}
	s.disposed = true
	s.refMu.Unlock()

	s.cancel()
	s.mu.Lock()
	entries := make([]*contextEntry, 0, len(s.contexts))
	for id, e := range s.contexts {
		entries = append(entries, e)
		delete(s.contexts, id)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.unsubscribe()
		_ = e.queue.Close()
		observability.LiveContexts.Dec()
	}
	observability.LiveServices.Dec()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.WorkerJoinTimeout):
		s.recordError(domainerrors.New(domainerrors.CodeInternal, "timed out waiting for analysis workers"))
	}
	return s.firstError()
}

func (s *LanguageService) recordError(err error) {
	s.errMu.Lock()
	s.errs = append(s.errs, err)
	s.errMu.Unlock()
}

func (s *LanguageService) firstError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[0]
}

// AddFileContext registers fc and starts its worker. Adding a context twice
// is a no-op.
func (s *LanguageService) AddFileContext(ctx context.Context, fc *workspace.FileContext) error {
	if err := ctx.Err(); err != nil {
		return domainerrors.Cancelled(err)
	}
	if err := s.checkDisposed(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.contexts[fc.ID()]; ok {
		s.mu.Unlock()
		return nil
	}
	events, unsubscribe := fc.Subscribe()
	e := &contextEntry{
		fc:          fc,
		queue:       queue.NewPriorityQueue[Task](),
		states:      pathindex.New[*AnalysisState](fc.Root()),
		byName:      make(map[string]*AnalysisState),
		unsubscribe: unsubscribe,
	}
	s.contexts[fc.ID()] = e
	s.workers.Add(2)
	s.mu.Unlock()

	observability.LiveContexts.Inc()
	s.syncDocuments(e)
	go s.runWorker(e)
	go s.watchContext(e, events)
	slog.Debug("file context added", "context", fc.Root(), "documents", fc.Len())
	return nil
}

// ContextFailure returns the error that stopped a context's worker, or nil.
func (s *LanguageService) ContextFailure(id string) error {
	e, ok := s.entry(id)
	if !ok {
		return nil
	}
	return e.failure()
}

// RemoveFileContext stops the context's worker and forgets its states.
func (s *LanguageService) RemoveFileContext(id string) bool {
	s.mu.Lock()
	e, ok := s.contexts[id]
	delete(s.contexts, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.unsubscribe()
	_ = e.queue.Close()
	e.queue.Discard()
	observability.LiveContexts.Dec()
	slog.Debug("file context removed", "context", e.fc.Root())
	return true
}

// FileContexts lists the registered contexts ordered by root.
func (s *LanguageService) FileContexts() []*workspace.FileContext {
	entries := s.entries()
	out := make([]*workspace.FileContext, len(entries))
	for i, e := range entries {
		out[i] = e.fc
	}
	return out
}

func (s *LanguageService) entries() []*contextEntry {
	s.mu.RLock()
	out := make([]*contextEntry, 0, len(s.contexts))
	for _, e := range s.contexts {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].fc.Root() < out[j].fc.Root() })
	return out
}

func (s *LanguageService) entry(id string) (*contextEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.contexts[id]
	return e, ok
}

// syncDocuments creates a state for every document the context has that the
// service has not seen yet.
func (s *LanguageService) syncDocuments(e *contextEntry) {
	for _, doc := range e.fc.Documents() {
		e.mu.Lock()
		if _, ok := e.byName[doc.Moniker()]; !ok {
			st := newAnalysisState(doc, e.fc.ID(), s.opts.TraceCapacity)
			if _, err := e.states.Add(doc.Moniker(), st); err != nil {
				slog.Warn("document outside its context root", "moniker", doc.Moniker(), "context", e.fc.Root())
			} else {
				e.byName[doc.Moniker()] = st
			}
		}
		e.mu.Unlock()
	}
}

func (s *LanguageService) watchContext(e *contextEntry, events <-chan workspace.Event) {
	defer s.workers.Done()
	for ev := range events {
		switch ev.Kind {
		case workspace.DocumentsChanged:
			s.syncDocuments(e)
		case workspace.DocumentContentChanged:
			s.syncDocuments(e)
			st, ok := e.state(ev.Document.Moniker())
			if !ok {
				continue
			}
			st.replaceDocument(ev.Document)
			st.requested.Store(true)
			if err := s.enqueue(e, DocumentChanged{State: st, Document: ev.Document}); err != nil {
				slog.Warn("failed to enqueue document change", "moniker", st.Moniker(), "error", err)
			}
		}
	}
	// The channel closes on unsubscribe or when the context is disposed.
	if _, ok := s.entry(e.fc.ID()); ok {
		s.RemoveFileContext(e.fc.ID())
	}
}

// Enqueue schedules a task on the worker of the given context.
func (s *LanguageService) Enqueue(contextID string, t Task) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	e, ok := s.entry(contextID)
	if !ok {
		return domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeNotFound, "unknown file context"),
			domainerrors.CtxContext, contextID,
		)
	}
	return s.enqueue(e, t)
}

func (s *LanguageService) enqueue(e *contextEntry, t Task) error {
	if err := e.failure(); err != nil {
		return err
	}
	return e.queue.Enqueue(t.Priority(), t)
}

func (s *LanguageService) runWorker(e *contextEntry) {
	defer s.workers.Done()
	for {
		t, err := e.queue.Dequeue(s.ctx)
		if err != nil {
			return
		}
		if err := s.perform(e, t); err != nil {
			if errors.Is(err, domainerrors.ErrCancelled) {
				return
			}
			slog.Error("analysis worker stopped", "context", e.fc.Root(), "task", t.String(), "error", err)
			e.failMu.Lock()
			e.failed = err
			e.failMu.Unlock()
			s.recordError(err)
			return
		}
	}
}

func (s *LanguageService) perform(e *contextEntry, t Task) (err error) {
	ctx, span := observability.Tracer.Start(s.ctx, "task."+t.Kind())
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = domainerrors.AddContext(
				domainerrors.New(domainerrors.CodeInternal, "analysis task panicked"),
				"panic", r,
			)
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
		}
		observability.TasksProcessedTotal.WithLabelValues(t.Kind(), outcome).Inc()
	}()
	return t.Perform(ctx, s, e.fc)
}

// stateFor finds the state for moniker in the given context, or in any
// context when contextID is empty. A state that has never been processed
// is scheduled.
func (s *LanguageService) stateFor(contextID, moniker string) *AnalysisState {
	if st, ok := s.modules[moniker]; ok {
		return st
	}
	var candidates []*contextEntry
	if contextID == "" {
		candidates = s.entries()
	} else if e, ok := s.entry(contextID); ok {
		candidates = []*contextEntry{e}
	}
	for _, e := range candidates {
		st, ok := e.state(moniker)
		if !ok {
			continue
		}
		s.request(e, st)
		return st
	}
	return nil
}

func (s *LanguageService) request(e *contextEntry, st *AnalysisState) {
	if st.Version() != 0 || !st.requested.CompareAndSwap(false, true) {
		return
	}
	if err := s.enqueue(e, DocumentChanged{State: st, Document: st.Document()}); err != nil {
		st.requested.Store(false)
		slog.Debug("could not schedule document", "moniker", st.Moniker(), "error", err)
	}
}

// State returns the analysis state for moniker, scheduling it if needed.
func (s *LanguageService) State(contextID, moniker string) (*AnalysisState, error) {
	if err := s.checkDisposed(); err != nil {
		return nil, err
	}
	return s.stateFor(contextID, moniker), nil
}

// States returns every state of the context, scheduling each.
func (s *LanguageService) States(contextID string) []*AnalysisState {
	e, ok := s.entry(contextID)
	if !ok {
		return nil
	}
	states := e.allStates()
	for _, st := range states {
		s.request(e, st)
	}
	return states
}

func (s *LanguageService) addDependent(dep string, importer stateKey) {
	if dep == importer.moniker {
		return
	}
	s.depMu.Lock()
	defer s.depMu.Unlock()
	set, ok := s.dependents[dep]
	if !ok {
		set = make(map[stateKey]struct{})
		s.dependents[dep] = set
	}
	set[importer] = struct{}{}
}

// notifyDependents re-runs the rules of every module that read from moniker.
func (s *LanguageService) notifyDependents(moniker string) {
	s.depMu.Lock()
	targets := make([]stateKey, 0, len(s.dependents[moniker]))
	for k := range s.dependents[moniker] {
		targets = append(targets, k)
	}
	s.depMu.Unlock()

	for _, k := range targets {
		e, ok := s.entry(k.contextID)
		if !ok {
			continue
		}
		st, ok := e.state(k.moniker)
		if !ok {
			continue
		}
		if err := s.enqueue(e, UpdateRules{State: st}); err != nil {
			slog.Debug("could not notify dependent", "moniker", k.moniker, "error", err)
		}
	}
}

// ruleEnv lets one module's rules reach other modules.
type ruleEnv struct {
	svc      *LanguageService
	importer stateKey
}

func (r ruleEnv) Module(_ context.Context, moniker string) (analysis.ModuleState, error) {
	st := r.svc.stateFor("", moniker)
	if st == nil {
		return nil, nil
	}
	return st, nil
}

func (r ruleEnv) Depend(dep analysis.ModuleState) {
	r.svc.addDependent(dep.Moniker(), r.importer)
}
