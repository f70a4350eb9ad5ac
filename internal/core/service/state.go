package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"pyanalyzer/internal/engine/analysis"
	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/parser"
	"pyanalyzer/internal/engine/tokenizer"
	"pyanalyzer/internal/engine/versioned"
	"pyanalyzer/internal/engine/workspace"
)

// Stage payloads carry the version of the stage they were computed from.

type TokenizationStamp struct {
	Tokenization *tokenizer.Tokenization
	DocVersion   uint64
}

type ParsedModule struct {
	Module     *ast.Module
	Errors     []parser.ErrorResult
	DocVersion uint64
}

type WalkStamp struct {
	Result     *analysis.WalkResult
	ASTVersion uint64
}

type ResultsStamp struct {
	Results     *analysis.Results
	Stats       analysis.EvalStats
	WalkVersion uint64
}

type MembersStamp struct {
	Members    map[string]analysis.MemberKind
	ASTVersion uint64
}

type stageError struct {
	err        error
	docVersion uint64
}

// AnalysisState is the per-document bundle of derived artifacts. Each
// stage lives in its own versioned cell; the state's Version bumps whenever
// any of them changes. Only the owning context's worker writes to it.
type AnalysisState struct {
	moniker   string
	contextID string

	sourceless *analysis.SourcelessModule

	docMu   sync.RWMutex
	current workspace.SourceDocument

	document versioned.Cell[workspace.SourceDocument]
	tokens   versioned.Cell[TokenizationStamp]
	tree     versioned.Cell[ParsedModule]
	walk     versioned.Cell[WalkStamp]
	results  versioned.Cell[ResultsStamp]
	members  versioned.Cell[MembersStamp]
	updates  versioned.Cell[struct{}]

	errMu   sync.RWMutex
	lastErr *stageError

	requested atomic.Bool
	trace     *traceRing
}

func newAnalysisState(doc workspace.SourceDocument, contextID string, traceCapacity int) *AnalysisState {
	return &AnalysisState{
		moniker:   doc.Moniker(),
		contextID: contextID,
		current:   doc,
		trace:     newTraceRing(traceCapacity),
	}
}

func newSourcelessState(mod *analysis.SourcelessModule) *AnalysisState {
	s := &AnalysisState{
		moniker:    mod.Moniker(),
		sourceless: mod,
		current:    workspace.NewSourcelessDocument(mod.Moniker()),
		trace:      newTraceRing(0),
	}
	s.updates.Set(struct{}{})
	return s
}

func (s *AnalysisState) Moniker() string   { return s.moniker }
func (s *AnalysisState) ContextID() string { return s.contextID }
func (s *AnalysisState) Sourceless() bool  { return s.sourceless != nil }

// Version increases whenever any stage is updated.
func (s *AnalysisState) Version() uint64 {
	if s.sourceless != nil {
		return s.sourceless.Version()
	}
	return s.updates.Version()
}

func (s *AnalysisState) bump() { s.updates.Set(struct{}{}) }

// Document is the latest document known for the moniker, which may not
// have been processed yet.
func (s *AnalysisState) Document() workspace.SourceDocument {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	return s.current
}

func (s *AnalysisState) replaceDocument(doc workspace.SourceDocument) {
	s.docMu.Lock()
	s.current = doc
	s.docMu.Unlock()
}

func (s *AnalysisState) setDocument(doc workspace.SourceDocument) uint64 {
	s.replaceDocument(doc)
	v := s.document.Set(doc)
	s.bump()
	return v
}

func (s *AnalysisState) setTokenization(tok *tokenizer.Tokenization, docVersion uint64) {
	s.tokens.Set(TokenizationStamp{Tokenization: tok, DocVersion: docVersion})
	s.bump()
}

func (s *AnalysisState) setTree(m *ast.Module, errs []parser.ErrorResult, docVersion uint64) uint64 {
	v := s.tree.Set(ParsedModule{Module: m, Errors: errs, DocVersion: docVersion})
	s.bump()
	return v
}

func (s *AnalysisState) setWalk(res *analysis.WalkResult, astVersion uint64) uint64 {
	v := s.walk.Set(WalkStamp{Result: res, ASTVersion: astVersion})
	s.bump()
	return v
}

func (s *AnalysisState) setResults(r *analysis.Results, stats analysis.EvalStats, walkVersion uint64) {
	s.results.Set(ResultsStamp{Results: r.Freeze(), Stats: stats, WalkVersion: walkVersion})
	s.bump()
}

func (s *AnalysisState) setMembers(m map[string]analysis.MemberKind, astVersion uint64) {
	s.members.Set(MembersStamp{Members: m, ASTVersion: astVersion})
	s.bump()
}

// NotifyError records a pipeline failure for the current document so that
// waiters stop waiting for stages that will never arrive.
func (s *AnalysisState) NotifyError(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	s.lastErr = &stageError{err: err, docVersion: s.document.Version()}
	s.errMu.Unlock()
	s.tracef("error: %v", err)
	s.bump()
}

// Err returns the failure recorded for the current document, if any.
func (s *AnalysisState) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	if s.lastErr == nil || s.lastErr.docVersion != s.document.Version() {
		return nil
	}
	return s.lastErr.err
}

// Tokenization returns the tokens of the latest processed document.
func (s *AnalysisState) Tokenization() *tokenizer.Tokenization {
	stamp, _, ok := s.tokens.TryGet()
	if !ok || stamp.DocVersion != s.document.Version() {
		return nil
	}
	return stamp.Tokenization
}

// Parsed returns the AST of the latest processed document.
func (s *AnalysisState) Parsed() (ParsedModule, bool) {
	stamp, _, ok := s.tree.TryGet()
	if !ok || stamp.DocVersion != s.document.Version() {
		return ParsedModule{}, false
	}
	return stamp, true
}

// Walk returns the walk result only when it was computed from the current
// AST, together with the walk version.
func (s *AnalysisState) Walk() (*analysis.WalkResult, uint64, bool) {
	stamp, v, ok := s.walk.TryGet()
	if !ok || stamp.ASTVersion != s.tree.Version() {
		return nil, 0, false
	}
	return stamp.Result, v, true
}

// Variables returns the walked variables consistent with the current AST.
func (s *AnalysisState) Variables() *analysis.VariableMap {
	res, _, ok := s.Walk()
	if !ok {
		return nil
	}
	return res.Variables
}

// Results returns the frozen rule results for the current walk.
func (s *AnalysisState) Results() (ResultsStamp, bool) {
	stamp, _, ok := s.results.TryGet()
	if !ok || stamp.WalkVersion != s.walk.Version() {
		return ResultsStamp{}, false
	}
	return stamp, true
}

// Members returns the member list of the current AST.
func (s *AnalysisState) Members() map[string]analysis.MemberKind {
	if s.sourceless != nil {
		return sourcelessMembers(s.sourceless)
	}
	stamp, _, ok := s.members.TryGet()
	if !ok || stamp.ASTVersion != s.tree.Version() {
		return nil
	}
	return stamp.Members
}

func sourcelessMembers(mod *analysis.SourcelessModule) map[string]analysis.MemberKind {
	out := make(map[string]analysis.MemberKind)
	for _, name := range mod.Names() {
		if strings.HasPrefix(name, "$") {
			continue
		}
		kind := analysis.MemberField
		for _, v := range mod.Types(name) {
			switch v.(type) {
			case analysis.BuiltinType:
				kind = analysis.MemberClass
			case *analysis.BuiltinFunction:
				kind = analysis.MemberFunction
			}
		}
		out[name] = kind
	}
	return out
}

// Types implements analysis.ModuleState.
func (s *AnalysisState) Types(name string) []analysis.Value {
	if s.sourceless != nil {
		return s.sourceless.Types(name)
	}
	if stamp, _, ok := s.results.TryGet(); ok {
		return stamp.Results.Types(name)
	}
	if vars := s.Variables(); vars != nil {
		return vars.Types(name)
	}
	return nil
}

// AllTypes implements analysis.ModuleState.
func (s *AnalysisState) AllTypes() map[string][]analysis.Value {
	if s.sourceless != nil {
		return s.sourceless.AllTypes()
	}
	if stamp, _, ok := s.results.TryGet(); ok {
		return stamp.Results.All()
	}
	return map[string][]analysis.Value{}
}

// UpToDate reports whether every stage reflects the latest processed
// document.
func (s *AnalysisState) UpToDate() bool {
	if s.sourceless != nil {
		return true
	}
	if s.document.Version() == 0 {
		return false
	}
	if _, ok := s.Parsed(); !ok {
		return false
	}
	if _, ok := s.Results(); !ok {
		return false
	}
	if s.Variables() == nil {
		return false
	}
	return s.Members() != nil
}

// WaitForUpdate blocks until Version changes.
func (s *AnalysisState) WaitForUpdate(ctx context.Context) error {
	_, _, err := s.updates.WaitNewer(ctx, s.updates.Version())
	return err
}

// waitUntil blocks until ready holds, the current document failed, or ctx
// ends.
func (s *AnalysisState) waitUntil(ctx context.Context, ready func() bool) error {
	for {
		seen := s.updates.Version()
		if ready() {
			return nil
		}
		if err := s.Err(); err != nil {
			return err
		}
		if _, _, err := s.updates.WaitNewer(ctx, seen); err != nil {
			return err
		}
	}
}

// WaitForUpToDate blocks until UpToDate holds.
func (s *AnalysisState) WaitForUpToDate(ctx context.Context) error {
	return s.waitUntil(ctx, s.UpToDate)
}

func (s *AnalysisState) tracef(format string, args ...any) {
	s.trace.add(fmt.Sprintf(format, args...))
}

// TraceLines returns the retained trace, oldest first.
func (s *AnalysisState) TraceLines() []string { return s.trace.lines() }

// Dump writes a readable summary of every stage.
func (s *AnalysisState) Dump(w io.Writer) error {
	bw := &errWriter{w: w}
	bw.printf("# %s (version %d)\n", s.moniker, s.Version())
	if s.sourceless != nil {
		bw.printf("sourceless module\n")
		for _, name := range s.sourceless.Names() {
			bw.printf("  %s: %s\n", name, analysis.Annotations(s.sourceless.Types(name)))
		}
		return bw.err
	}

	if tok := s.Tokenization(); tok != nil {
		bw.printf("tokenization: %d lines, encoding %s\n", tok.LineCount(), tok.Encoding())
	}
	if parsed, ok := s.Parsed(); ok {
		bw.printf("parse errors: %d\n", len(parsed.Errors))
		for _, e := range parsed.Errors {
			bw.printf("  %s\n", e)
		}
	}
	if err := s.Err(); err != nil {
		bw.printf("error: %v\n", err)
	}

	if res, _, ok := s.Walk(); ok {
		types := func(k string) []analysis.Value { return res.Variables.Types(k) }
		if stamp, ok := s.Results(); ok {
			types = stamp.Results.Types
			bw.printf("rules: %d applications, %d changes, converged=%t\n",
				stamp.Stats.Applications, stamp.Stats.Changes, stamp.Stats.Converged)
		}
		bw.printf("## variables\n")
		for _, key := range res.Variables.Keys() {
			bw.printf("  %s: %s\n", key, analysis.Annotations(types(key)))
		}
		bw.printf("## rules\n")
		for _, r := range res.Rules {
			bw.printf("  %s\n", r)
		}
	}

	if lines := s.TraceLines(); len(lines) > 0 {
		bw.printf("## trace\n")
		for _, l := range lines {
			bw.printf("%s\n", l)
		}
	}
	return bw.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

var _ analysis.ModuleState = (*AnalysisState)(nil)
