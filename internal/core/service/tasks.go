package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/data/queue"
	"pyanalyzer/internal/engine/analysis"
	"pyanalyzer/internal/engine/parser"
	"pyanalyzer/internal/engine/tokenizer"
	"pyanalyzer/internal/engine/workspace"
	"pyanalyzer/internal/shared/observability"
)

// Task is one unit of work for a context's worker. A non-nil error from
// Perform stops the worker; it is reported by later Enqueue calls and by
// Close.
type Task interface {
	Priority() queue.Priority
	Kind() string
	Perform(ctx context.Context, svc *LanguageService, fc *workspace.FileContext) error
	String() string
}

// followUp schedules tasks on fc's worker, ignoring a context that has been
// removed meanwhile.
func (s *LanguageService) followUp(fc *workspace.FileContext, tasks ...Task) error {
	e, ok := s.entry(fc.ID())
	if !ok {
		return nil
	}
	for _, t := range tasks {
		if err := e.queue.Enqueue(t.Priority(), t); err != nil {
			if errors.Is(err, domainerrors.ErrDisposed) {
				return nil
			}
			return err
		}
	}
	return nil
}

func observeStage(stage string, start time.Time) {
	observability.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func annotate(ctx context.Context, st *AnalysisState) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("moniker", st.Moniker()))
}

// DocumentChanged reads, tokenizes and parses a new revision of a document.
type DocumentChanged struct {
	State    *AnalysisState
	Document workspace.SourceDocument
}

func (DocumentChanged) Priority() queue.Priority { return queue.AboveNormal }
func (DocumentChanged) Kind() string             { return "document_changed" }
func (t DocumentChanged) String() string         { return "DocumentChanged " + t.State.Moniker() }

func (t DocumentChanged) Perform(ctx context.Context, svc *LanguageService, fc *workspace.FileContext) error {
	st := t.State
	annotate(ctx, st)
	doc := t.Document
	if doc == nil {
		doc = st.Document()
	}
	docVersion := st.setDocument(doc)
	st.tracef("document changed (version %d)", docVersion)

	start := time.Now()
	tok, err := tokenizer.Tokenize(ctx, doc, svc.opts.Version)
	if err != nil {
		if domainerrors.IsCode(err, domainerrors.CodeCancelled) {
			return err
		}
		slog.Warn("failed to read document", "moniker", st.Moniker(), "error", err)
		st.NotifyError(err)
		return nil
	}
	observeStage("tokenize", start)
	st.setTokenization(tok, docVersion)
	st.tracef("tokenized %d lines (%s)", tok.LineCount(), tok.Encoding())

	start = time.Now()
	m, errs := parser.New(tok).Parse()
	observeStage("parse", start)
	st.setTree(m, errs, docVersion)
	st.tracef("parsed with %d errors", len(errs))

	if svc.checker != nil && svc.opts.Version.Is3x() {
		res, err := svc.checker.Check(ctx, []byte(tok.Text()))
		switch {
		case err != nil:
			slog.Debug("cross-check failed", "moniker", st.Moniker(), "error", err)
		case !res.Agrees(errs):
			observability.CrossCheckMismatchTotal.Inc()
			slog.Debug("parser disagrees with tree-sitter", "moniker", st.Moniker(),
				"ours", len(errs), "tree_sitter_error", res.HasError, "first", res.First.String())
		}
	}

	return svc.followUp(fc, UpdateVariables{State: st}, UpdateMemberList{State: st})
}

// UpdateVariables walks the current AST into variables and rules.
type UpdateVariables struct {
	State *AnalysisState
}

func (UpdateVariables) Priority() queue.Priority { return queue.Normal }
func (UpdateVariables) Kind() string             { return "update_variables" }
func (t UpdateVariables) String() string         { return "UpdateVariables " + t.State.Moniker() }

func (t UpdateVariables) Perform(ctx context.Context, svc *LanguageService, fc *workspace.FileContext) error {
	st := t.State
	annotate(ctx, st)
	parsed, ok := st.Parsed()
	if !ok {
		return nil
	}
	astVersion := st.tree.Version()

	start := time.Now()
	w := analysis.NewWalker(st.Moniker(), svc.ModuleName(st.Moniker()), svc.builtins,
		analysis.ImportResolverFunc(svc.resolveImport), nil, nil)
	res := w.Walk(parsed.Module)
	observeStage("walk", start)
	st.setWalk(res, astVersion)
	st.tracef("walked %d variables, %d rules", res.Variables.Len(), len(res.Rules))

	return svc.followUp(fc, UpdateRules{State: st})
}

// UpdateRules runs the walk's rules to a fixpoint. Results of the same walk
// are extended rather than recomputed.
type UpdateRules struct {
	State *AnalysisState
}

func (UpdateRules) Priority() queue.Priority { return queue.Normal }
func (UpdateRules) Kind() string             { return "update_rules" }
func (t UpdateRules) String() string         { return "UpdateRules " + t.State.Moniker() }

func (t UpdateRules) Perform(ctx context.Context, svc *LanguageService, fc *workspace.FileContext) error {
	st := t.State
	annotate(ctx, st)
	res, walkVersion, ok := st.Walk()
	if !ok {
		return nil
	}

	prev, hadPrev := st.Results()
	var results *analysis.Results
	if hadPrev {
		results = prev.Results.Clone()
	} else {
		results = analysis.NewResults(res.Variables)
	}

	ev := analysis.NewEvaluator(svc.opts.MaxRuleIterations)
	ev.Trace = st.tracef
	env := ruleEnv{svc: svc, importer: stateKey{contextID: fc.ID(), moniker: st.Moniker()}}

	start := time.Now()
	stats, err := ev.Evaluate(ctx, env, res.Rules, results)
	observeStage("rules", start)
	observability.RuleIterations.Observe(float64(stats.Applications))
	if err != nil {
		switch {
		case errors.Is(err, analysis.ErrIterationLimit):
			observability.RuleLimitHitsTotal.Inc()
			slog.Warn("rule evaluation hit the iteration limit", "moniker", st.Moniker(),
				"applications", stats.Applications)
		default:
			return err
		}
	}

	st.setResults(results, stats, walkVersion)
	st.tracef("rules: %d applications, %d changes", stats.Applications, stats.Changes)
	if !hadPrev || stats.Changes > 0 {
		svc.notifyDependents(st.Moniker())
	}
	return nil
}

// UpdateMemberList recomputes the module's public member names.
type UpdateMemberList struct {
	State *AnalysisState
}

func (UpdateMemberList) Priority() queue.Priority { return queue.BelowNormal }
func (UpdateMemberList) Kind() string             { return "update_members" }
func (t UpdateMemberList) String() string         { return "UpdateMemberList " + t.State.Moniker() }

func (t UpdateMemberList) Perform(ctx context.Context, _ *LanguageService, _ *workspace.FileContext) error {
	st := t.State
	annotate(ctx, st)
	parsed, ok := st.Parsed()
	if !ok {
		return nil
	}
	st.setMembers(analysis.MemberList(parsed.Module), st.tree.Version())
	return nil
}
