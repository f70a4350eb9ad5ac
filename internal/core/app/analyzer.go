package app

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/core/service"
	"pyanalyzer/internal/engine/workspace"
	"pyanalyzer/internal/shared/observability"
)

// AnalyzeAll waits until every project document is up to date and
// summarizes the result. Documents that cannot be read are reported, not
// returned as errors. When history is enabled the run is recorded.
func (a *App) AnalyzeAll(ctx context.Context) (Report, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.AnalyzeAll")
	defer span.End()

	started := time.Now()
	contexts := a.ProjectContexts()

	type job struct {
		fc *workspace.FileContext
		st *service.AnalysisState
	}
	var jobs []job
	for _, fc := range contexts {
		for _, st := range a.Service.States(fc.ID()) {
			jobs = append(jobs, job{fc: fc, st: st})
		}
	}
	span.SetAttributes(attribute.Int("documents", len(jobs)))

	docs := make([]DocumentReport, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, j := range jobs {
		g.Go(func() error {
			st, err := a.Service.WaitForUpToDate(gctx, j.fc.ID(), j.st.Moniker())
			if err != nil && (st == nil || domainerrors.IsCode(err, domainerrors.CodeCancelled)) {
				return err
			}
			docs[i] = a.documentReport(j.fc, j.st, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Report{}, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Moniker < docs[j].Moniker })
	report := newReport(a.Service.Version().String(), len(contexts), docs, time.Since(started))
	a.mu.Lock()
	a.lastReport = &report
	a.mu.Unlock()

	slog.Info("analysis complete",
		"documents", report.DocumentCount,
		"failed", report.FailedCount,
		"syntax_errors", report.SyntaxErrorCount,
		"duration", report.Duration)
	span.SetAttributes(attribute.Int("syntax_errors", report.SyntaxErrorCount))

	if err := a.recordRun(ctx, report); err != nil {
		slog.Warn("failed to record analysis run", "error", err)
	}
	return report, nil
}

func (a *App) documentReport(fc *workspace.FileContext, st *service.AnalysisState, readErr error) DocumentReport {
	doc := DocumentReport{
		Moniker: st.Moniker(),
		Module:  a.Service.ModuleName(st.Moniker()),
		Context: fc.Root(),
	}
	if readErr != nil {
		doc.Error = readErr.Error()
		return doc
	}
	if tok := st.Tokenization(); tok != nil {
		doc.Lines = tok.LineCount()
		doc.Tokens = len(tok.AllTokens())
	}
	if parsed, ok := st.Parsed(); ok {
		for _, e := range parsed.Errors {
			doc.SyntaxErrors = append(doc.SyntaxErrors, e.String())
		}
	}
	if res, _, ok := st.Walk(); ok {
		doc.Variables = res.Variables.Len()
		doc.Rules = len(res.Rules)
	}
	if stamp, ok := st.Results(); ok {
		doc.RuleApplications = stamp.Stats.Applications
		doc.Converged = stamp.Stats.Converged
	}
	doc.Members = len(st.Members())
	return doc
}

// LastReport returns the most recent AnalyzeAll result.
func (a *App) LastReport() (Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastReport == nil {
		return Report{}, false
	}
	return *a.lastReport, true
}
