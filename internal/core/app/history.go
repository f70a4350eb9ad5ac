package app

import (
	"context"
	"time"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/data/history"
)

func (a *App) historyKey() string {
	if a.Paths.ProjectRoot != "" {
		return a.Paths.ProjectRoot
	}
	return "default"
}

func (a *App) recordRun(ctx context.Context, report Report) error {
	store := a.historyStore()
	if store == nil {
		return nil
	}
	run := report.Snapshot()
	if a.gitMeta != nil && a.Paths.ProjectRoot != "" {
		run.CommitHash, run.CommitTimestamp = a.gitMeta(ctx, a.Paths.ProjectRoot)
	}
	return store.SaveRun(a.historyKey(), run)
}

// Trends builds a trend report from the runs recorded since the given time.
func (a *App) Trends(since time.Time, window time.Duration) (history.TrendReport, error) {
	store := a.historyStore()
	if store == nil {
		return history.TrendReport{}, domainerrors.New(domainerrors.CodeNotSupported, "history is disabled (set db.enabled)")
	}
	runs, err := store.LoadRuns(a.historyKey(), since)
	if err != nil {
		return history.TrendReport{}, err
	}
	return history.BuildTrendReport(a.historyKey(), runs, window)
}
