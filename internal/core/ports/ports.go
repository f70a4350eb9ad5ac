package ports

import (
	"context"
	"time"

	"pyanalyzer/internal/data/history"
)

// HistoryStore abstracts run persistence for trend reporting.
type HistoryStore interface {
	SaveRun(contextKey string, run history.RunSnapshot) error
	LoadRuns(contextKey string, since time.Time) ([]history.RunSnapshot, error)
	Close() error
}

// ChangeSink receives batches of changed source paths, typically from a
// file watcher.
type ChangeSink interface {
	HandleChanges(paths []string)
}

// GitMetadataResolver reports the commit a project root is at.
type GitMetadataResolver func(ctx context.Context, root string) (string, time.Time)
