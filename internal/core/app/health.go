package app

import (
	"context"
	"fmt"
	"time"

	"pyanalyzer/internal/shared/util"
)

// stuckParseAfter marks a cross-check parse that has held its parser this
// long as stuck.
const stuckParseAfter = time.Minute

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

// Check reports "degraded" when the service is gone or any project
// context's worker has stopped.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	a := s.app
	if a == nil || a.Service == nil {
		status.Status = "degraded"
		status.Components["service"] = "missing"
		return status
	}
	status.Components["service"] = fmt.Sprintf("ok (python %s, %d search paths)", a.Service.Version(), len(a.Service.SearchPaths()))

	contexts := a.ProjectContexts()
	failed := 0
	for _, fc := range contexts {
		if err := a.Service.ContextFailure(fc.ID()); err != nil {
			failed++
			status.Components["context:"+fc.Root()] = "failed: " + err.Error()
		}
	}
	if failed > 0 {
		status.Status = "degraded"
	}
	status.Components["contexts"] = fmt.Sprintf("%d loaded, %d failed", len(contexts), failed)

	if leased, oldest, ok := a.Service.CrossCheckLeases(); ok {
		status.Components["crosscheck"] = fmt.Sprintf("%d parsers leased, oldest %s", leased, oldest.Round(time.Millisecond))
		if oldest > stuckParseAfter {
			status.Status = "degraded"
		}
	}

	if a.historyStore() != nil {
		status.Components["history"] = "ok"
	} else if a.Config.DB.Enabled {
		status.Status = "degraded"
		status.Components["history"] = "missing but enabled in config"
	}

	a.mu.RLock()
	watching := a.activeWatcher != nil
	a.mu.RUnlock()
	if watching {
		status.Components["watcher"] = "ok"
	}
	if report, ok := a.LastReport(); ok {
		status.Components["last_analysis"] = report.GeneratedAt.Format(time.RFC3339)
	}
	status.Components["heap_mb"] = fmt.Sprintf("%d", util.HeapAllocMB())

	return status
}
