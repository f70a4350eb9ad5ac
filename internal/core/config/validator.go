package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/engine/tokenizer"
	"pyanalyzer/internal/engine/workspace"
)

// Validate runs every section check in order and returns the first failure.
func Validate(cfg *Config) error {
	for _, check := range []func(*Config) error{
		validateVersion,
		validateInterpreter,
		validateWatch,
		validateExclude,
		validateAnalysis,
		validateDatabase,
		validateMetrics,
		validateTracing,
	} {
		if err := check(cfg); err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid config")
		}
	}
	return nil
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateInterpreter(cfg *Config) error {
	if cfg.Interpreter.Version != "" {
		if _, err := tokenizer.ParseVersion(cfg.Interpreter.Version); err != nil {
			return fmt.Errorf("interpreter.version: %w", err)
		}
	}

	seen := make(map[string]bool, len(cfg.Interpreter.SearchPaths))
	for i, sp := range cfg.Interpreter.SearchPaths {
		ref := fmt.Sprintf("interpreter.search_paths[%d]", i)
		if sp.Root == "" {
			return fmt.Errorf("%s.root must not be empty", ref)
		}
		for _, part := range strings.Split(sp.Prefix, ".") {
			if sp.Prefix != "" && part == "" {
				return fmt.Errorf("%s.prefix %q has an empty segment", ref, sp.Prefix)
			}
		}
		key := filepath.Clean(sp.Root) + "|" + sp.Prefix
		if seen[key] {
			return fmt.Errorf("duplicate search path root=%q prefix=%q", sp.Root, sp.Prefix)
		}
		seen[key] = true
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if len(cfg.WatchPaths) == 0 {
		return fmt.Errorf("watch_paths must contain at least one path")
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	return nil
}

func validateExclude(cfg *Config) error {
	_, err := workspace.NewMatcher(workspace.Exclusions{
		Dirs:  cfg.Exclude.Dirs,
		Files: cfg.Exclude.Files,
		Paths: cfg.Exclude.Paths,
	})
	return err
}

func validateAnalysis(cfg *Config) error {
	a := cfg.Analysis
	if a.MaxRuleIterations < 1 {
		return fmt.Errorf("analysis.max_rule_iterations must be >= 1, got %d", a.MaxRuleIterations)
	}
	if a.WorkerJoinTimeout < 0 {
		return fmt.Errorf("analysis.worker_join_timeout must not be negative")
	}
	if a.ReanalysisRate < 0 {
		return fmt.Errorf("analysis.reanalysis_rate must not be negative, got %v", a.ReanalysisRate)
	}
	if a.ReanalysisBurst < 1 {
		return fmt.Errorf("analysis.reanalysis_burst must be >= 1, got %d", a.ReanalysisBurst)
	}
	if a.TraceCapacity < 0 {
		return fmt.Errorf("analysis.trace_capacity must not be negative, got %d", a.TraceCapacity)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if !cfg.DB.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	return nil
}

func validateMetrics(cfg *Config) error {
	if !cfg.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Address); err != nil {
		return fmt.Errorf("metrics.address %q: %w", cfg.Metrics.Address, err)
	}
	return nil
}

func validateTracing(cfg *Config) error {
	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return fmt.Errorf("tracing.endpoint must not be empty when tracing.enabled=true")
	}
	return nil
}
