package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	domainerrors "pyanalyzer/internal/core/errors"
)

const (
	DefaultMaxRuleIterations = 1000
	DefaultTraceCapacity     = 256
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domainerrors.AddContext(
			domainerrors.Wrap(err, domainerrors.CodeIO, "read config"), domainerrors.CtxPath, path)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, domainerrors.AddContext(
			domainerrors.Wrap(err, domainerrors.CodeValidationError, "decode config"), domainerrors.CtxPath, path)
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.DatabaseDir) == "" {
		cfg.Paths.DatabaseDir = ".pyanalyzer"
	}

	if len(cfg.WatchPaths) == 0 {
		cfg.WatchPaths = []string{"."}
	}
	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{".git", "__pycache__", ".venv", "venv", ".tox", "node_modules"}
	}

	// Default debounce if not set.
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}

	if cfg.Analysis.MaxRuleIterations == 0 {
		cfg.Analysis.MaxRuleIterations = DefaultMaxRuleIterations
	}
	if cfg.Analysis.WorkerJoinTimeout == 0 {
		cfg.Analysis.WorkerJoinTimeout = 5 * time.Second
	}
	if cfg.Analysis.ReanalysisRate == 0 {
		cfg.Analysis.ReanalysisRate = 20
	}
	if cfg.Analysis.ReanalysisBurst == 0 {
		cfg.Analysis.ReanalysisBurst = 40
	}
	if cfg.Analysis.TraceCapacity == 0 {
		cfg.Analysis.TraceCapacity = DefaultTraceCapacity
	}

	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "history.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 2 * time.Second
	}

	if strings.TrimSpace(cfg.Metrics.Address) == "" {
		cfg.Metrics.Address = "127.0.0.1:9464"
	}

	if strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		cfg.Tracing.Endpoint = "localhost:4317"
	}
	if strings.TrimSpace(cfg.Tracing.ServiceName) == "" {
		cfg.Tracing.ServiceName = "pyanalyzer"
	}
}

func normalize(cfg *Config) {
	cfg.Interpreter.Path = strings.TrimSpace(cfg.Interpreter.Path)
	cfg.Interpreter.Version = strings.TrimSpace(cfg.Interpreter.Version)
	cfg.Interpreter.Manifest = strings.TrimSpace(cfg.Interpreter.Manifest)
	for i := range cfg.Interpreter.SearchPaths {
		sp := &cfg.Interpreter.SearchPaths[i]
		sp.Root = strings.TrimSpace(sp.Root)
		sp.Prefix = strings.Trim(strings.TrimSpace(sp.Prefix), ".")
	}
	paths := cfg.WatchPaths[:0]
	for _, p := range cfg.WatchPaths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	cfg.WatchPaths = paths
}
