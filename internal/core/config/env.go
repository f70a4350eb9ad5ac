package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: PYANALYZER_[SECTION]_[KEY] (e.g., PYANALYZER_METRICS_ADDRESS).
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Paths.ProjectRoot, "PYANALYZER_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.DatabaseDir, "PYANALYZER_PATHS_DATABASE_DIR")

	setEnvString(&cfg.Interpreter.Path, "PYANALYZER_INTERPRETER_PATH")
	setEnvString(&cfg.Interpreter.Version, "PYANALYZER_INTERPRETER_VERSION")
	setEnvString(&cfg.Interpreter.Manifest, "PYANALYZER_INTERPRETER_MANIFEST")

	setEnvBool(&cfg.Watch.Enabled, "PYANALYZER_WATCH_ENABLED")
	setEnvDuration(&cfg.Watch.Debounce, "PYANALYZER_WATCH_DEBOUNCE")

	setEnvInt(&cfg.Analysis.MaxRuleIterations, "PYANALYZER_ANALYSIS_MAX_RULE_ITERATIONS")
	setEnvDuration(&cfg.Analysis.WorkerJoinTimeout, "PYANALYZER_ANALYSIS_WORKER_JOIN_TIMEOUT")
	setEnvFloat64(&cfg.Analysis.ReanalysisRate, "PYANALYZER_ANALYSIS_REANALYSIS_RATE")
	setEnvInt(&cfg.Analysis.ReanalysisBurst, "PYANALYZER_ANALYSIS_REANALYSIS_BURST")
	setEnvBool(&cfg.Analysis.CrossCheck, "PYANALYZER_ANALYSIS_CROSS_CHECK")

	setEnvBool(&cfg.DB.Enabled, "PYANALYZER_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "PYANALYZER_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "PYANALYZER_DB_BUSY_TIMEOUT")

	setEnvBool(&cfg.Metrics.Enabled, "PYANALYZER_METRICS_ENABLED")
	setEnvString(&cfg.Metrics.Address, "PYANALYZER_METRICS_ADDRESS")

	setEnvBool(&cfg.Tracing.Enabled, "PYANALYZER_TRACING_ENABLED")
	setEnvString(&cfg.Tracing.Endpoint, "PYANALYZER_TRACING_ENDPOINT")
	setEnvBool(&cfg.Tracing.Insecure, "PYANALYZER_TRACING_INSECURE")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
