package config

import (
	"time"
)

type Config struct {
	Version     int         `toml:"version"`
	Paths       Paths       `toml:"paths"`
	Interpreter Interpreter `toml:"interpreter"`
	WatchPaths  []string    `toml:"watch_paths"`
	Exclude     Exclude     `toml:"exclude"`
	Watch       Watch       `toml:"watch"`
	Analysis    Analysis    `toml:"analysis"`
	DB          Database    `toml:"db"`
	Metrics     Metrics     `toml:"metrics"`
	Tracing     Tracing     `toml:"tracing"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	DatabaseDir string `toml:"database_dir"`
}

type Interpreter struct {
	Path        string       `toml:"path"`
	Version     string       `toml:"version"`
	Manifest    string       `toml:"manifest"`
	SearchPaths []SearchPath `toml:"search_paths"`
}

// SearchPath is an import root. Modules under Root are importable only
// through names that start with the dotted Prefix.
type SearchPath struct {
	Root   string `toml:"root"`
	Prefix string `toml:"prefix"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
	Paths []string `toml:"paths"`
}

type Watch struct {
	Enabled  bool          `toml:"enabled"`
	Debounce time.Duration `toml:"debounce"`
}

type Analysis struct {
	MaxRuleIterations int           `toml:"max_rule_iterations"`
	WorkerJoinTimeout time.Duration `toml:"worker_join_timeout"`
	ReanalysisRate    float64       `toml:"reanalysis_rate"`
	ReanalysisBurst   int           `toml:"reanalysis_burst"`
	CrossCheck        bool          `toml:"cross_check"`
	TraceCapacity     int           `toml:"trace_capacity"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

type Tracing struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
