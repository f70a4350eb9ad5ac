package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	coreapp "pyanalyzer/internal/core/app"
	"pyanalyzer/internal/core/config"
)

func TestApplyModeOptions_RejectsCombinedQueries(t *testing.T) {
	opts := &cliOptions{dump: "a.py", members: "a.py"}
	err := applyModeOptions(opts, config.DefaultConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "cannot be combined") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyModeOptions_FromRequiresResolve(t *testing.T) {
	err := applyModeOptions(&cliOptions{resolveFrom: "pkg.mod"}, config.DefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "--from requires --resolve") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyModeOptions_OverridesWatchPathsWithPositionalArgs(t *testing.T) {
	opts := &cliOptions{args: []string{"./src", "./lib"}, python: "2.7"}
	cfg := &config.Config{WatchPaths: []string{"./original"}}

	if err := applyModeOptions(opts, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.WatchPaths) != 2 || cfg.WatchPaths[0] != "./src" || cfg.WatchPaths[1] != "./lib" {
		t.Fatalf("unexpected watch paths: %v", cfg.WatchPaths)
	}
	if cfg.Interpreter.Version != "2.7" {
		t.Fatalf("expected version override, got %q", cfg.Interpreter.Version)
	}
}

func TestApplyModeOptions_HistoryOutputsRequireHistoryFlag(t *testing.T) {
	for _, opts := range []cliOptions{{historyTSV: "trend.tsv"}, {historyJSON: "trend.json"}, {since: "2026-01-01"}} {
		err := applyModeOptions(&opts, config.DefaultConfig())
		if err == nil || !strings.Contains(err.Error(), "require --history") {
			t.Fatalf("unexpected error for %+v: %v", opts, err)
		}
	}
}

func TestApplyModeOptions_HistoryEnablesDatabase(t *testing.T) {
	cfg := config.DefaultConfig()
	opts := &cliOptions{history: true, historyWindow: "12h"}
	if err := applyModeOptions(opts, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.DB.Enabled {
		t.Fatal("expected --history to enable the database")
	}

	bad := &cliOptions{history: true, historyWindow: "-1h"}
	if err := applyModeOptions(bad, config.DefaultConfig()); err == nil {
		t.Fatal("expected error for negative window")
	}
	withQuery := &cliOptions{history: true, resolve: "os"}
	if err := applyModeOptions(withQuery, config.DefaultConfig()); err == nil {
		t.Fatal("expected error combining --history with a query")
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantZero  bool
		wantError bool
	}{
		{name: "empty", input: "", wantZero: true},
		{name: "date", input: "2026-02-13"},
		{name: "rfc3339", input: "2026-02-13T15:00:00Z"},
		{name: "invalid", input: "13/02/2026", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSince(tt.input)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantZero && !got.Equal(time.Time{}) {
				t.Fatalf("expected zero time, got %v", got)
			}
			if !tt.wantZero && got.IsZero() {
				t.Fatal("expected non-zero parsed time")
			}
		})
	}
}

func TestParseHistoryWindow(t *testing.T) {
	if d, err := parseHistoryWindow(""); err != nil || d != 24*time.Hour {
		t.Fatalf("expected 24h default, got %v %v", d, err)
	}
	if _, err := parseHistoryWindow("24h"); err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := parseHistoryWindow("0h"); err == nil {
		t.Fatal("expected error for non-positive window")
	}
	if _, err := parseHistoryWindow("day"); err == nil {
		t.Fatal("expected error for malformed window")
	}
}

func TestParseTypesAt(t *testing.T) {
	q, err := parseTypesAt("C:/src/mod.py:3:7:value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.path != "C:/src/mod.py" || q.line != 3 || q.column != 7 || q.name != "value" {
		t.Fatalf("unexpected query: %+v", q)
	}

	for _, raw := range []string{"mod.py:3:value", "mod.py:x:1:v", "mod.py:1:0:v", ":1:1:v", "mod.py:1:1:"} {
		if _, err := parseTypesAt(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestLoadConfig_DefaultDiscoveryOrder(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".pyanalyzer"), 0o755); err != nil {
		t.Fatal(err)
	}
	hidden := filepath.Join(tmpDir, ".pyanalyzer", "config.toml")
	if err := os.WriteFile(hidden, []byte("version = 1\n[analysis]\nmax_rule_iterations = 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := loadConfig(defaultConfigPath, tmpDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if path != hidden || cfg.Analysis.MaxRuleIterations != 50 {
		t.Fatalf("expected hidden config, got %q (%d)", path, cfg.Analysis.MaxRuleIterations)
	}

	top := filepath.Join(tmpDir, "pyanalyzer.toml")
	if err := os.WriteFile(top, []byte("version = 1\n[analysis]\nmax_rule_iterations = 75\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, path, err = loadConfig(defaultConfigPath, tmpDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if path != top || cfg.Analysis.MaxRuleIterations != 75 {
		t.Fatalf("expected top-level config to win, got %q (%d)", path, cfg.Analysis.MaxRuleIterations)
	}
}

func TestLoadConfig_FallsBackToDefaults(t *testing.T) {
	cfg, path, err := loadConfig(defaultConfigPath, t.TempDir())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if path != "" {
		t.Fatalf("expected no config path, got %q", path)
	}
	if cfg.Analysis.MaxRuleIterations != config.DefaultMaxRuleIterations {
		t.Fatalf("expected defaults, got %+v", cfg.Analysis)
	}
}

func TestLoadConfig_ExplicitPathMustExist(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), t.TempDir()); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadConfig_InvalidDefaultIsAnError(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "pyanalyzer.toml"), []byte("version = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadConfig(defaultConfigPath, tmpDir); err == nil {
		t.Fatal("expected validation error")
	}
}

// project writes a small package and a config that pins the project root.
func project(t *testing.T) (root, cfgPath string) {
	t.Helper()
	root = t.TempDir()
	files := map[string]string{
		"main.py":   "from helper import VALUE\nx = VALUE\ncount = 1\n",
		"helper.py": "VALUE = 3\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfgPath = filepath.Join(root, "pyanalyzer.toml")
	body := "version = 1\nwatch_paths = [\".\"]\n[paths]\nproject_root = \"" + filepath.ToSlash(root) + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return root, cfgPath
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "-version")
	if code != 0 || !strings.HasPrefix(out, "pyanalyzer v") {
		t.Fatalf("unexpected version output: %d %q", code, out)
	}
}

func TestRun_BadFlag(t *testing.T) {
	if code, _, _ := runCLI(t, "-no-such-flag"); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestRun_OnceJSON(t *testing.T) {
	_, cfgPath := project(t)

	code, out, errOut := runCLI(t, "-config", cfgPath, "-once", "-json")
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, errOut)
	}
	var rep coreapp.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if rep.DocumentCount != 2 || rep.SyntaxErrorCount != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRun_OnceTextWithHistory(t *testing.T) {
	root, cfgPath := project(t)
	tsv := filepath.Join(root, "out", "trend.tsv")

	code, out, errOut := runCLI(t, "-config", cfgPath, "-once", "-history", "-history-tsv", tsv)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, errOut)
	}
	if !strings.Contains(out, "CONTEXT") || !strings.Contains(out, "2 documents (0 failed)") {
		t.Fatalf("missing text report: %s", out)
	}
	if !strings.Contains(out, "History: 1 runs") {
		t.Fatalf("missing history summary: %s", out)
	}
	data, err := os.ReadFile(tsv)
	if err != nil {
		t.Fatalf("read tsv: %v", err)
	}
	if !strings.HasPrefix(string(data), "Timestamp\tCommit\tDocuments") {
		t.Fatalf("unexpected tsv: %s", data)
	}
	if _, err := os.Stat(filepath.Join(root, ".pyanalyzer", "history.db")); err != nil {
		t.Fatalf("expected history database: %v", err)
	}
}

func TestRun_SingleQueries(t *testing.T) {
	root, cfgPath := project(t)
	main := filepath.Join(root, "main.py")

	code, out, errOut := runCLI(t, "-config", cfgPath, "-members", main)
	if code != 0 {
		t.Fatalf("members failed: %d %s", code, errOut)
	}
	if !strings.Contains(out, "Module: main") || !strings.Contains(out, "count: int") {
		t.Fatalf("unexpected members output: %s", out)
	}

	code, out, errOut = runCLI(t, "-config", cfgPath, "-resolve", "helper")
	if code != 0 || strings.TrimSpace(out) != filepath.Join(root, "helper.py") {
		t.Fatalf("unexpected resolve output: %d %q %s", code, out, errOut)
	}

	code, _, errOut = runCLI(t, "-config", cfgPath, "-resolve", "nowhere")
	if code != 1 || !strings.Contains(errOut, "not found") {
		t.Fatalf("expected unresolved module error, got %d %s", code, errOut)
	}

	code, out, errOut = runCLI(t, "-config", cfgPath, "-types-at", main+":3:1:count")
	if code != 0 || strings.TrimSpace(out) != "count: int" {
		t.Fatalf("unexpected types-at output: %d %q %s", code, out, errOut)
	}

	code, out, errOut = runCLI(t, "-config", cfgPath, "-dump", main)
	if code != 0 || !strings.Contains(out, "# "+main) {
		t.Fatalf("unexpected dump output: %d %q %s", code, out, errOut)
	}
}

func TestObservabilityServer(t *testing.T) {
	server := NewObservabilityServer("127.0.0.1:0", coreapp.NewHealthService(nil))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = server.Stop(context.Background()) }()

	base := "http://" + server.Addr()
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(string(body), "degraded") {
		t.Fatalf("unexpected health response: %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "pyanalyzer_") {
		t.Fatalf("unexpected metrics response: %d", resp.StatusCode)
	}
}
