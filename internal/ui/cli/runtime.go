package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	coreapp "pyanalyzer/internal/core/app"
	"pyanalyzer/internal/core/config"
	"pyanalyzer/internal/engine/analysis"
	"pyanalyzer/internal/shared/observability"
	"pyanalyzer/internal/shared/util"
	"pyanalyzer/internal/ui/report"
)

func Run(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Fprintf(stdout, "pyanalyzer v%s\n", versionString)
		return 0
	}

	configureLogging(stderr, opts.verbose)

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return 1
	}

	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if cfgPath != "" {
		slog.Debug("loaded config", "path", cfgPath)
	}

	if err := applyModeOptions(&opts, cfg); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid options", "error", err)
		return 1
	}

	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracing(ctx, observability.TracingOptions{
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("failed to flush traces", "error", err)
			}
		}()
	}

	a, err := coreapp.New(ctx, cfg, paths)
	if err != nil {
		slog.Error("failed to initialize analyzer", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("failed to close analyzer", "error", err)
		}
	}()

	if done, code := runSingleCommand(ctx, a, opts, stdout, stderr); done {
		return code
	}

	if cfg.Metrics.Enabled {
		server := NewObservabilityServer(cfg.Metrics.Address, coreapp.NewHealthService(a))
		if err := server.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(sctx)
		}()
	}

	rep, err := a.AnalyzeAll(ctx)
	if err != nil {
		slog.Error("analysis failed", "error", err)
		return 1
	}
	if err := writeReport(stdout, rep, opts.jsonOutput); err != nil {
		slog.Error("failed to print report", "error", err)
		return 1
	}

	if err := runHistoryMode(opts, a, stdout); err != nil {
		slog.Error("history mode failed", "error", err)
		return 1
	}

	if opts.once {
		return 0
	}

	if err := a.StartWatcher(); err != nil {
		slog.Error("failed to start watcher", "error", err)
		return 1
	}
	slog.Info("watching for changes", "roots", len(paths.WatchPaths)+len(paths.SearchPaths))
	<-ctx.Done()
	return 0
}

func writeReport(w io.Writer, rep coreapp.Report, asJSON bool) error {
	if asJSON {
		return rep.WriteJSON(w)
	}
	return rep.WriteText(w)
}

func runSingleCommand(ctx context.Context, a *coreapp.App, opts cliOptions, stdout, stderr io.Writer) (bool, int) {
	if !opts.singleCommand() {
		return false, 0
	}
	if err := singleCommand(ctx, a, opts, stdout); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return true, 1
	}
	return true, 0
}

func singleCommand(ctx context.Context, a *coreapp.App, opts cliOptions, w io.Writer) error {
	svc := a.Service
	switch {
	case opts.resolve != "":
		moniker, err := svc.ResolveImport(ctx, opts.resolve, opts.resolveFrom)
		if err != nil {
			return err
		}
		if moniker == "" {
			return fmt.Errorf("module %q not found on any search path", opts.resolve)
		}
		fmt.Fprintln(w, moniker)
		return nil

	case opts.dump != "":
		path, err := filepath.Abs(opts.dump)
		if err != nil {
			return err
		}
		st, err := svc.WaitForUpToDate(ctx, "", path)
		if st == nil {
			if err != nil {
				return err
			}
			return fmt.Errorf("%s is not part of any analyzed root", opts.dump)
		}
		return st.Dump(w)

	case opts.members != "":
		path, err := filepath.Abs(opts.members)
		if err != nil {
			return err
		}
		types, err := svc.GetModuleMemberTypes(ctx, "", path, "")
		if err != nil {
			return err
		}
		if types == nil {
			return fmt.Errorf("%s is not part of any analyzed root", opts.members)
		}
		fmt.Fprintf(w, "Module: %s\n", svc.ModuleName(path))
		for _, name := range util.SortedStringKeys(types) {
			fmt.Fprintf(w, "  %s: %s\n", name, analysis.Annotations(types[name]))
		}
		return nil

	case opts.typesAt != "":
		q, err := parseTypesAt(opts.typesAt)
		if err != nil {
			return err
		}
		path, err := filepath.Abs(q.path)
		if err != nil {
			return err
		}
		types, err := svc.GetTypesAt(ctx, "", path, q.line, q.column, q.name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", q.name, analysis.Annotations(types))
		return nil
	}
	return nil
}

type typesAtQuery struct {
	path         string
	line, column int
	name         string
}

// parseTypesAt splits <file>:<line>:<column>:<name>. The file part may
// itself contain colons.
func parseTypesAt(raw string) (typesAtQuery, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 {
		return typesAtQuery{}, fmt.Errorf("--types-at must be <file>:<line>:<column>:<name>, got %q", raw)
	}
	n := len(parts)
	line, err := strconv.Atoi(parts[n-3])
	if err != nil || line < 1 {
		return typesAtQuery{}, fmt.Errorf("--types-at line must be a positive integer, got %q", parts[n-3])
	}
	column, err := strconv.Atoi(parts[n-2])
	if err != nil || column < 1 {
		return typesAtQuery{}, fmt.Errorf("--types-at column must be a positive integer, got %q", parts[n-2])
	}
	q := typesAtQuery{
		path:   strings.Join(parts[:n-3], ":"),
		line:   line,
		column: column,
		name:   strings.TrimSpace(parts[n-1]),
	}
	if q.path == "" || q.name == "" {
		return typesAtQuery{}, fmt.Errorf("--types-at needs a file and a name, got %q", raw)
	}
	return q, nil
}

// loadConfig falls back to defaults when the default config file is absent.
// An explicitly named file must exist.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	candidates, err := discoverDefaultConfig(cwd)
	if err != nil {
		return nil, "", err
	}
	for _, candidate := range candidates {
		cfg, loadErr := config.Load(candidate)
		if loadErr == nil {
			return cfg, candidate, nil
		}
		if errors.Is(loadErr, fs.ErrNotExist) {
			continue
		}
		return nil, "", loadErr
	}

	cfg := config.DefaultConfig()
	config.ApplyEnvOverrides(cfg)
	return cfg, "", nil
}

func discoverDefaultConfig(cwd string) ([]string, error) {
	if strings.TrimSpace(cwd) == "" {
		return nil, fmt.Errorf("cwd must not be empty")
	}
	return []string{
		filepath.Clean(filepath.Join(cwd, "pyanalyzer.toml")),
		filepath.Clean(filepath.Join(cwd, ".pyanalyzer", "config.toml")),
	}, nil
}

func applyModeOptions(opts *cliOptions, cfg *config.Config) error {
	modeCount := 0
	for _, set := range []bool{opts.dump != "", opts.members != "", opts.typesAt != "", opts.resolve != ""} {
		if set {
			modeCount++
		}
	}
	if modeCount > 1 {
		return fmt.Errorf("--dump, --members, --types-at and --resolve cannot be combined")
	}
	if opts.resolveFrom != "" && opts.resolve == "" {
		return fmt.Errorf("--from requires --resolve")
	}
	if opts.typesAt != "" {
		if _, err := parseTypesAt(opts.typesAt); err != nil {
			return err
		}
	}

	if len(opts.args) > 0 {
		cfg.WatchPaths = append([]string(nil), opts.args...)
	}
	if opts.python != "" {
		cfg.Interpreter.Version = opts.python
	}

	if (opts.historyTSV != "" || opts.historyJSON != "" || opts.since != "") && !opts.history {
		return fmt.Errorf("--since/--history-tsv/--history-json require --history")
	}
	if opts.history {
		if opts.singleCommand() {
			return fmt.Errorf("--history cannot be combined with single queries")
		}
		if _, err := parseSince(opts.since); err != nil {
			return err
		}
		if _, err := parseHistoryWindow(opts.historyWindow); err != nil {
			return err
		}
		cfg.DB.Enabled = true
	}
	return nil
}

func parseSince(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, nil
	}

	rfc3339, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return rfc3339.UTC(), nil
	}

	dateOnly, err := time.Parse("2006-01-02", raw)
	if err == nil {
		return dateOnly.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("--since must be RFC3339 or YYYY-MM-DD, got %q", value)
}

func parseHistoryWindow(value string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("--history-window must be a Go duration (example: 24h), got %q", value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--history-window must be > 0, got %q", value)
	}
	return d, nil
}

func writeBytes(path string, data []byte) error {
	return util.WriteFileWithDirs(path, data, 0o644)
}

func runHistoryMode(opts cliOptions, a *coreapp.App, w io.Writer) error {
	if !opts.history {
		return nil
	}
	since, err := parseSince(opts.since)
	if err != nil {
		return err
	}
	window, err := parseHistoryWindow(opts.historyWindow)
	if err != nil {
		return err
	}

	trend, err := a.Trends(since, window)
	if err != nil {
		return err
	}
	fmt.Fprint(w, report.TrendSummary(trend))

	if opts.historyTSV != "" {
		tsv, err := report.RenderTrendTSV(trend)
		if err != nil {
			return fmt.Errorf("render trend TSV: %w", err)
		}
		if err := writeBytes(opts.historyTSV, tsv); err != nil {
			return fmt.Errorf("write trend TSV %q: %w", opts.historyTSV, err)
		}
	}
	if opts.historyJSON != "" {
		raw, err := report.RenderTrendJSON(trend)
		if err != nil {
			return fmt.Errorf("render trend JSON: %w", err)
		}
		if err := writeBytes(opts.historyJSON, raw); err != nil {
			return fmt.Errorf("write trend JSON %q: %w", opts.historyJSON, err)
		}
	}
	return nil
}

func configureLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

