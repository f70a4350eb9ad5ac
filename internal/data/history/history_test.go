package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_OpenInitializesSchemaAndSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	first := RunSnapshot{
		Timestamp:       base,
		DocumentCount:   5,
		TokenCount:      120,
		ParseErrorCount: 1,
		VariableCount:   30,
	}
	dup := RunSnapshot{
		Timestamp:       base,
		DocumentCount:   8,
		TokenCount:      200,
		ParseErrorCount: 2,
		VariableCount:   41,
	}
	second := RunSnapshot{
		Timestamp:        base.Add(2 * time.Hour),
		CommitHash:       "abc123",
		CommitTimestamp:  base.Add(time.Hour),
		LanguageVersion:  "3.6",
		DocumentCount:    6,
		FailedCount:      1,
		TokenCount:       150,
		VariableCount:    33,
		RuleCount:        12,
		RuleApplications: 48,
		Duration:         1500 * time.Millisecond,
	}

	if err := store.SaveRun("project-a", first); err != nil {
		t.Fatalf("save first run: %v", err)
	}
	if err := store.SaveRun("project-a", dup); err != nil {
		t.Fatalf("save duplicate run: %v", err)
	}
	if err := store.SaveRun("project-a", second); err != nil {
		t.Fatalf("save second run: %v", err)
	}

	got, err := store.LoadRuns("project-a", base.Add(1*time.Hour))
	if err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 run after since filter, got %d", len(got))
	}
	run := got[0]
	if run.DocumentCount != 6 || run.FailedCount != 1 || run.RuleCount != 12 || run.RuleApplications != 48 {
		t.Fatalf("expected counts to roundtrip, got %+v", run)
	}
	if run.Duration != 1500*time.Millisecond {
		t.Fatalf("expected duration=1.5s, got %v", run.Duration)
	}
	if run.LanguageVersion != "3.6" || run.CommitHash != "abc123" {
		t.Fatalf("expected metadata to roundtrip, got %+v", run)
	}
	if !run.CommitTimestamp.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected commit timestamp to roundtrip, got %v", run.CommitTimestamp)
	}
	if run.SchemaVersion != SchemaVersion {
		t.Fatalf("expected schema_version=%d, got %d", SchemaVersion, run.SchemaVersion)
	}

	// Same timestamp and commit upserts the first row.
	all, err := store.LoadRuns("project-a", time.Time{})
	if err != nil {
		t.Fatalf("load all runs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected deduplicated 2 runs, got %d", len(all))
	}
	if all[0].DocumentCount != 8 || all[0].VariableCount != 41 {
		t.Fatalf("expected upserted document_count=8, got %+v", all[0])
	}
}

func TestStore_SaveRunRejectsUnknownSchemaVersion(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	err = store.SaveRun("", RunSnapshot{SchemaVersion: SchemaVersion + 7})
	if err == nil {
		t.Fatal("expected schema version error")
	}
	if !strings.Contains(err.Error(), "unsupported run schema version") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_EmptyKeyUsesDefault(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "nested", "dir", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.SaveRun("  ", RunSnapshot{DocumentCount: 3}); err != nil {
		t.Fatal(err)
	}
	rows, err := store.LoadRuns(defaultKey, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].DocumentCount != 3 {
		t.Fatalf("unexpected default rows: %+v", rows)
	}
	if rows[0].Timestamp.IsZero() {
		t.Fatal("expected a zero timestamp to be replaced with now")
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := Open(tmpDir)
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("   "); err == nil {
		t.Fatal("expected open error for empty path")
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	_, err = store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, latestMigration()+1)
	if err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	var count int
	if err := reopened.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d migrations recorded, got %d", len(migrations), count)
	}
}

func TestBuildTrendReport(t *testing.T) {
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	runs := []RunSnapshot{
		{Timestamp: base, DocumentCount: 4, ParseErrorCount: 2, VariableCount: 40, RuleCount: 10, Duration: 100 * time.Millisecond},
		{Timestamp: base.Add(2 * time.Hour), DocumentCount: 6, ParseErrorCount: 4, VariableCount: 60, RuleCount: 12, Duration: 300 * time.Millisecond},
		{Timestamp: base.Add(25 * time.Hour), DocumentCount: 7, ParseErrorCount: 1, VariableCount: 66, RuleCount: 15, Duration: 200 * time.Millisecond},
	}

	report, err := BuildTrendReport("project-a", runs, 24*time.Hour)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.RunCount != 3 {
		t.Fatalf("expected run_count=3, got %d", report.RunCount)
	}
	if report.Points[1].DeltaDocuments != 2 {
		t.Fatalf("expected delta_documents=2, got %d", report.Points[1].DeltaDocuments)
	}
	if report.Points[2].DeltaParseErrors != -3 {
		t.Fatalf("expected delta_parse_errors=-3, got %d", report.Points[2].DeltaParseErrors)
	}
	if report.Points[1].VariableGrowth != 50 {
		t.Fatalf("expected variable growth=50, got %v", report.Points[1].VariableGrowth)
	}
	if report.Points[1].AvgParseErrors != 3 || report.Points[1].AvgDurationMs != 200 {
		t.Fatalf("unexpected window averages: %+v", report.Points[1])
	}
	// The first run falls outside the third run's window.
	if report.Points[2].AvgParseErrors != 2.5 || report.Points[2].AvgDurationMs != 250 {
		t.Fatalf("unexpected window averages: %+v", report.Points[2])
	}
	if !report.Since.Equal(base) || !report.Until.Equal(base.Add(25*time.Hour)) {
		t.Fatalf("unexpected report range: %v..%v", report.Since, report.Until)
	}
}

func TestBuildTrendReport_NoRuns(t *testing.T) {
	if _, err := BuildTrendReport("project-a", nil, time.Hour); err == nil {
		t.Fatal("expected error for empty run list")
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
	if IsCorruptError(errors.New("database is locked")) {
		t.Fatal("lock errors are not corruption")
	}
}

func TestResolveGitMetadata_NotARepository(t *testing.T) {
	hash, ts := ResolveGitMetadata(context.Background(), t.TempDir())
	if hash != "" || !ts.IsZero() {
		t.Fatalf("expected empty metadata outside a work tree, got %q %v", hash, ts)
	}
}

func TestStore_SaveLoadRuns_ContextIsolation(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	if err := store.SaveRun("project-a", RunSnapshot{Timestamp: base, DocumentCount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun("project-b", RunSnapshot{Timestamp: base, DocumentCount: 2}); err != nil {
		t.Fatal(err)
	}

	aRows, err := store.LoadRuns("project-a", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(aRows) != 1 || aRows[0].DocumentCount != 1 {
		t.Fatalf("unexpected project-a rows: %+v", aRows)
	}

	bRows, err := store.LoadRuns("project-b", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bRows) != 1 || bRows[0].DocumentCount != 2 {
		t.Fatalf("unexpected project-b rows: %+v", bRows)
	}
}
