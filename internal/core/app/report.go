package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"pyanalyzer/internal/data/history"
	"pyanalyzer/internal/shared/util"
)

type DocumentReport struct {
	Moniker          string   `json:"moniker"`
	Module           string   `json:"module"`
	Context          string   `json:"context"`
	Lines            int      `json:"lines"`
	Tokens           int      `json:"tokens"`
	SyntaxErrors     []string `json:"syntax_errors,omitempty"`
	Variables        int      `json:"variables"`
	Rules            int      `json:"rules"`
	RuleApplications int      `json:"rule_applications"`
	Converged        bool     `json:"converged"`
	Members          int      `json:"members"`
	Error            string   `json:"error,omitempty"`
}

// Report summarizes one AnalyzeAll pass.
type Report struct {
	GeneratedAt      time.Time        `json:"generated_at"`
	LanguageVersion  string           `json:"language_version"`
	ContextCount     int              `json:"context_count"`
	DocumentCount    int              `json:"document_count"`
	FailedCount      int              `json:"failed_count"`
	TokenCount       int              `json:"token_count"`
	SyntaxErrorCount int              `json:"syntax_error_count"`
	VariableCount    int              `json:"variable_count"`
	RuleCount        int              `json:"rule_count"`
	RuleApplications int              `json:"rule_applications"`
	Duration         time.Duration    `json:"duration"`
	Documents        []DocumentReport `json:"documents"`
}

func newReport(version string, contexts int, docs []DocumentReport, duration time.Duration) Report {
	r := Report{
		GeneratedAt:     time.Now().UTC(),
		LanguageVersion: version,
		ContextCount:    contexts,
		DocumentCount:   len(docs),
		Duration:        duration,
		Documents:       docs,
	}
	for _, d := range docs {
		if d.Error != "" {
			r.FailedCount++
		}
		r.TokenCount += d.Tokens
		r.SyntaxErrorCount += len(d.SyntaxErrors)
		r.VariableCount += d.Variables
		r.RuleCount += d.Rules
		r.RuleApplications += d.RuleApplications
	}
	return r
}

// Snapshot converts the report into a history row.
func (r Report) Snapshot() history.RunSnapshot {
	return history.RunSnapshot{
		SchemaVersion:    history.SchemaVersion,
		Timestamp:        r.GeneratedAt,
		LanguageVersion:  r.LanguageVersion,
		DocumentCount:    r.DocumentCount,
		FailedCount:      r.FailedCount,
		TokenCount:       r.TokenCount,
		ParseErrorCount:  r.SyntaxErrorCount,
		VariableCount:    r.VariableCount,
		RuleCount:        r.RuleCount,
		RuleApplications: r.RuleApplications,
		Duration:         r.Duration,
	}
}

func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText prints a per-context table followed by every syntax error and
// read failure.
func (r Report) WriteText(w io.Writer) error {
	type totals struct{ docs, errs, vars, rules int }
	byContext := make(map[string]*totals)
	for _, d := range r.Documents {
		t := byContext[d.Context]
		if t == nil {
			t = &totals{}
			byContext[d.Context] = t
		}
		t.docs++
		t.errs += len(d.SyntaxErrors)
		t.vars += d.Variables
		t.rules += d.Rules
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CONTEXT\tDOCUMENTS\tSYNTAX ERRORS\tVARIABLES\tRULES\n")
	for _, root := range util.SortedStringKeys(byContext) {
		t := byContext[root]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", root, t.docs, t.errs, t.vars, t.rules)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var b strings.Builder
	for _, d := range r.Documents {
		if d.Error != "" {
			fmt.Fprintf(&b, "%s: %s\n", d.Moniker, d.Error)
		}
		for _, e := range d.SyntaxErrors {
			fmt.Fprintf(&b, "%s:%s\n", d.Moniker, e)
		}
	}
	fmt.Fprintf(&b, "%d documents (%d failed), %d syntax errors, %d variables, %d rules in %s [Python %s]\n",
		r.DocumentCount, r.FailedCount, r.SyntaxErrorCount, r.VariableCount, r.RuleCount,
		r.Duration.Round(time.Millisecond), r.LanguageVersion)
	_, err := io.WriteString(w, b.String())
	return err
}
