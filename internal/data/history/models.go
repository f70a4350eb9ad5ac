package history

import "time"

const SchemaVersion = 1

// RunSnapshot summarizes one analysis pass over a file context.
type RunSnapshot struct {
	SchemaVersion    int           `json:"schema_version"`
	Timestamp        time.Time     `json:"timestamp"`
	CommitHash       string        `json:"commit_hash,omitempty"`
	CommitTimestamp  time.Time     `json:"commit_timestamp,omitempty"`
	LanguageVersion  string        `json:"language_version"`
	DocumentCount    int           `json:"document_count"`
	FailedCount      int           `json:"failed_count"`
	TokenCount       int           `json:"token_count"`
	ParseErrorCount  int           `json:"parse_error_count"`
	VariableCount    int           `json:"variable_count"`
	RuleCount        int           `json:"rule_count"`
	RuleApplications int           `json:"rule_applications"`
	Duration         time.Duration `json:"duration"`
}

type TrendPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	CommitHash       string    `json:"commit_hash,omitempty"`
	DocumentCount    int       `json:"document_count"`
	ParseErrorCount  int       `json:"parse_error_count"`
	VariableCount    int       `json:"variable_count"`
	RuleCount        int       `json:"rule_count"`
	DeltaDocuments   int       `json:"delta_documents"`
	DeltaParseErrors int       `json:"delta_parse_errors"`
	DeltaVariables   int       `json:"delta_variables"`
	DeltaRules       int       `json:"delta_rules"`
	VariableGrowth   float64   `json:"variable_growth_pct"`
	AvgParseErrors   float64   `json:"avg_parse_errors"`
	AvgDurationMs    float64   `json:"avg_duration_ms"`
	WindowHours      float64   `json:"window_hours"`
}

type TrendReport struct {
	SchemaVersion int          `json:"schema_version"`
	ContextKey    string       `json:"context_key"`
	Since         time.Time    `json:"since"`
	Until         time.Time    `json:"until"`
	Window        string       `json:"window"`
	RunCount      int          `json:"run_count"`
	Points        []TrendPoint `json:"points"`
}
