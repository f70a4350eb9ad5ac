package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"pyanalyzer/internal/data/history"
)

func RenderTrendTSV(report history.TrendReport) ([]byte, error) {
	var buf strings.Builder

	buf.WriteString("Timestamp\tCommit\tDocuments\tParseErrors\tVariables\tRules\tDeltaDocuments\tDeltaParseErrors\tDeltaVariables\tDeltaRules\tVariableGrowthPct\tAvgParseErrors\tAvgDurationMs\tWindowHours\n")
	for _, point := range report.Points {
		buf.WriteString(fmt.Sprintf(
			"%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
			point.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			point.CommitHash,
			point.DocumentCount,
			point.ParseErrorCount,
			point.VariableCount,
			point.RuleCount,
			point.DeltaDocuments,
			point.DeltaParseErrors,
			point.DeltaVariables,
			point.DeltaRules,
			point.VariableGrowth,
			point.AvgParseErrors,
			point.AvgDurationMs,
			point.WindowHours,
		))
	}

	return []byte(buf.String()), nil
}

func RenderTrendJSON(report history.TrendReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// TrendSummary is the one-line description printed after a history query.
func TrendSummary(report history.TrendReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "History: %d runs from %s to %s\n",
		report.RunCount,
		report.Since.Format("2006-01-02 15:04:05"),
		report.Until.Format("2006-01-02 15:04:05"))
	if len(report.Points) > 0 {
		latest := report.Points[len(report.Points)-1]
		fmt.Fprintf(&b, "Trend latest: documents=%d (%+d), parse_errors=%d (%+d), variables=%d (%+d)\n",
			latest.DocumentCount, latest.DeltaDocuments,
			latest.ParseErrorCount, latest.DeltaParseErrors,
			latest.VariableCount, latest.DeltaVariables)
	}
	return b.String()
}
