package history

import (
	"fmt"
	"math"
	"time"
)

// BuildTrendReport derives per-run deltas and moving averages over window.
// Runs must be ordered by timestamp.
func BuildTrendReport(contextKey string, runs []RunSnapshot, window time.Duration) (TrendReport, error) {
	if len(runs) == 0 {
		return TrendReport{}, fmt.Errorf("no runs recorded for %q", contextKey)
	}

	points := make([]TrendPoint, 0, len(runs))
	for i, current := range runs {
		point := TrendPoint{
			Timestamp:       current.Timestamp,
			CommitHash:      current.CommitHash,
			DocumentCount:   current.DocumentCount,
			ParseErrorCount: current.ParseErrorCount,
			VariableCount:   current.VariableCount,
			RuleCount:       current.RuleCount,
		}
		if i > 0 {
			prev := runs[i-1]
			point.DeltaDocuments = current.DocumentCount - prev.DocumentCount
			point.DeltaParseErrors = current.ParseErrorCount - prev.ParseErrorCount
			point.DeltaVariables = current.VariableCount - prev.VariableCount
			point.DeltaRules = current.RuleCount - prev.RuleCount
			if prev.VariableCount > 0 {
				point.VariableGrowth = round2(float64(point.DeltaVariables) / float64(prev.VariableCount) * 100)
			}
		}

		avgErrors, avgDuration := movingAverages(runs, i, window)
		point.AvgParseErrors = round2(avgErrors)
		point.AvgDurationMs = round2(avgDuration)
		point.WindowHours = round2(window.Hours())
		points = append(points, point)
	}

	return TrendReport{
		SchemaVersion: SchemaVersion,
		ContextKey:    contextKey,
		Since:         runs[0].Timestamp,
		Until:         runs[len(runs)-1].Timestamp,
		Window:        window.String(),
		RunCount:      len(points),
		Points:        points,
	}, nil
}

func movingAverages(runs []RunSnapshot, index int, window time.Duration) (float64, float64) {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	if window <= 0 {
		return float64(runs[index].ParseErrorCount), ms(runs[index].Duration)
	}

	cutoff := runs[index].Timestamp.Add(-window)
	var errorsTotal int
	var durationTotal time.Duration
	count := 0
	for i := index; i >= 0; i-- {
		if runs[i].Timestamp.Before(cutoff) {
			break
		}
		errorsTotal += runs[i].ParseErrorCount
		durationTotal += runs[i].Duration
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return float64(errorsTotal) / float64(count), ms(durationTotal) / float64(count)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
