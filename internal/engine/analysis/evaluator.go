package analysis

import (
	"context"
	"fmt"
	"slices"
	"strings"

	domainerrors "pyanalyzer/internal/core/errors"
)

// DefaultMaxIterations bounds rule applications in one evaluation.
const DefaultMaxIterations = 1000

// ErrIterationLimit is returned when evaluation stops before the worklist
// drains. Results gathered so far remain valid.
var ErrIterationLimit = domainerrors.New(domainerrors.CodeInternal, "rule evaluation did not converge")

// EvalStats describes one evaluation.
type EvalStats struct {
	Applications int
	Changes      int
	Converged    bool
}

// Evaluator runs rules to a fixpoint. It applies every rule once, then
// re-applies only the rules that read a key some application wrote.
type Evaluator struct {
	MaxIterations int
	// Trace, when set, receives one line per application.
	Trace func(format string, args ...any)
}

func NewEvaluator(maxIterations int) *Evaluator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Evaluator{MaxIterations: maxIterations}
}

func (e *Evaluator) trace(format string, args ...any) {
	if e.Trace != nil {
		e.Trace(format, args...)
	}
}

// Evaluate applies rules against results until nothing changes. It stops
// with ErrIterationLimit after MaxIterations applications.
func (e *Evaluator) Evaluate(ctx context.Context, env Env, rules []Rule, results *Results) (EvalStats, error) {
	var stats EvalStats
	limit := e.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}

	readers := make(map[string][]int)
	known := make([]map[string]struct{}, len(rules))
	queued := make([]bool, len(rules))
	queue := make([]int, 0, len(rules))
	for i := range rules {
		queue = append(queue, i)
		queued[i] = true
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, domainerrors.Cancelled(err)
		}
		if stats.Applications >= limit {
			return stats, domainerrors.Wrap(ErrIterationLimit, domainerrors.CodeInternal,
				fmt.Sprintf("stopped after %d rule applications with %d pending", stats.Applications, len(queue)))
		}

		i := queue[0]
		queue = queue[1:]
		queued[i] = false
		rule := rules[i]

		reads := make(map[string]struct{})
		writes := make(map[string]struct{})
		stop := results.Track(reads, writes)
		e.trace("  applying rule %s", rule)
		err := rule.Apply(ctx, env, results)
		stop()
		stats.Applications++
		if err != nil {
			if domainerrors.IsCode(err, domainerrors.CodeCancelled) {
				return stats, err
			}
			return stats, domainerrors.Wrap(err, domainerrors.CodeInternal, "applying "+rule.String())
		}

		if known[i] == nil {
			known[i] = make(map[string]struct{})
		}
		for key := range reads {
			if _, ok := known[i][key]; !ok {
				known[i][key] = struct{}{}
				readers[key] = append(readers[key], i)
			}
		}
		if len(reads) > 0 {
			e.trace("  read: %s", joinKeys(reads))
		}
		if len(writes) == 0 {
			continue
		}
		stats.Changes++
		e.trace("  changed: %s", joinKeys(writes))
		for key := range writes {
			for _, r := range readers[key] {
				if !queued[r] {
					queued[r] = true
					queue = append(queue, r)
				}
			}
		}
	}
	stats.Converged = true
	return stats, nil
}

func joinKeys(set map[string]struct{}) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return strings.Join(keys, ", ")
}
