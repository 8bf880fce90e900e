// Package analysis turns scored opportunities into the at-risk summary:
// stage distribution, drivers of slowdown, stalled metrics and the top-N
// selection.
package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/analytics-studio/internal/model"
)

const (
	// DefaultTopN is how many records SelectTop keeps.
	DefaultTopN = 5
	// DefaultRecoveryFactor is the share of value at risk assumed recoverable.
	DefaultRecoveryFactor = 0.7
	// DefaultHighRiskThreshold is the score a record must exceed to count as stalled.
	DefaultHighRiskThreshold = 50.0
	// driverLimit caps each drivers-of-slowdown ranking.
	driverLimit = 3
)

// Options tunes the aggregation heuristics. Zero fields fall back to the
// package defaults.
type Options struct {
	TopN              int
	RecoveryFactor    float64
	HighRiskThreshold float64
}

// DefaultOptions returns the stock heuristics.
func DefaultOptions() Options {
	return Options{
		TopN:              DefaultTopN,
		RecoveryFactor:    DefaultRecoveryFactor,
		HighRiskThreshold: DefaultHighRiskThreshold,
	}
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.RecoveryFactor <= 0 {
		o.RecoveryFactor = DefaultRecoveryFactor
	}
	if o.HighRiskThreshold <= 0 {
		o.HighRiskThreshold = DefaultHighRiskThreshold
	}
	return o
}

// Summary is the aggregate view over a scored table.
type Summary struct {
	StageDistribution map[string]int
	Drivers           model.Drivers
	Metrics           model.Metrics
}

// Aggregate computes the stage distribution, drivers of slowdown and
// stalled metrics. Aggregations whose columns were not provided are left
// out: a nil driver ranking means "not computed", an empty one means
// "computed, nothing qualified".
func Aggregate(scored []model.ScoredOpportunity, cols model.ColumnSet, opts Options) Summary {
	opts = opts.withDefaults()

	sum := Summary{StageDistribution: map[string]int{}}
	hasStage := cols.Has(model.ColStage)
	hasAge := cols.Has(model.ColStageAge)

	if hasStage {
		for _, s := range scored {
			if s.Stage != "" {
				sum.StageDistribution[s.Stage]++
			}
		}
	}

	if hasStage && hasAge {
		slowest := slowestStages(scored)
		sum.Drivers.SlowestStages = &slowest
	}
	if cols.Has(model.ColOwner) {
		owners := topHighRiskOwners(scored, opts.HighRiskThreshold)
		sum.Drivers.TopHighRiskOwners = &owners
	}

	sum.Metrics = stalledMetrics(scored, opts)
	return sum
}

// slowestStages ranks stages by mean stage age. Records without a stage or
// an age do not contribute.
func slowestStages(scored []model.ScoredOpportunity) model.Ranked[float64] {
	var order []string
	totals := map[string]float64{}
	counts := map[string]int{}
	for _, s := range scored {
		if s.Stage == "" || s.StageAgeDays == nil {
			continue
		}
		if _, seen := counts[s.Stage]; !seen {
			order = append(order, s.Stage)
		}
		totals[s.Stage] += float64(*s.StageAgeDays)
		counts[s.Stage]++
	}

	means := make(map[string]float64, len(order))
	for _, stage := range order {
		means[stage] = totals[stage] / float64(counts[stage])
	}
	return topRanked(order, means, driverLimit)
}

// topHighRiskOwners counts stalled records per owner.
func topHighRiskOwners(scored []model.ScoredOpportunity, threshold float64) model.Ranked[int] {
	var order []string
	counts := map[string]int{}
	for _, s := range scored {
		if s.RiskScore <= threshold || s.Owner == nil || *s.Owner == "" {
			continue
		}
		if _, seen := counts[*s.Owner]; !seen {
			order = append(order, *s.Owner)
		}
		counts[*s.Owner]++
	}
	return topRanked(order, counts, driverLimit)
}

// topRanked sorts keys by value, highest first, and keeps the first n.
// Ties keep first-encountered order.
func topRanked[V int | float64](order []string, values map[string]V, n int) model.Ranked[V] {
	keys := append([]string(nil), order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return values[keys[i]] > values[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make(model.Ranked[V], 0, len(keys))
	for _, k := range keys {
		out = append(out, model.RankedEntry[V]{Key: k, Value: values[k]})
	}
	return out
}

func stalledMetrics(scored []model.ScoredOpportunity, opts Options) model.Metrics {
	var (
		m       model.Metrics
		ageSum  float64
		ageSeen int
	)
	for _, s := range scored {
		if s.RiskScore <= opts.HighRiskThreshold {
			continue
		}
		m.NumStalledOpportunities++
		m.ValueAtRisk += s.Amount
		if s.StageAgeDays != nil {
			ageSum += float64(*s.StageAgeDays)
			ageSeen++
		}
	}
	if ageSeen > 0 {
		m.AvgDaysStalled = ageSum / float64(ageSeen)
	}
	m.ExpectedRevenueRecovered = m.ValueAtRisk * opts.RecoveryFactor
	return m
}

// SelectTop returns at most n records ordered by risk score, highest first.
// Equal scores keep table order. The input slice is not reordered.
func SelectTop(scored []model.ScoredOpportunity, n int) []model.ScoredOpportunity {
	if n <= 0 {
		n = DefaultTopN
	}
	out := append([]model.ScoredOpportunity(nil), scored...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RiskScore > out[j].RiskScore
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Narrative summarizes an analysis in one sentence pair.
func Narrative(atRisk int, d model.Drivers) string {
	var stages []string
	if d.SlowestStages != nil {
		stages = d.SlowestStages.Keys()
	}
	return fmt.Sprintf(
		"Identified %d deals at risk based on scoring which factors in stage age, activity gaps, and close date slippage. "+
			"Top drivers of slowdown include stages: %s.",
		atRisk, strings.Join(stages, ", "))
}

// Analyze builds the full result for a non-empty scored table. The visual
// context is left for the caller. An empty table yields model.EmptyAnalysis.
func Analyze(scored []model.ScoredOpportunity, cols model.ColumnSet, opts Options) *model.AnalysisResult {
	if len(scored) == 0 {
		return model.EmptyAnalysis()
	}
	opts = opts.withDefaults()

	sum := Aggregate(scored, cols, opts)
	top := SelectTop(scored, opts.TopN)

	deals := make([]model.AtRiskDeal, len(top))
	for i, s := range top {
		deals[i] = model.NewAtRiskDeal(s)
	}

	drivers := sum.Drivers
	metrics := sum.Metrics
	return &model.AnalysisResult{
		AtRiskDeals:       deals,
		StageDistribution: sum.StageDistribution,
		DriversOfSlowdown: &drivers,
		Narrative:         Narrative(len(deals), drivers),
		Metrics:           &metrics,
	}
}
