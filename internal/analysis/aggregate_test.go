package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-studio/internal/model"
)

func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

func scored(id, stage, owner string, age int, amount, score float64) model.ScoredOpportunity {
	o := model.Opportunity{OpportunityID: id, Stage: stage, Amount: amount, StageAgeDays: ptrInt(age)}
	if owner != "" {
		o.Owner = ptrString(owner)
	}
	return model.ScoredOpportunity{Opportunity: o, RiskScore: score, Reasons: []string{}}
}

func fixture() []model.ScoredOpportunity {
	return []model.ScoredOpportunity{
		scored("O1", "Proposal", "Alice", 40, 1000, 80),
		scored("O2", "Negotiation", "Bob", 10, 2000, 20),
		scored("O3", "Proposal", "Alice", 20, 3000, 60),
		scored("O4", "Discovery", "Cara", 30, 4000, 55),
		scored("O5", "Negotiation", "Bob", 50, 5000, 90),
		scored("O6", "Closing", "Dan", 5, 6000, 10),
	}
}

func TestAggregate_StageDistribution(t *testing.T) {
	sum := Aggregate(fixture(), model.AllColumns, DefaultOptions())
	assert.Equal(t, map[string]int{"Proposal": 2, "Negotiation": 2, "Discovery": 1, "Closing": 1}, sum.StageDistribution)
}

func TestAggregate_SlowestStages(t *testing.T) {
	sum := Aggregate(fixture(), model.AllColumns, DefaultOptions())
	require.NotNil(t, sum.Drivers.SlowestStages)

	// Proposal 30, Negotiation 30, Discovery 30, Closing 5: three-way tie
	// resolved by first appearance.
	assert.Equal(t, []string{"Proposal", "Negotiation", "Discovery"}, sum.Drivers.SlowestStages.Keys())
	for _, e := range *sum.Drivers.SlowestStages {
		assert.InDelta(t, 30, e.Value, 0.001)
	}
}

func TestAggregate_TopHighRiskOwners(t *testing.T) {
	recs := append(fixture(), scored("O7", "Proposal", "Cara", 1, 10, 99))
	sum := Aggregate(recs, model.AllColumns, DefaultOptions())
	require.NotNil(t, sum.Drivers.TopHighRiskOwners)

	want := model.Ranked[int]{
		{Key: "Alice", Value: 2},
		{Key: "Cara", Value: 2},
		{Key: "Bob", Value: 1},
	}
	assert.Equal(t, want, *sum.Drivers.TopHighRiskOwners)
}

func TestAggregate_MissingColumns(t *testing.T) {
	cols := model.ColumnSet(0).With(model.ColOpportunityID).With(model.ColAmount)
	sum := Aggregate(fixture(), cols, DefaultOptions())

	assert.Empty(t, sum.StageDistribution)
	assert.Nil(t, sum.Drivers.SlowestStages)
	assert.Nil(t, sum.Drivers.TopHighRiskOwners)
	assert.Equal(t, 4, sum.Metrics.NumStalledOpportunities)
}

func TestAggregate_OwnersPresentButNoneStalled(t *testing.T) {
	recs := []model.ScoredOpportunity{scored("O1", "Proposal", "Alice", 1, 10, 50)}
	sum := Aggregate(recs, model.AllColumns, DefaultOptions())

	require.NotNil(t, sum.Drivers.TopHighRiskOwners)
	assert.Empty(t, *sum.Drivers.TopHighRiskOwners)

	b, err := json.Marshal(sum.Drivers)
	require.NoError(t, err)
	assert.JSONEq(t, `{"slowest_stages":{"Proposal":1},"top_high_risk_owners":{}}`, string(b))
}

func TestAggregate_Metrics(t *testing.T) {
	sum := Aggregate(fixture(), model.AllColumns, DefaultOptions())
	m := sum.Metrics

	// Stalled: O1 (80), O3 (60), O4 (55), O5 (90).
	assert.Equal(t, 4, m.NumStalledOpportunities)
	assert.InDelta(t, 13000, m.ValueAtRisk, 0.001)
	assert.InDelta(t, 35, m.AvgDaysStalled, 0.001)
	assert.InDelta(t, 9100, m.ExpectedRevenueRecovered, 0.001)
}

func TestAggregate_MetricsNoneStalled(t *testing.T) {
	recs := []model.ScoredOpportunity{scored("O1", "Proposal", "Alice", 12, 10, 5)}
	m := Aggregate(recs, model.AllColumns, DefaultOptions()).Metrics
	assert.Equal(t, model.Metrics{}, m)
}

func TestAggregate_CustomOptions(t *testing.T) {
	opts := Options{HighRiskThreshold: 85, RecoveryFactor: 0.5}
	m := Aggregate(fixture(), model.AllColumns, opts).Metrics

	assert.Equal(t, 1, m.NumStalledOpportunities)
	assert.InDelta(t, 2500, m.ExpectedRevenueRecovered, 0.001)
}

func TestSelectTop(t *testing.T) {
	recs := []model.ScoredOpportunity{
		scored("A", "", "", 0, 0, 30),
		scored("B", "", "", 0, 0, 70),
		scored("C", "", "", 0, 0, 30),
		scored("D", "", "", 0, 0, 90),
		scored("E", "", "", 0, 0, 70),
		scored("F", "", "", 0, 0, 30),
		scored("G", "", "", 0, 0, 10),
	}

	top := SelectTop(recs, DefaultTopN)

	require.Len(t, top, 5)
	ids := make([]string, len(top))
	for i, s := range top {
		ids[i] = s.OpportunityID
		if i > 0 {
			assert.LessOrEqual(t, s.RiskScore, top[i-1].RiskScore)
		}
	}
	assert.Equal(t, []string{"D", "B", "E", "A", "C"}, ids)
	assert.Equal(t, "A", recs[0].OpportunityID, "input not reordered")
}

func TestSelectTop_Short(t *testing.T) {
	recs := []model.ScoredOpportunity{scored("A", "", "", 0, 0, 1)}
	assert.Len(t, SelectTop(recs, 5), 1)
	assert.Empty(t, SelectTop(nil, 5))
}

func TestNarrative(t *testing.T) {
	d := model.Drivers{SlowestStages: &model.Ranked[float64]{{Key: "Proposal", Value: 40}, {Key: "Negotiation", Value: 20}}}
	assert.Equal(t,
		"Identified 2 deals at risk based on scoring which factors in stage age, activity gaps, and close date slippage. "+
			"Top drivers of slowdown include stages: Proposal, Negotiation.",
		Narrative(2, d))

	assert.Contains(t, Narrative(0, model.Drivers{}), "include stages: .")
}

func TestAnalyze_Empty(t *testing.T) {
	res := Analyze(nil, model.AllColumns, DefaultOptions())

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at_risk_deals":[],"stage_distribution":{},"narrative":"No data available."}`, string(b))
}

func TestAnalyze_Full(t *testing.T) {
	res := Analyze(fixture(), model.AllColumns, DefaultOptions())

	require.Len(t, res.AtRiskDeals, 5)
	assert.Equal(t, "O5", res.AtRiskDeals[0].OpportunityID)
	assert.Equal(t, "Bob", res.AtRiskDeals[0].Owner)
	require.NotNil(t, res.DriversOfSlowdown)
	require.NotNil(t, res.Metrics)
	assert.Nil(t, res.VisualContext)
	assert.Contains(t, res.Narrative, "Identified 5 deals at risk")
	assert.Contains(t, res.Narrative, "Proposal, Negotiation, Discovery.")
}
