package play

import (
	"time"

	"github.com/sells-group/analytics-studio/internal/analysis"
	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/rationale"
	"github.com/sells-group/analytics-studio/internal/risk"
	"github.com/sells-group/analytics-studio/internal/source"
)

// Built-in play ids.
const (
	IDPipeline = "pipeline"
	IDChurn    = "churn"
	IDSpend    = "spend"
	IDRevenue  = "revenue"
)

// Specs of the built-in plays, in catalogue order.
var (
	PipelineSpec = PlaySpec{
		ID:          IDPipeline,
		Label:       "Pipeline Leakage",
		Description: "Identify at-risk deals in your sales pipeline and prevent revenue slippage",
		Tags:        []string{"sales", "revenue", "pipeline"},
		InputsSchema: map[string]Input{
			"min_stage_age_days": {Type: "integer", Description: "Minimum days in stage to flag as stalled", Default: 14},
		},
		DemoSeed: "pipeline_demo_1",
		Icon:     "💰",
	}
	ChurnSpec = PlaySpec{
		ID:           IDChurn,
		Label:        "Churn Rescue",
		Description:  "Detect churn-risk customers and queue retention outreach",
		Tags:         []string{"customer-success", "retention", "churn"},
		InputsSchema: map[string]Input{},
		DemoSeed:     "churn_demo_1",
		Icon:         "🛟",
	}
	SpendSpec = PlaySpec{
		ID:           IDSpend,
		Label:        "Spend Anomaly",
		Description:  "Detect unusual spending patterns and trigger budget reviews",
		Tags:         []string{"finance", "budget", "anomaly"},
		InputsSchema: map[string]Input{},
		DemoSeed:     "spend_demo_1",
		Icon:         "📊",
	}
	RevenueSpec = PlaySpec{
		ID:          IDRevenue,
		Label:       "Revenue Forecasting",
		Description: "Forecast revenue shortfalls and recommend proactive interventions",
		Tags:        []string{"revenue", "forecasting", "planning"},
		InputsSchema: map[string]Input{
			"target_revenue":       {Type: "number", Description: "Target revenue for the forecast period", Optional: true},
			"forecast_period_days": {Type: "integer", Description: "Number of days to forecast", Default: 90},
		},
		DemoSeed: "revenue_demo_1",
		Icon:     "📈",
	}
)

// Deps are the collaborators shared by the built-in plays.
type Deps struct {
	Source    source.Source
	Decorator rationale.Decorator
	Now       func() time.Time
}

// OptionsFromConfig maps the pipeline config section onto Options.
func OptionsFromConfig(pc config.PipelineConfig) Options {
	return Options{
		Analysis: analysis.Options{
			TopN:              pc.TopN,
			RecoveryFactor:    pc.RecoveryFactor,
			HighRiskThreshold: pc.HighRiskThreshold,
		},
		NotificationWeight: pc.NotificationWeight,
	}
}

// NewBuiltinRegistry registers the four built-in plays. Per-play overrides
// come from cfg.Plays; a nil cfg uses the defaults.
func NewBuiltinRegistry(cfg *config.Config, deps Deps) (*Registry, error) {
	opts := DefaultOptions()
	overrides := map[string]config.PlayOverride{}
	if cfg != nil {
		opts = OptionsFromConfig(cfg.Pipeline)
		if cfg.Plays != nil {
			overrides = cfg.Plays
		}
	}
	scorer := risk.NewScorer()

	r := NewRegistry()
	riskPlays := []struct {
		spec    PlaySpec
		variant Variant
	}{
		{PipelineSpec, Pipeline()},
		{ChurnSpec, Churn()},
		{SpendSpec, Spend()},
	}
	for _, rp := range riskPlays {
		v := rp.variant.WithOverride(overrides[rp.spec.ID])
		if err := r.Register(NewRiskPlay(rp.spec, v, deps.Source, scorer, deps.Decorator, opts, deps.Now)); err != nil {
			return nil, err
		}
	}
	if err := r.Register(NewRevenuePlay(RevenueSpec, deps.Source, deps.Decorator, deps.Now)); err != nil {
		return nil, err
	}
	return r, nil
}
