package play

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/analysis"
	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/rationale"
	"github.com/sells-group/analytics-studio/internal/risk"
	"github.com/sells-group/analytics-studio/internal/source"
)

// Options are the pipeline heuristics shared by all risk plays.
type Options struct {
	Analysis           analysis.Options
	NotificationWeight float64
}

// DefaultOptions returns the stock heuristics.
func DefaultOptions() Options {
	return Options{
		Analysis:           analysis.DefaultOptions(),
		NotificationWeight: DefaultNotificationWeight,
	}
}

// RiskPlay scores a record table, summarizes the riskiest deals and
// synthesizes follow-ups, all shaped by its Variant.
type RiskPlay struct {
	spec      PlaySpec
	variant   Variant
	source    source.Source
	scorer    *risk.Scorer
	decorator rationale.Decorator
	opts      Options
	now       func() time.Time
}

// NewRiskPlay creates a risk play. A nil scorer uses the default signals; a
// nil decorator uses RuleBased; a nil now uses time.Now.
func NewRiskPlay(spec PlaySpec, v Variant, src source.Source, scorer *risk.Scorer,
	dec rationale.Decorator, opts Options, now func() time.Time) *RiskPlay {
	if scorer == nil {
		scorer = risk.NewScorer()
	}
	if now == nil {
		now = time.Now
	}
	return &RiskPlay{
		spec:      spec,
		variant:   v,
		source:    src,
		scorer:    scorer,
		decorator: rationale.ForPlay(dec, spec.ID),
		opts:      opts,
		now:       now,
	}
}

func (p *RiskPlay) Spec() PlaySpec { return p.spec }

// Variant returns the play's variant settings.
func (p *RiskPlay) Variant() Variant { return p.variant }

// Run loads records, analyzes them and recommends actions. A source failure
// degrades to the no-data result.
func (p *RiskPlay) Run(ctx context.Context, params Params) (*model.PlayResult, error) {
	src, err := sourceFor(params, p.source)
	if err != nil {
		return nil, err
	}
	table := source.LoadOrEmpty(ctx, src)
	now := p.now()

	res, actions := p.Evaluate(ctx, table, now)
	zap.L().Info("play: run complete",
		zap.String("play", p.spec.ID),
		zap.Int("records", len(table.Records)),
		zap.Int("at_risk", len(res.AtRiskDeals)),
		zap.Int("actions", len(actions)),
	)
	return &model.PlayResult{Play: p.spec.ID, Analysis: res, Actions: actions}, nil
}

// Evaluate runs the pure part of the pipeline on an already loaded table.
func (p *RiskPlay) Evaluate(ctx context.Context, table model.Table, now time.Time) (*model.AnalysisResult, []model.Action) {
	if table.Empty() {
		return model.EmptyAnalysis(), []model.Action{}
	}
	scored := p.scorer.Score(table, now)
	res := analysis.Analyze(scored, table.Columns, p.opts.Analysis)
	visual := p.variant.Visual
	res.VisualContext = &visual

	syn := Synthesizer{
		Variant:            p.variant,
		Decorator:          p.decorator,
		NotificationWeight: p.opts.NotificationWeight,
	}
	return res, syn.Synthesize(ctx, res.AtRiskDeals, model.DateOf(now))
}
