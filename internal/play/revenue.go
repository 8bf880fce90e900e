package play

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/forecast"
	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/rationale"
	"github.com/sells-group/analytics-studio/internal/source"
)

// RevenuePlay forecasts revenue against target and recommends interventions.
type RevenuePlay struct {
	spec      PlaySpec
	source    source.Source
	decorator rationale.Decorator
	now       func() time.Time
}

// NewRevenuePlay creates the revenue forecasting play.
func NewRevenuePlay(spec PlaySpec, src source.Source, dec rationale.Decorator, now func() time.Time) *RevenuePlay {
	if now == nil {
		now = time.Now
	}
	return &RevenuePlay{
		spec:      spec,
		source:    src,
		decorator: rationale.ForPlay(dec, spec.ID),
		now:       now,
	}
}

func (p *RevenuePlay) Spec() PlaySpec { return p.spec }

// Run honours the target_revenue and forecast_period_days params.
func (p *RevenuePlay) Run(ctx context.Context, params Params) (*model.PlayResult, error) {
	src, err := sourceFor(params, p.source)
	if err != nil {
		return nil, err
	}
	table := source.LoadOrEmpty(ctx, src)

	f := forecast.Analyze(table, forecast.Params{
		TargetRevenue: params.Float("target_revenue"),
		PeriodDays:    params.Int("forecast_period_days", forecast.DefaultPeriodDays),
	}, p.now())
	actions := forecast.Recommend(ctx, f, p.decorator)

	zap.L().Info("play: run complete",
		zap.String("play", p.spec.ID),
		zap.Int("records", len(table.Records)),
		zap.Float64("shortfall", f.Shortfall),
		zap.Int("actions", len(actions)),
	)
	return &model.PlayResult{Play: p.spec.ID, Analysis: f, Actions: actions}, nil
}
