// Package forecast projects revenue from the open pipeline and recommends
// interventions when the projection falls short of target.
package forecast

import (
	"time"

	"github.com/sells-group/analytics-studio/internal/model"
)

const (
	// NoDataNarrative is reported for an empty input table.
	NoDataNarrative = "No data available for analysis."

	DefaultPeriodDays   = 90
	DefaultWinRate      = 0.5
	DefaultVelocityDays = 60.0
	// TargetUplift sets the implicit target when none is given.
	TargetUplift = 1.2
	// recentWonDays is how far back Closed Won deals still count toward the pipeline.
	recentWonDays = 180
)

// Stage labels the forecast treats specially.
const (
	StageClosedWon  = "Closed Won"
	StageClosedLost = "Closed Lost"
)

var openStages = map[string]bool{
	"Prospecting":   true,
	"Qualification": true,
	"Proposal":      true,
	"Negotiation":   true,
}

var stageProbability = map[string]float64{
	"Prospecting":   10,
	"Qualification": 25,
	"Proposal":      50,
	"Negotiation":   75,
	StageClosedWon:  100,
	StageClosedLost: 0,
}

// StageProbability is the default win probability (percent) for a stage.
func StageProbability(stage string) float64 {
	if p, ok := stageProbability[stage]; ok {
		return p
	}
	return 50
}

// SegmentShare is one segment's slice of the revenue target.
type SegmentShare struct {
	Segment string
	Share   float64
}

// DefaultSegmentShares splits the target across segments, in report order.
var DefaultSegmentShares = []SegmentShare{
	{Segment: "Enterprise", Share: 0.5},
	{Segment: "Mid-Market", Share: 0.3},
	{Segment: "SMB", Share: 0.2},
}

// SegmentForecast is the pipeline total for one segment.
type SegmentForecast struct {
	Amount         float64 `json:"amount"`
	WeightedAmount float64 `json:"weighted_amount"`
	DealCount      int     `json:"deal_count"`
}

// SegmentGap is a segment forecast to miss its share of target.
type SegmentGap struct {
	Segment  string  `json:"segment"`
	Target   float64 `json:"target"`
	Forecast float64 `json:"forecast"`
	Gap      float64 `json:"gap"`
}

// Forecast is the revenue projection for one run.
type Forecast struct {
	ForecastPeriodDays    int                        `json:"forecast_period_days"`
	TargetRevenue         float64                    `json:"target_revenue"`
	ForecastedRevenue     float64                    `json:"forecasted_revenue"`
	Shortfall             float64                    `json:"shortfall"`
	ShortfallPct          float64                    `json:"shortfall_pct"`
	WinRate               float64                    `json:"win_rate"`
	AvgDealVelocityDays   float64                    `json:"avg_deal_velocity_days"`
	TotalPipelineValue    float64                    `json:"total_pipeline_value"`
	WeightedPipelineValue float64                    `json:"weighted_pipeline_value"`
	OpenDeals             int                        `json:"open_deals"`
	AtRiskSegments        []SegmentGap               `json:"at_risk_segments"`
	ForecastBySegment     map[string]SegmentForecast `json:"forecast_by_segment"`
	Narrative             string                     `json:"narrative,omitempty"`
}

// Empty reports whether f is the no-data forecast.
func (f *Forecast) Empty() bool { return f.Narrative == NoDataNarrative }

// Params are the caller-tunable inputs.
type Params struct {
	// TargetRevenue overrides the implicit target when non-nil.
	TargetRevenue *float64
	PeriodDays    int
}

// Analyze projects revenue for table as of now.
func Analyze(table model.Table, params Params, now time.Time) *Forecast {
	period := params.PeriodDays
	if period <= 0 {
		period = DefaultPeriodDays
	}
	if table.Empty() {
		return &Forecast{
			ForecastPeriodDays: period,
			AtRiskSegments:     []SegmentGap{},
			ForecastBySegment:  map[string]SegmentForecast{},
			Narrative:          NoDataNarrative,
		}
	}

	today := model.DateOf(now)
	wonSince := today.AddDays(-recentWonDays)
	useColumn := table.Columns.Has(model.ColProbability)

	f := &Forecast{
		ForecastPeriodDays: period,
		AtRiskSegments:     []SegmentGap{},
		ForecastBySegment:  map[string]SegmentForecast{},
	}

	var won, lost int
	var velocitySum float64
	var velocityN int
	for _, o := range table.Records {
		switch o.Stage {
		case StageClosedWon:
			won++
			if o.CloseDate != nil && o.CreatedDate != nil {
				velocitySum += float64(o.CloseDate.DaysSince(*o.CreatedDate))
				velocityN++
			}
		case StageClosedLost:
			lost++
		}

		if !inPipeline(o, wonSince) {
			continue
		}
		prob := StageProbability(o.Stage)
		if useColumn && o.Probability != nil {
			prob = *o.Probability
		}
		weighted := o.Amount * prob / 100

		f.OpenDeals++
		f.TotalPipelineValue += o.Amount
		f.WeightedPipelineValue += weighted
		if o.Segment != "" {
			sf := f.ForecastBySegment[o.Segment]
			sf.Amount += o.Amount
			sf.WeightedAmount += weighted
			sf.DealCount++
			f.ForecastBySegment[o.Segment] = sf
		}
	}

	f.WinRate = DefaultWinRate
	if won+lost > 0 {
		f.WinRate = float64(won) / float64(won+lost)
	}
	f.AvgDealVelocityDays = DefaultVelocityDays
	if velocityN > 0 {
		f.AvgDealVelocityDays = velocitySum / float64(velocityN)
	}

	f.ForecastedRevenue = f.WeightedPipelineValue * f.WinRate
	f.TargetRevenue = f.ForecastedRevenue * TargetUplift
	if params.TargetRevenue != nil {
		f.TargetRevenue = *params.TargetRevenue
	}
	f.Shortfall = f.TargetRevenue - f.ForecastedRevenue
	if f.TargetRevenue > 0 {
		f.ShortfallPct = f.Shortfall / f.TargetRevenue * 100
	}

	for _, s := range DefaultSegmentShares {
		sf, ok := f.ForecastBySegment[s.Segment]
		if !ok {
			continue
		}
		target := f.TargetRevenue * s.Share
		actual := sf.WeightedAmount * f.WinRate
		if actual < target {
			f.AtRiskSegments = append(f.AtRiskSegments, SegmentGap{
				Segment:  s.Segment,
				Target:   target,
				Forecast: actual,
				Gap:      target - actual,
			})
		}
	}
	return f
}

// inPipeline reports whether o counts toward the forecast: every open stage,
// plus deals won within the look-back window.
func inPipeline(o model.Opportunity, wonSince model.Date) bool {
	if openStages[o.Stage] {
		return true
	}
	return o.Stage == StageClosedWon && o.CloseDate != nil && !o.CloseDate.Before(wonSince)
}
