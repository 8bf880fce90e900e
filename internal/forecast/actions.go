package forecast

import (
	"context"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/rationale"
)

const (
	// shortfallPctTrigger is the shortfall percentage above which budget
	// reallocation is recommended.
	shortfallPctTrigger = 10
	maxSegmentActions   = 3
	highGap             = 100000
	slowVelocityDays    = 90
	lowWinRate          = 0.4
	targetWinRate       = 0.5
	// upliftShare is the share of pipeline a process or enablement fix is
	// assumed to recover.
	upliftShare = 0.1
)

var printer = message.NewPrinter(language.English)

// thousands converts a dollar figure to an impact score in thousands.
func thousands(v float64) float64 {
	return math.Trunc(v / 1000)
}

// Recommend turns a forecast into interventions ordered by impact. Each
// action's reasoning comes from dec.
func Recommend(ctx context.Context, f *Forecast, dec rationale.Decorator) []model.Action {
	if dec == nil {
		dec = rationale.RuleBased{}
	}
	actions := []model.Action{}
	if f == nil || f.Empty() {
		return actions
	}

	if f.Shortfall > 0 && f.ShortfallPct > shortfallPctTrigger {
		ctxLine := printer.Sprintf("Revenue forecast shows $%.0f shortfall (%.1f%% below target). Win rate: %.1f%%, Avg velocity: %.0f days.",
			f.Shortfall, f.ShortfallPct, f.WinRate*100, f.AvgDealVelocityDays)
		actions = append(actions, model.Action{
			Type:  model.ActionBudgetReallocation,
			Title: printer.Sprintf("Reallocate Budget to Close $%.0f Gap", f.Shortfall),
			Description: printer.Sprintf("Forecasted revenue is $%.0f vs. target of $%.0f. "+
				"Recommend increasing marketing spend or sales resources to accelerate pipeline.",
				f.ForecastedRevenue, f.TargetRevenue),
			Priority:    model.PriorityHigh,
			ImpactScore: thousands(f.Shortfall),
			Reasoning:   dec.Rationale(ctx, ctxLine),
			Metadata: map[string]any{
				"shortfall":          f.Shortfall,
				"shortfall_pct":      f.ShortfallPct,
				"target_revenue":     f.TargetRevenue,
				"forecasted_revenue": f.ForecastedRevenue,
			},
		})
	}

	for i, seg := range f.AtRiskSegments {
		if i == maxSegmentActions {
			break
		}
		ctxLine := printer.Sprintf("%s segment is $%.0f below target. Current forecast: $%.0f, Target: $%.0f.",
			seg.Segment, seg.Gap, seg.Forecast, seg.Target)
		priority := model.PriorityMedium
		if seg.Gap > highGap {
			priority = model.PriorityHigh
		}
		actions = append(actions, model.Action{
			Type:  model.ActionTargetedOutreach,
			Title: "Launch " + seg.Segment + " Outreach Campaign",
			Description: printer.Sprintf("%s segment is tracking $%.0f below target. "+
				"Recommend targeted campaign to accelerate deals in this segment.", seg.Segment, seg.Gap),
			Priority:    priority,
			ImpactScore: thousands(seg.Gap),
			Reasoning:   dec.Rationale(ctx, ctxLine),
			Metadata: map[string]any{
				"segment":  seg.Segment,
				"gap":      seg.Gap,
				"target":   seg.Target,
				"forecast": seg.Forecast,
			},
		})
	}

	if f.AvgDealVelocityDays > slowVelocityDays {
		ctxLine := printer.Sprintf("Average deal velocity is %.0f days, which is above industry benchmark. "+
			"Slow velocity impacts revenue realization.", f.AvgDealVelocityDays)
		actions = append(actions, model.Action{
			Type:  model.ActionProcessImprovement,
			Title: "Accelerate Deal Velocity",
			Description: printer.Sprintf("Current average deal cycle is %.0f days. "+
				"Recommend sales process review to identify bottlenecks and reduce time-to-close.", f.AvgDealVelocityDays),
			Priority:    model.PriorityMedium,
			ImpactScore: thousands(f.TotalPipelineValue * upliftShare),
			Reasoning:   dec.Rationale(ctx, ctxLine),
			Metadata: map[string]any{
				"avg_velocity_days":    f.AvgDealVelocityDays,
				"target_velocity_days": DefaultVelocityDays,
			},
		})
	}

	if f.WinRate < lowWinRate {
		potential := f.WeightedPipelineValue * upliftShare
		ctxLine := printer.Sprintf("Historical win rate is %.1f%%, below industry average. "+
			"Improving win rate by 10%% could add $%.0f in revenue.", f.WinRate*100, potential)
		actions = append(actions, model.Action{
			Type:  model.ActionSalesEnablement,
			Title: "Launch Sales Enablement Program",
			Description: printer.Sprintf("Current win rate is %.1f%%. "+
				"Recommend sales training and enablement to improve conversion rates.", f.WinRate*100),
			Priority:    model.PriorityMedium,
			ImpactScore: thousands(potential),
			Reasoning:   dec.Rationale(ctx, ctxLine),
			Metadata: map[string]any{
				"current_win_rate": f.WinRate,
				"target_win_rate":  targetWinRate,
				"potential_impact": potential,
			},
		})
	}

	model.SortByImpact(actions)
	return actions
}
