// Package risk scores opportunities against fixed heuristic signals.
package risk

import (
	"fmt"
	"math"

	"github.com/sells-group/analytics-studio/internal/model"
)

// Contribution is one signal's effect on a record. An empty Reason means the
// signal added points (possibly zero) without a reason firing.
type Contribution struct {
	Points float64
	Reason string
}

// Signal is a named scoring rule. A signal only runs when the column it
// requires was provided by the source.
type Signal interface {
	Name() string
	Requires() model.Column
	Evaluate(o model.Opportunity, today model.Date) Contribution
}

// StageAge awards one point per day in stage, capped.
type StageAge struct {
	Cap             float64
	ReasonAfterDays int
}

func (StageAge) Name() string           { return "stage_age" }
func (StageAge) Requires() model.Column { return model.ColStageAge }

func (s StageAge) Evaluate(o model.Opportunity, _ model.Date) Contribution {
	if o.StageAgeDays == nil {
		return Contribution{}
	}
	age := *o.StageAgeDays
	c := Contribution{Points: clamp(float64(age), 0, s.Cap)}
	if age > s.ReasonAfterDays {
		c.Reason = fmt.Sprintf("Stalled in stage %d days", age)
	}
	return c
}

// TouchRecency ramps up once a record has gone quiet. The ramp starts at
// GraceDays but the reason only fires after ReasonAfterDays.
type TouchRecency struct {
	Cap             float64
	GraceDays       int
	PointsPerDay    float64
	ReasonAfterDays int
	// MissingDays is assumed when the last touch date is unknown.
	MissingDays int
}

func (TouchRecency) Name() string           { return "touch_recency" }
func (TouchRecency) Requires() model.Column { return model.ColLastTouchDate }

func (s TouchRecency) Evaluate(o model.Opportunity, today model.Date) Contribution {
	days := s.MissingDays
	if o.LastTouchDate != nil {
		days = today.DaysSince(*o.LastTouchDate)
	}
	c := Contribution{
		Points: clamp(math.Max(float64(days-s.GraceDays), 0)*s.PointsPerDay, 0, s.Cap),
	}
	if days > s.ReasonAfterDays {
		c.Reason = fmt.Sprintf("No activity in %d days", days)
	}
	return c
}

// CloseSlippage adds a flat penalty once the close date has passed.
type CloseSlippage struct {
	Points float64
}

func (CloseSlippage) Name() string           { return "close_slippage" }
func (CloseSlippage) Requires() model.Column { return model.ColCloseDate }

func (s CloseSlippage) Evaluate(o model.Opportunity, today model.Date) Contribution {
	if o.CloseDate == nil || !o.CloseDate.Before(today) {
		return Contribution{}
	}
	return Contribution{Points: s.Points, Reason: "Close date slipped"}
}

// DefaultSignals returns the three built-in signals in evaluation order.
func DefaultSignals() []Signal {
	return []Signal{
		StageAge{Cap: 40, ReasonAfterDays: 30},
		TouchRecency{Cap: 30, GraceDays: 7, PointsPerDay: 2, ReasonAfterDays: 14, MissingDays: 30},
		CloseSlippage{Points: 30},
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
