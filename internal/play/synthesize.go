package play

import (
	"context"
	"strconv"
	"strings"

	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/rationale"
)

// DefaultNotificationWeight scales a deal's amount into the impact score of
// its notification.
const DefaultNotificationWeight = 0.1

// Synthesizer turns at-risk deals into follow-up actions.
type Synthesizer struct {
	Variant   Variant
	Decorator rationale.Decorator
	// NotificationWeight defaults to DefaultNotificationWeight when zero.
	NotificationWeight float64
}

// Synthesize returns two actions per deal, a task and a notification, sorted
// by impact score descending. The rationale decorator is called once per
// deal and its sentence is shared by both actions.
func (s Synthesizer) Synthesize(ctx context.Context, deals []model.AtRiskDeal, today model.Date) []model.Action {
	dec := s.Decorator
	if dec == nil {
		dec = rationale.RuleBased{}
	}
	weight := s.NotificationWeight
	if weight <= 0 {
		weight = DefaultNotificationWeight
	}
	v := s.Variant
	due := today.AddDays(v.DueOffsetDays).String()

	actions := make([]model.Action, 0, 2*len(deals))
	for _, d := range deals {
		r := v.replacer(d)
		reasoning := dec.Rationale(ctx, r.Replace(v.Context))

		priority := model.PriorityMedium
		if d.RiskScore > v.HighPriorityAbove {
			priority = model.PriorityHigh
		}
		visual := visualMeta(v.Visual)

		actions = append(actions, model.Action{
			Type:        v.TaskType,
			Title:       r.Replace(v.TaskTitle),
			Description: r.Replace(v.TaskDescription),
			Priority:    priority,
			ImpactScore: d.Amount,
			Reasoning:   reasoning,
			Metadata: map[string]any{
				"opportunity_id": d.OpportunityID,
				"subject":        r.Replace(v.TaskSubject),
				"owner":          orDefault(d.Owner, v.DefaultOwner),
				"region":         d.Region,
				"segment":        d.Segment,
				"stage":          d.Stage,
				"due_date":       due,
				"risk_score":     d.RiskScore,
				"visual_context": visual,
			},
		}, model.Action{
			Type:        v.NotifyType,
			Title:       r.Replace(v.NotifyTitle),
			Description: r.Replace(v.NotifyDescription),
			Priority:    model.PriorityMedium,
			ImpactScore: d.Amount * weight,
			Reasoning:   reasoning,
			Metadata: map[string]any{
				"channel":        v.Channel,
				"text":           r.Replace(v.AlertText),
				"opportunity_id": d.OpportunityID,
				"region":         d.Region,
				"segment":        d.Segment,
				"stage":          d.Stage,
				"visual_context": visual,
			},
		})
	}
	model.SortByImpact(actions)
	return actions
}

func (v Variant) replacer(d model.AtRiskDeal) *strings.Replacer {
	age := "unknown"
	if d.StageAgeDays != nil {
		age = strconv.Itoa(*d.StageAgeDays)
	}
	return strings.NewReplacer(
		phID, d.OpportunityID,
		phOwner, orDefault(d.Owner, v.DefaultOwner),
		phStage, orDefault(d.Stage, "unknown"),
		phAge, age,
		phAmount, formatNumber(d.Amount),
		phScore, formatNumber(d.RiskScore),
		phHealth, formatNumber(100-d.RiskScore),
		phReasons, strings.Join(d.Reasons, ", "),
	)
}

func visualMeta(vc model.VisualContext) map[string]any {
	return map[string]any{
		"view_name": vc.ViewName,
		"workbook":  vc.Workbook,
		"url":       vc.URL,
		"note":      vc.Note,
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// formatNumber prints whole numbers without a fractional part.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
