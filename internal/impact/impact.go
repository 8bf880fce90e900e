// Package impact rolls persisted action outcomes up into the studio's
// impact report.
package impact

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/analytics-studio/internal/model"
)

const (
	// ReportTitle heads the CSV export.
	ReportTitle = "Analytics Studio - Impact Report"
	// ValuePerImpactPoint converts impact score into estimated dollars.
	ValuePerImpactPoint = 1000.0
	// TopPlayCount is how many plays the report ranks.
	TopPlayCount = 3
	// ActivityDays is the trailing window of daily run counts.
	ActivityDays = 7
)

// statusOrder fixes the CSV order of known statuses; others follow alphabetically.
var statusOrder = []model.ActionStatus{
	model.ActionStatusProposed,
	model.ActionStatusApproved,
	model.ActionStatusExecuted,
	model.ActionStatusFailed,
	model.ActionStatusIgnored,
}

var printer = message.NewPrinter(language.English)

// StatsSource computes raw aggregates. store.Store satisfies it.
type StatsSource interface {
	ImpactStats(ctx context.Context, since time.Time) (*model.ImpactStats, error)
}

// Report is the aggregate impact of every recommendation the studio produced.
type Report struct {
	TotalRuns        int                                      `json:"total_runs"`
	TotalActions     int                                      `json:"total_actions"`
	TotalApproved    int                                      `json:"total_approved"`
	TotalExecuted    int                                      `json:"total_executed"`
	TotalImpactScore float64                                  `json:"total_impact_score"`
	EstimatedValue   float64                                  `json:"estimated_value"`
	TopPlays         []model.PlayImpact                       `json:"top_plays"`
	RecentActivity   []model.DailyRuns                        `json:"recent_activity"`
	StatusBreakdown  map[model.ActionStatus]model.StatusTotal `json:"status_breakdown"`
	GeneratedAt      time.Time                                `json:"generated_at"`
}

// Build loads stats for the trailing ActivityDays window and summarises them.
func Build(ctx context.Context, src StatsSource, now time.Time) (*Report, error) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := src.ImpactStats(ctx, day.AddDate(0, 0, -(ActivityDays-1)))
	if err != nil {
		return nil, eris.Wrap(err, "impact: load stats")
	}
	return FromStats(stats, now), nil
}

// FromStats derives the report totals from raw stats.
func FromStats(stats *model.ImpactStats, now time.Time) *Report {
	r := &Report{
		TotalRuns:       stats.TotalRuns,
		StatusBreakdown: map[model.ActionStatus]model.StatusTotal{},
		TopPlays:        []model.PlayImpact{},
		RecentActivity:  []model.DailyRuns{},
		GeneratedAt:     now.UTC(),
	}
	for status, t := range stats.ByStatus {
		r.StatusBreakdown[status] = t
		r.TotalActions += t.Count
		r.TotalImpactScore += t.Impact
	}
	r.TotalExecuted = stats.ByStatus[model.ActionStatusExecuted].Count
	r.TotalApproved = stats.ByStatus[model.ActionStatusApproved].Count + r.TotalExecuted
	r.EstimatedValue = r.TotalImpactScore * ValuePerImpactPoint

	plays := append([]model.PlayImpact(nil), stats.TopPlays...)
	sort.SliceStable(plays, func(i, j int) bool { return plays[i].TotalImpact > plays[j].TotalImpact })
	if len(plays) > TopPlayCount {
		plays = plays[:TopPlayCount]
	}
	r.TopPlays = append(r.TopPlays, plays...)

	// Newest day first.
	for i := len(stats.RecentActivity) - 1; i >= 0; i-- {
		r.RecentActivity = append(r.RecentActivity, stats.RecentActivity[i])
	}
	return r
}

// ApprovalRate is approved actions as a percentage of all actions.
func (r *Report) ApprovalRate() float64 {
	if r.TotalActions == 0 {
		return 0
	}
	return float64(r.TotalApproved) / float64(r.TotalActions) * 100
}

// ExecutionRate is executed actions as a percentage of approved ones.
func (r *Report) ExecutionRate() float64 {
	if r.TotalApproved == 0 {
		return 0
	}
	return float64(r.TotalExecuted) / float64(r.TotalApproved) * 100
}

// Statuses returns the breakdown keys in report order.
func (r *Report) Statuses() []model.ActionStatus {
	var out []model.ActionStatus
	seen := map[model.ActionStatus]bool{}
	for _, s := range statusOrder {
		if _, ok := r.StatusBreakdown[s]; ok {
			out = append(out, s)
			seen[s] = true
		}
	}
	var rest []model.ActionStatus
	for s := range r.StatusBreakdown {
		if !seen[s] {
			rest = append(rest, s)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

// FormatUSD renders v as whole dollars with thousands separators.
func FormatUSD(v float64) string {
	return printer.Sprintf("$%.0f", v)
}

// WriteCSV writes the sectioned CSV export.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	rows := [][]string{
		{ReportTitle},
		{"Generated: " + r.GeneratedAt.Format(time.RFC3339)},
		{},
		{"Summary Metrics"},
		{"Metric", "Value"},
		{"Total Runs", strconv.Itoa(r.TotalRuns)},
		{"Total Actions Generated", strconv.Itoa(r.TotalActions)},
		{"Total Actions Approved", strconv.Itoa(r.TotalApproved)},
		{"Total Actions Executed", strconv.Itoa(r.TotalExecuted)},
		{"Total Impact Score", fixed2(r.TotalImpactScore)},
		{"Estimated Value (USD)", FormatUSD(r.EstimatedValue)},
		{},
		{"Top Plays by Impact"},
		{"Play", "Action Count", "Total Impact"},
	}
	for _, p := range r.TopPlays {
		rows = append(rows, []string{p.Play, strconv.Itoa(p.ActionCount), fixed2(p.TotalImpact)})
	}
	rows = append(rows, []string{}, []string{"Status Breakdown"}, []string{"Status", "Count", "Impact Score"})
	for _, s := range r.Statuses() {
		t := r.StatusBreakdown[s]
		rows = append(rows, []string{string(s), strconv.Itoa(t.Count), fixed2(t.Impact)})
	}
	rows = append(rows, []string{}, []string{"Recent Activity (Last 7 Days)"}, []string{"Date", "Runs"})
	for _, d := range r.RecentActivity {
		rows = append(rows, []string{d.Date, strconv.Itoa(d.Runs)})
	}

	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "impact: write csv")
	}
	return nil
}

func fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
