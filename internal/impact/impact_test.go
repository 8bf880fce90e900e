package impact

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-studio/internal/model"
)

var now = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func sampleStats() *model.ImpactStats {
	return &model.ImpactStats{
		TotalRuns: 15,
		ByStatus: map[model.ActionStatus]model.StatusTotal{
			model.ActionStatusProposed: {Count: 14, Impact: 1000},
			model.ActionStatusApproved: {Count: 6, Impact: 800},
			model.ActionStatusExecuted: {Count: 22, Impact: 1450},
		},
		TopPlays: []model.PlayImpact{
			{Play: "churn", ActionCount: 8, TotalImpact: 450},
			{Play: "pipeline", ActionCount: 18, TotalImpact: 1500},
			{Play: "spend", ActionCount: 4, TotalImpact: 100},
			{Play: "revenue", ActionCount: 12, TotalImpact: 1200},
		},
		RecentActivity: []model.DailyRuns{
			{Date: "2025-01-14", Runs: 5},
			{Date: "2025-01-15", Runs: 3},
		},
	}
}

type fakeStats struct {
	since time.Time
	err   error
}

func (f *fakeStats) ImpactStats(_ context.Context, since time.Time) (*model.ImpactStats, error) {
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	return sampleStats(), nil
}

func TestFromStats_Totals(t *testing.T) {
	r := FromStats(sampleStats(), now)

	assert.Equal(t, 15, r.TotalRuns)
	assert.Equal(t, 42, r.TotalActions)
	assert.Equal(t, 28, r.TotalApproved)
	assert.Equal(t, 22, r.TotalExecuted)
	assert.InDelta(t, 3250.0, r.TotalImpactScore, 0.001)
	assert.InDelta(t, 3250000.0, r.EstimatedValue, 0.001)
	assert.Equal(t, now, r.GeneratedAt)

	require.Len(t, r.TopPlays, 3)
	assert.Equal(t, "pipeline", r.TopPlays[0].Play)
	assert.Equal(t, "revenue", r.TopPlays[1].Play)
	assert.Equal(t, "churn", r.TopPlays[2].Play)

	assert.Equal(t, "2025-01-15", r.RecentActivity[0].Date)
	assert.LessOrEqual(t, r.TotalExecuted, r.TotalApproved)
	assert.LessOrEqual(t, r.TotalApproved, r.TotalActions)
}

func TestRates(t *testing.T) {
	r := FromStats(sampleStats(), now)
	assert.InDelta(t, 66.67, r.ApprovalRate(), 0.01)
	assert.InDelta(t, 78.57, r.ExecutionRate(), 0.01)

	empty := FromStats(&model.ImpactStats{}, now)
	assert.Zero(t, empty.ApprovalRate())
	assert.Zero(t, empty.ExecutionRate())
	assert.NotNil(t, empty.TopPlays)
	assert.NotNil(t, empty.RecentActivity)
}

func TestBuild_Window(t *testing.T) {
	src := &fakeStats{}
	r, err := Build(context.Background(), src, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC), src.since)
	assert.Equal(t, 15, r.TotalRuns)

	_, err = Build(context.Background(), &fakeStats{err: errors.New("db down")}, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "impact: load stats")
}

func TestStatuses_Order(t *testing.T) {
	r := FromStats(&model.ImpactStats{ByStatus: map[model.ActionStatus]model.StatusTotal{
		"zeta":                     {Count: 1},
		model.ActionStatusFailed:   {Count: 1},
		model.ActionStatusProposed: {Count: 1},
		"alpha":                    {Count: 1},
	}}, now)
	assert.Equal(t, []model.ActionStatus{model.ActionStatusProposed, model.ActionStatusFailed, "alpha", "zeta"}, r.Statuses())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FromStats(sampleStats(), now).WriteCSV(&buf))
	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	assert.Equal(t, ReportTitle, lines[0])
	assert.Equal(t, "Generated: 2025-01-15T10:30:00Z", lines[1])
	assert.Equal(t, "", lines[2])
	assert.Equal(t, "Summary Metrics", lines[3])
	assert.Contains(t, out, "Total Runs,15\n")
	assert.Contains(t, out, "Total Impact Score,3250.00\n")
	assert.Contains(t, out, "Estimated Value (USD),\"$3,250,000\"\n")
	assert.Contains(t, out, "Play,Action Count,Total Impact\npipeline,18,1500.00\nrevenue,12,1200.00\nchurn,8,450.00\n")
	assert.Contains(t, out, "Status,Count,Impact Score\nproposed,14,1000.00\napproved,6,800.00\nexecuted,22,1450.00\n")
	assert.Contains(t, out, "Recent Activity (Last 7 Days)\nDate,Runs\n2025-01-15,3\n2025-01-14,5")
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0", FormatUSD(0))
	assert.Equal(t, "$999", FormatUSD(999))
	assert.Equal(t, "$1,234,568", FormatUSD(1234567.8))
}
