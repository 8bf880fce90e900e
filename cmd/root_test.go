package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-studio/internal/impact"
	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/play"
	"github.com/sells-group/analytics-studio/internal/studio"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"plays", "run", "runs", "approve", "approvals", "execute", "executions", "impact", "views", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "studio", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"param", "all", "json"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s", name)
	}
	assert.Equal(t, "p", runCmd.Flags().Lookup("param").Shorthand)
}

func TestRunCommand_Args(t *testing.T) {
	runAll = false
	assert.Error(t, runCmd.Args(runCmd, nil))
	assert.NoError(t, runCmd.Args(runCmd, []string{"pipeline"}))

	runAll = true
	defer func() { runAll = false }()
	assert.NoError(t, runCmd.Args(runCmd, nil))
	assert.Error(t, runCmd.Args(runCmd, []string{"pipeline"}))
}

func TestApproveCommand_Flags(t *testing.T) {
	flag := approveCmd.Flags().Lookup("approver")
	require.NotNil(t, flag)
	assert.Equal(t, studio.DefaultApprover, flag.DefValue)
	assert.NotNil(t, approveCmd.Flags().Lookup("execute"))
	assert.NotNil(t, approveCmd.Flags().Lookup("action"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestNarrativeOf(t *testing.T) {
	assert.Equal(t, "Two deals at risk.", narrativeOf(map[string]any{"narrative": "Two deals at risk."}))
	assert.Equal(t, "stored", narrativeOf(json.RawMessage(`{"narrative":"stored","x":1}`)))
	assert.Empty(t, narrativeOf(nil))
	assert.Empty(t, narrativeOf([]int{1, 2}))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdefgh", shortID("abcdefgh-1234"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestFormatActions(t *testing.T) {
	var buf bytes.Buffer
	formatActions(&buf, []model.Action{{
		ID: "0123456789", Type: model.ActionSalesforceTask, Priority: model.PriorityHigh,
		ImpactScore: 95, Status: model.ActionStatusProposed, Title: "Unblock Opportunity OPP-1",
	}})
	out := buf.String()
	assert.Contains(t, out, "PRIORITY")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "95.0")
	assert.Contains(t, out, "Unblock Opportunity OPP-1")
}

func TestFormatPlays(t *testing.T) {
	var buf bytes.Buffer
	formatPlays(&buf, []play.PlaySpec{{ID: "churn", Label: "Churn Risk", Tags: []string{"cs", "retention"}}})
	assert.Contains(t, buf.String(), "churn")
	assert.Contains(t, buf.String(), "cs,retention")
}

func TestPrintRunOutcome_NoActions(t *testing.T) {
	var buf bytes.Buffer
	printRunOutcome(&buf, &studio.RunOutcome{RunID: "r1", Play: "spend", Analysis: map[string]any{"narrative": "All clear."}})
	assert.Contains(t, buf.String(), "Run r1 (spend)")
	assert.Contains(t, buf.String(), "All clear.")
	assert.Contains(t, buf.String(), "No actions proposed.")
}

func TestPrintImpact(t *testing.T) {
	var buf bytes.Buffer
	printImpact(&buf, &impact.Report{
		TotalRuns:      2,
		TotalActions:   4,
		TotalApproved:  2,
		EstimatedValue: 1500,
		TopPlays:       []model.PlayImpact{{Play: "pipeline", ActionCount: 3, TotalImpact: 120}},
		RecentActivity: []model.DailyRuns{{Date: "2025-01-15", Runs: 2}},
	})
	out := buf.String()
	assert.Contains(t, out, impact.ReportTitle)
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "$1,500")
	assert.Contains(t, out, "1. pipeline")
	assert.Contains(t, out, "2025-01-15  2")
}

func TestComputeRunStats(t *testing.T) {
	base := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{Play: "pipeline", Status: model.RunStatusComplete, CreatedAt: base, UpdatedAt: base.Add(2 * time.Second)},
		{Play: "pipeline", Status: model.RunStatusComplete, CreatedAt: base, UpdatedAt: base.Add(4 * time.Second)},
		{Play: "churn", Status: model.RunStatusFailed, CreatedAt: base, UpdatedAt: base},
		{Play: "spend", Status: model.RunStatusComplete, CreatedAt: base.Add(-48 * time.Hour), UpdatedAt: base},
	}

	s := computeRunStats(runs, base.Add(-time.Hour))
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 3.0, s.AvgDurSecs, 0.001)
	assert.Equal(t, map[string]int{"pipeline": 2, "churn": 1}, s.ByPlay)

	all := computeRunStats(runs, time.Time{})
	assert.Equal(t, 4, all.Total)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.Contains(t, buf.String(), "Total runs:    3")
	assert.Contains(t, buf.String(), "churn")
}
