package studio

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-studio/internal/events"
	"github.com/sells-group/analytics-studio/internal/executor"
	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/play"
	"github.com/sells-group/analytics-studio/internal/store"
)

type fakePlay struct {
	id  string
	err error
}

func (f fakePlay) Spec() play.PlaySpec { return play.PlaySpec{ID: f.id, Label: f.id} }

func (f fakePlay) Run(_ context.Context, params play.Params) (*model.PlayResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.PlayResult{
		Play:     f.id,
		Analysis: map[string]any{"narrative": "two deals", "params": len(params)},
		Actions: []model.Action{
			{Type: model.ActionSalesforceTask, Title: "Unblock Opportunity OPP-1", Priority: model.PriorityHigh, ImpactScore: 95,
				Metadata: map[string]any{"opportunity_id": "OPP-1"}},
			{Type: model.ActionSlackMessage, Title: "Alert", Priority: model.PriorityMedium, ImpactScore: 9.5,
				Metadata: map[string]any{"channel": "sales-alerts", "text": "heads up"}},
		},
	}, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, evts ...events.Event) error {
	r.events = append(r.events, evts...)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	reg := play.NewRegistry()
	require.NoError(t, reg.Register(fakePlay{id: "pipeline"}))
	require.NoError(t, reg.Register(fakePlay{id: "broken", err: errors.New("source unavailable")}))

	ex, err := executor.New(executor.ModeStub)
	require.NoError(t, err)
	pub := &recordingPublisher{}
	return New(reg, st, ex, pub), pub
}

func TestRunPlay_Persists(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	out, err := svc.RunPlay(ctx, "pipeline", play.Params{"limit": 5.0, play.DataParam: []any{}})
	require.NoError(t, err)
	require.Len(t, out.Actions, 2)
	assert.NotEmpty(t, out.Actions[0].ID)
	assert.Equal(t, model.ActionStatusProposed, out.Actions[0].Status)

	run, err := svc.Store().GetRun(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, map[string]any{"limit": 5.0}, run.Params)
	assert.Len(t, run.Actions, 2)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeRunCompleted, pub.events[0].Type)
	assert.InDelta(t, 104.5, pub.events[0].Data.(events.RunCompleted).TotalImpact, 0.001)
}

func TestRunPlay_Unknown(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RunPlay(context.Background(), "nope", nil)
	var unknown *play.UnknownPlayError
	require.ErrorAs(t, err, &unknown)

	runs, err := svc.Store().ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunPlay_FailureRecorded(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.RunPlay(ctx, "broken", nil)
	require.Error(t, err)

	runs, err := svc.Store().ListRuns(ctx, store.RunFilter{Play: "broken"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "source unavailable", runs[0].Error)
	assert.Empty(t, pub.events)
}

func TestApprove_AndExecute(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()
	out, err := svc.RunPlay(ctx, "pipeline", nil)
	require.NoError(t, err)

	res, err := svc.Approve(ctx, ApproveRequest{RunID: out.RunID, Execute: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ApprovedCount)
	assert.Equal(t, "Approved 2 actions.", res.Message)
	require.Len(t, res.Executions, 2)
	assert.Equal(t, out.Actions[0].ID, res.Executions[0].ActionID)
	assert.Equal(t, model.ExecutionStatusPreview, res.Executions[0].Status)

	ap, err := svc.Store().GetApproval(ctx, res.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, DefaultApprover, ap.Approver)

	// Previews leave actions approved.
	acts, err := svc.Store().ListActions(ctx, store.ActionFilter{RunID: out.RunID})
	require.NoError(t, err)
	for _, a := range acts {
		assert.Equal(t, model.ActionStatusApproved, a.Status)
	}

	execs, err := svc.Store().ListExecutions(ctx, store.ExecutionFilter{ApprovalID: res.ApprovalID})
	require.NoError(t, err)
	assert.Len(t, execs, 2)

	// run.completed plus one action.executed per action.
	assert.Len(t, pub.events, 3)
}

func TestApprove_Subset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	out, err := svc.RunPlay(ctx, "pipeline", nil)
	require.NoError(t, err)

	res, err := svc.Approve(ctx, ApproveRequest{RunID: out.RunID, ActionIDs: []string{out.Actions[1].ID}, Approver: "ana"})
	require.NoError(t, err)
	assert.Equal(t, "Approved 1 action.", res.Message)
	assert.Empty(t, res.Executions)

	execs, err := svc.ExecuteApproval(ctx, res.ApprovalID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.ActionSlackMessage, execs[0].ActionType)
}

func TestApprove_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Approve(ctx, ApproveRequest{})
	assert.True(t, errors.Is(err, store.ErrInvalidApproval))

	_, err = svc.Approve(ctx, ApproveRequest{RunID: "missing"})
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = svc.ExecuteApproval(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestExecuteApproval_NoExecutor(t *testing.T) {
	svc, _ := newTestService(t)
	svc.executor = nil
	_, err := svc.ExecuteApproval(context.Background(), "x")
	assert.Error(t, err)
}

// countingExecutor succeeds every action and counts sends per action id.
type countingExecutor struct {
	sends map[string]int
}

func (c *countingExecutor) Mode() executor.Mode { return executor.ModeLive }

func (c *countingExecutor) Execute(_ context.Context, approvalID string, actions []model.Action) ([]model.Execution, error) {
	out := make([]model.Execution, len(actions))
	for i, a := range actions {
		c.sends[a.ID]++
		out[i] = model.Execution{
			ActionID: a.ID, ApprovalID: approvalID, ActionType: a.Type,
			Kind: model.ExecutionExecuted, Status: model.ExecutionStatusSuccess, ExternalID: "ext-" + a.ID,
		}
	}
	return out, nil
}

func TestExecuteApproval_SendsEachActionOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ex := &countingExecutor{sends: map[string]int{}}
	svc.executor = ex
	ctx := context.Background()

	out, err := svc.RunPlay(ctx, "pipeline", nil)
	require.NoError(t, err)
	res, err := svc.Approve(ctx, ApproveRequest{RunID: out.RunID, Execute: true})
	require.NoError(t, err)
	require.Len(t, res.Executions, 2)

	again, err := svc.ExecuteApproval(ctx, res.ApprovalID)
	require.NoError(t, err)
	require.Len(t, again, 2)
	for _, e := range again {
		assert.Equal(t, model.ExecutionStatusSkipped, e.Status)
		assert.Equal(t, "action already executed", e.Details["note"])
	}

	_, err = svc.Approve(ctx, ApproveRequest{RunID: out.RunID, ActionIDs: []string{out.Actions[0].ID}, Execute: true})
	assert.True(t, errors.Is(err, store.ErrInvalidApproval))

	assert.Equal(t, map[string]int{out.Actions[0].ID: 1, out.Actions[1].ID: 1}, ex.sends)

	acts, err := svc.Store().ListActions(ctx, store.ActionFilter{RunID: out.RunID})
	require.NoError(t, err)
	for _, a := range acts {
		assert.Equal(t, model.ActionStatusExecuted, a.Status)
	}
	execs, err := svc.Store().ListExecutions(ctx, store.ExecutionFilter{ApprovalID: res.ApprovalID})
	require.NoError(t, err)
	assert.Len(t, execs, 2)
}

// saveFailingStore fails CompleteRun and delegates everything else.
type saveFailingStore struct {
	store.Store
}

func (saveFailingStore) CompleteRun(context.Context, string, any, []model.Action) ([]model.Action, error) {
	return nil, errors.New("disk full")
}

func TestRunPlay_SaveFailureMarksRunFailed(t *testing.T) {
	svc, pub := newTestService(t)
	backing := svc.store
	svc.store = saveFailingStore{Store: backing}
	ctx := context.Background()

	_, err := svc.RunPlay(ctx, "pipeline", nil)
	require.ErrorContains(t, err, "disk full")

	runs, err := backing.ListRuns(ctx, store.RunFilter{Play: "pipeline"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "disk full", runs[0].Error)
	assert.Empty(t, pub.events)
}
