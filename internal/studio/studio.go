// Package studio ties plays, persistence, approval and execution together.
// The HTTP API, the scheduler and the CLI all go through a Service.
package studio

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/events"
	"github.com/sells-group/analytics-studio/internal/executor"
	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/play"
	"github.com/sells-group/analytics-studio/internal/store"
)

// DefaultApprover is recorded when no approver is known.
const DefaultApprover = "demo-user"

// Executor runs approved actions. *executor.Executor satisfies it.
type Executor interface {
	Mode() executor.Mode
	Execute(ctx context.Context, approvalID string, actions []model.Action) ([]model.Execution, error)
}

// Service runs plays and carries their actions through approval.
type Service struct {
	registry *play.Registry
	store    store.Store
	executor Executor
	events   events.Publisher
	now      func() time.Time
}

// New creates a Service. exec and pub may be nil.
func New(registry *play.Registry, st store.Store, exec Executor, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{registry: registry, store: st, executor: exec, events: pub, now: time.Now}
}

// Registry returns the play registry.
func (s *Service) Registry() *play.Registry { return s.registry }

// Store returns the backing store.
func (s *Service) Store() store.Store { return s.store }

// RunOutcome is one persisted play run.
type RunOutcome struct {
	RunID    string         `json:"run_id"`
	Play     string         `json:"play"`
	Analysis any            `json:"analysis"`
	Actions  []model.Action `json:"actions"`
}

// RunPlay runs the play id with params and persists the run. An unknown id
// returns *play.UnknownPlayError before anything is stored.
func (s *Service) RunPlay(ctx context.Context, id string, params play.Params) (*RunOutcome, error) {
	p, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}

	run, err := s.store.CreateRun(ctx, id, persistableParams(params))
	if err != nil {
		return nil, eris.Wrap(err, "studio: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("play", id))

	result, err := p.Run(ctx, params)
	if err != nil {
		if ferr := s.store.FailRun(ctx, run.ID, err); ferr != nil {
			log.Error("studio: mark run failed", zap.Error(ferr))
		}
		return nil, eris.Wrapf(err, "studio: run play %s", id)
	}

	saved, err := s.store.CompleteRun(ctx, run.ID, result.Analysis, result.Actions)
	if err != nil {
		if ferr := s.store.FailRun(ctx, run.ID, err); ferr != nil {
			log.Error("studio: mark run failed", zap.Error(ferr))
		}
		return nil, eris.Wrap(err, "studio: save run")
	}
	events.Emit(ctx, s.events, events.NewRunCompleted(run.ID, id, saved, s.now()))
	log.Info("studio: run saved", zap.Int("actions", len(saved)))

	return &RunOutcome{RunID: run.ID, Play: id, Analysis: result.Analysis, Actions: saved}, nil
}

// ApproveRequest is a sign-off on some or all actions of one run.
type ApproveRequest struct {
	RunID     string   `json:"run_id"`
	ActionIDs []string `json:"action_ids,omitempty"`
	Approver  string   `json:"approver,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	Execute   bool     `json:"execute,omitempty"`
}

// ApproveOutcome reports an approval and, when requested, its executions.
type ApproveOutcome struct {
	ApprovalID    string            `json:"approval_id"`
	ApprovedCount int               `json:"approved_count"`
	Message       string            `json:"message"`
	Executions    []model.Execution `json:"executions,omitempty"`
}

// Approve records an approval and optionally executes it right away.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) (*ApproveOutcome, error) {
	if req.RunID == "" {
		return nil, eris.Wrap(store.ErrInvalidApproval, "run_id is required")
	}
	approver := req.Approver
	if approver == "" {
		approver = DefaultApprover
	}

	ap, err := s.store.CreateApproval(ctx, req.RunID, approver, req.Notes, req.ActionIDs)
	if err != nil {
		return nil, err
	}
	out := &ApproveOutcome{
		ApprovalID:    ap.ID,
		ApprovedCount: len(ap.ActionIDs),
		Message:       approvalMessage(len(ap.ActionIDs)),
	}
	if !req.Execute {
		return out, nil
	}

	execs, err := s.ExecuteApproval(ctx, ap.ID)
	if err != nil {
		return nil, err
	}
	out.Executions = execs
	return out, nil
}

// ExecuteApproval sends the approval's actions through the executor and
// records each outcome. Actions already executed are not sent again; they
// come back as skipped and their status is left alone.
func (s *Service) ExecuteApproval(ctx context.Context, approvalID string) ([]model.Execution, error) {
	if s.executor == nil {
		return nil, eris.New("studio: no executor configured")
	}
	ap, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	found, err := s.store.ListActions(ctx, store.ActionFilter{IDs: ap.ActionIDs})
	if err != nil {
		return nil, eris.Wrap(err, "studio: load approved actions")
	}
	byID := make(map[string]model.Action, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	actions := make([]model.Action, 0, len(ap.ActionIDs))
	var done []model.Execution
	for _, id := range ap.ActionIDs {
		a, ok := byID[id]
		switch {
		case !ok:
		case a.Status == model.ActionStatusExecuted:
			done = append(done, s.alreadyExecuted(ap.ID, a))
		default:
			actions = append(actions, a)
		}
	}
	if len(done) > 0 {
		zap.L().Info("studio: skipping executed actions",
			zap.String("approval_id", ap.ID), zap.Int("count", len(done)))
	}

	var execs []model.Execution
	if len(actions) > 0 {
		execs, err = s.executor.Execute(ctx, ap.ID, actions)
		if err != nil {
			return nil, eris.Wrap(err, "studio: execute approval")
		}
	}

	evts := make([]events.Event, 0, len(execs))
	for i := range execs {
		if err := s.store.RecordExecution(ctx, execs[i]); err != nil {
			return nil, eris.Wrapf(err, "studio: record execution for action %s", execs[i].ActionID)
		}
		evts = append(evts, events.NewActionExecuted(execs[i]))
	}
	events.Emit(ctx, s.events, evts...)
	return append(execs, done...), nil
}

func (s *Service) alreadyExecuted(approvalID string, a model.Action) model.Execution {
	kind := model.ExecutionExecuted
	if s.executor.Mode() == executor.ModeStub {
		kind = model.ExecutionPreview
	}
	return model.Execution{
		ActionID:   a.ID,
		ApprovalID: approvalID,
		ActionType: a.Type,
		Kind:       kind,
		Status:     model.ExecutionStatusSkipped,
		Details:    map[string]any{"note": "action already executed"},
		ExecutedAt: s.now().UTC(),
	}
}

func approvalMessage(n int) string {
	if n == 1 {
		return "Approved 1 action."
	}
	return "Approved " + strconv.Itoa(n) + " actions."
}

// persistableParams drops the inline data table so it is not stored with
// every run.
func persistableParams(p play.Params) map[string]any {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		if k == play.DataParam {
			continue
		}
		out[k] = v
	}
	return out
}
