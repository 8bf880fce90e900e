// Package executor routes approved actions to the systems that carry them
// out: Salesforce tasks, Slack messages and the Notion action board. In stub
// mode nothing is sent and every action yields a preview.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/resilience"
	"github.com/sells-group/analytics-studio/pkg/notion"
	"github.com/sells-group/analytics-studio/pkg/salesforce"
	"github.com/sells-group/analytics-studio/pkg/slack"
)

// Mode selects whether actions are previewed or sent.
type Mode string

const (
	ModeStub Mode = "stub"
	ModeLive Mode = "live"
)

// Service names used for circuit breakers and execution targets.
const (
	ServiceSalesforce = "salesforce"
	ServiceSlack      = "slack"
	ServiceNotion     = "notion"
)

// DefaultConcurrency bounds parallel executions when none is configured.
const DefaultConcurrency = 4

// Executor executes approved actions. Clients left nil make their action
// types resolve to skipped in live mode.
type Executor struct {
	mode           Mode
	salesforce     salesforce.Client
	slack          slack.Client
	notion         notion.Client
	notionDB       string
	defaultChannel string
	concurrency    int
	breakers       *resilience.ServiceBreakers
	retry          resilience.RetryConfig
	now            func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithSalesforce enables Salesforce task creation.
func WithSalesforce(c salesforce.Client) Option {
	return func(e *Executor) { e.salesforce = c }
}

// WithSlack enables Slack notifications. defaultChannel is used when an
// action names none.
func WithSlack(c slack.Client, defaultChannel string) Option {
	return func(e *Executor) {
		e.slack = c
		e.defaultChannel = defaultChannel
	}
}

// WithNotion enables the Notion action board.
func WithNotion(c notion.Client, databaseID string) Option {
	return func(e *Executor) {
		e.notion = c
		e.notionDB = databaseID
	}
}

// WithConcurrency bounds how many actions run at once.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithResilience sets the retry policy and per-service breakers.
func WithResilience(retry resilience.RetryConfig, breakers *resilience.ServiceBreakers) Option {
	return func(e *Executor) {
		e.retry = retry
		e.breakers = breakers
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an Executor in the given mode.
func New(mode Mode, opts ...Option) (*Executor, error) {
	if mode != ModeStub && mode != ModeLive {
		return nil, eris.Errorf("executor: unknown mode %q", mode)
	}
	e := &Executor{
		mode:        mode,
		concurrency: DefaultConcurrency,
		breakers:    resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:       resilience.DefaultRetryConfig(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Mode returns the executor's mode.
func (e *Executor) Mode() Mode { return e.mode }

// Execute runs every action and returns one outcome per action, in input
// order. Individual failures are recorded on their outcome; Execute itself
// only fails when ctx is cancelled.
func (e *Executor) Execute(ctx context.Context, approvalID string, actions []model.Action) ([]model.Execution, error) {
	out := make([]model.Execution, len(actions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, a := range actions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "executor: cancelled")
			}
			ex := e.executeOne(gctx, a)
			ex.ApprovalID = approvalID
			out[i] = ex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts := map[model.ExecutionStatus]int{}
	for _, ex := range out {
		counts[ex.Status]++
	}
	zap.L().Info("executor: batch complete",
		zap.String("mode", string(e.mode)),
		zap.String("approval_id", approvalID),
		zap.Int("actions", len(actions)),
		zap.Int("success", counts[model.ExecutionStatusSuccess]),
		zap.Int("failed", counts[model.ExecutionStatusFailed]),
		zap.Int("skipped", counts[model.ExecutionStatusSkipped]),
		zap.Int("preview", counts[model.ExecutionStatusPreview]),
	)
	return out, nil
}

func (e *Executor) executeOne(ctx context.Context, a model.Action) model.Execution {
	ex := model.Execution{
		ID:         uuid.NewString(),
		ActionID:   a.ID,
		ActionType: a.Type,
		Kind:       model.ExecutionExecuted,
		ExecutedAt: e.now().UTC(),
	}

	r, routed := e.route(a)
	if !routed {
		ex.Status = model.ExecutionStatusIgnored
		ex.Details = map[string]any{"note": fmt.Sprintf("Action type '%s' has no executor.", a.Type)}
		return ex
	}
	ex.Target = r.service

	if e.mode == ModeStub {
		ex.Kind = model.ExecutionPreview
		ex.Status = model.ExecutionStatusPreview
		ex.Details = r.preview
		return ex
	}
	if !r.ready {
		ex.Status = model.ExecutionStatusSkipped
		ex.Details = map[string]any{"note": r.service + " is not configured; action not sent"}
		return ex
	}

	res, err := resilience.Guard(ctx, e.breakers.Get(r.service), e.retryFor(r.service), r.send)
	if err != nil {
		ex.Status = model.ExecutionStatusFailed
		ex.Error = err.Error()
		ex.ErrorClass = resilience.ClassifyError(err)
		zap.L().Warn("executor: action failed",
			zap.String("action_id", a.ID),
			zap.String("service", r.service),
			zap.String("class", ex.ErrorClass),
			zap.Error(err),
		)
		return ex
	}
	ex.Status = model.ExecutionStatusSuccess
	if res.duplicate {
		ex.Status = model.ExecutionStatusSkipped
	}
	ex.ExternalID = res.externalID
	ex.Details = res.details
	return ex
}

func (e *Executor) retryFor(service string) resilience.RetryConfig {
	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger(service, "execute")
	return cfg
}
