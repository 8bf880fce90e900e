// Package scheduler runs plays on cron schedules inside the API server.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/play"
	"github.com/sells-group/analytics-studio/internal/studio"
)

// Runner runs and persists one play. *studio.Service satisfies it.
type Runner interface {
	RunPlay(ctx context.Context, id string, params play.Params) (*studio.RunOutcome, error)
}

// Scheduler owns the cron loop.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	ctx    context.Context
}

// New creates a Scheduler whose jobs run with ctx. Cron expressions take a
// leading seconds field.
func New(ctx context.Context, runner Runner) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		runner: runner,
		ctx:    ctx,
	}
}

// Register adds one job per entry. Unknown plays are rejected up front.
func (s *Scheduler) Register(entries []config.ScheduleEntry, known func(id string) bool) error {
	for _, e := range entries {
		if known != nil && !known(e.Play) {
			return eris.Errorf("scheduler: unknown play %q", e.Play)
		}
		entry := e
		if _, err := s.cron.AddFunc(entry.Cron, func() { s.runEntry(entry) }); err != nil {
			return eris.Wrapf(err, "scheduler: register %s (%s)", entry.Play, entry.Cron)
		}
		zap.L().Info("scheduler: registered", zap.String("play", entry.Play), zap.String("cron", entry.Cron))
	}
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

// Start starts the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	zap.L().Info("scheduler: started", zap.Int("jobs", s.Len()))
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("scheduler: stopped")
}

func (s *Scheduler) runEntry(e config.ScheduleEntry) {
	params := play.Params{}
	for k, v := range e.Params {
		params[k] = v
	}
	out, err := s.runner.RunPlay(s.ctx, e.Play, params)
	if err != nil {
		zap.L().Error("scheduler: run failed", zap.String("play", e.Play), zap.Error(err))
		return
	}
	zap.L().Info("scheduler: run complete",
		zap.String("play", e.Play),
		zap.String("run_id", out.RunID),
		zap.Int("actions", len(out.Actions)),
	)
}
