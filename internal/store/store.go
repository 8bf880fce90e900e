// Package store persists play runs, their actions, approvals and execution
// outcomes. SQLite is the default local driver; Postgres backs shared
// deployments.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/db"
	"github.com/sells-group/analytics-studio/internal/model"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrNotFound        = eris.New("store: not found")
	ErrInvalidApproval = eris.New("store: invalid approval")
)

// Default list sizes when a filter gives no limit.
const (
	DefaultApprovalLimit = 50
	defaultListLimit     = 100
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Play   string          `json:"play,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// ActionFilter specifies criteria for listing actions.
type ActionFilter struct {
	RunID  string             `json:"run_id,omitempty"`
	IDs    []string           `json:"ids,omitempty"`
	Status model.ActionStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	ApprovalID string `json:"approval_id,omitempty"`
	ActionID   string `json:"action_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for play runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, play string, params map[string]any) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, analysis any, actions []model.Action) ([]model.Action, error)
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Actions
	ListActions(ctx context.Context, filter ActionFilter) ([]model.Action, error)

	// Approvals. An empty actionIDs approves every proposed action of the run.
	CreateApproval(ctx context.Context, runID, approver, notes string, actionIDs []string) (*model.Approval, error)
	GetApproval(ctx context.Context, approvalID string) (*model.Approval, error)
	ListApprovals(ctx context.Context, limit int) ([]model.Approval, error)

	// Executions
	RecordExecution(ctx context.Context, ex model.Execution) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.Execution, error)

	// Reporting
	ImpactStats(ctx context.Context, since time.Time) (*model.ImpactStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver. The caller owns Close.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "studio.db"
		}
		return NewSQLite(path)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver requires store.database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// approvalError wraps ErrInvalidApproval with a specific reason.
func approvalError(format string, args ...any) error {
	return eris.Wrapf(ErrInvalidApproval, format, args...)
}

// dedupe drops repeated ids, keeping first occurrence order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// dailyRuns buckets run start times into one entry per day, oldest first,
// from since's day through now's day inclusive.
func dailyRuns(starts []time.Time, since, now time.Time) []model.DailyRuns {
	counts := map[string]int{}
	for _, t := range starts {
		counts[t.UTC().Format(time.DateOnly)]++
	}
	var out []model.DailyRuns
	since = since.UTC()
	day := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)
	end := now.UTC().Format(time.DateOnly)
	for {
		key := day.Format(time.DateOnly)
		out = append(out, model.DailyRuns{Date: key, Runs: counts[key]})
		if key >= end {
			break
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}
