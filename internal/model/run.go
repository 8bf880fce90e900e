package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the current state of a play run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run represents a single persisted execution of a play.
type Run struct {
	ID        string          `json:"id"`
	Play      string          `json:"play"`
	Status    RunStatus       `json:"status"`
	Params    map[string]any  `json:"params,omitempty"`
	Analysis  json.RawMessage `json:"analysis,omitempty"`
	Actions   []Action        `json:"actions,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Approval records a human sign-off on a set of actions from one run.
type Approval struct {
	ID        string    `json:"approval_id"`
	RunID     string    `json:"run_id"`
	Approver  string    `json:"approver"`
	Notes     string    `json:"notes,omitempty"`
	ActionIDs []string  `json:"action_ids"`
	CreatedAt time.Time `json:"timestamp"`
}

// ExecutionKind tags an execution outcome as a dry-run preview or a real call.
type ExecutionKind string

const (
	ExecutionPreview  ExecutionKind = "preview"
	ExecutionExecuted ExecutionKind = "executed"
)

// ExecutionStatus is the result of routing one action.
type ExecutionStatus string

const (
	ExecutionStatusPreview ExecutionStatus = "preview"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusIgnored ExecutionStatus = "ignored"
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// Execution is the outcome of executing one approved action.
type Execution struct {
	ID         string          `json:"id,omitempty"`
	ActionID   string          `json:"action_id"`
	ApprovalID string          `json:"approval_id,omitempty"`
	ActionType ActionType      `json:"action_type"`
	Kind       ExecutionKind   `json:"kind"`
	Status     ExecutionStatus `json:"status"`
	Target     string          `json:"target,omitempty"`
	ExternalID string          `json:"external_id,omitempty"`
	Details    map[string]any  `json:"details,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorClass string          `json:"error_class,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// ActionStatusAfter maps an execution outcome to the action's new status.
// Previews and skips leave the action approved.
func ActionStatusAfter(e Execution) ActionStatus {
	switch e.Status {
	case ExecutionStatusSuccess:
		return ActionStatusExecuted
	case ExecutionStatusFailed:
		return ActionStatusFailed
	case ExecutionStatusIgnored:
		return ActionStatusIgnored
	default:
		return ActionStatusApproved
	}
}

// StatusTotal is the count and summed impact of actions in one status.
type StatusTotal struct {
	Count  int     `json:"count"`
	Impact float64 `json:"impact"`
}

// PlayImpact is the action count and summed impact for one play.
type PlayImpact struct {
	Play        string  `json:"play"`
	ActionCount int     `json:"action_count"`
	TotalImpact float64 `json:"total_impact"`
}

// DailyRuns is the number of runs started on one day.
type DailyRuns struct {
	Date string `json:"date"`
	Runs int    `json:"runs"`
}

// ImpactStats are the raw aggregates the store computes for impact reporting.
type ImpactStats struct {
	TotalRuns      int                          `json:"total_runs"`
	ByStatus       map[ActionStatus]StatusTotal `json:"by_status"`
	TopPlays       []PlayImpact                 `json:"top_plays"`
	RecentActivity []DailyRuns                  `json:"recent_activity"`
}
