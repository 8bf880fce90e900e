package model

import "sort"

// ActionType identifies how an action is routed on execution.
type ActionType string

const (
	ActionSalesforceTask     ActionType = "salesforce_task"
	ActionSlackMessage       ActionType = "slack_message"
	ActionBudgetReallocation ActionType = "budget_reallocation"
	ActionTargetedOutreach   ActionType = "targeted_outreach"
	ActionProcessImprovement ActionType = "process_improvement"
	ActionSalesEnablement    ActionType = "sales_enablement"
)

// Priority ranks how urgently an action should be handled.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ActionStatus tracks an action through approval and execution.
type ActionStatus string

const (
	ActionStatusProposed ActionStatus = "proposed"
	ActionStatusApproved ActionStatus = "approved"
	ActionStatusExecuted ActionStatus = "executed"
	ActionStatusFailed   ActionStatus = "failed"
	ActionStatusIgnored  ActionStatus = "ignored"
)

// Action is one recommended follow-up. ID, RunID and Status are assigned
// when the action is persisted; a freshly synthesized action has none.
type Action struct {
	ID          string         `json:"id,omitempty"`
	RunID       string         `json:"run_id,omitempty"`
	Type        ActionType     `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    Priority       `json:"priority"`
	ImpactScore float64        `json:"impact_score"`
	Reasoning   string         `json:"reasoning"`
	Metadata    map[string]any `json:"metadata"`
	Status      ActionStatus   `json:"status,omitempty"`
}

// MetaString returns metadata[key] as a string, or "" if absent or not a string.
func (a Action) MetaString(key string) string {
	if a.Metadata == nil {
		return ""
	}
	s, _ := a.Metadata[key].(string)
	return s
}

// SortByImpact orders actions by impact score, highest first. Equal scores
// keep their relative order.
func SortByImpact(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].ImpactScore > actions[j].ImpactScore
	})
}
