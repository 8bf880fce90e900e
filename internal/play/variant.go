// Package play wires record sources, the risk scorer, the analysis and the
// action synthesizer into runnable plays, and keeps the registry of plays
// the CLI and API expose.
package play

import (
	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/model"
)

// Template placeholders understood by Variant text fields.
const (
	phID      = "{id}"
	phOwner   = "{owner}"
	phStage   = "{stage}"
	phAge     = "{age}"
	phAmount  = "{amount}"
	phScore   = "{score}"
	phHealth  = "{health}"
	phReasons = "{reasons}"
)

// Variant is everything that distinguishes one risk play from another. The
// scoring and analysis are shared; only wording, routing and the dashboard
// view change.
type Variant struct {
	Play string

	TaskType        model.ActionType
	TaskTitle       string
	TaskDescription string
	TaskSubject     string
	// DueOffsetDays is added to the evaluation date to set a task's due date.
	DueOffsetDays int
	// HighPriorityAbove is the risk score a task must exceed to be high priority.
	HighPriorityAbove float64
	DefaultOwner      string

	NotifyType        model.ActionType
	NotifyTitle       string
	NotifyDescription string
	AlertText         string
	Channel           string

	// Context is the line handed to the rationale decorator for each deal.
	Context string

	Visual model.VisualContext
}

const tableauSite = "https://10ax.online.tableau.com/#/site/agenticanalyticsstudio/views/"

// DefaultVisual is the dashboard attached to the pipeline play.
var DefaultVisual = model.VisualContext{
	ViewName: "Superstore Overview",
	Workbook: "Superstore",
	URL:      tableauSite + "Superstore/Overview",
	Note:     "Embedded Tableau context for this analysis",
}

// Pipeline flags stalled deals for the owning rep.
func Pipeline() Variant {
	return Variant{
		Play:              "pipeline",
		TaskType:          model.ActionSalesforceTask,
		TaskTitle:         "Unblock Opportunity {id}",
		TaskDescription:   "Follow up with {owner} for {id} (risk {score}). Risk factors: {reasons}",
		TaskSubject:       "Unstuck Deal: {id}",
		DueOffsetDays:     2,
		HighPriorityAbove: 70,
		DefaultOwner:      "the owner",
		NotifyType:        model.ActionSlackMessage,
		NotifyTitle:       "Risk Alert: {id}",
		NotifyDescription: "Alert sales-ops regarding high risk deal {id} ({score}% risk).",
		AlertText:         "⚠️ High risk deal {id} is stalled. Score: {score}%. Factors: {reasons}",
		Channel:           "sales-alerts",
		Context:           "Opportunity {id} in stage {stage} for {age} days, amount ${amount}, risk score {score}. Factors: {reasons}",
		Visual:            DefaultVisual,
	}
}

// Churn queues retention outreach for at-risk accounts.
func Churn() Variant {
	return Variant{
		Play:              "churn",
		TaskType:          model.ActionSalesforceTask,
		TaskTitle:         "Retention Call: {id}",
		TaskDescription:   "Schedule urgent retention review with {owner}. Health score: {health} (Risk: {score}%).",
		TaskSubject:       "Retention Risk Review: {id}",
		DueOffsetDays:     1,
		HighPriorityAbove: 70,
		DefaultOwner:      "account manager",
		NotifyType:        model.ActionSlackMessage,
		NotifyTitle:       "Churn Risk: {id}",
		NotifyDescription: "Notify CS team of potential churn risk for {id}.",
		AlertText:         "🚨 High Churn Risk detected for account {id}. Risk Score: {score}. Factors: {reasons}",
		Channel:           "customer-success",
		Context:           "Churn risk for account {id} in stage {stage} for {age} days, amount ${amount}, risk score {score}. Factors: {reasons}",
		Visual: model.VisualContext{
			ViewName: "Churn Rescue",
			Workbook: "Superstore",
			URL:      tableauSite + "Churn/Rescue",
			Note:     "Embedded Churn Rescue View",
		},
	}
}

// Spend routes unusual vendor spend to finance.
func Spend() Variant {
	return Variant{
		Play:              "spend",
		TaskType:          model.ActionSalesforceTask,
		TaskTitle:         "Review Vendor Contract: {id}",
		TaskDescription:   "Investigate spend variance for vendor {id}. Amount: ${amount}. Score: {score}.",
		TaskSubject:       "Vendor Spend Review: {id}",
		DueOffsetDays:     3,
		HighPriorityAbove: 80,
		DefaultOwner:      "finance manager",
		NotifyType:        model.ActionSlackMessage,
		NotifyTitle:       "Spend Alert: {id}",
		NotifyDescription: "Automated alert for unusual spend pattern on {id}.",
		AlertText:         "💸 Spend Anomaly detected for {id}. Amount: ${amount}. Variance Score: {score}. Please investigate.",
		Channel:           "finance-alerts",
		Context:           "Spend variance for vendor {id} in stage {stage} for {age} days, amount ${amount}, variance score {score}. Factors: {reasons}",
		Visual: model.VisualContext{
			ViewName: "Spend Anomaly",
			Workbook: "Superstore",
			URL:      tableauSite + "Spend/Anomaly",
			Note:     "Embedded Spend Anomaly View",
		},
	}
}

// WithOverride applies the non-zero fields of o to v.
func (v Variant) WithOverride(o config.PlayOverride) Variant {
	if o.DueOffsetDays > 0 {
		v.DueOffsetDays = o.DueOffsetDays
	}
	if o.Channel != "" {
		v.Channel = o.Channel
	}
	if o.ViewName != "" {
		v.Visual.ViewName = o.ViewName
	}
	if o.ViewURL != "" {
		v.Visual.URL = o.ViewURL
	}
	return v
}
