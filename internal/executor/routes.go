package executor

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/resilience"
	"github.com/sells-group/analytics-studio/pkg/notion"
	"github.com/sells-group/analytics-studio/pkg/salesforce"
	"github.com/sells-group/analytics-studio/pkg/slack"
)

const (
	defaultSubject  = "Studio Follow-up"
	fallbackChannel = "#general"
)

type sendResult struct {
	externalID string
	details    map[string]any
	// duplicate is set when the destination already held this action.
	duplicate bool
}

// route is the resolved destination of one action.
type route struct {
	service string
	ready   bool
	preview map[string]any
	send    func(ctx context.Context) (sendResult, error)
}

// boardTypes are the planning actions that land on the Notion board.
var boardTypes = map[model.ActionType]bool{
	model.ActionBudgetReallocation: true,
	model.ActionTargetedOutreach:   true,
	model.ActionProcessImprovement: true,
	model.ActionSalesEnablement:    true,
}

func (e *Executor) route(a model.Action) (route, bool) {
	switch {
	case a.Type == model.ActionSalesforceTask:
		return e.salesforceRoute(a), true
	case a.Type == model.ActionSlackMessage:
		return e.slackRoute(a), true
	case boardTypes[a.Type]:
		return e.notionRoute(a), true
	default:
		return route{}, false
	}
}

func (e *Executor) salesforceRoute(a model.Action) route {
	task := TaskFor(a)
	return route{
		service: ServiceSalesforce,
		ready:   e.salesforce != nil,
		preview: map[string]any{
			"object":        "Task",
			"subject":       task.Subject,
			"description":   task.Description,
			"activity_date": task.ActivityDate,
			"priority":      task.Priority,
			"what_id":       task.WhatID,
		},
		send: func(ctx context.Context) (sendResult, error) {
			id, err := salesforce.CreateTask(ctx, e.salesforce, task)
			if err != nil {
				return sendResult{}, err
			}
			return sendResult{externalID: id, details: map[string]any{"task_id": id}}, nil
		},
	}
}

// TaskFor maps an action to the Salesforce Task it creates. WhatId is only
// set when the opportunity id is a real Salesforce record id.
func TaskFor(a model.Action) salesforce.Task {
	subject := a.MetaString("subject")
	if subject == "" {
		subject = a.Title
	}
	if subject == "" {
		subject = defaultSubject
	}
	desc := a.Description
	if a.Reasoning != "" {
		desc += "\n\nWhy: " + a.Reasoning
	}
	priority := "Normal"
	if a.Priority == model.PriorityHigh {
		priority = "High"
	}
	t := salesforce.Task{
		Subject:      subject,
		Description:  desc,
		ActivityDate: a.MetaString("due_date"),
		Priority:     priority,
	}
	if id := a.MetaString("opportunity_id"); salesforce.IsRecordID(id) {
		t.WhatID = id
	}
	return t
}

func (e *Executor) slackRoute(a model.Action) route {
	channel := a.MetaString("channel")
	if channel == "" {
		channel = e.defaultChannel
	}
	if channel == "" {
		channel = fallbackChannel
	}
	channel = slack.NormalizeChannel(channel)
	text := a.MetaString("text")
	if text == "" {
		text = a.Description
	}
	return route{
		service: ServiceSlack,
		ready:   e.slack != nil,
		preview: map[string]any{"channel": channel, "text": text},
		send: func(ctx context.Context) (sendResult, error) {
			resp, err := e.slack.PostMessage(ctx, channel, text)
			if err != nil {
				return sendResult{}, classifySlack(err)
			}
			return sendResult{
				externalID: resp.TS,
				details:    map[string]any{"channel": resp.Channel, "ts": resp.TS},
			}, nil
		},
	}
}

// classifySlack marks retryable Slack failures as transient.
func classifySlack(err error) error {
	if code := slack.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}

func classifyNotion(err error) error {
	if code := notion.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}

func (e *Executor) notionRoute(a model.Action) route {
	page := notion.ActionPage{
		ActionID:  a.ID,
		RunID:     a.RunID,
		Title:     a.Title,
		Type:      string(a.Type),
		Priority:  string(a.Priority),
		Impact:    a.ImpactScore,
		Reasoning: a.Reasoning,
	}
	return route{
		service: ServiceNotion,
		ready:   e.notion != nil && e.notionDB != "",
		preview: map[string]any{
			"database_id": e.notionDB,
			"title":       page.Title,
			"type":        page.Type,
			"priority":    page.Priority,
			"impact":      page.Impact,
		},
		send: func(ctx context.Context) (sendResult, error) {
			if page.ActionID == "" {
				return sendResult{}, eris.New("executor: notion board needs a persisted action id")
			}
			existing, err := notion.FindActionPage(ctx, e.notion, e.notionDB, page.ActionID)
			if err != nil {
				return sendResult{}, classifyNotion(err)
			}
			if existing != "" {
				return sendResult{
					externalID: existing,
					details:    map[string]any{"page_id": existing, "note": fmt.Sprintf("page already exists for action %s", page.ActionID)},
					duplicate:  true,
				}, nil
			}
			id, err := notion.CreateActionPage(ctx, e.notion, e.notionDB, page)
			if err != nil {
				return sendResult{}, classifyNotion(err)
			}
			return sendResult{externalID: id, details: map[string]any{"page_id": id}}, nil
		},
	}
}
