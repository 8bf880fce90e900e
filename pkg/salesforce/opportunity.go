package salesforce

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// OpportunityOwner is the User relationship on an Opportunity.
type OpportunityOwner struct {
	Name string `json:"Name" salesforce:"Name"`
}

// Opportunity represents a Salesforce Opportunity record.
type Opportunity struct {
	ID                  string            `json:"Id" salesforce:"Id"`
	Name                string            `json:"Name" salesforce:"Name"`
	StageName           string            `json:"StageName" salesforce:"StageName"`
	Amount              float64           `json:"Amount" salesforce:"Amount"`
	Probability         float64           `json:"Probability" salesforce:"Probability"`
	CloseDate           string            `json:"CloseDate" salesforce:"CloseDate"`
	CreatedDate         string            `json:"CreatedDate" salesforce:"CreatedDate"`
	LastActivityDate    string            `json:"LastActivityDate" salesforce:"LastActivityDate"`
	LastStageChangeDate string            `json:"LastStageChangeDate" salesforce:"LastStageChangeDate"`
	Type                string            `json:"Type" salesforce:"Type"`
	Owner               *OpportunityOwner `json:"Owner" salesforce:"Owner"`
}

// OwnerName returns the owner's display name or "".
func (o Opportunity) OwnerName() string {
	if o.Owner == nil {
		return ""
	}
	return o.Owner.Name
}

// opportunityFields are always selected. LastStageChangeDate is optional
// because older orgs and API versions do not expose it.
var opportunityFields = []string{
	"Id", "Name", "StageName", "Amount", "Probability", "CloseDate",
	"CreatedDate", "LastActivityDate", "Type", "Owner.Name",
}

// OpportunityQuery builds the SOQL used to load open and recently closed
// opportunities.
func OpportunityQuery(withStageChange bool, limit int) string {
	fields := append([]string{}, opportunityFields...)
	if withStageChange {
		fields = append(fields, "LastStageChangeDate")
	}
	soql := fmt.Sprintf("SELECT %s FROM Opportunity ORDER BY CloseDate ASC", strings.Join(fields, ", "))
	if limit > 0 {
		soql += fmt.Sprintf(" LIMIT %d", limit)
	}
	return soql
}

// ListOpportunities loads up to limit opportunities. The boolean result
// reports whether stage change dates were available.
func ListOpportunities(ctx context.Context, c Client, limit int) ([]Opportunity, bool, error) {
	desc, err := c.DescribeSObject(ctx, "Opportunity")
	if err != nil {
		return nil, false, eris.Wrap(err, "sf: list opportunities")
	}
	withStage := desc.HasField("LastStageChangeDate")

	var opps []Opportunity
	if err := c.Query(ctx, OpportunityQuery(withStage, limit), &opps); err != nil {
		return nil, false, eris.Wrap(err, "sf: list opportunities")
	}
	return opps, withStage, nil
}

// Task is the subset of Task fields the studio writes.
type Task struct {
	Subject      string
	Description  string
	ActivityDate string
	Priority     string
	Status       string
	WhatID       string
}

// recordID matches 15 or 18 character Salesforce ids.
var recordID = regexp.MustCompile(`^[a-zA-Z0-9]{15}([a-zA-Z0-9]{3})?$`)

// IsRecordID reports whether s looks like a Salesforce record id.
func IsRecordID(s string) bool {
	return recordID.MatchString(s)
}

// CreateTask inserts a Task and returns its id.
func CreateTask(ctx context.Context, c Client, t Task) (string, error) {
	status := t.Status
	if status == "" {
		status = "Not Started"
	}
	fields := map[string]any{
		"Subject": t.Subject,
		"Status":  status,
	}
	if t.Description != "" {
		fields["Description"] = t.Description
	}
	if t.ActivityDate != "" {
		fields["ActivityDate"] = t.ActivityDate
	}
	if t.Priority != "" {
		fields["Priority"] = t.Priority
	}
	if t.WhatID != "" {
		fields["WhatId"] = t.WhatID
	}
	id, err := c.InsertOne(ctx, "Task", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create task")
	}
	return id, nil
}
