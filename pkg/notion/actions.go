package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Action board property names. The database must define them with these
// types: Name (title), Action ID (rich text), Type (select), Priority
// (select), Impact (number), Run ID (rich text), Reasoning (rich text).
const (
	PropName      = "Name"
	PropActionID  = "Action ID"
	PropType      = "Type"
	PropPriority  = "Priority"
	PropImpact    = "Impact"
	PropRunID     = "Run ID"
	PropReasoning = "Reasoning"
)

// ActionPage is one recommended action rendered as a board card.
type ActionPage struct {
	ActionID  string
	RunID     string
	Title     string
	Type      string
	Priority  string
	Impact    float64
	Reasoning string
}

// FindActionPage returns the id of the page carrying actionID, or "" when
// the board has none.
func FindActionPage(ctx context.Context, c Client, dbID, actionID string) (string, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropActionID,
			RichText: &notionapi.TextFilterCondition{Equals: actionID},
		},
		PageSize: 1,
	}
	resp, err := c.QueryDatabase(ctx, dbID, filter)
	if err != nil {
		return "", eris.Wrap(err, "notion: find action page")
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// CreateActionPage adds a card for p to the board and returns the page id.
func CreateActionPage(ctx context.Context, c Client, dbID string, p ActionPage) (string, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: actionProperties(p),
	}
	page, err := c.CreatePage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "notion: create action page")
	}
	return string(page.ID), nil
}

func actionProperties(p ActionPage) notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(p.Title),
		},
		PropActionID: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(p.ActionID),
		},
		PropImpact: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: p.Impact,
		},
	}
	if p.Type != "" {
		props[PropType] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: p.Type},
		}
	}
	if p.Priority != "" {
		props[PropPriority] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: p.Priority},
		}
	}
	if p.RunID != "" {
		props[PropRunID] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(p.RunID),
		}
	}
	if p.Reasoning != "" {
		props[PropReasoning] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(truncate(p.Reasoning, 2000)),
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

// truncate keeps s within Notion's rich text content limit.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
