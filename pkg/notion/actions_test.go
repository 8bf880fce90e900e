package notion

import (
	"context"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFindActionPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "board", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == PropActionID && pf.RichText != nil && pf.RichText.Equals == "act-1"
	})).Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-9"}}}, nil).Once()

	mc.On("QueryDatabase", ctx, "board", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()

	id, err := FindActionPage(ctx, mc, "board", "act-1")
	require.NoError(t, err)
	assert.Equal(t, "page-9", id)

	id, err = FindActionPage(ctx, mc, "board", "act-2")
	require.NoError(t, err)
	assert.Empty(t, id)
	mc.AssertExpectations(t)
}

func TestFindActionPage_Error(t *testing.T) {
	mc := new(MockClient)
	mc.On("QueryDatabase", mock.Anything, "board", mock.Anything).Return(nil, assert.AnError)

	_, err := FindActionPage(context.Background(), mc, "board", "act-1")
	assert.ErrorContains(t, err, "notion: find action page")
}

func TestCreateActionPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var captured *notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*notionapi.PageCreateRequest) }).
		Return(&notionapi.Page{ID: "new-page"}, nil).Once()

	id, err := CreateActionPage(ctx, mc, "board", ActionPage{
		ActionID:  "act-1",
		RunID:     "run-1",
		Title:     "Launch SMB Outreach Campaign",
		Type:      "targeted_outreach",
		Priority:  "high",
		Impact:    142,
		Reasoning: strings.Repeat("x", 2500),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-page", id)

	require.NotNil(t, captured)
	assert.Equal(t, notionapi.DatabaseID("board"), captured.Parent.DatabaseID)
	title := captured.Properties[PropName].(notionapi.TitleProperty)
	assert.Equal(t, "Launch SMB Outreach Campaign", title.Title[0].Text.Content)
	assert.Equal(t, 142.0, captured.Properties[PropImpact].(notionapi.NumberProperty).Number)
	assert.Equal(t, "high", captured.Properties[PropPriority].(notionapi.SelectProperty).Select.Name)
	reasoning := captured.Properties[PropReasoning].(notionapi.RichTextProperty)
	assert.Len(t, reasoning.RichText[0].Text.Content, 2000)
}

func TestCreateActionPage_OmitsEmptyOptional(t *testing.T) {
	props := actionProperties(ActionPage{ActionID: "a", Title: "t"})
	assert.Contains(t, props, PropName)
	assert.Contains(t, props, PropActionID)
	assert.NotContains(t, props, PropType)
	assert.NotContains(t, props, PropRunID)
	assert.NotContains(t, props, PropReasoning)
}

func TestCreateActionPage_Error(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreatePage", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	_, err := CreateActionPage(context.Background(), mc, "board", ActionPage{ActionID: "a"})
	assert.ErrorContains(t, err, "notion: create action page")
}
