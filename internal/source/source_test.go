package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/model"
)

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Load(context.Context) (model.Table, error) {
	return model.Table{}, errors.New("boom")
}

func TestLoadOrEmpty(t *testing.T) {
	ctx := context.Background()

	tbl := LoadOrEmpty(ctx, failingSource{})
	assert.True(t, tbl.Empty())

	assert.True(t, LoadOrEmpty(ctx, nil).Empty())

	static := Static{Table: model.Table{
		Columns: model.AllColumns,
		Records: []model.Opportunity{{OpportunityID: "A"}},
	}}
	got := LoadOrEmpty(ctx, static)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "A", got.Records[0].OpportunityID)
}

func TestDemo_ShiftsDatesToNow(t *testing.T) {
	now := time.Date(2025, time.January, 25, 9, 0, 0, 0, time.UTC)
	tbl, err := Demo{Now: func() time.Time { return now }}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, tbl.Records, 24)
	assert.Equal(t, model.AllColumns, tbl.Columns)

	first := tbl.Records[0]
	assert.Equal(t, "OPP-1001", first.OpportunityID)
	// 10 days after the dataset anchor.
	assert.Equal(t, "2025-01-18", first.CloseDate.String())
	assert.Equal(t, "2024-12-20", first.LastTouchDate.String())
	assert.Equal(t, "2024-09-12", first.CreatedDate.String())
	assert.Equal(t, 52, *first.StageAgeDays)
}

func TestDemo_BlankTouchDateStaysNil(t *testing.T) {
	tbl, err := Demo{}.Load(context.Background())
	require.NoError(t, err)
	for _, r := range tbl.Records {
		if r.OpportunityID == "OPP-1011" {
			assert.Nil(t, r.LastTouchDate)
			return
		}
	}
	t.Fatal("OPP-1011 not found")
}

func TestNew_Kinds(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		kind string
		want any
	}{
		{"", Demo{}},
		{"demo", Demo{}},
		{"csv", CSVSource{Path: "x.csv"}},
		{"xlsx", XLSXSource{Path: "x.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := &config.Config{Source: config.SourceConfig{Kind: tt.kind, Path: "x.csv"}}
			src, closeFn, err := New(ctx, cfg, nil)
			require.NoError(t, err)
			require.NotNil(t, closeFn)
			closeFn()
			assert.IsType(t, tt.want, src)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	_, _, err := New(ctx, &config.Config{Source: config.SourceConfig{Kind: "salesforce"}}, nil)
	assert.ErrorContains(t, err, "salesforce credentials")

	_, _, err = New(ctx, &config.Config{Source: config.SourceConfig{Kind: "mongo"}}, nil)
	assert.ErrorContains(t, err, "unknown kind")

	_, _, err = New(ctx, &config.Config{Source: config.SourceConfig{Kind: "postgres", DatabaseURL: "not a url"}}, nil)
	assert.Error(t, err)
}
