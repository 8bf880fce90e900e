package source

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-studio/internal/model"
)

func TestFromRows_MapsHeadersAndSkipsInvalid(t *testing.T) {
	tbl, err := CSVSource{Path: "testdata/opportunities.csv"}.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, tbl.Columns.Has(model.ColOpportunityID))
	assert.True(t, tbl.Columns.Has(model.ColStageAge))
	assert.False(t, tbl.Columns.Has(model.ColRegion))
	assert.False(t, tbl.Columns.Has(model.ColProbability))

	require.Len(t, tbl.Records, 3)
	assert.Equal(t, []string{"OPP-1", "OPP-2", "OPP-4"}, []string{
		tbl.Records[0].OpportunityID, tbl.Records[1].OpportunityID, tbl.Records[2].OpportunityID,
	})

	first := tbl.Records[0]
	assert.Equal(t, "Ann", first.OwnerName())
	assert.Equal(t, 100000.0, first.Amount)
	require.NotNil(t, first.CloseDate)
	assert.Equal(t, "2025-01-10", first.CloseDate.String())
	require.NotNil(t, first.StageAgeDays)
	assert.Equal(t, 35, *first.StageAgeDays)

	second := tbl.Records[1]
	assert.Nil(t, second.Owner)
	assert.Nil(t, second.CloseDate)
	assert.Nil(t, second.LastTouchDate)

	fourth := tbl.Records[2]
	assert.Equal(t, 0.0, fourth.Amount)
	require.NotNil(t, fourth.CloseDate)
	assert.Equal(t, "2025-01-20", fourth.CloseDate.String())
	assert.Nil(t, fourth.LastTouchDate)
	require.NotNil(t, fourth.StageAgeDays)
	assert.Equal(t, 13, *fourth.StageAgeDays)
}

func TestFromRows_GeneratesIDsWithoutIDColumn(t *testing.T) {
	tbl, err := FromRows([]string{"stage", "amount"}, [][]string{
		{"Proposal", "10"},
		{"Negotiation", "20"},
	})
	require.NoError(t, err)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, "row-1", tbl.Records[0].OpportunityID)
	assert.Equal(t, "row-2", tbl.Records[1].OpportunityID)
	assert.False(t, tbl.Columns.Has(model.ColOpportunityID))
}

func TestFromRows_NoRecognisedColumns(t *testing.T) {
	_, err := FromRows([]string{"foo", "bar"}, [][]string{{"1", "2"}})
	assert.Error(t, err)
}

func TestFromRows_ByteOrderMarkAndDuplicates(t *testing.T) {
	tbl, err := FromRows([]string{"\ufeffopportunity_id", "amount", "amount"}, [][]string{
		{"OPP-1", "10", "99"},
	})
	require.NoError(t, err)
	require.Len(t, tbl.Records, 1)
	assert.Equal(t, "OPP-1", tbl.Records[0].OpportunityID)
	assert.Equal(t, 10.0, tbl.Records[0].Amount)
}

func TestFromRows_ProbabilityPercent(t *testing.T) {
	tbl, err := FromRows([]string{"id", "probability"}, [][]string{{"A", "40%"}})
	require.NoError(t, err)
	require.NotNil(t, tbl.Records[0].Probability)
	assert.Equal(t, 40.0, *tbl.Records[0].Probability)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1250", 1250, true},
		{"$1,250.50", 1250.5, true},
		{" 7 ", 7, true},
		{"", 0, false},
		{"NaN", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCSV_Empty(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("id\nA\n"))
	assert.Error(t, err)
}

func TestCSVSource_MissingFile(t *testing.T) {
	_, err := CSVSource{Path: "testdata/missing.csv"}.Load(context.Background())
	assert.Error(t, err)
}
