package source

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSource_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	closeDate := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"opportunity_id", "owner", "amount", "close_date", "stage_age_days", "notes"}).
		AddRow("OPP-1", "Ann", 1500.5, closeDate, int32(31), "ignored").
		AddRow("OPP-2", nil, float64(0), nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sales"."opportunities" LIMIT $1`)).
		WithArgs(100).
		WillReturnRows(rows)

	src := PostgresSource{Pool: mock, Table: "sales.opportunities", Limit: 100}
	tbl, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, tbl.Records, 2)

	first := tbl.Records[0]
	assert.Equal(t, "OPP-1", first.OpportunityID)
	assert.Equal(t, "Ann", first.OwnerName())
	assert.Equal(t, 1500.5, first.Amount)
	require.NotNil(t, first.CloseDate)
	assert.Equal(t, "2025-02-01", first.CloseDate.String())
	require.NotNil(t, first.StageAgeDays)
	assert.Equal(t, 31, *first.StageAgeDays)

	assert.Nil(t, tbl.Records[1].Owner)
	assert.Nil(t, tbl.Records[1].CloseDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_NoLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "opportunities"`)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("A"))

	tbl, err := PostgresSource{Pool: mock, Table: "opportunities"}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, tbl.Records, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))

	_, err = PostgresSource{Pool: mock, Table: "missing"}.Load(context.Background())
	assert.ErrorContains(t, err, "relation does not exist")
}

func TestPostgresSource_NoPool(t *testing.T) {
	_, err := PostgresSource{Table: "x"}.Load(context.Background())
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "abc", formatValue("abc"))
	assert.Equal(t, "2.5", formatValue(2.5))
	assert.Equal(t, "7", formatValue(int64(7)))
	assert.Equal(t, "2025-03-01", formatValue(time.Date(2025, time.March, 1, 15, 0, 0, 0, time.UTC)))
}
