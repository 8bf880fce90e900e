package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/db"
	"github.com/sells-group/analytics-studio/internal/model"
)

// PostgresSource reads a table or view whose column names follow the
// opportunity column contract.
type PostgresSource struct {
	Pool  db.Pool
	Table string
	Limit int
}

func (s PostgresSource) Name() string { return "postgres:" + s.Table }

func (s PostgresSource) Load(ctx context.Context) (model.Table, error) {
	if s.Pool == nil {
		return model.Table{}, eris.New("source: postgres pool not configured")
	}
	query := "SELECT * FROM " + db.SanitizeTable(s.Table)
	var args []any
	if s.Limit > 0 {
		query += " LIMIT $1"
		args = append(args, s.Limit)
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return model.Table{}, eris.Wrapf(err, "source: query %s", s.Table)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}

	var data [][]string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return model.Table{}, eris.Wrapf(err, "source: scan %s", s.Table)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return model.Table{}, eris.Wrapf(err, "source: read %s", s.Table)
	}
	return FromRows(header, data)
}

// formatValue renders a driver value the way FromRows expects to read it.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(model.DateLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return strconv.FormatFloat(f.Float64, 'f', -1, 64)
	case pgtype.Date:
		if !x.Valid {
			return ""
		}
		return x.Time.Format(model.DateLayout)
	default:
		return fmt.Sprint(x)
	}
}
