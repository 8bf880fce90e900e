package source

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/analytics-studio/internal/model"
)

// XLSXSource reads the first (or the named) worksheet of a workbook. The
// first row is the header.
type XLSXSource struct {
	Path  string
	Sheet string
}

func (s XLSXSource) Name() string { return "xlsx:" + s.Path }

func (s XLSXSource) Load(ctx context.Context) (model.Table, error) {
	f, err := xlsx.OpenFile(s.Path)
	if err != nil {
		return model.Table{}, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, s.Sheet)
	if err != nil {
		return model.Table{}, err
	}

	var header []string
	var rows [][]string
	for _, row := range sheet.Rows {
		if ctx.Err() != nil {
			return model.Table{}, eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		cells := rowToStrings(row, f.Date1904)
		if header == nil {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil {
		return model.Table{}, nil
	}
	return FromRows(header, rows)
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

// rowToStrings renders date cells as YYYY-MM-DD so they parse like CSV dates.
func rowToStrings(row *xlsx.Row, date1904 bool) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell.IsTime() {
			if t, err := cell.GetTime(date1904); err == nil {
				cells[j] = t.Format(model.DateLayout)
				continue
			}
		}
		cells[j] = cell.String()
	}
	return cells
}
