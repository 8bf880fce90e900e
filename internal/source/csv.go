package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/model"
)

// CSVSource reads a comma-separated file with a header row.
type CSVSource struct {
	Path string
}

func (s CSVSource) Name() string { return "csv:" + s.Path }

func (s CSVSource) Load(ctx context.Context) (model.Table, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return model.Table{}, eris.Wrapf(err, "source: open %s", s.Path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(ctx, f)
}

// ReadCSV parses CSV text from r into a table.
func ReadCSV(ctx context.Context, r io.Reader) (model.Table, error) {
	header, rows, err := readCSVRows(ctx, r)
	if err != nil {
		return model.Table{}, err
	}
	if header == nil {
		return model.Table{}, nil
	}
	return FromRows(header, rows)
}

func readCSVRows(ctx context.Context, r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var header []string
	var rows [][]string
	for {
		if ctx.Err() != nil {
			return nil, nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return header, rows, nil
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "csv: read row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}
}
