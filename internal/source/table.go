package source

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/model"
)

// FromRows builds a table from a header row and data rows. Headers are
// matched with model.ColumnByName; unknown headers are ignored. Blank or
// unparsable cells become nil (or zero for amount). Rows with a blank id or a
// negative amount are skipped. When the source has no id column, ids are
// generated as row-N.
func FromRows(header []string, rows [][]string) (model.Table, error) {
	idx := make([]model.Column, len(header))
	var cols model.ColumnSet
	for i, h := range header {
		c, ok := model.ColumnByName(strings.TrimPrefix(h, "\ufeff"))
		if !ok || cols.Has(c) {
			continue
		}
		idx[i] = c
		cols = cols.With(c)
	}
	if cols == 0 {
		return model.Table{}, eris.New("source: no recognised columns in header")
	}

	t := model.Table{Columns: cols, Records: make([]model.Opportunity, 0, len(rows))}
	skipped := 0
	for n, row := range rows {
		if blankRow(row) {
			continue
		}
		o, ok := parseRow(idx, row)
		if !ok {
			skipped++
			continue
		}
		if !cols.Has(model.ColOpportunityID) {
			o.OpportunityID = fmt.Sprintf("row-%d", n+1)
		}
		t.Records = append(t.Records, o)
	}
	if skipped > 0 {
		zap.L().Warn("source: skipped invalid rows", zap.Int("skipped", skipped))
	}
	return t, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRow(idx []model.Column, row []string) (model.Opportunity, bool) {
	var o model.Opportunity
	for i, c := range idx {
		if c == 0 || i >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[i])
		switch c {
		case model.ColOpportunityID:
			if v == "" {
				return o, false
			}
			o.OpportunityID = v
		case model.ColName:
			o.Name = v
		case model.ColOwner:
			if v != "" {
				o.Owner = &v
			}
		case model.ColRegion:
			o.Region = v
		case model.ColSegment:
			o.Segment = v
		case model.ColStage:
			o.Stage = v
		case model.ColAmount:
			if f, ok := parseNumber(v); ok {
				if f < 0 {
					return o, false
				}
				o.Amount = f
			}
		case model.ColCloseDate:
			o.CloseDate = parseDatePtr(v)
		case model.ColLastTouchDate:
			o.LastTouchDate = parseDatePtr(v)
		case model.ColCreatedDate:
			o.CreatedDate = parseDatePtr(v)
		case model.ColStageAge:
			if f, ok := parseNumber(v); ok && f >= 0 {
				days := int(math.Round(f))
				o.StageAgeDays = &days
			}
		case model.ColProbability:
			if f, ok := parseNumber(strings.TrimSuffix(v, "%")); ok {
				o.Probability = &f
			}
		}
	}
	return o, true
}

// parseNumber accepts plain and currency-formatted numbers ("$1,250.00").
func parseNumber(s string) (float64, bool) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseDatePtr(s string) *model.Date {
	d, ok := model.ParseDate(s)
	if !ok {
		return nil
	}
	return &d
}

// FromRecords builds a table from decoded JSON objects. The header is the
// sorted union of keys.
func FromRecords(recs []map[string]any) (model.Table, error) {
	if len(recs) == 0 {
		return model.Table{}, nil
	}
	seen := map[string]bool{}
	var header []string
	for _, r := range recs {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	rows := make([][]string, len(recs))
	for i, r := range recs {
		row := make([]string, len(header))
		for j, k := range header {
			row[j] = formatValue(r[k])
		}
		rows[i] = row
	}
	return FromRows(header, rows)
}
