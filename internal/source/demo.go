package source

import (
	"bytes"
	"context"
	_ "embed"
	"time"

	"github.com/sells-group/analytics-studio/internal/model"
)

//go:embed demo_opportunities.csv
var demoCSV []byte

// demoAnchor is the "today" the demo dataset was written against.
var demoAnchor = model.NewDate(2025, time.January, 15)

// Demo serves the built-in sample pipeline. Dates are shifted so the data
// keeps the same shape relative to the evaluation date.
type Demo struct {
	Now func() time.Time
}

func (Demo) Name() string { return "demo" }

func (d Demo) Load(ctx context.Context) (model.Table, error) {
	t, err := ReadCSV(ctx, bytes.NewReader(demoCSV))
	if err != nil {
		return model.Table{}, err
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	shift := model.DateOf(now()).DaysSince(demoAnchor)
	for i := range t.Records {
		r := &t.Records[i]
		r.CloseDate = shiftDate(r.CloseDate, shift)
		r.LastTouchDate = shiftDate(r.LastTouchDate, shift)
		r.CreatedDate = shiftDate(r.CreatedDate, shift)
	}
	return t, nil
}

func shiftDate(d *model.Date, days int) *model.Date {
	if d == nil {
		return nil
	}
	s := d.AddDays(days)
	return &s
}
