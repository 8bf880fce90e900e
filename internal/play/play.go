package play

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/source"
)

// Play is one runnable analysis.
type Play interface {
	Spec() PlaySpec
	Run(ctx context.Context, params Params) (*model.PlayResult, error)
}

// DataParam carries inline records that replace the configured source.
const DataParam = "data"

// Params are the caller-supplied inputs of one run. Values arrive as JSON
// numbers from the API and as strings from the CLI.
type Params map[string]any

// ParseParams reads "key=value" pairs as given on the command line.
func ParseParams(pairs []string) (Params, error) {
	p := Params{}
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, eris.Errorf("play: invalid param %q, want key=value", kv)
		}
		p[k] = strings.TrimSpace(v)
	}
	return p, nil
}

// Float returns the numeric value of key, or nil when absent or not a number.
func (p Params) Float(key string) *float64 {
	var f float64
	switch v := p[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

// Int returns the integer value of key, or def when absent or not a number.
func (p Params) Int(key string, def int) int {
	f := p.Float(key)
	if f == nil {
		return def
	}
	return int(*f)
}

// inlineTable builds a table from a "data" param holding a list of records,
// the shape an API caller posts. ok is false when no data was passed.
func (p Params) inlineTable() (model.Table, bool, error) {
	raw, present := p[DataParam]
	if !present {
		return model.Table{}, false, nil
	}
	items, isList := raw.([]any)
	if !isList {
		return model.Table{}, true, eris.New("play: data must be a list of records")
	}
	recs := make([]map[string]any, 0, len(items))
	for i, it := range items {
		m, isMap := it.(map[string]any)
		if !isMap {
			return model.Table{}, true, eris.Errorf("play: data[%d] is not an object", i)
		}
		recs = append(recs, m)
	}
	t, err := source.FromRecords(recs)
	return t, true, err
}

// sourceFor returns the inline data source when params carry records, and
// fallback otherwise.
func sourceFor(params Params, fallback source.Source) (source.Source, error) {
	t, ok, err := params.inlineTable()
	if err != nil {
		return nil, err
	}
	if ok {
		return source.Static{Table: t}, nil
	}
	return fallback, nil
}

// UnknownPlayError is returned when a play id is not registered.
type UnknownPlayError struct {
	ID    string
	Known []string
}

func (e *UnknownPlayError) Error() string {
	quoted := make([]string, len(e.Known))
	for i, k := range e.Known {
		quoted[i] = fmt.Sprintf("'%s'", k)
	}
	return fmt.Sprintf("Unknown play '%s'. Try one of: [%s]", e.ID, strings.Join(quoted, ", "))
}
