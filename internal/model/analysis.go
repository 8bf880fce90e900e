package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// NoDataNarrative is the narrative for an empty input table.
const NoDataNarrative = "No data available."

// RankedEntry is one key/value pair of a Ranked list.
type RankedEntry[V int | float64] struct {
	Key   string
	Value V
}

// Ranked is an ordered mapping. It marshals to a JSON object whose keys
// appear in rank order.
type Ranked[V int | float64] []RankedEntry[V]

// Keys returns the keys in rank order.
func (r Ranked[V]) Keys() []string {
	keys := make([]string, len(r))
	for i, e := range r {
		keys[i] = e.Key
	}
	return keys
}

func (r Ranked[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Ranked[V]) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "model: decode ranked")
	}
	if tok == nil {
		*r = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return eris.New("model: ranked must be a JSON object")
	}
	out := Ranked[V]{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "model: decode ranked key")
		}
		key, _ := kt.(string)
		var v V
		if err := dec.Decode(&v); err != nil {
			return eris.Wrapf(err, "model: decode ranked value %s", key)
		}
		out = append(out, RankedEntry[V]{Key: key, Value: v})
	}
	*r = out
	return nil
}

// Drivers summarizes where the pipeline is slowing down. A field is nil when
// the columns it depends on were not provided.
type Drivers struct {
	SlowestStages     *Ranked[float64] `json:"slowest_stages,omitempty"`
	TopHighRiskOwners *Ranked[int]     `json:"top_high_risk_owners,omitempty"`
}

// Metrics are the aggregate figures over the high-risk subset.
type Metrics struct {
	NumStalledOpportunities  int     `json:"num_stalled_opportunities"`
	ValueAtRisk              float64 `json:"value_at_risk"`
	AvgDaysStalled           float64 `json:"avg_days_stalled"`
	ExpectedRevenueRecovered float64 `json:"expected_revenue_recovered"`
}

// VisualContext points at the dashboard view that accompanies an analysis.
type VisualContext struct {
	ViewName string `json:"view_name"`
	Workbook string `json:"workbook"`
	URL      string `json:"url"`
	Note     string `json:"note"`
}

// AnalysisResult is the output contract of the risk pipeline.
type AnalysisResult struct {
	AtRiskDeals       []AtRiskDeal   `json:"at_risk_deals"`
	StageDistribution map[string]int `json:"stage_distribution"`
	DriversOfSlowdown *Drivers       `json:"drivers_of_slowdown,omitempty"`
	Narrative         string         `json:"narrative"`
	Metrics           *Metrics       `json:"metrics,omitempty"`
	VisualContext     *VisualContext `json:"visual_context,omitempty"`
}

// EmptyAnalysis is the result for a table with no records.
func EmptyAnalysis() *AnalysisResult {
	return &AnalysisResult{
		AtRiskDeals:       []AtRiskDeal{},
		StageDistribution: map[string]int{},
		Narrative:         NoDataNarrative,
	}
}

// PlayResult is what a play run hands back to its caller. Analysis holds an
// *AnalysisResult for the risk plays and a *forecast.Forecast for revenue
// forecasting.
type PlayResult struct {
	Play     string   `json:"play"`
	Analysis any      `json:"analysis"`
	Actions  []Action `json:"actions"`
}
