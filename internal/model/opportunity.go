package model

import "strings"

// Column identifies one field of the opportunity column contract.
type Column uint16

const (
	ColOpportunityID Column = 1 << iota
	ColName
	ColOwner
	ColRegion
	ColSegment
	ColStage
	ColAmount
	ColCloseDate
	ColLastTouchDate
	ColStageAge
	ColProbability
	ColCreatedDate
)

// columnNames maps accepted header spellings to columns.
var columnNames = map[string]Column{
	"opportunity_id":   ColOpportunityID,
	"id":               ColOpportunityID,
	"opportunity_name": ColName,
	"name":             ColName,
	"owner":            ColOwner,
	"region":           ColRegion,
	"segment":          ColSegment,
	"stage":            ColStage,
	"amount":           ColAmount,
	"close_date":       ColCloseDate,
	"last_touch_date":  ColLastTouchDate,
	"stage_age":        ColStageAge,
	"stage_age_days":   ColStageAge,
	"probability":      ColProbability,
	"created_date":     ColCreatedDate,
}

// ColumnByName resolves a source header to a column. Matching ignores case,
// surrounding whitespace, and treats spaces and dashes as underscores.
func ColumnByName(name string) (Column, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	c, ok := columnNames[key]
	return c, ok
}

// ColumnSet records which columns a source actually provided.
type ColumnSet uint16

// AllColumns is the full column contract.
const AllColumns = ColumnSet(ColOpportunityID | ColName | ColOwner | ColRegion | ColSegment | ColStage |
	ColAmount | ColCloseDate | ColLastTouchDate | ColStageAge | ColProbability | ColCreatedDate)

// Has reports whether c is present.
func (s ColumnSet) Has(c Column) bool { return s&ColumnSet(c) != 0 }

// With returns s with c added.
func (s ColumnSet) With(c Column) ColumnSet { return s | ColumnSet(c) }

// Opportunity is one row of the source table. Optional fields are nil when
// the value was blank or could not be parsed.
type Opportunity struct {
	OpportunityID string   `json:"opportunity_id"`
	Name          string   `json:"opportunity_name,omitempty"`
	Owner         *string  `json:"owner,omitempty"`
	Region        string   `json:"region,omitempty"`
	Segment       string   `json:"segment,omitempty"`
	Stage         string   `json:"stage,omitempty"`
	Amount        float64  `json:"amount"`
	CloseDate     *Date    `json:"close_date,omitempty"`
	LastTouchDate *Date    `json:"last_touch_date,omitempty"`
	StageAgeDays  *int     `json:"stage_age_days,omitempty"`
	Probability   *float64 `json:"probability,omitempty"`
	CreatedDate   *Date    `json:"created_date,omitempty"`
}

// OwnerName returns the owner or "" when unknown.
func (o Opportunity) OwnerName() string {
	if o.Owner == nil {
		return ""
	}
	return *o.Owner
}

// Table is the uniform in-memory result of a record source.
type Table struct {
	Columns ColumnSet
	Records []Opportunity
}

// Empty reports whether the table has no records.
func (t Table) Empty() bool { return len(t.Records) == 0 }

// ScoredOpportunity is an opportunity plus its derived risk fields.
type ScoredOpportunity struct {
	Opportunity
	RiskScore float64  `json:"risk_score"`
	Reasons   []string `json:"reasons"`
}

// AtRiskDeal is a scored opportunity rendered for the serialization
// boundary: dates are YYYY-MM-DD strings.
type AtRiskDeal struct {
	OpportunityID string   `json:"opportunity_id"`
	Owner         string   `json:"owner,omitempty"`
	Region        string   `json:"region,omitempty"`
	Segment       string   `json:"segment,omitempty"`
	Stage         string   `json:"stage,omitempty"`
	StageAgeDays  *int     `json:"stage_age_days,omitempty"`
	Amount        float64  `json:"amount"`
	CloseDate     string   `json:"close_date,omitempty"`
	LastTouchDate string   `json:"last_touch_date,omitempty"`
	RiskScore     float64  `json:"risk_score"`
	Reasons       []string `json:"reasons"`
}

// NewAtRiskDeal renders s for output.
func NewAtRiskDeal(s ScoredOpportunity) AtRiskDeal {
	d := AtRiskDeal{
		OpportunityID: s.OpportunityID,
		Owner:         s.OwnerName(),
		Region:        s.Region,
		Segment:       s.Segment,
		Stage:         s.Stage,
		StageAgeDays:  s.StageAgeDays,
		Amount:        s.Amount,
		RiskScore:     s.RiskScore,
		Reasons:       append([]string{}, s.Reasons...),
	}
	if s.CloseDate != nil {
		d.CloseDate = s.CloseDate.String()
	}
	if s.LastTouchDate != nil {
		d.LastTouchDate = s.LastTouchDate.String()
	}
	return d
}
