package risk

import (
	"time"

	"github.com/sells-group/analytics-studio/internal/model"
)

const (
	// MinScore and MaxScore bound a record's total risk.
	MinScore = 0
	MaxScore = 100
)

// Scorer applies a fixed list of signals to every record of a table.
type Scorer struct {
	signals []Signal
}

// NewScorer creates a Scorer. With no signals it uses DefaultSignals.
func NewScorer(signals ...Signal) *Scorer {
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	return &Scorer{signals: signals}
}

// Signals returns the signals in evaluation order.
func (s *Scorer) Signals() []Signal {
	return append([]Signal(nil), s.signals...)
}

// Score returns a scored copy of every record in table, in input order.
// Signals whose column is absent from the table are skipped. Contributions
// are summed first and the total is clamped once, so every qualifying
// reason is kept even when the raw sum passes MaxScore. The input table is
// not modified.
func (s *Scorer) Score(table model.Table, now time.Time) []model.ScoredOpportunity {
	today := model.DateOf(now)

	active := make([]Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		if table.Columns.Has(sig.Requires()) {
			active = append(active, sig)
		}
	}

	out := make([]model.ScoredOpportunity, len(table.Records))
	for i, rec := range table.Records {
		var total float64
		reasons := []string{}
		for _, sig := range active {
			c := sig.Evaluate(rec, today)
			total += c.Points
			if c.Reason != "" {
				reasons = append(reasons, c.Reason)
			}
		}
		out[i] = model.ScoredOpportunity{
			Opportunity: rec,
			RiskScore:   clamp(total, MinScore, MaxScore),
			Reasons:     reasons,
		}
	}
	return out
}
