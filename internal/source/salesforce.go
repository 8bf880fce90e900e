package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/pkg/salesforce"
)

// SalesforceSource loads Opportunity records over SOQL. Stage age is derived
// from LastStageChangeDate when the org exposes it; otherwise the stage age
// column is absent and the stage-age signal stays off.
type SalesforceSource struct {
	Client salesforce.Client
	Limit  int
	Now    func() time.Time
}

func (SalesforceSource) Name() string { return "salesforce" }

// salesforceColumns are always provided by the Opportunity query.
const salesforceColumns = model.ColumnSet(model.ColOpportunityID | model.ColName | model.ColOwner |
	model.ColStage | model.ColAmount | model.ColCloseDate | model.ColLastTouchDate |
	model.ColProbability | model.ColCreatedDate)

func (s SalesforceSource) Load(ctx context.Context) (model.Table, error) {
	if s.Client == nil {
		return model.Table{}, eris.New("source: salesforce client not configured")
	}
	opps, withStage, err := salesforce.ListOpportunities(ctx, s.Client, s.Limit)
	if err != nil {
		return model.Table{}, eris.Wrap(err, "source: salesforce")
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	today := model.DateOf(now())

	cols := salesforceColumns
	if withStage {
		cols = cols.With(model.ColStageAge)
	}
	t := model.Table{Columns: cols, Records: make([]model.Opportunity, 0, len(opps))}
	for _, o := range opps {
		rec := model.Opportunity{
			OpportunityID: o.ID,
			Name:          o.Name,
			Stage:         o.StageName,
			Amount:        max(o.Amount, 0),
			CloseDate:     parseDatePtr(o.CloseDate),
			LastTouchDate: parseDatePtr(o.LastActivityDate),
			CreatedDate:   parseDatePtr(o.CreatedDate),
		}
		if owner := o.OwnerName(); owner != "" {
			rec.Owner = &owner
		}
		p := o.Probability
		rec.Probability = &p
		if withStage {
			if changed := parseDatePtr(o.LastStageChangeDate); changed != nil {
				age := max(today.DaysSince(*changed), 0)
				rec.StageAgeDays = &age
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}
