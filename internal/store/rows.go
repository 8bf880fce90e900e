package store

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/model"
)

// assignActionIDs returns a copy of actions with fresh ids, the run id and
// the proposed status set. Input order is kept.
func assignActionIDs(runID string, actions []model.Action) []model.Action {
	out := make([]model.Action, len(actions))
	for i, a := range actions {
		a.ID = uuid.New().String()
		a.RunID = runID
		a.Status = model.ActionStatusProposed
		out[i] = a
	}
	return out
}

// approvableIDs resolves the action ids an approval covers. owned maps the
// run's action ids to their status; order is their position order. Executed
// actions can not be approved again.
func approvableIDs(runID string, owned map[string]model.ActionStatus, order, requested []string) ([]string, error) {
	if len(requested) == 0 {
		var ids []string
		for _, id := range order {
			if owned[id] == model.ActionStatusProposed {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, approvalError("run %s has no proposed actions", runID)
		}
		return ids, nil
	}

	ids := dedupe(requested)
	if len(ids) == 0 {
		return nil, approvalError("no action ids given")
	}
	for _, id := range ids {
		status, ok := owned[id]
		if !ok {
			return nil, approvalError("action %s does not belong to run %s", id, runID)
		}
		if status == model.ActionStatusExecuted {
			return nil, approvalError("action %s was already executed", id)
		}
	}
	return ids, nil
}

// marshalNullable encodes v as JSON, mapping an empty map to SQL NULL.
func marshalNullable(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func scanAction(row scannable) (model.Action, error) {
	var a model.Action
	var meta []byte
	if err := row.Scan(&a.ID, &a.RunID, &a.Type, &a.Title, &a.Description, &a.Priority,
		&a.ImpactScore, &a.Reasoning, &meta, &a.Status); err != nil {
		return a, err
	}
	m, err := unmarshalMap(meta)
	if err != nil {
		return a, eris.Wrapf(err, "unmarshal metadata for action %s", a.ID)
	}
	a.Metadata = m
	return a, nil
}

func scanApproval(row scannable) (*model.Approval, error) {
	var ap model.Approval
	var ids []byte
	if err := row.Scan(&ap.ID, &ap.RunID, &ap.Approver, &ap.Notes, &ids, &ap.CreatedAt); err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &ap.ActionIDs); err != nil {
			return nil, eris.Wrapf(err, "unmarshal action ids for approval %s", ap.ID)
		}
	}
	return &ap, nil
}

func scanExecution(row scannable) (model.Execution, error) {
	var ex model.Execution
	var details []byte
	if err := row.Scan(&ex.ID, &ex.ActionID, &ex.ApprovalID, &ex.ActionType, &ex.Kind, &ex.Status,
		&ex.Target, &ex.ExternalID, &details, &ex.Error, &ex.ErrorClass, &ex.ExecutedAt); err != nil {
		return ex, err
	}
	m, err := unmarshalMap(details)
	if err != nil {
		return ex, eris.Wrapf(err, "unmarshal details for execution %s", ex.ID)
	}
	ex.Details = m
	return ex, nil
}
