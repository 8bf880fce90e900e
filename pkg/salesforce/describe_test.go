package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasField(t *testing.T) {
	d := &SObjectDescription{Fields: []SObjectField{{Name: "Id"}, {Name: "LastStageChangeDate"}}}
	assert.True(t, d.HasField("LastStageChangeDate"))
	assert.False(t, d.HasField("Stage_Age__c"))

	var none *SObjectDescription
	assert.False(t, none.HasField("Id"))
}

func TestDescribeSObject(t *testing.T) {
	c := orgServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/sobjects/Opportunity/describe")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":  "Opportunity",
			"label": "Opportunity",
			"fields": []map[string]any{
				{"name": "StageName", "label": "Stage", "type": "picklist", "length": 255, "updateable": true},
				{"name": "LastStageChangeDate", "label": "Last Stage Change", "type": "datetime", "updateable": false},
			},
		})
	})

	desc, err := c.DescribeSObject(context.Background(), "Opportunity")
	require.NoError(t, err)
	assert.Equal(t, "Opportunity", desc.Label)
	require.Len(t, desc.Fields, 2)
	assert.Equal(t, "picklist", desc.Fields[0].Type)
	assert.True(t, desc.Fields[0].Updateable)
	assert.True(t, desc.HasField("LastStageChangeDate"))
}

func TestDescribeSObject_Errors(t *testing.T) {
	c := orgServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"message": "sObject type 'Widget' is not supported", "errorCode": "NOT_FOUND"}})
	})
	_, err := c.DescribeSObject(context.Background(), "Widget")
	assert.ErrorContains(t, err, "sf: describe Widget")

	c = orgServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	_, err = c.DescribeSObject(context.Background(), "Opportunity")
	assert.ErrorContains(t, err, "decode Opportunity describe")
}
