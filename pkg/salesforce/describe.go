package salesforce

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
)

// SObjectField is one field from a describe call.
type SObjectField struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	Length     int    `json:"length"`
	Updateable bool   `json:"updateable"`
}

// SObjectDescription is the metadata returned by /sobjects/{name}/describe.
type SObjectDescription struct {
	Name   string         `json:"name"`
	Label  string         `json:"label"`
	Fields []SObjectField `json:"fields"`
}

// HasField reports whether the object exposes the field API name. A nil
// description has no fields.
func (d *SObjectDescription) HasField(name string) bool {
	if d == nil {
		return false
	}
	for _, f := range d.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func (c *orgClient) DescribeSObject(ctx context.Context, name string) (*SObjectDescription, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	resp, err := c.org.DoRequest(http.MethodGet, "/sobjects/"+name+"/describe", nil)
	if err != nil {
		return nil, eris.Wrapf(err, "sf: describe %s", name)
	}
	defer resp.Body.Close() //nolint:errcheck

	desc := &SObjectDescription{}
	if err := json.NewDecoder(resp.Body).Decode(desc); err != nil {
		return nil, eris.Wrapf(err, "sf: decode %s describe", name)
	}
	return desc, nil
}
