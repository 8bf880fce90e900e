package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeClient implements Client with canned responses.
type fakeClient struct {
	query     func(soql string, out any) error
	inserted  []map[string]any
	insertID  string
	insertErr error
	desc      *SObjectDescription
	descErr   error
}

func (f *fakeClient) Query(_ context.Context, soql string, out any) error {
	if f.query == nil {
		return nil
	}
	return f.query(soql, out)
}

func (f *fakeClient) InsertOne(_ context.Context, _ string, record map[string]any) (string, error) {
	f.inserted = append(f.inserted, record)
	return f.insertID, f.insertErr
}

func (f *fakeClient) DescribeSObject(_ context.Context, name string) (*SObjectDescription, error) {
	if f.descErr != nil {
		return nil, f.descErr
	}
	if f.desc == nil {
		return &SObjectDescription{Name: name}, nil
	}
	return f.desc, nil
}

var _ Client = (*fakeClient)(nil)

// orgServer serves h behind a go-salesforce session that skips sign in.
func orgServer(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	org, err := gosf.Init(gosf.Creds{AccessToken: "token", Domain: srv.URL},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return NewClient(org)
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient(nil).(*orgClient)
	assert.Nil(t, c.limiter)

	c = NewClient(nil, WithRateLimit(5)).(*orgClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(5), c.limiter.Limit())
	assert.Equal(t, 5, c.limiter.Burst())

	c = NewClient(nil, WithRateLimit(0.25)).(*orgClient)
	assert.Equal(t, 1, c.limiter.Burst())

	c = NewClient(nil, WithRateLimit(5), WithRateLimit(-1)).(*orgClient)
	assert.Nil(t, c.limiter)
}

func TestThrottle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &orgClient{limiter: rate.NewLimiter(rate.Every(time.Hour), 0)}
	assert.Error(t, c.throttle(ctx))

	c = &orgClient{}
	assert.ErrorIs(t, c.throttle(ctx), context.Canceled)
	assert.NoError(t, c.throttle(context.Background()))
}

func TestConnect_Errors(t *testing.T) {
	_, err := Connect(Credentials{})
	assert.ErrorContains(t, err, "client id is required")

	_, err = Connect(Credentials{ClientID: "cid", KeyPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.ErrorContains(t, err, "read JWT private key")

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0o600))
	_, err = Connect(Credentials{ClientID: "cid", Username: "ops@example.com", LoginURL: "http://127.0.0.1:1", KeyPath: bad})
	assert.ErrorContains(t, err, "sign in as ops@example.com")
}

func TestQuery(t *testing.T) {
	c := orgServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{{
				"attributes": map[string]any{"type": "Opportunity"},
				"Id":         "006000000000001",
				"Name":       "Globex Expansion",
				"StageName":  "Negotiation",
				"Amount":     42000,
			}},
		})
	})

	var opps []Opportunity
	require.NoError(t, c.Query(context.Background(), "SELECT Id FROM Opportunity", &opps))
	require.Len(t, opps, 1)
	assert.Equal(t, "Globex Expansion", opps[0].Name)
	assert.Equal(t, "Negotiation", opps[0].StageName)
	assert.InDelta(t, 42000, opps[0].Amount, 0.01)
}

func TestQuery_Malformed(t *testing.T) {
	c := orgServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"message": "unexpected token", "errorCode": "MALFORMED_QUERY"}})
	})

	var opps []Opportunity
	assert.ErrorContains(t, c.Query(context.Background(), "SELEC", &opps), "sf: query")
}

func TestInsertOne(t *testing.T) {
	var got map[string]any
	c := orgServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/sobjects/Task")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "00T000000000042", "success": true, "errors": []any{}})
	})

	id, err := c.InsertOne(context.Background(), "Task", map[string]any{"Subject": "Call Globex"})
	require.NoError(t, err)
	assert.Equal(t, "00T000000000042", id)
	assert.Equal(t, "Call Globex", got["Subject"])
}

func TestInsertOne_Rejected(t *testing.T) {
	c := orgServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "",
			"success": false,
			"errors":  []map[string]any{{"message": "Subject is required"}},
		})
	})

	_, err := c.InsertOne(context.Background(), "Task", map[string]any{})
	assert.ErrorContains(t, err, "insert Task rejected")
}
