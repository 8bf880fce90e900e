package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-studio/internal/executor"
	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/play"
	"github.com/sells-group/analytics-studio/internal/store"
	"github.com/sells-group/analytics-studio/internal/studio"
	"github.com/sells-group/analytics-studio/pkg/tableau"
)

type stubPlay struct{}

func (stubPlay) Spec() play.PlaySpec {
	return play.PlaySpec{ID: "pipeline", Label: "Pipeline Risk", Tags: []string{"sales"}}
}

func (stubPlay) Run(_ context.Context, _ play.Params) (*model.PlayResult, error) {
	return &model.PlayResult{
		Play:     "pipeline",
		Analysis: map[string]any{"narrative": "one stalled deal"},
		Actions: []model.Action{
			{Type: model.ActionSalesforceTask, Title: "Unblock Opportunity OPP-1", Priority: model.PriorityHigh, ImpactScore: 95,
				Metadata: map[string]any{"opportunity_id": "OPP-1"}},
			{Type: model.ActionSlackMessage, Title: "Alert", Priority: model.PriorityMedium, ImpactScore: 10,
				Metadata: map[string]any{"channel": "sales-alerts", "text": "heads up"}},
		},
	}, nil
}

type stubViews struct {
	views []tableau.View
	err   error
}

func (s stubViews) ListViews(context.Context) ([]tableau.View, error) { return s.views, s.err }

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	reg := play.NewRegistry()
	require.NoError(t, reg.Register(stubPlay{}))
	ex, err := executor.New(executor.ModeStub)
	require.NoError(t, err)

	return NewRouter(studio.New(reg, st, ex, nil), opts)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestListPlays(t *testing.T) {
	h := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodGet, "/plays", "")
	require.Equal(t, http.StatusOK, rec.Code)
	specs := decode[[]play.PlaySpec](t, rec)
	require.Len(t, specs, 1)
	assert.Equal(t, "pipeline", specs[0].ID)
}

func TestRunPlay_UnknownIsBadRequest(t *testing.T) {
	h := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodPost, "/run/nope", `{"params":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "nope")
}

func TestRunPlay_InvalidJSON(t *testing.T) {
	h := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodPost, "/run/pipeline", `{"params":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunApproveExecuteFlow(t *testing.T) {
	h := newTestRouter(t, Options{})

	rec := do(t, h, http.MethodPost, "/run/pipeline", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[studio.RunOutcome](t, rec)
	require.Len(t, run.Actions, 2)

	rec = do(t, h, http.MethodGet, "/runs/"+run.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Run](t, rec)
	assert.Equal(t, model.RunStatusComplete, got.Status)

	body := `{"run_id":"` + run.RunID + `","action_ids":["` + run.Actions[0].ID + `"],"notes":"ship it"}`
	rec = do(t, h, http.MethodPost, "/approve", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[studio.ApproveOutcome](t, rec)
	assert.Equal(t, 1, approved.ApprovedCount)
	assert.Equal(t, "Approved 1 action(s).", approved.Message)

	rec = do(t, h, http.MethodPost, "/approvals/"+approved.ApprovalID+"/execute", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	execs := decode[[]model.Execution](t, rec)
	require.Len(t, execs, 1)
	assert.Equal(t, model.ExecutionStatusPreview, execs[0].Status)

	rec = do(t, h, http.MethodGet, "/executions?approval_id="+approved.ApprovalID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Execution](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/approvals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	approvals := decode[[]model.Approval](t, rec)
	require.Len(t, approvals, 1)
	assert.Equal(t, studio.DefaultApprover, approvals[0].Approver)

	rec = do(t, h, http.MethodGet, "/actions?run_id="+run.RunID+"&status=approved", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Action](t, rec), 1)
}

func TestApprove_Errors(t *testing.T) {
	h := newTestRouter(t, Options{})

	rec := do(t, h, http.MethodPost, "/approve", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/approve", `{"run_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/approvals/missing/execute", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	h := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestImpact(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	h := newTestRouter(t, Options{Now: func() time.Time { return now }})

	rec := do(t, h, http.MethodGet, "/impact", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[map[string]any](t, rec)
	assert.EqualValues(t, 0, report["total_runs"])

	rec = do(t, h, http.MethodGet, "/impact.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "impact_report.csv")
	assert.Contains(t, rec.Body.String(), "Summary Metrics")
}

func TestViews(t *testing.T) {
	h := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodGet, "/views", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	h = newTestRouter(t, Options{Views: stubViews{views: []tableau.View{{ID: "v1", Name: "Pipeline"}}}})
	rec = do(t, h, http.MethodGet, "/views", "")
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]tableau.View](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, "Pipeline", views[0].Name)

	h = newTestRouter(t, Options{Views: stubViews{err: errors.New("signin failed")}})
	rec = do(t, h, http.MethodGet, "/views", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuth_RequiredOnMutatingRoutes(t *testing.T) {
	const secret = "test-secret"
	h := newTestRouter(t, Options{JWTSecret: secret})

	rec := do(t, h, http.MethodPost, "/run/pipeline", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/run/pipeline", "", "Authorization", "Bearer "+signToken(t, "other", "eve"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/runs", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	auth := "Bearer " + signToken(t, secret, "dana")
	rec = do(t, h, http.MethodPost, "/run/pipeline", "", "Authorization", auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[studio.RunOutcome](t, rec)

	rec = do(t, h, http.MethodPost, "/approve", `{"run_id":"`+run.RunID+`","approver":"someone-else"}`, "Authorization", auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/approvals", "")
	approvals := decode[[]model.Approval](t, rec)
	require.Len(t, approvals, 1)
	assert.Equal(t, "dana", approvals[0].Approver)
}

func TestCORS_Preflight(t *testing.T) {
	h := newTestRouter(t, Options{CORSOrigins: []string{"https://studio.example.com"}})
	rec := do(t, h, http.MethodOptions, "/approve", "",
		"Origin", "https://studio.example.com",
		"Access-Control-Request-Method", "POST")
	assert.Equal(t, "https://studio.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPanicRecovered(t *testing.T) {
	h := middleware.RequestID(loggingMiddleware(middleware.Recoverer(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRequestID_Echoed(t *testing.T) {
	h := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodGet, "/health", "", "X-Request-Id", "req-123")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}

func TestQueryInt(t *testing.T) {
	assert.Equal(t, 7, queryInt("", 7))
	assert.Equal(t, 3, queryInt("3", 7))
	assert.Equal(t, 7, queryInt("-1", 7))
	assert.Equal(t, 7, queryInt("abc", 7))
}
