// Package api serves the studio over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/impact"
	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/play"
	"github.com/sells-group/analytics-studio/internal/store"
	"github.com/sells-group/analytics-studio/internal/studio"
	"github.com/sells-group/analytics-studio/pkg/tableau"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
	JWTSecret   string
	// Views is optional; /views returns an empty list without it.
	Views tableau.Client
	Now   func() time.Time
}

// Server holds handler dependencies.
type Server struct {
	svc   *studio.Service
	views tableau.Client
	now   func() time.Time
}

// NewRouter builds the chi router for svc.
func NewRouter(svc *studio.Service, opts Options) http.Handler {
	s := &Server{svc: svc, views: opts.Views, now: opts.Now}
	if s.now == nil {
		s.now = time.Now
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/plays", s.handleListPlays)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Get("/actions", s.handleListActions)
	r.Get("/approvals", s.handleListApprovals)
	r.Get("/approvals/{id}", s.handleGetApproval)
	r.Get("/executions", s.handleListExecutions)
	r.Get("/impact", s.handleImpact)
	r.Get("/impact.csv", s.handleImpactCSV)
	r.Get("/views", s.handleViews)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(opts.JWTSecret))
		r.Post("/run/{play}", s.handleRunPlay)
		r.Post("/approve", s.handleApprove)
		r.Post("/approvals/{id}/execute", s.handleExecute)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPlays(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Registry().List())
}

type runRequest struct {
	Params play.Params `json:"params"`
}

func (s *Server) handleRunPlay(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Params == nil {
		req.Params = play.Params{}
	}

	out, err := s.svc.RunPlay(r.Context(), chi.URLParam(r, "play"), req.Params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Play:   q.Get("play"),
		Status: model.RunStatus(q.Get("status")),
		Limit:  queryInt(q.Get("limit"), 0),
		Offset: queryInt(q.Get("offset"), 0),
	}
	runs, err := s.svc.Store().ListRuns(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Store().GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actions, err := s.svc.Store().ListActions(r.Context(), store.ActionFilter{
		RunID:  q.Get("run_id"),
		Status: model.ActionStatus(q.Get("status")),
		Limit:  queryInt(q.Get("limit"), 0),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(actions))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req studio.ApproveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sub := SubjectFromContext(r.Context()); sub != "" {
		req.Approver = sub
	}

	out, err := s.svc.Approve(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query().Get("limit"), store.DefaultApprovalLimit)
	approvals, err := s.svc.Store().ListApprovals(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(approvals))
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	approval, err := s.svc.Store().GetApproval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	execs, err := s.svc.ExecuteApproval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(execs))
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	execs, err := s.svc.Store().ListExecutions(r.Context(), store.ExecutionFilter{
		ApprovalID: q.Get("approval_id"),
		ActionID:   q.Get("action_id"),
		Limit:      queryInt(q.Get("limit"), 0),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(execs))
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	report, err := impact.Build(r.Context(), s.svc.Store(), s.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleImpactCSV(w http.ResponseWriter, r *http.Request) {
	report, err := impact.Build(r.Context(), s.svc.Store(), s.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="impact_report.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := report.WriteCSV(w); err != nil {
		zap.L().Error("api: write impact csv", zap.Error(err))
	}
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		writeJSON(w, http.StatusOK, []tableau.View{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	views, err := s.views.ListViews(ctx)
	if err != nil {
		zap.L().Warn("api: list tableau views", zap.Error(err))
		writeError(w, http.StatusBadGateway, "tableau unavailable")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(views))
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return eris.Wrap(err, "invalid JSON body")
	}
	return nil
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var unknown *play.UnknownPlayError
	switch {
	case errors.As(err, &unknown):
		writeError(w, http.StatusBadRequest, unknown.Error())
	case errors.Is(err, store.ErrInvalidApproval):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
