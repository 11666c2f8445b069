package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/gamesight/visualqa/internal/application/analysis"
	appreports "github.com/gamesight/visualqa/internal/application/reports"
	apptriage "github.com/gamesight/visualqa/internal/application/triage"
	"github.com/gamesight/visualqa/internal/domain/captures"
	"github.com/gamesight/visualqa/internal/domain/consensus"
	domreports "github.com/gamesight/visualqa/internal/domain/reports"
	"github.com/gamesight/visualqa/internal/middleware"
)

// errBadRequest marks handler errors caused by the caller's input.
var errBadRequest = errors.New("bad request")

type Router struct {
	analysisSvc *appanalysis.Service
	reportsSvc  *appreports.Service
	triageSvc   *apptriage.Service
}

// Options collects the cross-cutting pieces main.go wires in.
type Options struct {
	AllowedOrigins []string
	APIKeys        map[string]string
	Health         map[string]middleware.HealthChecker
}

func NewRouter(analysisSvc *appanalysis.Service, reportsSvc *appreports.Service, triageSvc *apptriage.Service, opts Options) http.Handler {
	r := &Router{analysisSvc: analysisSvc, reportsSvc: reportsSvc, triageSvc: triageSvc}
	mux := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		if len(opts.APIKeys) > 0 {
			rt.Use(middleware.APIKeyAuth(opts.APIKeys))
		}
		rt.Post("/captures/analyze", r.wrap(r.handleAnalyzeCapture))
		rt.Get("/captures/{id}", r.wrap(r.handleGetCapture))

		rt.Post("/reports/generate", r.wrap(r.handleGenerateReport))
		rt.Get("/reports", r.wrap(r.handleListReports))
		rt.Get("/reports/{id}", r.wrap(r.handleGetReport))
		rt.Get("/reports/{id}/download", r.wrap(r.handleDownloadReport))

		rt.Get("/consensus/issues", r.wrap(r.handleListIssues))
		rt.Post("/recommendations/{issue_id}/accept", r.wrap(r.handleAccept))
		rt.Post("/recommendations/{issue_id}/reject", r.wrap(r.handleReject))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				writeErr(w, http.StatusNotFound, "not_found", "not found")
			case errors.Is(err, domreports.ErrRateLimited):
				writeErr(w, http.StatusTooManyRequests, "rate_limit_exceeded", err.Error())
			case errors.Is(err, domreports.ErrNotReady):
				writeErr(w, http.StatusConflict, "conflict", err.Error())
			case errors.Is(err, consensus.ErrReasonRequired):
				writeErr(w, http.StatusBadRequest, "validation_error", err.Error())
			case errors.Is(err, errBadRequest):
				writeErr(w, http.StatusBadRequest, "validation_error", err.Error())
			default:
				writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
		}
	}
}

func writeErr(w http.ResponseWriter, code int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/captures/analyze
// Body: {"test_run_id": "...", "game_title": "...", "screenshot_b64"|"screenshot_ref": "...", "telemetry": {...}}
func (r *Router) handleAnalyzeCapture(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		TestRunID     string          `json:"test_run_id"`
		GameTitle     string          `json:"game_title"`
		GitCommit     string          `json:"git_commit"`
		ScreenshotB64 string          `json:"screenshot_b64"`
		ScreenshotRef string          `json:"screenshot_ref"`
		Telemetry     json.RawMessage `json:"telemetry"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := middleware.ValidateTestRunID(body.TestRunID); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	capture, screenshot, err := r.analysisSvc.Submit(req.Context(), appanalysis.SubmitCommand{
		TestRunID:     body.TestRunID,
		GameTitle:     middleware.SanitizeString(body.GameTitle),
		GitCommit:     body.GitCommit,
		ScreenshotB64: body.ScreenshotB64,
		ScreenshotRef: body.ScreenshotRef,
		Telemetry:     string(body.Telemetry),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	// Analysis jalan di background sampai selesai
	go r.analysisSvc.AnalyzeUntilDone(capture, screenshot)

	return writeJSON(w, http.StatusAccepted, appanalysis.SubmitResult{
		CaptureID: string(capture.ID),
		Status:    string(capture.Status),
		Message:   "analysis started in background",
	})
}

// GET /v1/captures/{id}
func (r *Router) handleGetCapture(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	c, err := r.analysisSvc.Get(req.Context(), captures.CaptureID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, c)
}

// POST /v1/reports/generate
func (r *Router) handleGenerateReport(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		TestRunID          string `json:"test_run_id"`
		Format             string `json:"format"`
		IncludeScreenshots bool   `json:"include_screenshots"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := middleware.ValidateTestRunID(body.TestRunID); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := middleware.ValidateFormat(body.Format); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	job, err := r.reportsSvc.Generate(req.Context(), appreports.GenerateCommand{
		TestRunID:          body.TestRunID,
		Format:             body.Format,
		IncludeScreenshots: body.IncludeScreenshots,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, job)
}

// GET /v1/reports?game_title=&status=&limit=&offset=
func (r *Router) handleListReports(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	f := domreports.ListFilter{
		GameTitle: middleware.SanitizeString(q.Get("game_title")),
		Status:    domreports.Status(q.Get("status")),
		Limit:     middleware.ValidateLimit(limit),
		Offset:    middleware.ValidateOffset(offset),
	}
	list, total, err := r.reportsSvc.List(req.Context(), f)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"reports": list,
		"total":   total,
		"limit":   f.Limit,
		"offset":  f.Offset,
	})
}

// GET /v1/reports/{id}
func (r *Router) handleGetReport(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	job, data, err := r.reportsSvc.Get(req.Context(), domreports.ReportID(id))
	if err != nil {
		return err
	}
	resp := map[string]any{"report": job}
	if data != nil {
		resp["report_data"] = data
	}
	return writeJSON(w, http.StatusOK, resp)
}

// GET /v1/reports/{id}/download
func (r *Router) handleDownloadReport(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	url, err := r.reportsSvc.DownloadURL(req.Context(), domreports.ReportID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"download_url": url,
		"expires_in":   900,
	})
}

// GET /v1/consensus/issues?severity=&category=&status=&test_run_id=&limit=&offset=
func (r *Router) handleListIssues(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	if v := q.Get("severity"); v != "" {
		if err := middleware.ValidateSeverity(v); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	if v := q.Get("category"); v != "" {
		if err := middleware.ValidateCategory(v); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	if v := q.Get("status"); v != "" {
		if err := middleware.ValidateTriageStatus(v); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	f := consensus.IssueFilter{
		Severity:  consensus.Severity(q.Get("severity")),
		Category:  q.Get("category"),
		Status:    consensus.TriageStatus(q.Get("status")),
		TestRunID: q.Get("test_run_id"),
		Limit:     middleware.ValidateLimit(limit),
		Offset:    middleware.ValidateOffset(offset),
	}
	list, err := r.triageSvc.List(req.Context(), f)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"issues": list,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

// POST /v1/recommendations/{issue_id}/accept
func (r *Router) handleAccept(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "issue_id")
	if err := middleware.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	issue, err := r.triageSvc.Accept(req.Context(), consensus.IssueID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, issue)
}

// POST /v1/recommendations/{issue_id}/reject
// Body: {"reason": "..."}
func (r *Router) handleReject(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "issue_id")
	if err := middleware.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	issue, err := r.triageSvc.Reject(req.Context(), consensus.IssueID(id), middleware.SanitizeString(body.Reason))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, issue)
}
