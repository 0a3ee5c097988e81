package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/nexus/internal/app"
	"github.com/raysh454/nexus/internal/grc"
	"github.com/raysh454/nexus/internal/logging"
	_ "github.com/raysh454/nexus/internal/server/docs"
)

// maxLoggedBody caps how much of a request body is copied into the access log.
const maxLoggedBody = 2048

// Server is the HTTP + WebSocket API surface for Nexus.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer creates a new Server with its own Orchestrator.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.AppConfig.ListenAddr
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	orch, err := app.NewOrchestrator(cfg.AppConfig, logger, cfg.Deps)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       r,
		logger:       logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkWSOrigin}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/analyze", s.optionsHandler("POST"))
	r.Options("/grc/assess", s.optionsHandler("POST"))
	r.Options("/quickscan", s.optionsHandler("POST"))
	r.Options("/logs/scan", s.optionsHandler("POST"))
	r.Options("/model", s.optionsHandler("GET"))
	r.Options("/model/train", s.optionsHandler("POST"))
	r.Options("/model/reload", s.optionsHandler("POST"))
	r.Options("/dataset/import", s.optionsHandler("POST"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/scan", s.optionsHandler("POST"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/ws/jobs/scan", s.optionsHandler("GET"))

	// Analysis
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/grc/assess", s.handleAssess)
	r.Post("/quickscan", s.handleQuickScan)
	r.Post("/logs/scan", s.handleScanLog)

	// Model
	r.Get("/model", s.handleModelInfo)
	r.Post("/model/train", s.handleTrainModel)
	r.Post("/model/reload", s.handleReloadModel)
	r.Post("/dataset/import", s.handleImportDataset)

	// Jobs over REST
	r.Post("/jobs/scan", s.handleStartScanJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSockets for job progress
	r.Get("/ws/jobs/scan", s.handleScanWS)

	// Operations
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.orchestrator.Metrics().Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

// corsMiddleware grants cross-origin access only to allowed_origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Add("Vary", "Origin")
			if allowed, wildcard := s.originAllowed(origin); allowed {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}

		next.ServeHTTP(w, r)
	})
}

// originAllowed reports whether origin is listed, and whether the match was
// the "*" wildcard.
func (s *Server) originAllowed(origin string) (allowed, wildcard bool) {
	for _, o := range s.orchestrator.Config().AllowedOrigins {
		if o == "*" {
			return true, true
		}
		if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			return true, false
		}
	}
	return false, false
}

// checkWSOrigin accepts clients without an Origin header, same-host
// origins and allowed_origins.
func (s *Server) checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	allowed, _ := s.originAllowed(origin)
	return allowed
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		logging.F("method", r.Method),
		logging.F("path", r.URL.Path),
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.F("query", q))
	}

	// Only JSON bodies are logged; analyzed files can be large and binary.
	if r.Body != nil && r.Header.Get("Content-Type") == "application/json" &&
		(r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			logged := bodyBytes
			if len(logged) > maxLoggedBody {
				logged = logged[:maxLoggedBody]
			}
			fields = append(fields, logging.F("body", string(logged)))
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the orchestrator and underlying resources.
func (s *Server) Close() {
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeAppError maps orchestrator errors onto HTTP statuses.
func (s *Server) writeAppError(w http.ResponseWriter, op string, err error) {
	kind := app.ErrorKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case "invalid_input":
		status = http.StatusBadRequest
	case "too_large":
		status = http.StatusRequestEntityTooLarge
	case "not_found":
		status = http.StatusNotFound
	case "canceled":
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(op, logging.F("error", err), logging.F("kind", kind))
	} else {
		s.logger.Warn(op, logging.F("error", err), logging.F("kind", kind))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := s.orchestrator.Config().MaxContentBytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Kind: "too_large"})
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return nil, false
	}
	return body, true
}

// --- HTTP handlers ---

// handleAnalyze scores the raw request body.
//
// @Summary Analyze content
// @Description Extracts features from the raw body and classifies it.
// @Tags analysis
// @Accept octet-stream
// @Produce json
// @Success 200 {object} scorer.ThreatVerdict
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /analyze [post]
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	v, err := s.orchestrator.AnalyzeContent(r.Context(), body)
	if err != nil {
		s.writeAppError(w, "analyzing content", err)
		return
	}
	s.logger.Info("analyzed content",
		logging.F("size", len(body)),
		logging.F("prediction", string(v.Prediction)),
		logging.F("threat_score", v.ThreatScore))
	writeJSON(w, http.StatusOK, v)
}

// @Summary Assess GRC risk
// @Tags grc
// @Accept json
// @Produce json
// @Param request body AssessRequest true "Risk factors"
// @Success 200 {object} grc.RiskAssessment
// @Failure 400 {object} ErrorResponse
// @Router /grc/assess [post]
func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var body AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	factors, err := grc.ParseFactors(body.RiskFactors)
	if err != nil {
		s.writeAppError(w, "parsing risk factors", err)
		return
	}
	a, err := s.orchestrator.AssessRisk(factors)
	if err != nil {
		s.writeAppError(w, "assessing risk", err)
		return
	}
	s.logger.Info("assessed risk", logging.F("score", a.RiskScore), logging.F("level", string(a.RiskLevel)))
	writeJSON(w, http.StatusOK, a)
}

// @Summary Signature quick scan
// @Tags analysis
// @Accept octet-stream
// @Produce json
// @Param name query string false "Name reported back"
// @Success 200 {object} quickscan.Report
// @Router /quickscan [post]
func (s *Server) handleQuickScan(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	rep := s.orchestrator.QuickScan(name, body)
	s.logger.Info("quick scanned", logging.F("name", name), logging.F("alert", rep.Alert))
	writeJSON(w, http.StatusOK, rep)
}

// @Summary Scan log lines
// @Tags forensics
// @Accept plain
// @Produce json
// @Success 200 {object} logscan.Report
// @Router /logs/scan [post]
func (s *Server) handleScanLog(w http.ResponseWriter, r *http.Request) {
	limit := s.orchestrator.Config().MaxContentBytes
	rep, err := s.orchestrator.ScanLog(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Kind: "too_large"})
			return
		}
		s.writeAppError(w, "scanning log", err)
		return
	}
	s.logger.Info("scanned log", logging.F("lines", rep.Lines), logging.F("suspicious", rep.Suspicious))
	writeJSON(w, http.StatusOK, rep)
}

// @Summary Model state
// @Tags model
// @Produce json
// @Param load query bool false "Load or train the model first"
// @Success 200 {object} model.Info
// @Router /model [get]
func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("load") == "true" {
		info, err := s.orchestrator.LoadModel(r.Context())
		if err != nil {
			s.writeAppError(w, "loading model", err)
			return
		}
		writeJSON(w, http.StatusOK, info)
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.ModelInfo())
}

// @Summary Retrain the model
// @Tags model
// @Produce json
// @Success 200 {object} model.Info
// @Failure 500 {object} ErrorResponse
// @Router /model/train [post]
func (s *Server) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	info, err := s.orchestrator.TrainModel(r.Context())
	if err != nil {
		s.writeAppError(w, "training model", err)
		return
	}
	s.logger.Info("trained model", logging.F("trees", info.Trees), logging.F("samples", info.Samples))
	writeJSON(w, http.StatusOK, info)
}

// @Summary Reload the model artifact
// @Description Drops the in-memory model and loads the artifact from disk again.
// @Tags model
// @Produce json
// @Success 200 {object} model.Info
// @Failure 500 {object} ErrorResponse
// @Router /model/reload [post]
func (s *Server) handleReloadModel(w http.ResponseWriter, r *http.Request) {
	info, err := s.orchestrator.ReloadModel(r.Context())
	if err != nil {
		s.writeAppError(w, "reloading model", err)
		return
	}
	s.logger.Info("reloaded model", logging.F("origin", string(info.Origin)), logging.F("trees", info.Trees))
	writeJSON(w, http.StatusOK, info)
}

// @Summary Import labeled samples
// @Tags model
// @Accept plain
// @Produce json
// @Param source query string false "Provenance label"
// @Success 201 {object} ImportDatasetResponse
// @Failure 400 {object} ErrorResponse
// @Router /dataset/import [post]
func (s *Server) handleImportDataset(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "api"
	}
	limit := s.orchestrator.Config().MaxContentBytes
	n, err := s.orchestrator.ImportDataset(r.Context(), http.MaxBytesReader(w, r.Body, limit), source)
	if err != nil {
		status := http.StatusBadRequest
		if app.ErrorKind(err) == "internal" {
			status = http.StatusInternalServerError
		}
		s.logger.Warn("importing dataset", logging.F("error", err))
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: app.ErrorKind(err)})
		return
	}
	resp := ImportDatasetResponse{Imported: n, Total: n}
	if st, err := s.orchestrator.DatasetStatus(r.Context()); err == nil && st.Samples != nil {
		resp.Total = *st.Samples
	}
	s.logger.Info("imported dataset", logging.F("count", n), logging.F("total", resp.Total), logging.F("source", source))
	writeJSON(w, http.StatusCreated, resp)
}

// Jobs (REST)

// @Summary Start a scan job
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body StartScanJobRequest true "Paths"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Router /jobs/scan [post]
func (s *Server) handleStartScanJob(w http.ResponseWriter, r *http.Request) {
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	var body StartScanJobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Jobs outlive the request.
	job, err := s.orchestrator.StartScanJob(context.Background(), body.Paths)
	if err != nil {
		s.writeAppError(w, "starting scan job", err)
		return
	}
	s.logger.Info("started scan job", logging.F("job_id", job.ID), logging.F("files", job.Total))
	writeJSON(w, http.StatusAccepted, job)
}

// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param jobID path string true "Job ID"
// @Success 200 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.F("job_id", jobID))
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// @Summary Cancel a job
// @Tags jobs
// @Param jobID path string true "Job ID"
// @Success 204
// @Router /jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.orchestrator.CancelJob(jobID) {
		s.logger.Info("canceled job", logging.F("job_id", jobID))
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// @Summary List jobs
// @Tags jobs
// @Produce json
// @Success 200 {array} app.Job
// @Router /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	writeJSON(w, http.StatusOK, jobs)
}

// WebSockets

// handleScanWS starts a scan job over ?path=... and streams its events until
// the job ends. A client disconnect cancels the job.
func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	if !s.checkWSOrigin(r) {
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}
	paths := r.URL.Query()["path"]

	job, err := s.orchestrator.StartScanJob(context.Background(), paths)
	if err != nil {
		s.writeAppError(w, "starting scan job", err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.F("error", err))
		s.orchestrator.CancelJob(job.ID)
		return
	}
	defer conn.Close()

	s.logger.Info("started scan job", logging.F("job_id", job.ID))
	_ = conn.WriteJSON(job)

	events := s.orchestrator.JobEvents(job.ID)
	if events == nil {
		return
	}
	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.orchestrator.CancelJob(job.ID)
			return
		}
	}
}

// @Summary Health
// @Tags operations
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Model: s.orchestrator.ModelInfo()}
	st, err := s.orchestrator.DatasetStatus(r.Context())
	resp.Dataset = st
	if err != nil {
		s.logger.Warn("health: dataset unavailable", logging.F("error", err))
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
