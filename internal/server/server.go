// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/forms"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/internal/storage"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

const defaultSubmissionLimit = 20

// Views loads dashboard views. dashboard.Loaders implements it; concurrent
// reloads of one campaign share the newest build.
type Views interface {
	Reload(ctx context.Context, campaignID *big.Int) (*models.DashboardView, error)
}

// Writes runs the form write paths. forms.Service implements it.
type Writes interface {
	CreateCampaign(ctx context.Context, form forms.CampaignForm) (*forms.Result, error)
	PostUpdate(ctx context.Context, campaignID *big.Int, text string) (*forms.Result, error)
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	page           *template.Template
	views          Views
	writes         Writes
	history        storage.ContentCache
	metricsManager *metrics.Manager
	logger         *logrus.Logger
	startTime      time.Time
	stop           chan struct{}
}

// NewHTTPServer creates a new HTTP server. writes, history and metricsManager may be nil.
func NewHTTPServer(
	cfg *config.ServerConfig,
	explorerTxURL string,
	views Views,
	writes Writes,
	history storage.ContentCache,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {
	if cfg == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Server config is required", "")
	}
	if views == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Dashboard views are required", "")
	}

	page, err := template.New("dashboard").Funcs(templateFuncs(explorerTxURL)).Parse(dashboardPage)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard template: %w", err)
	}

	s := &HTTPServer{
		config:         cfg,
		page:           page,
		views:          views,
		writes:         writes,
		history:        history,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		startTime:      time.Now(),
		stop:           make(chan struct{}),
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the root handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	s.router.HandleFunc("/campaigns/{id}", s.campaignPageHandler).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}
	api.HandleFunc("/campaigns", s.createCampaignHandler).Methods("POST", "OPTIONS")
	api.HandleFunc("/campaigns/{id}/dashboard", s.dashboardHandler).Methods("GET")
	api.HandleFunc("/campaigns/{id}/updates", s.postUpdateHandler).Methods("POST", "OPTIONS")
	api.HandleFunc("/campaigns/{id}/submissions", s.submissionsHandler).Methods("GET")

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler()).Methods("GET")
	}
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateHealthMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to report immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically until Stop
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateHealthMetrics()
		case <-s.stop:
			return
		}
	}
}

func (s *HTTPServer) updateHealthMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	if s.history != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", s.history.Ping() == nil)
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]interface{}{}

	if s.history != nil {
		if err := s.history.Ping(); err != nil {
			status = "degraded"
			components["storage"] = map[string]interface{}{"healthy": false, "error": err.Error()}
		} else {
			components["storage"] = map[string]interface{}{"healthy": true}
		}
	}
	components["writes"] = map[string]interface{}{"enabled": s.writes != nil}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          status,
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"uptime":          time.Since(s.startTime).String(),
		"metrics_enabled": s.config.EnableMetrics,
		"components":      components,
	})
}

// dashboardHandler reloads and returns the campaign's dashboard view
func (s *HTTPServer) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	view, err := s.views.Reload(r.Context(), campaignID)
	if err != nil {
		s.writeUnavailable(w, campaignID, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state": "ready",
		"view":  view,
	})
}

// campaignPageHandler renders the campaign dashboard as HTML
func (s *HTTPServer) campaignPageHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	data := pageData{CampaignID: campaignID.String()}
	status := http.StatusOK
	view, err := s.views.Reload(r.Context(), campaignID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"campaign_id": campaignID.String(), "error": err}).Warn("Dashboard unavailable")
		data.Unavailable = true
		status = http.StatusServiceUnavailable
	} else {
		data.View = view
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		s.logger.WithField("error", err).Error("Failed to render dashboard page")
	}
}

type postUpdateRequest struct {
	Content string `json:"content"`
}

// postUpdateHandler posts a campaign update
func (s *HTTPServer) postUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	if s.writes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Writes are not enabled", nil)
		return
	}
	campaignID, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	var req postUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := s.writes.PostUpdate(r.Context(), campaignID, req.Content)
	s.writeResult(w, result, err)
}

// createCampaignHandler creates a campaign from the form fields
func (s *HTTPServer) createCampaignHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	if s.writes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Writes are not enabled", nil)
		return
	}

	var form forms.CampaignForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := s.writes.CreateCampaign(r.Context(), form)
	s.writeResult(w, result, err)
}

// submissionsHandler lists the writes made from this dashboard for a campaign
func (s *HTTPServer) submissionsHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Submission history is not enabled", nil)
		return
	}
	campaignID, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	limit := defaultSubmissionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	submissions, err := s.history.GetSubmissions(r.Context(), campaignID.String(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve submissions", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": submissions,
		"count":       len(submissions),
	})
}

// Helpers

func (s *HTTPServer) campaignID(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	id, err := utils.ParseCampaignID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid campaign id", err)
		return nil, false
	}
	return id, true
}

func (s *HTTPServer) writeResult(w http.ResponseWriter, result *forms.Result, err error) {
	status := http.StatusOK
	if err != nil {
		status = statusForError(err)
	}
	if result == nil {
		s.writeError(w, status, "Write failed", err)
		return
	}
	s.writeJSON(w, status, result)
}

func (s *HTTPServer) writeUnavailable(w http.ResponseWriter, campaignID *big.Int, err error) {
	s.logger.WithFields(logrus.Fields{
		"campaign_id": campaignID.String(),
		"error":       err,
	}).Warn("Dashboard unavailable")

	resp := map[string]interface{}{
		"state":       "unavailable",
		"campaign_id": campaignID.String(),
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		resp["code"] = appErr.Code
		resp["message"] = appErr.Message
	}
	s.writeJSON(w, http.StatusServiceUnavailable, resp)
}

// statusForError maps an error code to the HTTP status a write reports
func statusForError(err error) int {
	switch utils.CodeOf(err) {
	case utils.ErrCodeValidation:
		return http.StatusBadRequest
	case utils.ErrCodeNotFound:
		return http.StatusNotFound
	case utils.ErrCodeUserRejected:
		return http.StatusConflict
	case utils.ErrCodeUnavailableProvider, utils.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case utils.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
