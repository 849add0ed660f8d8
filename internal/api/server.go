package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/robertguss/rxflow-go/internal/config"
	"github.com/robertguss/rxflow-go/internal/storage"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

// MinAutoSaveInterval is the smallest interval the bridge accepts
const MinAutoSaveInterval = time.Second

// Server is the local session bridge. It exposes the active authoring
// session over HTTP and pushes session events to websocket clients.
type Server struct {
	config  *config.Config
	storage storage.Storage
	wsHub   *WebSocketHub
	logger  *logrus.Entry

	mu          sync.RWMutex
	session     *workflow.Session
	unsubscribe func()
	server      *http.Server
	running     bool
}

// NewServer creates a new bridge server. store may be nil, in which case
// the history endpoints answer 503.
func NewServer(cfg *config.Config, store storage.Storage, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.WithField("module", "api")
	}

	wsHub := NewWebSocketHub(logger)
	wsHub.SetSecurityConfig(cfg.BridgeAPIKey, cfg.CORSAllowedOrigins)

	return &Server{
		config:  cfg,
		storage: store,
		wsHub:   wsHub,
		logger:  logger,
	}
}

// Attach makes session the one the bridge serves, replacing any previous one
func (s *Server) Attach(session *workflow.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.session = session
	s.unsubscribe = session.Subscribe(s.broadcastEvent)
}

// Detach stops serving the current session
func (s *Server) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.session = nil
}

// Session returns the attached session, or nil
func (s *Server) Session() *workflow.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// GetWebSocketHub returns the WebSocket hub
func (s *Server) GetWebSocketHub() *WebSocketHub {
	return s.wsHub
}

// Handler returns the bridge routes
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves the bridge on addr and blocks until Stop
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	go s.wsHub.Run()

	s.logger.WithField("addr", addr).Info("Session bridge listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	s.wsHub.Stop()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.config.CORSAllowedOrigins))

	// Health check (public, no auth required)
	r.Get("/health", s.healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiKeyAuthMiddleware(s.config.BridgeAPIKey))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			// Session
			r.Get("/session", s.getSessionHandler)
			r.Post("/session/next", s.nextStepHandler)
			r.Post("/session/previous", s.previousStepHandler)
			r.Post("/session/goto/{key}", s.goToStepHandler)
			r.Post("/session/dirty", s.markDirtyHandler)
			r.Post("/session/clean", s.markCleanHandler)
			r.Post("/session/save", s.saveHandler)
			r.Put("/session/autosave", s.autoSaveSettingsHandler)

			// History
			r.Get("/history", s.listHistoryHandler)
			r.Get("/history/{id}", s.getHistoryHandler)
			r.Get("/stats", s.getStatsHandler)
			r.Get("/errors", s.listErrorsHandler)
		})

		// WebSocket endpoint; long-lived so outside the timeout group
		r.Get("/ws", s.websocketHandler)
	})

	return r
}

// requestLogger logs each request through logrus
func requestLogger(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("Bridge request")
		})
	}
}

// corsMiddleware creates CORS middleware with the given allowed origins.
// Only explicitly configured origins are echoed back.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	exactOrigins := make(map[string]bool)
	var patterns []string

	for _, origin := range allowedOrigins {
		if strings.Contains(origin, "*") {
			patterns = append(patterns, origin)
		} else {
			exactOrigins[origin] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if origin != "" {
				if exactOrigins[origin] {
					allowed = true
				} else {
					for _, pattern := range patterns {
						if matchOriginPattern(origin, pattern) {
							allowed = true
							break
						}
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// apiKeyAuthMiddleware rejects requests without the configured API key.
// An empty key disables the check.
func apiKeyAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !keyMatches(providedAPIKey(r), apiKey) {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// providedAPIKey reads X-API-Key, then a Bearer token, then the api_key query
// parameter (browsers cannot set headers on websocket upgrades)
func providedAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("api_key")
}

func keyMatches(provided, expected string) bool {
	return provided != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// matchOriginPattern checks if an origin matches a pattern with wildcards
// e.g., "http://localhost:3000" matches "http://localhost:*"
func matchOriginPattern(origin, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(origin, prefix)
	}
	// Wildcard subdomain (e.g., "*.example.com")
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*")
		parts := strings.SplitN(origin, "://", 2)
		if len(parts) == 2 {
			host := strings.Split(parts[1], "/")[0]
			host = strings.Split(host, ":")[0]
			return strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".")
		}
	}
	return false
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// stepView is a step annotated with the session's view of it
type stepView struct {
	workflow.Step
	Completed bool `json:"completed"`
	Current   bool `json:"current"`
	Enterable bool `json:"enterable"`
}

type sessionView struct {
	ID       string            `json:"id"`
	State    workflow.State    `json:"state"`
	Steps    []stepView        `json:"steps"`
	Progress workflow.Progress `json:"progress"`
	Interval string            `json:"autoSaveInterval"`
}

func newSessionView(session *workflow.Session) sessionView {
	steps := session.Steps()
	views := make([]stepView, len(steps))
	for i, step := range steps {
		views[i] = stepView{
			Step:      step,
			Completed: session.IsStepCompleted(step.Key),
			Current:   session.IsStepCurrent(step.Key),
			Enterable: session.CanEnter(step.Key),
		}
	}

	return sessionView{
		ID:       session.ID(),
		State:    session.State(),
		Steps:    views,
		Progress: session.Progress(),
		Interval: session.AutoSaveInterval().String(),
	}
}

// activeSession returns the attached, open session or writes a 409
func (s *Server) activeSession(w http.ResponseWriter) *workflow.Session {
	session := s.Session()
	if session == nil {
		respondError(w, http.StatusConflict, "no active session")
		return nil
	}
	if session.IsClosed() {
		respondError(w, http.StatusConflict, "session closed")
		return nil
	}
	return session
}

// Handlers

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"session": s.Session() != nil,
	})
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := s.activeSession(w)
	if session == nil {
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) respondMove(w http.ResponseWriter, session *workflow.Session, moved bool) {
	respondJSON(w, http.StatusOK, map[string]any{
		"moved":       moved,
		"currentStep": session.CurrentStep(),
	})
}

func (s *Server) nextStepHandler(w http.ResponseWriter, r *http.Request) {
	session := s.activeSession(w)
	if session == nil {
		return
	}
	_, moved := session.NextStep()
	s.respondMove(w, session, moved)
}

func (s *Server) previousStepHandler(w http.ResponseWriter, r *http.Request) {
	session := s.activeSession(w)
	if session == nil {
		return
	}
	_, moved := session.PreviousStep()
	s.respondMove(w, session, moved)
}

func (s *Server) goToStepHandler(w http.ResponseWriter, r *http.Request) {
	session := s.activeSession(w)
	if session == nil {
		return
	}

	key := workflow.StepKey(chi.URLParam(r, "key"))
	known := false
	for _, step := range session.Steps() {
		if step.Key == key {
			known = true
			break
		}
	}
	if !known {
		respondError(w, http.StatusNotFound, "unknown step")
		return
	}

	s.respondMove(w, session, session.GoToStep(key))
}

func (s *Server) markDirtyHandler(w http.ResponseWriter, r *http.Request) {
	session := s.activeSession(w)
	if session == nil {
		return
	}
	session.MarkDirty()
	respondJSON(w, http.StatusOK, session.State())
}

func (s *Server) markCleanHandler(w http.ResponseWriter, r *http.Request) {
	session := s.activeSession(w)
	if session == nil {
		return
	}
	session.MarkClean()
	respondJSON(w, http.StatusOK, session.State())
}

func (s *Server) saveHandler(w http.ResponseWriter, r *http.Request) {
	session := s.activeSession(w)
	if session == nil {
		return
	}

	err := session.Save(r.Context())
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, session.State())
	case errors.Is(err, workflow.ErrSaveInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrClosed):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) autoSaveSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled  *bool  `json:"enabled"`
		Interval string `json:"interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var interval time.Duration
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d < MinAutoSaveInterval {
			respondError(w, http.StatusBadRequest, "interval must be a duration of at least 1s")
			return
		}
		interval = d
	}

	session := s.activeSession(w)
	if session == nil {
		return
	}

	if interval > 0 {
		session.SetAutoSaveInterval(interval)
	}
	if req.Enabled != nil {
		session.SetAutoSaveEnabled(*req.Enabled)
	}
	respondJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) listHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	filter := &storage.AttemptFilter{
		Limit:     limit,
		SessionID: r.URL.Query().Get("session"),
		Status:    storage.AttemptStatus(r.URL.Query().Get("status")),
	}
	if rx := r.URL.Query().Get("prescription"); rx != "" {
		if id, err := strconv.ParseInt(rx, 10, 64); err == nil {
			filter.PrescriptionID = id
		}
	}

	records, err := s.storage.ListAttempts(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*storage.AttemptRecord{}
	}

	count, _ := s.storage.CountAttempts(r.Context(), filter)

	respondJSON(w, http.StatusOK, map[string]any{
		"attempts": records,
		"count":    len(records),
		"total":    count,
	})
}

func (s *Server) getHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	record, err := s.storage.GetAttempt(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "attempt not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (s *Server) getStatsHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	stats, err := s.storage.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total_attempts":           stats.TotalAttempts,
		"saved":                    stats.SavedCount,
		"failed":                   stats.FailedCount,
		"success_rate":             stats.SuccessRate,
		"avg_duration":             stats.AvgDuration.Seconds(),
		"max_duration":             stats.MaxDuration.Seconds(),
		"reported_errors":          stats.ReportedErrors,
		"attempts_by_day":          stats.AttemptsByDay,
		"attempts_by_prescription": stats.AttemptsByPrescription,
	})
}

func (s *Server) listErrorsHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	reports, err := s.storage.ListErrorReports(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []*storage.ErrorReport{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"errors": reports,
		"count":  len(reports),
	})
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	s.wsHub.ServeWs(w, r)
}

// broadcastEvent forwards a session event to websocket clients
func (s *Server) broadcastEvent(ev workflow.Event) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      string(ev.Type),
		Data:      ev,
		Timestamp: ev.Time,
	})
}
