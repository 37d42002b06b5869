// Package opsapi provides the HTTP/WebSocket control surface for the ACE
// trading loop, grounded on the teacher's internal/api (Server/router shape
// from server.go, Hub/Client broadcast shape from websocket.go) repurposed
// from backtest-job control to ACE-cycle control: trigger a DailyCycle or
// WeeklyCycle run, inspect the current ArtifactSummary, and stream cycle
// events to connected WebSocket clients.
package opsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CycleRunner is the subset of internal/cycle's orchestrators the control
// surface depends on — kept as an interface so opsapi can be tested without
// a real Generator/Executor/Reflector/Curator wired behind it.
type CycleRunner interface {
	RunDaily(ctx context.Context, now time.Time) error
	RunWeekly(ctx context.Context, now time.Time) error
}

// SummaryProvider reports the current ArtifactSummary (spec.md §6's
// top-level bundle index).
type SummaryProvider interface {
	ArtifactSummary(ctx context.Context) (types.ArtifactSummary, error)
}

// Server is the HTTP/WebSocket control surface.
type Server struct {
	logger     *zap.Logger
	cfg        types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub
	runner     CycleRunner
	summaries  SummaryProvider
}

// NewServer wires routes against runner/summaries and starts the Hub's
// broadcast loop.
func NewServer(logger *zap.Logger, cfg types.ServerConfig, runner CycleRunner, summaries SummaryProvider) *Server {
	s := &Server{
		logger:    logger.Named("opsapi"),
		cfg:       cfg,
		router:    mux.NewRouter(),
		hub:       NewHub(logger.Named("opsapi-hub")),
		runner:    runner,
		summaries: summaries,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	go s.hub.Run()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/artifact-summary", s.handleArtifactSummary).Methods("GET")
	s.router.HandleFunc("/api/v1/cycle/daily", s.handleRunDaily).Methods("POST")
	s.router.HandleFunc("/api/v1/cycle/weekly", s.handleRunWeekly).Methods("POST")
	s.router.HandleFunc(s.cfg.WebSocketPath, s.handleWebSocket)
	if s.cfg.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
}

// Start begins serving; it blocks until the listener errors or Stop closes
// the server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting opsapi server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the mux.Router directly for tests that want to drive
// requests through httptest.NewServer without binding a real port.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleArtifactSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summaries.ArtifactSummary(r.Context())
	if err != nil {
		s.logger.Error("failed to load artifact summary", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRunDaily(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	if err := s.runner.RunDaily(r.Context(), now); err != nil {
		s.logger.Error("daily cycle failed", zap.Error(err))
		s.hub.Broadcast(MsgTypeCycleEvent, map[string]string{"cycle": "daily", "status": "failed", "error": err.Error()})
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.hub.Broadcast(MsgTypeCycleEvent, map[string]string{"cycle": "daily", "status": "completed"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleRunWeekly(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	if err := s.runner.RunWeekly(r.Context(), now); err != nil {
		s.logger.Error("weekly cycle failed", zap.Error(err))
		s.hub.Broadcast(MsgTypeCycleEvent, map[string]string{"cycle": "weekly", "status": "failed", "error": err.Error()})
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.hub.Broadcast(MsgTypeCycleEvent, map[string]string{"cycle": "weekly", "status": "completed"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
