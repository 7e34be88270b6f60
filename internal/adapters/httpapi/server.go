package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/rules"
)

const maxMessageBytes = 30 * 1024 * 1024

// RuleSetSource lists the rule sets the engine evaluates
type RuleSetSource interface {
	RuleSets() []rules.RuleSet
}

// RuleSetInfo is the public description of a rule set
type RuleSetInfo struct {
	Label       string   `json:"label"`
	Threshold   float64  `json:"threshold"`
	Cap         float64  `json:"cap"`
	MoveEnabled bool     `json:"move_enabled"`
	Rules       []string `json:"rules"`
}

// Server is the HTTP admin API
type Server struct {
	addr    string
	service *core.TriageService
	sets    RuleSetSource
	logger  *zap.Logger
	server  *http.Server
}

// New creates a new HTTP API server
func New(addr string, service *core.TriageService, sets RuleSetSource, logger *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		service: service,
		sets:    sets,
		logger:  logger,
	}
}

// Start listens in the background
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP API server", zap.String("address", s.addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP API server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP API server: %w", err)
	}
	return nil
}

// Router configures all HTTP routes and middleware
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// registered on the root router so a method mismatch answers 405
	router.HandleFunc("/v1/classify", s.handleClassify).Methods("POST")
	router.HandleFunc("/v1/rulesets", s.handleRuleSets).Methods("GET")

	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "Message too large")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		id = uuid.NewString()
	}

	_, result, err := s.service.ProcessMessage(r.Context(), id, bytes.NewReader(raw))
	if err != nil {
		s.logger.Warn("HTTP classify failed", zap.String("message_id", id), zap.Error(err))
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRuleSets(w http.ResponseWriter, _ *http.Request) {
	sets := s.sets.RuleSets()
	infos := make([]RuleSetInfo, 0, len(sets))
	for _, set := range sets {
		ids := make([]string, len(set.Rules))
		for i, item := range set.Rules {
			ids[i] = item.ID
		}
		infos = append(infos, RuleSetInfo{
			Label:       set.Label,
			Threshold:   set.Threshold,
			Cap:         set.Cap(),
			MoveEnabled: set.MoveEnabled,
			Rules:       ids,
		})
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Failed to encode HTTP response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
