// Package gateway exposes the HTTP and websocket surface: health and catalog
// endpoints, the mock text responder, metrics, and the voice session
// upgrade handlers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michalmar/azure-ai-voicelive/internal/assistant"
	"github.com/michalmar/azure-ai-voicelive/internal/catalog"
	"github.com/michalmar/azure-ai-voicelive/internal/config"
	"github.com/michalmar/azure-ai-voicelive/internal/functions"
	"github.com/michalmar/azure-ai-voicelive/internal/observability"
)

// Server hosts the HTTP API and the websocket voice endpoints.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	registry *functions.Registry
	version  string

	// dial opens the upstream Voice Live connection for one session.
	// Injectable so tests can run sessions against a fake remote.
	dial DialFunc

	// needsAPIKey is set when dial points at the real endpoint, so the
	// websocket handler can reject sessions before a doomed dial.
	needsAPIKey bool

	httpServer   *http.Server
	httpListener net.Listener
	promRegistry *prometheus.Registry
}

// Options configures a gateway server.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *functions.Registry
	Version  string
	Dial     DialFunc
}

// New builds a gateway server. A nil Dial falls back to dialing the real
// Voice Live endpoint from config.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("gateway: function registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	promReg := prometheus.NewRegistry()
	s := &Server{
		cfg:          opts.Config,
		logger:       logger,
		metrics:      observability.NewMetrics(promReg),
		registry:     opts.Registry,
		version:      opts.Version,
		dial:         opts.Dial,
		promRegistry: promReg,
	}
	if s.dial == nil {
		s.dial = s.dialVoiceLive
		s.needsAPIKey = true
	}
	if s.version == "" {
		s.version = "dev"
	}
	return s, nil
}

// Handler builds the route table. Exposed separately so tests can drive the
// mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/voices", s.handleVoices)
	mux.HandleFunc("/api/locales", s.handleLocales)
	mux.HandleFunc("/api/interact", s.handleInteract)
	mux.HandleFunc("/ws/voice", s.handleVoiceWS)
	mux.HandleFunc("/ws/mock", s.handleMockWS)
	return mux
}

// Start begins serving in the background. Use Stop for graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpListener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("gateway listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	err := s.httpServer.Shutdown(ctx)
	s.httpServer = nil
	s.httpListener = nil
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/healthz" {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"voices": catalog.Voices()})
}

func (s *Server) handleLocales(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"locales": catalog.Locales()})
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	mock := assistant.NewMock(time.Now().UnixNano())
	s.writeJSON(w, http.StatusOK, mock.HandleInteraction(req.Message))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}
