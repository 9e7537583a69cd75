package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPConfig configures the HTTP/WebSocket MCP frontend, adapted from the
// teacher's server.Config (internal/server/server.go) to DAEL's narrower
// surface: one JSON-RPC endpoint plus WebSocket streaming, rather than a
// REST API per workflow.
type HTTPConfig struct {
	Host            string
	Port            int
	EnableMetrics   bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultHTTPConfig mirrors the teacher's DefaultConfig.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:            "localhost",
		Port:            8080,
		EnableMetrics:   true,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// HTTPServer serves MCP `tools/list`/`tools/call` over a single JSON-RPC
// POST endpoint and a streaming WebSocket endpoint, grounded on teacher
// `internal/server/server.go`'s mux/prometheus wiring.
type HTTPServer struct {
	config     HTTPConfig
	dispatcher *Dispatcher
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
	server     *http.Server
}

// NewHTTPServer constructs an HTTPServer bound to dispatcher.
func NewHTTPServer(config HTTPConfig, dispatcher *Dispatcher, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		config:     config,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "mcpserver_http").Logger(),
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (s *HTTPServer) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/mcp", s.handleRPC).Methods(http.MethodPost)
	router.HandleFunc("/mcp/ws", s.handleWebSocket).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.config.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	return router
}

// Start begins serving in the background; it returns once the listener is
// up, mirroring the teacher's Start/ListenAndServe-in-a-goroutine shape.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info().Str("addr", addr).Bool("metrics", s.config.EnableMetrics).Msg("starting MCP HTTP server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("MCP HTTP server stopped unexpectedly")
		}
	}()

	return nil
}

// Stop shuts the server down gracefully within ctx's deadline.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("shutting down MCP HTTP server")
	return s.server.Shutdown(ctx)
}

// ServeUntilSignal starts the server and blocks until SIGINT/SIGTERM,
// shutting down gracefully within config.ShutdownTimeout — the teacher's
// StartWithGracefulShutdown pattern.
func (s *HTTPServer) ServeUntilSignal() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Stop(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(Response{
			JSONRPC: jsonrpcVersion,
			Error:   &RPCError{Code: codeParseError, Message: err.Error()},
		})
		return
	}

	resp := s.dispatcher.Handle(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			_ = conn.WriteJSON(Response{JSONRPC: jsonrpcVersion, Error: &RPCError{Code: codeParseError, Message: err.Error()}})
			continue
		}

		resp := s.dispatcher.Handle(r.Context(), req)
		if resp.JSONRPC == "" {
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}
