// Package server exposes the analytics engine over HTTP: CSV uploads,
// single-trade appends, on-demand metric reports and a websocket feed that
// pushes a fresh report to subscribers whenever their partition changes.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/quantora/trademetrics/internal/logger"
	"github.com/quantora/trademetrics/internal/store"
	"github.com/quantora/trademetrics/internal/version"
	"go.uber.org/zap"
)

// Server hosts the HTTP and websocket endpoints.
type Server struct {
	config Config
	logger *logger.Logger
	store  *store.Store

	upgrader websocket.Upgrader
	hub      *hub

	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires a Server with its store and websocket hub.
func NewServer(config Config, log *logger.Logger, st *store.Store) *Server {
	return &Server{
		config: config,
		logger: log,
		store:  st,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		hub: newHub(),
	}
}

// Start begins serving on the given address. If address is empty or ":0",
// a random available port is used.
func (s *Server) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener

	router := mux.NewRouter()
	router.Use(s.requestLogger)

	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	authed := router.PathPrefix("/{token}").Subrouter()
	authed.Use(s.tokenCheck, s.clientVersionCheck)
	authed.HandleFunc("/check_and_upload", s.handleCheckAndUpload).Methods("POST")
	authed.HandleFunc("/transactions", s.handleTransaction).Methods("POST")
	authed.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	authed.HandleFunc("/metrics/ws", s.handleMetricsWebSocket).Methods("GET")
	authed.HandleFunc("/clients", s.handleClients).Methods("GET")

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("Server started", zap.String("address", s.Address()))

	return nil
}

// Stop closes websocket connections and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.closeAll()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Address returns the address the server is listening on.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the base URL for the server.
func (s *Server) BaseURL() string {
	return "http://" + s.Address()
}

// WebSocketURL returns the websocket URL for the server.
func (s *Server) WebSocketURL() string {
	return "ws://" + s.Address()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Debug("Request handled",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) tokenCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["token"] != s.config.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"status":  "error",
				"message": "invalid token",
			})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientVersionCheck rejects uploading clients whose version is incompatible
// with this server. Clients that send no version header are let through.
func (s *Server) clientVersionCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if clientVersion := r.Header.Get("X-Client-Version"); clientVersion != "" {
			if err := version.CheckClientCompatibility(version.GetVersion(), clientVersion); err != nil {
				writeJSON(w, http.StatusUpgradeRequired, map[string]string{
					"status":  "error",
					"message": err.Error(),
				})

				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
