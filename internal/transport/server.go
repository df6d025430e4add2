// internal/transport/server.go
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownTimeout = 10 * time.Second

// Server exposes the hub over HTTP.
type Server struct {
	cfg        config.TransportConfig
	hub        *Hub
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer builds the router: a health probe and the websocket endpoint.
func NewServer(cfg config.TransportConfig, hub *Hub, auth *Authenticator, logger *zap.Logger) *Server {
	s := &Server{cfg: cfg, hub: hub, logger: logger.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	path := cfg.Path
	if path == "" {
		path = "/ws"
	}
	r.With(auth.Middleware).Get(path, hub.ServeWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.Clients(),
	})
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Websocket server listening", zap.String("address", s.cfg.ListenAddr), zap.String("path", s.cfg.Path))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down websocket server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}
	<-errCh
	return nil
}
