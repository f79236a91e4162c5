package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"swapguard/internal/config"

	"gitlab.com/nevasik7/alerting/logger"
)

const defaultAddr = ":8080"

type Server struct {
	log logger.Logger
	srv *nethttp.Server
}

func NewServer(log logger.Logger, cfg *config.HTTPConfig, handler nethttp.Handler) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("http config is required to the server")
	}
	if handler == nil {
		return nil, errors.New("handler is required to the server")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}

	return &Server{
		log: log,
		srv: &nethttp.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       orDefault(cfg.ReadTimeout, 10*time.Second),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      orDefault(cfg.WriteTimeout, 15*time.Second),
			IdleTimeout:       orDefault(cfg.IdleTimeout, 60*time.Second),
		},
	}, nil
}

func (s *Server) Addr() string { return s.srv.Addr }

// Start blocks until the server stops; nethttp.ErrServerClosed means a clean shutdown
func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
