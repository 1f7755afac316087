package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/system"
	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

// Service wraps the API handler in an http.Server and fits the
// orchestrator process's system.Service lifecycle, grounded on the
// teacher's httpapi.Service.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
}

// NewService builds a Service listening on addr once started.
func NewService(addr string, cfg Config) *Service {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("http")
	}
	cfg.Log = log
	return &Service{
		addr:    addr,
		handler: NewHandler(cfg),
		log:     log,
	}
}

var _ system.Service = (*Service)(nil)

func (s *Service) Name() string { return "http" }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open past any fixed write deadline
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithField("error", err.Error()).Error("http server error")
		}
	}()
	s.log.WithField("addr", s.addr).Info("http server started")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
