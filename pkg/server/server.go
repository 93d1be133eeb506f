// Package server exposes the tracker over HTTP: a liveness endpoint plus
// API-key-protected read and alarm endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/pkg/storage"
)

// RecordReader is the sink read path the server needs.
type RecordReader interface {
	MostRecentFor(ctx context.Context, deviceID string) (*storage.StoredRecord, error)
}

// TrackerStatus is the tracker view the server needs.
type TrackerStatus interface {
	State() trackagent.State
	Target() string
	TargetDevice() (trackagent.Device, bool)
}

// Config wires the server's collaborators.
type Config struct {
	Host string
	Port int
	// APIKey is the shared secret for protected endpoints. When empty the
	// protected endpoints fail closed with a misconfiguration error.
	APIKey   string
	Tracker  TrackerStatus
	Provider trackagent.DeviceProvider
	Records  RecordReader
}

// Server is the HTTP surface of the agent.
type Server struct {
	cfg    Config
	engine *gin.Engine
	server *http.Server
}

// New builds the server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Tracker == nil || cfg.Provider == nil || cfg.Records == nil {
		return nil, errors.New("server: tracker, provider and records are all required")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())

	s := &Server{cfg: cfg, engine: engine}

	engine.GET("/", s.handleIndex)

	protected := engine.Group("/", requireAPIKey(cfg.APIKey))
	protected.GET("/location", s.handleLocation)
	protected.GET("/status", s.handleStatus)
	protected.POST("/alarm", s.handleAlarm)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("http server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server shutdown")
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
		return nil
	}
}
