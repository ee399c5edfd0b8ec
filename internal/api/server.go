package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/ingest"
	"github.com/heimdex/heimdex-transcoder/internal/mediatool"
	"github.com/heimdex/heimdex-transcoder/internal/storage"
	"github.com/heimdex/heimdex-transcoder/internal/transcode"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	BindAddr string
	Port     int
	Ingest   ingest.IngestService
	Tokens   TokenStore
	// Local is set only for the filesystem backend; it enables the upload
	// and public object routes. Files lets the upload route refuse keys that
	// are already registered.
	Local          *storage.LocalGateway
	Files          SourceFileLookup
	MaxUploadBytes int64
	Doctor         *mediatool.CachedDoctor
	Runner         *transcode.Runner
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

// SourceFileLookup finds the source file registered under a storage key,
// returning nil when there is none.
type SourceFileLookup interface {
	GetSourceFileByKey(ctx context.Context, storageKey string) (*catalog.SourceFile, error)
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			// Uploads and object reads stream large bodies.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
