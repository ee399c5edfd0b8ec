package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/heimdex/heimdex-transcoder/internal/api"
	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/config"
	"github.com/heimdex/heimdex-transcoder/internal/db"
	"github.com/heimdex/heimdex-transcoder/internal/ingest"
	"github.com/heimdex/heimdex-transcoder/internal/logging"
	"github.com/heimdex/heimdex-transcoder/internal/mediatool"
	"github.com/heimdex/heimdex-transcoder/internal/storage"
	"github.com/heimdex/heimdex-transcoder/internal/transcode"
	"github.com/heimdex/heimdex-transcoder/internal/upload"
)

const signingKeyConfig = "upload_signing_key"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.ScratchDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex transcoder",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", cfg.DataDir(),
		"backend", cfg.StorageBackend(),
		"workers", cfg.Workers(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	authToken, err := ensureSecret(repo, api.AuthTokenKey)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	logger.Info("api token ready", "token", logging.SanitizeToken(authToken))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, local, closeGateway, err := openGateway(ctx, cfg, repo)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}
	defer closeGateway()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := transcode.NewMetrics(reg)

	tools := metrics.InstrumentRunner(mediatool.NewSubprocessRunner(logger))
	doctor := mediatool.NewCachedDoctor(tools, cfg.FFmpegPath(), cfg.FFprobePath(), cfg.TimeoutDoctor(), logger)
	if caps := doctor.Refresh(ctx); !caps.Ready() {
		logger.Warn("media tools unavailable, jobs will fail until installed",
			"ffmpeg_error", caps.FFmpeg.Error,
			"ffprobe_error", caps.FFprobe.Error,
		)
	}

	profiles := mediatool.DefaultProfiles()
	if path := cfg.ProfilesFile(); path != "" {
		profiles, err = mediatool.LoadProfiles(path)
		if err != nil {
			return fmt.Errorf("failed to load profiles: %w", err)
		}
		logger.Info("rendition profiles loaded", "path", path, "count", len(profiles))
	}

	tracker := openTracker(ctx, cfg.RedisAddr(), logger)

	orch := transcode.NewOrchestrator(
		repo,
		gateway,
		mediatool.NewProber(tools, cfg.FFprobePath(), cfg.TimeoutProbe()),
		mediatool.NewEncoder(tools, cfg.FFmpegPath(), cfg.TimeoutEncode()),
		mediatool.NewThumbnailer(tools, cfg.FFmpegPath(), cfg.TimeoutThumbnail()),
		tracker,
		metrics,
		transcode.OrchestratorConfig{
			ScratchRoot:        cfg.ScratchDir(),
			Profiles:           profiles,
			AllowDegradedProbe: cfg.AllowDegradedProbe(),
		},
		logger,
	)

	runner := transcode.NewRunner(orch, repo, tracker, metrics, transcode.RunnerConfig{
		Workers:      cfg.Workers(),
		PollInterval: cfg.PollInterval(),
		JobTimeout:   cfg.TimeoutJob(),
		Retry: transcode.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts(),
			Backoff:     cfg.Backoff(),
		},
	}, logger)
	go runner.Start(ctx)

	svc := ingest.NewService(
		repo,
		upload.NewIssuer(gateway, cfg.UploadTTL(), logger),
		upload.NewVerifier(gateway, repo),
		tracker,
		cfg.MaxAttempts(),
		logger,
	)

	apiServer := api.NewServer(api.ServerConfig{
		BindAddr:       cfg.BindAddr(),
		Port:           cfg.Port(),
		Ingest:         svc,
		Tokens:         repo,
		Local:          local,
		Files:          repo,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Doctor:         doctor,
		Runner:         runner,
		Gatherer:       reg,
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	// Stop claiming, then give in-flight jobs the drain window. Anything still
	// running is marked interrupted on the next start.
	cancel()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout())
	defer drainCancel()
	if err := runner.Wait(drainCtx); err != nil {
		logger.Warn("drain timeout reached", "active_jobs", runner.ActiveJobs())
	}

	logger.Info("shutdown complete")
	return nil
}

// openGateway builds the configured object store. local is non-nil only for
// the filesystem backend.
func openGateway(ctx context.Context, cfg config.Config, repo catalog.Repository) (storage.Gateway, *storage.LocalGateway, func(), error) {
	noop := func() {}

	switch cfg.StorageBackend() {
	case config.BackendS3:
		s3cfg := cfg.S3()
		gw, err := storage.NewS3Gateway(ctx, storage.S3Options{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
		})
		return gw, nil, noop, err

	case config.BackendGCS:
		gcs := cfg.GCS()
		gw, err := storage.NewGCSGateway(ctx, gcs.Bucket, gcs.CredentialsFile)
		if err != nil {
			return nil, nil, noop, err
		}
		return gw, nil, func() { gw.Close() }, nil

	default:
		key := cfg.UploadSigningKey()
		if len(key) == 0 {
			stored, err := ensureSecret(repo, signingKeyConfig)
			if err != nil {
				return nil, nil, noop, err
			}
			key = []byte(stored)
		}
		signer, err := storage.NewGrantSigner(key)
		if err != nil {
			return nil, nil, noop, err
		}
		gw, err := storage.NewLocalGateway(cfg.ObjectsDir(), cfg.PublicBaseURL(), signer)
		if err != nil {
			return nil, nil, noop, err
		}
		return gw, gw, noop, nil
	}
}

// openTracker returns a Redis progress cache when configured and reachable.
func openTracker(ctx context.Context, addr string, logger *slog.Logger) transcode.Tracker {
	if addr == "" {
		return transcode.NopTracker{}
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, progress cache disabled", "addr", addr, "error", err)
		client.Close()
		return transcode.NopTracker{}
	}

	logger.Info("progress cache enabled", "addr", addr)
	return transcode.NewRedisTracker(client)
}

// ensureSecret returns the config value for key, generating and storing a
// random 32-byte hex secret on first use.
func ensureSecret(repo catalog.Repository, key string) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(secretBytes)

	if err := repo.SetConfig(ctx, key, secret); err != nil {
		return "", err
	}

	return secret, nil
}
