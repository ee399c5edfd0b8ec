package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/ingest"
	"github.com/heimdex/heimdex-transcoder/internal/storage"
	"github.com/heimdex/heimdex-transcoder/internal/transcode"
)

// maxJSONBody caps request bodies on the JSON routes.
const maxJSONBody = 1 << 20

var errUploadRegistered = errors.New("upload key is already registered")

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// The grant token is the credential for these two.
	if cfg.Local != nil {
		r.Put("/uploads/{token}", acceptUploadHandler(cfg))
		r.Get("/objects/*", publicObjectHandler(cfg))
		r.Head("/objects/*", publicObjectHandler(cfg))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Post("/assets", createAssetHandler(cfg))
		r.Get("/assets/{id}", getAssetHandler(cfg))
		r.Post("/assets/{id}/uploads", issueUploadHandler(cfg))
		r.Post("/assets/{id}/files", registerFileHandler(cfg))
		r.Post("/files/{id}/transcode", enqueueHandler(cfg))
		r.Get("/files/{id}", fileStatusHandler(cfg))

		r.Post("/runner/pause", runnerHandler(cfg, (*transcode.Runner).Pause))
		r.Post("/runner/resume", runnerHandler(cfg, (*transcode.Runner).Resume))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}

		if cfg.Runner != nil {
			resp.ActiveJobs = cfg.Runner.ActiveJobs()
			resp.Running = cfg.Runner.IsRunning()
			resp.Paused = cfg.Runner.IsPaused()
		}

		if cfg.Doctor != nil {
			// The startup check fills the cache; only check here if it never ran.
			resp.Tools = cfg.Doctor.Peek()
			if resp.Tools == nil {
				resp.Tools = cfg.Doctor.Get(r.Context())
			}
			if !resp.Tools.Ready() {
				resp.Status = "degraded"
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// runnerHandler applies a pause or resume and reports the runner state.
func runnerHandler(cfg ServerConfig, apply func(*transcode.Runner)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "job runner not configured", CodeRunnerUnavailable)
			return
		}
		apply(cfg.Runner)
		WriteJSON(w, http.StatusOK, RunnerStateResponse{
			Running: cfg.Runner.IsRunning(),
			Paused:  cfg.Runner.IsPaused(),
		})
	}
}

// acceptUploadHandler stores a local-backend upload. The body is capped at
// MaxUploadBytes and a key that already has a source file is never rewritten.
func acceptUploadHandler(cfg ServerConfig) http.HandlerFunc {
	guard := func(ctx context.Context, key string) error {
		if cfg.Files == nil {
			return nil
		}
		sf, err := cfg.Files.GetSourceFileByKey(ctx, key)
		if err != nil {
			return err
		}
		if sf != nil {
			return fmt.Errorf("%w: %s", errUploadRegistered, key)
		}
		return nil
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		var body io.Reader = r.Body
		if cfg.MaxUploadBytes > 0 {
			if r.ContentLength > cfg.MaxUploadBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", cfg.MaxUploadBytes), CodePayloadTooLarge)
				return
			}
			body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}

		info, err := cfg.Local.AcceptUpload(r.Context(), token, r.Method, r.Header.Get("Content-Type"), guard, body)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusOK, UploadAcceptedResponse{Key: info.Key, Size: info.Size})
	}
}

func publicObjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")

		f, info, err := cfg.Local.OpenPublic(key)
		if errors.Is(err, storage.ErrObjectNotFound) {
			WriteError(w, http.StatusNotFound, "object not found", CodeNotFound)
			return
		}
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		defer f.Close()

		if err := storage.ServeObject(w, r, f, info); err != nil {
			cfg.Logger.Debug("object serve interrupted", "key", key, "error", err)
		}
	}
}

func createAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingest.NewAsset
		if !decodeBody(w, r, &req) {
			return
		}

		asset, err := cfg.Ingest.CreateAsset(r.Context(), req)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusCreated, CreateAssetResponse{ID: asset.ID, Slug: asset.Slug})
	}
}

func getAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		asset, err := cfg.Ingest.GetAsset(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusOK, asset)
	}
}

func issueUploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req IssueUploadRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Filename == "" {
			WriteError(w, http.StatusBadRequest, "filename is required", CodeBadRequest)
			return
		}

		grant, err := cfg.Ingest.IssueUpload(r.Context(), id, req.Filename)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusCreated, grant)
	}
}

// registerFileHandler confirms an upload. Re-registering the same key is
// answered with 200 and the existing row; with transcode set, a job that is
// already in flight or done is not an error.
func registerFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req RegisterFileRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.StorageKey == "" {
			WriteError(w, http.StatusBadRequest, "storage_key is required", CodeBadRequest)
			return
		}
		if req.FileSize != nil && *req.FileSize < MinDeclaredFileSize {
			WriteError(w, http.StatusBadRequest, "file_size must be at least 1 MB", CodeBadRequest)
			return
		}

		file, created, err := cfg.Ingest.VerifyAndRegister(r.Context(), id, req.StorageKey, req.Filename)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		resp := RegisterFileResponse{
			SourceFileID: file.ID,
			Status:       string(file.Status),
			SizeBytes:    file.SizeBytes,
			FileSize:     humanize.IBytes(uint64(max(file.SizeBytes, 0))),
		}

		if req.Transcode {
			job, err := cfg.Ingest.EnqueueTranscode(r.Context(), file.ID)
			switch {
			case err == nil:
				resp.JobID = job.ID
				resp.Status = string(catalog.StatusProcessing)
			case errors.Is(err, catalog.ErrAlreadyProcessing), errors.Is(err, catalog.ErrAlreadyCompleted):
			default:
				writeServiceError(w, cfg.Logger, err)
				return
			}
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		WriteJSON(w, status, resp)
	}
}

func enqueueHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		job, err := cfg.Ingest.EnqueueTranscode(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, EnqueueResponse{JobID: job.ID})
	}
}

func fileStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		status, err := cfg.Ingest.FileStatus(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusOK, status)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid id", CodeBadRequest)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
		return false
	}
	return true
}
