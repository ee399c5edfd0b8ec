package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/ingest"
	"github.com/heimdex/heimdex-transcoder/internal/mediatool"
	"github.com/heimdex/heimdex-transcoder/internal/storage"
	"github.com/heimdex/heimdex-transcoder/internal/upload"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeInvalidStorageKey  = "INVALID_STORAGE_KEY"
	CodeUnsupportedFormat  = "UNSUPPORTED_FORMAT"
	CodeObjectNotFound     = "OBJECT_NOT_FOUND"
	CodeObjectEmpty        = "OBJECT_EMPTY"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyProcessing  = "ALREADY_PROCESSING"
	CodeAlreadyCompleted   = "ALREADY_COMPLETED"
	CodeAlreadyRegistered  = "ALREADY_REGISTERED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeRunnerUnavailable  = "RUNNER_UNAVAILABLE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternal           = "INTERNAL_ERROR"
)

type HealthResponse struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	UptimeS    int64                   `json:"uptime_s"`
	ActiveJobs int                     `json:"active_jobs"`
	Running    bool                    `json:"running"`
	Paused     bool                    `json:"paused,omitempty"`
	Tools      *mediatool.Capabilities `json:"tools,omitempty"`
}

type CreateAssetResponse struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

type IssueUploadRequest struct {
	Filename string `json:"filename"`
}

// MinDeclaredFileSize is the smallest file_size a client may declare when
// registering an upload.
const MinDeclaredFileSize = 1 << 20

type RegisterFileRequest struct {
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename,omitempty"`
	Transcode  bool   `json:"transcode,omitempty"`
	FileSize   *int64 `json:"file_size,omitempty"`
}

type RegisterFileResponse struct {
	SourceFileID int64  `json:"source_file_id"`
	Status       string `json:"status"`
	SizeBytes    int64  `json:"size_bytes"`
	FileSize     string `json:"file_size"`
	JobID        string `json:"job_id,omitempty"`
}

type RunnerStateResponse struct {
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
}

type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

type UploadAcceptedResponse struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeServiceError maps dispatch and gateway errors onto status codes.
// Anything unrecognised is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), CodePayloadTooLarge)
	case errors.Is(err, errUploadRegistered):
		WriteError(w, http.StatusConflict, err.Error(), CodeAlreadyRegistered)
	case errors.Is(err, upload.ErrInvalidStorageKey):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInvalidStorageKey)
	case errors.Is(err, upload.ErrUnsupportedFormat):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeUnsupportedFormat)
	case errors.Is(err, upload.ErrObjectNotFound):
		WriteError(w, http.StatusNotFound, "uploaded object not found", CodeObjectNotFound)
	case errors.Is(err, upload.ErrObjectEmpty):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeObjectEmpty)
	case errors.Is(err, upload.ErrGatewayUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "object store unavailable", CodeGatewayUnavailable)
	case errors.Is(err, ingest.ErrInvalidAsset):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
	case errors.Is(err, catalog.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), CodeNotFound)
	case errors.Is(err, catalog.ErrAlreadyProcessing):
		WriteError(w, http.StatusConflict, err.Error(), CodeAlreadyProcessing)
	case errors.Is(err, catalog.ErrAlreadyCompleted):
		WriteError(w, http.StatusConflict, err.Error(), CodeAlreadyCompleted)
	case errors.Is(err, storage.ErrGrantExpired), errors.Is(err, storage.ErrGrantInvalid):
		WriteError(w, http.StatusUnauthorized, err.Error(), CodeUnauthorized)
	case errors.Is(err, storage.ErrGrantMismatch):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", CodeInternal)
	}
}
