package catalog

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Status is shared by source files and renditions.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Stage names the step a transcode job is in.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageDownloading Stage = "downloading"
	StageProbing     Stage = "probing"
	StageEncoding    Stage = "encoding"
	StageThumbnail   Stage = "thumbnail_extracting"
	StagePublishing  Stage = "publishing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

type Asset struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Slug         string    `json:"slug,omitempty"`
	Tags         []string  `json:"tags"`
	IsPublished  bool      `json:"is_published"`
	ThumbnailKey string    `json:"thumbnail_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProbeMetadata is the technical metadata read from a source file.
type ProbeMetadata struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Codec           string  `json:"codec"`
	BitrateKbps     int64   `json:"bitrate_kbps"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps,omitempty"`
	Degraded        bool    `json:"degraded,omitempty"`
}

type SourceFile struct {
	ID                    int64          `json:"id"`
	AssetID               int64          `json:"asset_id"`
	Filename              string         `json:"filename"`
	StorageKey            string         `json:"storage_key"`
	MimeType              string         `json:"mime_type"`
	SizeBytes             int64          `json:"size_bytes"`
	Status                Status         `json:"status"`
	Error                 string         `json:"error,omitempty"`
	Metadata              *ProbeMetadata `json:"metadata,omitempty"`
	ProcessingStartedAt   *time.Time     `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time     `json:"processing_completed_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

type Rendition struct {
	ID           int64     `json:"id"`
	SourceFileID int64     `json:"source_file_id"`
	Name         string    `json:"name"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	BitrateKbps  int       `json:"bitrate_kbps"`
	CodecVideo   string    `json:"codec_video"`
	CodecAudio   string    `json:"codec_audio"`
	Format       string    `json:"format"`
	StorageKey   string    `json:"storage_key"`
	SizeBytes    int64     `json:"size_bytes"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TranscodeJob is one durable dispatch of a source file through the pipeline.
// Attempt counts claims; it is 0 until the runner first picks the job up.
type TranscodeJob struct {
	ID           string    `json:"id"`
	SourceFileID int64     `json:"source_file_id"`
	Status       string    `json:"status"`
	Stage        Stage     `json:"stage"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
	NextRunAt    time.Time `json:"next_run_at"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
