// Package ingest is the dispatch contract between clients and the
// transcoding pipeline: assets, upload grants, upload registration, job
// enqueueing and status.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/transcode"
	"github.com/heimdex/heimdex-transcoder/internal/upload"
)

var ErrInvalidAsset = errors.New("invalid asset")

type IngestService interface {
	CreateAsset(ctx context.Context, in NewAsset) (*catalog.Asset, error)
	GetAsset(ctx context.Context, id int64) (*catalog.Asset, error)
	IssueUpload(ctx context.Context, assetID int64, filename string) (*upload.Grant, error)
	VerifyAndRegister(ctx context.Context, assetID int64, storageKey, filename string) (*catalog.SourceFile, bool, error)
	EnqueueTranscode(ctx context.Context, sourceFileID int64) (*catalog.TranscodeJob, error)
	FileStatus(ctx context.Context, sourceFileID int64) (*FileStatus, error)
}

// NewAsset is the caller-supplied part of an asset.
type NewAsset struct {
	UserID      string   `json:"user_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// FileStatus is everything a client polls for while a file is processed.
type FileStatus struct {
	SourceFile *catalog.SourceFile   `json:"source_file"`
	Renditions []*catalog.Rendition  `json:"renditions"`
	Job        *catalog.TranscodeJob `json:"job,omitempty"`
	Progress   *transcode.Progress   `json:"progress,omitempty"`
}

type Service struct {
	repo        catalog.Repository
	issuer      *upload.Issuer
	verifier    *upload.Verifier
	tracker     transcode.Tracker
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger
}

func NewService(repo catalog.Repository, issuer *upload.Issuer, verifier *upload.Verifier, tracker transcode.Tracker, maxAttempts int, logger *slog.Logger) *Service {
	if tracker == nil {
		tracker = transcode.NopTracker{}
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		issuer:      issuer,
		verifier:    verifier,
		tracker:     tracker,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      logger,
	}
}

func (s *Service) CreateAsset(ctx context.Context, in NewAsset) (*catalog.Asset, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidAsset)
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidAsset)
	}

	slug := Slugify(title)
	n, err := s.repo.CountSlugs(ctx, slug)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		slug = fmt.Sprintf("%s-%d", slug, n)
	}

	asset := &catalog.Asset{
		UserID:      in.UserID,
		Title:       title,
		Description: in.Description,
		Slug:        slug,
		Tags:        in.Tags,
	}
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}

	s.logger.Info("asset created", "asset_id", asset.ID, "slug", slug)
	return asset, nil
}

func (s *Service) GetAsset(ctx context.Context, id int64) (*catalog.Asset, error) {
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("asset %d: %w", id, catalog.ErrNotFound)
	}
	return asset, nil
}

func (s *Service) IssueUpload(ctx context.Context, assetID int64, filename string) (*upload.Grant, error) {
	if _, err := s.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}
	return s.issuer.Issue(ctx, assetID, filename)
}

// VerifyAndRegister confirms the uploaded object and records it as a pending
// source file. Registering the same key again returns the existing row and
// created=false.
func (s *Service) VerifyAndRegister(ctx context.Context, assetID int64, storageKey, filename string) (*catalog.SourceFile, bool, error) {
	info, err := s.verifier.Verify(ctx, assetID, storageKey)
	if err != nil {
		return nil, false, err
	}

	if strings.TrimSpace(filename) == "" {
		filename = path.Base(storageKey)
	}

	file, created, err := s.repo.RegisterSourceFile(ctx, &catalog.SourceFile{
		AssetID:    assetID,
		Filename:   filename,
		StorageKey: storageKey,
		MimeType:   info.ContentType,
		SizeBytes:  info.Size,
	})
	if err != nil {
		return nil, false, fmt.Errorf("register source file: %w", err)
	}

	if created {
		s.logger.Info("source file registered", "asset_id", assetID, "source_file_id", file.ID, "bytes", info.Size)
	}
	return file, created, nil
}

// EnqueueTranscode queues a job for the source file. It fails with
// catalog.ErrAlreadyProcessing while another job for the file is in flight.
func (s *Service) EnqueueTranscode(ctx context.Context, sourceFileID int64) (*catalog.TranscodeJob, error) {
	job, err := s.repo.EnqueueTranscode(ctx, sourceFileID, s.maxAttempts, s.now())
	if err != nil {
		return nil, err
	}

	s.tracker.Update(ctx, sourceFileID, transcode.Progress{JobID: job.ID, Stage: string(catalog.StageQueued)})
	s.logger.Info("transcode enqueued", "source_file_id", sourceFileID, "job_id", job.ID)
	return job, nil
}

func (s *Service) FileStatus(ctx context.Context, sourceFileID int64) (*FileStatus, error) {
	file, err := s.repo.GetSourceFile(ctx, sourceFileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("source file %d: %w", sourceFileID, catalog.ErrNotFound)
	}

	renditions, err := s.repo.ListRenditions(ctx, sourceFileID)
	if err != nil {
		return nil, err
	}
	if renditions == nil {
		renditions = []*catalog.Rendition{}
	}

	job, err := s.repo.GetLatestJob(ctx, sourceFileID)
	if err != nil {
		return nil, err
	}

	status := &FileStatus{SourceFile: file, Renditions: renditions, Job: job}

	if file.Status == catalog.StatusProcessing {
		progress, err := s.tracker.Snapshot(ctx, sourceFileID)
		if err != nil {
			s.logger.Warn("progress lookup failed", "source_file_id", sourceFileID, "error", err)
		}
		status.Progress = progress
	}
	return status, nil
}

// Slugify lower-cases title and joins its letter and digit runs with dashes.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
