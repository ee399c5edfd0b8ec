// Package transcode drives a source file through download, probe, encode,
// thumbnail and publish, and runs those jobs from the durable queue.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/logging"
	"github.com/heimdex/heimdex-transcoder/internal/mediatool"
	"github.com/heimdex/heimdex-transcoder/internal/storage"
)

type Prober interface {
	Probe(ctx context.Context, src string) (*mediatool.ProbeResult, error)
}

type Encoder interface {
	Encode(ctx context.Context, src, out string, p mediatool.Profile) (int64, error)
}

type Thumbnailer interface {
	Extract(ctx context.Context, src, out string) error
}

// JobContext is fixed when a job attempt starts and handed to every stage.
type JobContext struct {
	JobID      string
	Attempt    int
	SourceFile catalog.SourceFile
	AssetID    int64
	ScratchDir string
	Profiles   []mediatool.Profile
	Logger     *slog.Logger
}

func (jc JobContext) sourcePath() string {
	return filepath.Join(jc.ScratchDir, "source"+path.Ext(jc.SourceFile.StorageKey))
}

func (jc JobContext) renditionPath(profile string) string {
	return filepath.Join(jc.ScratchDir, "renditions", profile+"."+catalog.RenditionFormat)
}

func (jc JobContext) thumbnailPath() string {
	return filepath.Join(jc.ScratchDir, catalog.ThumbnailName)
}

type OrchestratorConfig struct {
	ScratchRoot        string
	Profiles           []mediatool.Profile
	AllowDegradedProbe bool
}

type Orchestrator struct {
	repo        catalog.Repository
	gateway     storage.Gateway
	prober      Prober
	encoder     Encoder
	thumbnailer Thumbnailer
	tracker     Tracker
	metrics     *Metrics
	cfg         OrchestratorConfig
	logger      *slog.Logger
}

func NewOrchestrator(
	repo catalog.Repository,
	gateway storage.Gateway,
	prober Prober,
	encoder Encoder,
	thumbnailer Thumbnailer,
	tracker Tracker,
	metrics *Metrics,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if tracker == nil {
		tracker = NopTracker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = mediatool.DefaultProfiles()
	}
	return &Orchestrator{
		repo:        repo,
		gateway:     gateway,
		prober:      prober,
		encoder:     encoder,
		thumbnailer: thumbnailer,
		tracker:     tracker,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logging.WithComponent(logger, "orchestrator"),
	}
}

// Profiles returns the rendition ladder in encode order.
func (o *Orchestrator) Profiles() []mediatool.Profile {
	return o.cfg.Profiles
}

type encodedOutput struct {
	profile mediatool.Profile
	path    string
	key     string
}

// Run executes one attempt of job. The source file is completed before Run
// returns nil; on error nothing has been published for the file unless the
// failure happened while publishing.
func (o *Orchestrator) Run(ctx context.Context, job *catalog.TranscodeJob) error {
	sf, err := o.repo.GetSourceFile(ctx, job.SourceFileID)
	if err != nil {
		return fmt.Errorf("load source file %d: %w", job.SourceFileID, err)
	}
	if sf == nil {
		return fmt.Errorf("source file %d: %w", job.SourceFileID, ErrNotFoundReference)
	}
	asset, err := o.repo.GetAsset(ctx, sf.AssetID)
	if err != nil {
		return fmt.Errorf("load asset %d: %w", sf.AssetID, err)
	}
	if asset == nil {
		return fmt.Errorf("asset %d: %w", sf.AssetID, ErrNotFoundReference)
	}

	scratch := filepath.Join(o.cfg.ScratchRoot, fmt.Sprintf("%s-%d", job.ID, job.Attempt))
	if err := os.MkdirAll(filepath.Join(scratch, "renditions"), 0755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	jc := JobContext{
		JobID:      job.ID,
		Attempt:    job.Attempt,
		SourceFile: *sf,
		AssetID:    asset.ID,
		ScratchDir: scratch,
		Profiles:   o.cfg.Profiles,
		Logger:     logging.WithSourceFileID(logging.WithJobID(o.logger, job.ID), sf.ID),
	}

	jc.Logger.Info("transcode started", "attempt", jc.Attempt, "storage_key", sf.StorageKey)

	if err := o.download(ctx, jc); err != nil {
		return err
	}
	if err := o.probe(ctx, jc); err != nil {
		return err
	}
	outputs, err := o.encode(ctx, jc)
	if err != nil {
		return err
	}
	thumbnail := o.thumbnail(ctx, jc)
	if err := o.publish(ctx, jc, outputs, thumbnail); err != nil {
		return err
	}

	o.enter(ctx, jc, catalog.StageDone, "", 0)
	jc.Logger.Info("transcode completed", "renditions", len(outputs), "thumbnail", thumbnail != "")
	return nil
}

// enter records a stage boundary and returns a func that observes the time
// spent in it.
func (o *Orchestrator) enter(ctx context.Context, jc JobContext, stage catalog.Stage, profile string, index int) func() {
	if err := o.repo.UpdateJobStage(ctx, jc.JobID, stage); err != nil {
		jc.Logger.Warn("failed to record stage", "stage", stage, "error", err)
	}

	p := Progress{JobID: jc.JobID, Stage: string(stage), Profile: profile, Attempt: jc.Attempt}
	if stage == catalog.StageEncoding {
		p.Index, p.Total = index, len(jc.Profiles)
	}
	o.tracker.Update(ctx, jc.SourceFile.ID, p)

	start := time.Now()
	return func() {
		if o.metrics != nil {
			o.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
		}
	}
}

func (o *Orchestrator) download(ctx context.Context, jc JobContext) error {
	defer o.enter(ctx, jc, catalog.StageDownloading, "", 0)()

	body, err := o.gateway.Get(ctx, jc.SourceFile.StorageKey)
	if err != nil {
		return &Error{Kind: KindDownload, Err: err}
	}
	defer body.Close()

	f, err := os.Create(jc.sourcePath())
	if err != nil {
		return &Error{Kind: KindDownload, Err: err}
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &Error{Kind: KindDownload, Err: err}
	}

	jc.Logger.Info("source downloaded", "bytes", n)
	return nil
}

func (o *Orchestrator) probe(ctx context.Context, jc JobContext) error {
	defer o.enter(ctx, jc, catalog.StageProbing, "", 0)()

	res, err := o.prober.Probe(ctx, jc.sourcePath())
	degraded := false
	if err != nil {
		if !o.cfg.AllowDegradedProbe || ctx.Err() != nil {
			return &Error{Kind: KindProbe, Err: err}
		}
		jc.Logger.Warn("probe failed, recording degraded metadata", "error", err)
		fallback := mediatool.DegradedProbe
		res, degraded = &fallback, true
	}

	md := catalog.ProbeMetadata{
		DurationSeconds: res.DurationSeconds,
		Codec:           res.Codec,
		BitrateKbps:     res.BitrateKbps,
		Width:           res.Width,
		Height:          res.Height,
		FPS:             res.FPS,
		Degraded:        degraded,
	}
	if err := o.repo.UpdateSourceFileMetadata(ctx, jc.SourceFile.ID, md); err != nil {
		return fmt.Errorf("store probe metadata: %w", err)
	}

	jc.Logger.Info("source probed",
		"duration_seconds", md.DurationSeconds,
		"codec", md.Codec,
		"width", md.Width,
		"height", md.Height,
		"degraded", md.Degraded,
	)
	return nil
}

// encode produces every profile in order and stops at the first failure.
func (o *Orchestrator) encode(ctx context.Context, jc JobContext) ([]encodedOutput, error) {
	outputs := make([]encodedOutput, 0, len(jc.Profiles))
	sfID := jc.SourceFile.ID

	for i, p := range jc.Profiles {
		done := o.enter(ctx, jc, catalog.StageEncoding, p.Name, i+1)

		rd := &catalog.Rendition{
			SourceFileID: sfID,
			Name:         p.Name,
			Width:        p.Width,
			Height:       p.Height,
			BitrateKbps:  p.VideoBitrateKbps,
			CodecVideo:   p.VideoCodec,
			CodecAudio:   p.AudioCodec,
			Format:       catalog.RenditionFormat,
			StorageKey:   catalog.RenditionKey(sfID, p.Name),
		}
		if err := o.repo.UpsertRendition(ctx, rd); err != nil {
			done()
			return nil, fmt.Errorf("upsert rendition %s: %w", p.Name, err)
		}
		// A completed rendition stays completed while a retry re-encodes it.
		reencode := rd.Status == catalog.StatusCompleted
		if !reencode {
			if err := o.repo.UpdateRenditionStatus(ctx, sfID, p.Name, catalog.StatusProcessing, "", 0); err != nil {
				done()
				return nil, fmt.Errorf("start rendition %s: %w", p.Name, err)
			}
		}

		out := jc.renditionPath(p.Name)
		size, err := o.encoder.Encode(ctx, jc.sourcePath(), out, p)
		done()
		if err != nil {
			msg := err.Error()
			var te *mediatool.ToolError
			if errors.As(err, &te) && te.StderrTail != "" {
				msg = te.StderrTail
			}
			if !reencode {
				if uerr := o.repo.UpdateRenditionStatus(ctx, sfID, p.Name, catalog.StatusFailed, msg, 0); uerr != nil {
					jc.Logger.Warn("failed to mark rendition failed", "profile", p.Name, "error", uerr)
				}
			}
			jc.Logger.Error("encode failed", "profile", p.Name, "index", i+1, "error", err)
			return nil, &Error{Kind: KindEncode, Profile: p.Name, Err: err}
		}

		if err := o.repo.UpdateRenditionStatus(ctx, sfID, p.Name, catalog.StatusCompleted, "", size); err != nil {
			return nil, fmt.Errorf("complete rendition %s: %w", p.Name, err)
		}
		jc.Logger.Info("rendition encoded", "profile", p.Name, "index", i+1, "total", len(jc.Profiles), "bytes", size)

		outputs = append(outputs, encodedOutput{profile: p, path: out, key: rd.StorageKey})
	}
	return outputs, nil
}

// thumbnail returns the local path of the extracted frame, or "" when
// extraction failed. A missing thumbnail never fails the job.
func (o *Orchestrator) thumbnail(ctx context.Context, jc JobContext) string {
	defer o.enter(ctx, jc, catalog.StageThumbnail, "", 0)()

	out := jc.thumbnailPath()
	if err := o.thumbnailer.Extract(ctx, jc.sourcePath(), out); err != nil {
		jc.Logger.Warn("thumbnail extraction failed", "error", err)
		return ""
	}
	return out
}

func (o *Orchestrator) publish(ctx context.Context, jc JobContext, outputs []encodedOutput, thumbnail string) error {
	defer o.enter(ctx, jc, catalog.StagePublishing, "", 0)()

	for _, out := range outputs {
		if err := o.putFile(ctx, out.path, out.key, "video/mp4", storage.VisibilityPrivate); err != nil {
			return &Error{Kind: KindPublish, Profile: out.profile.Name, Err: err}
		}
	}

	thumbKey := ""
	if thumbnail != "" {
		thumbKey = catalog.ThumbnailKey(jc.SourceFile.ID)
		if err := o.putFile(ctx, thumbnail, thumbKey, "image/jpeg", storage.VisibilityPublic); err != nil {
			return &Error{Kind: KindPublish, Err: err}
		}
	}

	if err := o.repo.CompleteSourceFile(ctx, jc.SourceFile.ID, thumbKey); err != nil {
		return &Error{Kind: KindPublish, Err: err}
	}
	return nil
}

func (o *Orchestrator) putFile(ctx context.Context, localPath, key, contentType string, vis storage.Visibility) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return o.gateway.Put(ctx, key, f, contentType, vis)
}
