package transcode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/db"
	"github.com/heimdex/heimdex-transcoder/internal/mediatool"
	"github.com/heimdex/heimdex-transcoder/internal/storage"
)

const probeJSON = `{"streams":[{"codec_name":"h264","width":1920,"height":1080,"r_frame_rate":"30/1","duration":"120.5","bit_rate":"4500000"}],"format":{"duration":"120.5","bit_rate":"4600000"}}`

// fakeTools answers ffprobe with probeJSON and makes ffmpeg write its output
// file, unless a hook says otherwise.
type fakeTools struct {
	probeFn  func(ctx context.Context) (mediatool.Result, error)
	encodeFn func(ctx context.Context, profile string) error
	thumbFn  func(ctx context.Context) error

	probes  atomic.Int32
	encodes atomic.Int32
	thumbs  atomic.Int32
}

func (f *fakeTools) Run(ctx context.Context, inv mediatool.Invocation) (mediatool.Result, error) {
	out := inv.Args[len(inv.Args)-1]
	switch {
	case inv.Tool == "ffprobe":
		f.probes.Add(1)
		if f.probeFn != nil {
			return f.probeFn(ctx)
		}
		return mediatool.Result{Stdout: []byte(probeJSON)}, nil

	case slices.Contains(inv.Args, "-vframes"):
		f.thumbs.Add(1)
		if f.thumbFn != nil {
			if err := f.thumbFn(ctx); err != nil {
				return mediatool.Result{ExitCode: 1}, err
			}
		}
		return mediatool.Result{}, os.WriteFile(out, []byte("jpeg"), 0644)

	default:
		f.encodes.Add(1)
		profile := strings.TrimSuffix(filepath.Base(out), ".mp4")
		if f.encodeFn != nil {
			if err := f.encodeFn(ctx, profile); err != nil {
				return mediatool.Result{ExitCode: 1}, err
			}
		}
		return mediatool.Result{}, os.WriteFile(out, []byte("mp4-"+profile), 0644)
	}
}

// faultyGateway fronts the local store and lets a test fail reads or writes
// by key.
type faultyGateway struct {
	*storage.LocalGateway
	getFn func(key string) error
	putFn func(key string) error

	puts atomic.Int32
}

func (g *faultyGateway) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if g.getFn != nil {
		if err := g.getFn(key); err != nil {
			return nil, err
		}
	}
	return g.LocalGateway.Get(ctx, key)
}

func (g *faultyGateway) Put(ctx context.Context, key string, body io.Reader, contentType string, vis storage.Visibility) error {
	g.puts.Add(1)
	if g.putFn != nil {
		if err := g.putFn(key); err != nil {
			return err
		}
	}
	return g.LocalGateway.Put(ctx, key, body, contentType, vis)
}

type harness struct {
	repo    *catalog.SQLiteRepository
	gw      *storage.LocalGateway
	faulty  *faultyGateway
	tools   *fakeTools
	orch    *Orchestrator
	runner  *Runner
	metrics *Metrics
	scratch string
	now     time.Time
	asset   *catalog.Asset
	file    *catalog.SourceFile
}

type harnessOpts struct {
	allowDegraded bool
	jobTimeout    time.Duration
}

func newHarness(t *testing.T, tools *fakeTools, opts harnessOpts) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	database, err := db.New(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	repo := catalog.NewRepository(database.Conn())

	signer, err := storage.NewGrantSigner([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}
	gw, err := storage.NewLocalGateway(filepath.Join(dir, "objects"), "http://localhost", signer)
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := NewMetrics(prometheus.NewRegistry())
	run := metrics.InstrumentRunner(tools)

	h := &harness{
		repo:    repo,
		gw:      gw,
		faulty:  &faultyGateway{LocalGateway: gw},
		tools:   tools,
		metrics: metrics,
		scratch: filepath.Join(dir, "scratch"),
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	h.orch = NewOrchestrator(repo, h.faulty,
		mediatool.NewProber(run, "ffprobe", time.Minute),
		mediatool.NewEncoder(run, "ffmpeg", time.Hour),
		mediatool.NewThumbnailer(run, "ffmpeg", 2*time.Minute),
		nil, metrics,
		OrchestratorConfig{ScratchRoot: h.scratch, AllowDegradedProbe: opts.allowDegraded},
		logger,
	)
	h.runner = NewRunner(h.orch, repo, nil, metrics, RunnerConfig{
		Workers:    2,
		JobTimeout: opts.jobTimeout,
		Retry:      RetryPolicy{MaxAttempts: 3, Backoff: []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}},
	}, logger)
	h.runner.now = func() time.Time { return h.now }

	h.asset = &catalog.Asset{UserID: "user-7", Title: "Movie"}
	if err := repo.CreateAsset(ctx, h.asset); err != nil {
		t.Fatal(err)
	}
	key := catalog.UploadKey(h.asset.ID, "0f8fad5b-d9cb-469f-a165-70867728950e", "mp4")
	if err := gw.Put(ctx, key, strings.NewReader("source-bytes"), "video/mp4", storage.VisibilityPrivate); err != nil {
		t.Fatal(err)
	}
	h.file, _, err = repo.RegisterSourceFile(ctx, &catalog.SourceFile{
		AssetID:    h.asset.ID,
		Filename:   "movie.mp4",
		StorageKey: key,
		MimeType:   "video/mp4",
		SizeBytes:  12,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) enqueue(t *testing.T) *catalog.TranscodeJob {
	t.Helper()
	job, err := h.repo.EnqueueTranscode(context.Background(), h.file.ID, 3, h.now)
	if err != nil {
		t.Fatalf("EnqueueTranscode() error = %v", err)
	}
	return job
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.runner.processDue(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.runner.Wait(ctx); err != nil {
		t.Fatalf("jobs did not finish: %v", err)
	}
}

func (h *harness) scratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.scratch)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir not cleaned: %d entries left", len(entries))
	}
}

func TestTranscodeEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeTools{}, harnessOpts{})
	job := h.enqueue(t)

	h.tick(t)

	got, _ := h.repo.GetJob(ctx, job.ID)
	if got.Status != catalog.JobStatusCompleted || got.Stage != catalog.StageDone || got.Attempt != 1 {
		t.Errorf("job = %+v", got)
	}

	sf, _ := h.repo.GetSourceFile(ctx, h.file.ID)
	if sf.Status != catalog.StatusCompleted {
		t.Errorf("source file status = %s", sf.Status)
	}
	if sf.Metadata == nil || sf.Metadata.DurationSeconds != 120.5 || sf.Metadata.Codec != "h264" || sf.Metadata.Degraded {
		t.Errorf("metadata = %+v", sf.Metadata)
	}

	rends, _ := h.repo.ListRenditions(ctx, h.file.ID)
	if len(rends) != 4 {
		t.Fatalf("renditions = %d, want 4", len(rends))
	}
	for i, p := range mediatool.DefaultProfiles() {
		rd := rends[i]
		if rd.Name != p.Name || rd.Status != catalog.StatusCompleted || rd.SizeBytes == 0 {
			t.Errorf("rendition %d = %+v", i, rd)
		}
		if rd.StorageKey != catalog.RenditionKey(h.file.ID, p.Name) {
			t.Errorf("rendition key = %q", rd.StorageKey)
		}
		if ok, _ := h.gw.Exists(ctx, rd.StorageKey); !ok {
			t.Errorf("rendition %s not published", p.Name)
		}
	}

	asset, _ := h.repo.GetAsset(ctx, h.asset.ID)
	if asset.ThumbnailKey != catalog.ThumbnailKey(h.file.ID) {
		t.Errorf("thumbnail key = %q", asset.ThumbnailKey)
	}
	f, _, err := h.gw.OpenPublic(asset.ThumbnailKey)
	if err != nil {
		t.Errorf("thumbnail not public: %v", err)
	} else {
		f.Close()
	}
	if _, _, err := h.gw.OpenPublic(rends[0].StorageKey); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("rendition should be private, got %v", err)
	}

	if n := h.tools.encodes.Load(); n != 4 {
		t.Errorf("encodes = %d", n)
	}
	if v := testutil.ToFloat64(h.metrics.JobsTotal.WithLabelValues("completed")); v != 1 {
		t.Errorf("completed jobs metric = %v", v)
	}
	if v := testutil.ToFloat64(h.metrics.ToolInvocations.WithLabelValues("ffmpeg", "ok")); v != 5 {
		t.Errorf("ffmpeg ok invocations = %v", v)
	}
	h.scratchEmpty(t)
}

func TestEncodeFailureRetriesWithBackoffThenFails(t *testing.T) {
	ctx := context.Background()
	tools := &fakeTools{encodeFn: func(ctx context.Context, profile string) error {
		if profile == "480p" {
			return &mediatool.ToolError{Tool: "ffmpeg", ExitCode: 1, StderrTail: "Conversion failed!"}
		}
		return nil
	}}
	h := newHarness(t, tools, harnessOpts{})
	job := h.enqueue(t)

	// attempt 1
	h.tick(t)
	got, _ := h.repo.GetJob(ctx, job.ID)
	if got.Status != catalog.JobStatusPending || got.Attempt != 1 {
		t.Fatalf("after attempt 1 job = %+v", got)
	}
	if want := h.now.Add(60 * time.Second); !got.NextRunAt.Equal(want) {
		t.Errorf("next run = %v, want %v", got.NextRunAt, want)
	}
	if !strings.Contains(got.Error, "encode 480p failed") {
		t.Errorf("job error = %q", got.Error)
	}
	sf, _ := h.repo.GetSourceFile(ctx, h.file.ID)
	if sf.Status != catalog.StatusProcessing {
		t.Errorf("source file status during backoff = %s", sf.Status)
	}
	rends, _ := h.repo.ListRenditions(ctx, h.file.ID)
	if len(rends) != 2 || rends[1].Status != catalog.StatusFailed || rends[1].Error != "Conversion failed!" {
		t.Errorf("renditions after attempt 1 = %+v", rends)
	}
	if ok, _ := h.gw.Exists(ctx, catalog.RenditionKey(h.file.ID, "360p")); ok {
		t.Error("360p published despite failed job")
	}
	h.scratchEmpty(t)

	// not due yet
	h.now = h.now.Add(59 * time.Second)
	h.tick(t)
	if n := tools.encodes.Load(); n != 2 {
		t.Fatalf("job ran before backoff elapsed, encodes = %d", n)
	}

	// attempt 2
	h.now = h.now.Add(2 * time.Second)
	h.tick(t)
	got, _ = h.repo.GetJob(ctx, job.ID)
	if got.Status != catalog.JobStatusPending || got.Attempt != 2 {
		t.Fatalf("after attempt 2 job = %+v", got)
	}
	if delay := got.NextRunAt.Sub(h.now); delay < 299*time.Second {
		t.Errorf("second backoff = %v, want >= 300s", delay)
	}

	// attempt 3 is the last
	h.now = h.now.Add(300 * time.Second)
	h.tick(t)
	got, _ = h.repo.GetJob(ctx, job.ID)
	if got.Status != catalog.JobStatusFailed || got.Attempt != 3 || got.Stage != catalog.StageFailed {
		t.Fatalf("after attempt 3 job = %+v", got)
	}
	sf, _ = h.repo.GetSourceFile(ctx, h.file.ID)
	if sf.Status != catalog.StatusFailed || !strings.Contains(sf.Error, "480p") {
		t.Errorf("source file = %s %q", sf.Status, sf.Error)
	}
	rends, _ = h.repo.ListRenditions(ctx, h.file.ID)
	if len(rends) != 2 {
		t.Errorf("retries duplicated renditions: %d rows", len(rends))
	}
	asset, _ := h.repo.GetAsset(ctx, h.asset.ID)
	if asset.ThumbnailKey != "" {
		t.Errorf("thumbnail set on failed job: %q", asset.ThumbnailKey)
	}
	if n := tools.thumbs.Load(); n != 0 {
		t.Errorf("thumbnail extracted %d times for failed encodes", n)
	}
	if v := testutil.ToFloat64(h.metrics.JobsTotal.WithLabelValues("retried")); v != 2 {
		t.Errorf("retried metric = %v", v)
	}
	h.scratchEmpty(t)
}

func TestRetryKeepsCompletedRenditions(t *testing.T) {
	ctx := context.Background()
	var h *harness
	var failing atomic.Bool
	failing.Store(true)
	var during catalog.Status

	tools := &fakeTools{encodeFn: func(ctx context.Context, profile string) error {
		if profile == "480p" && failing.Load() {
			return &mediatool.ToolError{Tool: "ffmpeg", ExitCode: 1, StderrTail: "Conversion failed!"}
		}
		if profile == "360p" && !failing.Load() {
			rends, _ := h.repo.ListRenditions(ctx, h.file.ID)
			during = rends[0].Status
		}
		return nil
	}}
	h = newHarness(t, tools, harnessOpts{})
	job := h.enqueue(t)

	h.tick(t)
	rends, _ := h.repo.ListRenditions(ctx, h.file.ID)
	if rends[0].Status != catalog.StatusCompleted || rends[1].Status != catalog.StatusFailed {
		t.Fatalf("after attempt 1: %s=%s %s=%s", rends[0].Name, rends[0].Status, rends[1].Name, rends[1].Status)
	}

	failing.Store(false)
	h.now = h.now.Add(60 * time.Second)
	h.tick(t)

	if during != catalog.StatusCompleted {
		t.Errorf("360p during re-encode = %s, want completed", during)
	}
	got, _ := h.repo.GetJob(ctx, job.ID)
	if got.Status != catalog.JobStatusCompleted || got.Attempt != 2 {
		t.Fatalf("after attempt 2 job = %+v", got)
	}
	rends, _ = h.repo.ListRenditions(ctx, h.file.ID)
	for _, rd := range rends {
		if rd.Status != catalog.StatusCompleted || rd.SizeBytes == 0 {
			t.Errorf("rendition %s = %s/%d", rd.Name, rd.Status, rd.SizeBytes)
		}
	}
	if n := tools.encodes.Load(); n != 6 {
		t.Errorf("encodes = %d, want 6", n)
	}
}

func TestDownloadFailureRetries(t *testing.T) {
	ctx := context.Background()
	tools := &fakeTools{}
	h := newHarness(t, tools, harnessOpts{})
	h.faulty.getFn = func(key string) error { return errors.New("connection reset by peer") }
	job := h.enqueue(t)

	h.tick(t)

	got, _ := h.repo.GetJob(ctx, job.ID)
	if got.Status != catalog.JobStatusPending || got.Attempt != 1 {
		t.Fatalf("job = %+v", got)
	}
	if want := h.now.Add(60 * time.Second); !got.NextRunAt.Equal(want) {
		t.Errorf("next run = %v, want %v", got.NextRunAt, want)
	}
	if !strings.Contains(got.Error, "download failed") {
		t.Errorf("job error = %q", got.Error)
	}
	sf, _ := h.repo.GetSourceFile(ctx, h.file.ID)
	if sf.Status != catalog.StatusProcessing {
		t.Errorf("source file status = %s", sf.Status)
	}
	if n := tools.probes.Load() + tools.encodes.Load(); n != 0 {
		t.Errorf("tools ran %d times after download failure", n)
	}
	h.scratchEmpty(t)
}

func TestPublishFailureRetries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeTools{}, harnessOpts{})
	failKey := catalog.RenditionKey(h.file.ID, "480p")
	h.faulty.putFn = func(key string) error {
		if key == failKey {
			return errors.New("503 slow down")
		}
		return nil
	}
	job := h.enqueue(t)

	h.tick(t)

	got, _ := h.repo.GetJob(ctx, job.ID)
	if got.Status != catalog.JobStatusPending || got.Attempt != 1 {
		t.Fatalf("job = %+v", got)
	}
	if want := h.now.Add(60 * time.Second); !got.NextRunAt.Equal(want) {
		t.Errorf("next run = %v, want %v", got.NextRunAt, want)
	}
	if !strings.Contains(got.Error, "publish 480p failed") {
		t.Errorf("job error = %q", got.Error)
	}
	if n := h.faulty.puts.Load(); n != 2 {
		t.Errorf("puts = %d, want 2", n)
	}

	sf, _ := h.repo.GetSourceFile(ctx, h.file.ID)
	if sf.Status == catalog.StatusCompleted {
		t.Error("source file completed despite publish failure")
	}
	asset, _ := h.repo.GetAsset(ctx, h.asset.ID)
	if asset.ThumbnailKey != "" {
		t.Errorf("thumbnail key = %q, want empty", asset.ThumbnailKey)
	}
	if ok, _ := h.gw.Exists(ctx, catalog.ThumbnailKey(h.file.ID)); ok {
		t.Error("thumbnail published despite publish failure")
	}
	h.scratchEmpty(t)
}

// cancelOnClaim stops the runner right after it claims a job.
type cancelOnClaim struct {
	catalog.Repository
	cancel context.CancelFunc
}

func (c *cancelOnClaim) ClaimJob(ctx context.Context, id string) (*catalog.TranscodeJob, error) {
	job, err := c.Repository.ClaimJob(ctx, id)
	c.cancel()
	return job, err
}

func TestUnstartedJobIsReleased(t *testing.T) {
	tools := &fakeTools{}
	h := newHarness(t, tools, harnessOpts{})
	job := h.enqueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := &cancelOnClaim{Repository: h.repo, cancel: cancel}
	runner := NewRunner(h.orch, repo, nil, nil, RunnerConfig{Workers: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	runner.now = func() time.Time { return h.now }
	runner.sem <- struct{}{}

	runner.processDue(ctx)

	got, _ := h.repo.GetJob(context.Background(), job.ID)
	if got.Status != catalog.JobStatusPending || got.Attempt != 0 {
		t.Errorf("job = %s attempt %d, want pending attempt 0", got.Status, got.Attempt)
	}
	if n := tools.probes.Load(); n != 0 {
		t.Errorf("released job ran, probes = %d", n)
	}
}

func TestJobTimeoutIsFatal(t *testing.T) {
	ctx := context.Background()
	tools := &fakeTools{encodeFn: func(ctx context.Context, profile string) error {
		<-ctx.Done()
		return &mediatool.ToolError{Tool: "ffmpeg", ExitCode: -1, TimedOut: true, Err: ctx.Err()}
	}}
	h := newHarness(t, tools, harnessOpts{jobTimeout: 200 * time.Millisecond})
	job := h.enqueue(t)

	h.tick(t)

	got, _ := h.repo.GetJob(ctx, job.ID)
	if got.Status != catalog.JobStatusFailed || got.Attempt != 1 {
		t.Fatalf("job = %+v, want failed on first attempt", got)
	}
	if !strings.Contains(got.Error, ErrTimeout.Error()) {
		t.Errorf("job error = %q", got.Error)
	}
	sf, _ := h.repo.GetSourceFile(ctx, h.file.ID)
	if sf.Status != catalog.StatusFailed {
		t.Errorf("source file status = %s", sf.Status)
	}
	rends, _ := h.repo.ListRenditions(ctx, h.file.ID)
	for _, rd := range rends {
		if rd.Status == catalog.StatusProcessing {
			t.Errorf("rendition %s left processing", rd.Name)
		}
	}
	h.scratchEmpty(t)
}

func TestMissingReferenceIsFatal(t *testing.T) {
	h := newHarness(t, &fakeTools{}, harnessOpts{})

	err := h.orch.Run(context.Background(), &catalog.TranscodeJob{ID: "gone", SourceFileID: 9999, Attempt: 1})
	if !errors.Is(err, ErrNotFoundReference) {
		t.Fatalf("Run() error = %v, want ErrNotFoundReference", err)
	}
	if Retryable(err) {
		t.Error("missing reference should not be retryable")
	}
}

func TestProbeFailure(t *testing.T) {
	failProbe := func(ctx context.Context) (mediatool.Result, error) {
		return mediatool.Result{ExitCode: 1}, &mediatool.ToolError{Tool: "ffprobe", ExitCode: 1, StderrTail: "moov atom not found"}
	}

	t.Run("strict", func(t *testing.T) {
		ctx := context.Background()
		tools := &fakeTools{probeFn: failProbe}
		h := newHarness(t, tools, harnessOpts{})
		job := h.enqueue(t)
		h.tick(t)

		got, _ := h.repo.GetJob(ctx, job.ID)
		if got.Status != catalog.JobStatusPending || !strings.Contains(got.Error, "probe failed") {
			t.Errorf("job = %+v", got)
		}
		if n := tools.encodes.Load(); n != 0 {
			t.Errorf("encoded %d renditions after probe failure", n)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, &fakeTools{probeFn: failProbe}, harnessOpts{allowDegraded: true})
		job := h.enqueue(t)
		h.tick(t)

		got, _ := h.repo.GetJob(ctx, job.ID)
		if got.Status != catalog.JobStatusCompleted {
			t.Fatalf("job = %+v", got)
		}
		sf, _ := h.repo.GetSourceFile(ctx, h.file.ID)
		md := sf.Metadata
		if md == nil || !md.Degraded || md.Width != 1920 || md.Height != 1080 || md.BitrateKbps != 5000 || md.Codec != "h264" {
			t.Errorf("metadata = %+v", md)
		}
	})
}

func TestThumbnailFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	tools := &fakeTools{thumbFn: func(ctx context.Context) error {
		return &mediatool.ToolError{Tool: "ffmpeg", ExitCode: 1, StderrTail: "Output file is empty"}
	}}
	h := newHarness(t, tools, harnessOpts{})
	h.enqueue(t)
	h.tick(t)

	sf, _ := h.repo.GetSourceFile(ctx, h.file.ID)
	if sf.Status != catalog.StatusCompleted {
		t.Errorf("source file status = %s", sf.Status)
	}
	asset, _ := h.repo.GetAsset(ctx, h.asset.ID)
	if asset.ThumbnailKey != "" {
		t.Errorf("thumbnail key = %q, want empty", asset.ThumbnailKey)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}}
	tests := map[int]time.Duration{
		0: time.Minute,
		1: time.Minute,
		2: 5 * time.Minute,
		3: 15 * time.Minute,
		9: 15 * time.Minute,
	}
	for attempt, want := range tests {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
	if got := (RetryPolicy{}).Delay(1); got != 0 {
		t.Errorf("empty policy delay = %v", got)
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(&Error{Kind: KindPublish, Err: errors.New("503")}) {
		t.Error("publish error should be retryable")
	}
	if Retryable(ErrTimeout) || Retryable(nil) {
		t.Error("timeout and nil should not be retryable")
	}
}
