package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/logging"
)

// RetryPolicy bounds how often a job runs and how long it waits between
// attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

// Delay returns the wait before the next attempt after `attempt` attempts
// have run. The last backoff entry repeats if attempts outnumber it.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	i := min(max(attempt-1, 0), len(p.Backoff)-1)
	return p.Backoff[i]
}

type RunnerConfig struct {
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration
	Retry        RetryPolicy
}

// Runner polls the job table and runs due jobs on a bounded pool.
type Runner struct {
	orch    *Orchestrator
	repo    catalog.Repository
	tracker Tracker
	metrics *Metrics
	cfg     RunnerConfig
	logger  *slog.Logger
	now     func() time.Time

	sem     chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
	paused  atomic.Bool
	active  atomic.Int32
}

func NewRunner(orch *Orchestrator, repo catalog.Repository, tracker Tracker, metrics *Metrics, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if tracker == nil {
		tracker = NopTracker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orch:    orch,
		repo:    repo,
		tracker: tracker,
		metrics: metrics,
		cfg:     cfg,
		logger:  logging.WithComponent(logger, "runner"),
		now:     time.Now,
		sem:     make(chan struct{}, cfg.Workers),
	}
}

// Start polls until ctx is cancelled. Jobs already running keep going on a
// detached context; call Wait to drain them.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started", "workers", r.cfg.Workers, "poll_interval", r.cfg.PollInterval)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping", "active_jobs", r.ActiveJobs())
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processDue(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) ActiveJobs() int {
	return int(r.active.Load())
}

// Wait blocks until every dispatched job has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processDue claims as many due jobs as there are free workers.
func (r *Runner) processDue(ctx context.Context) {
	free := r.cfg.Workers - r.ActiveJobs()
	if free <= 0 {
		return
	}

	jobs, err := r.repo.ListDueJobs(ctx, r.now(), free)
	if err != nil {
		r.logger.Error("failed to list due jobs", "error", err)
		return
	}

	for _, due := range jobs {
		job, err := r.repo.ClaimJob(ctx, due.ID)
		if err != nil {
			r.logger.Error("failed to claim job", "job_id", due.ID, "error", err)
			continue
		}
		if job == nil {
			continue
		}

		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			r.release(context.WithoutCancel(ctx), job)
			return
		}

		r.active.Add(1)
		if r.metrics != nil {
			r.metrics.ActiveJobs.Inc()
		}
		r.wg.Add(1)
		go r.execute(context.WithoutCancel(ctx), job)
	}
}

// release hands a claimed job that never started back to the queue without
// spending an attempt.
func (r *Runner) release(ctx context.Context, job *catalog.TranscodeJob) {
	if err := r.repo.ReleaseJob(ctx, job.ID); err != nil {
		r.logger.Error("failed to release job", "job_id", job.ID, "error", err)
		return
	}
	r.logger.Info("job released before start", "job_id", job.ID)
}

func (r *Runner) execute(base context.Context, job *catalog.TranscodeJob) {
	defer func() {
		<-r.sem
		r.active.Add(-1)
		if r.metrics != nil {
			r.metrics.ActiveJobs.Dec()
		}
		r.wg.Done()
	}()

	logger := logging.WithSourceFileID(logging.WithJobID(r.logger, job.ID), job.SourceFileID)
	logger.Info("processing job", "attempt", job.Attempt, "max_attempts", job.MaxAttempts)

	ctx := base
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, r.cfg.JobTimeout)
		defer cancel()
	}

	err := r.runSafely(ctx, job)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %v", ErrTimeout, r.cfg.JobTimeout, err)
	}

	r.finish(base, job, err, logger)
}

func (r *Runner) runSafely(ctx context.Context, job *catalog.TranscodeJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in transcode job: %v", p)
		}
	}()
	return r.orch.Run(ctx, job)
}

// finish records the outcome: completed, queued for retry, or failed for good.
func (r *Runner) finish(ctx context.Context, job *catalog.TranscodeJob, err error, logger *slog.Logger) {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.cfg.Retry.MaxAttempts
	}

	switch {
	case err == nil:
		if cerr := r.repo.CompleteJob(ctx, job.ID); cerr != nil {
			logger.Error("failed to complete job", "error", cerr)
		}
		r.tracker.Update(ctx, job.SourceFileID, Progress{JobID: job.ID, Stage: string(catalog.StageDone), Attempt: job.Attempt})
		r.count("completed")
		logger.Info("job completed", "attempt", job.Attempt)

	case Retryable(err) && job.Attempt < maxAttempts:
		delay := r.cfg.Retry.Delay(job.Attempt)
		next := r.now().Add(delay)
		if rerr := r.repo.RetryJob(ctx, job.ID, next, err.Error()); rerr != nil {
			logger.Error("failed to requeue job", "error", rerr)
		}
		r.tracker.Update(ctx, job.SourceFileID, Progress{JobID: job.ID, Stage: string(catalog.StageQueued), Attempt: job.Attempt, Error: err.Error()})
		r.count("retried")
		logger.Warn("job failed, retrying", "attempt", job.Attempt, "retry_in", delay, "error", err)

	default:
		if ferr := r.repo.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			logger.Error("failed to mark job failed", "error", ferr)
		}
		r.tracker.Update(ctx, job.SourceFileID, Progress{JobID: job.ID, Stage: string(catalog.StageFailed), Attempt: job.Attempt, Error: err.Error()})
		r.count("failed")
		logger.Error("job failed", "attempt", job.Attempt, "retryable", Retryable(err), "error", err)
	}
}

func (r *Runner) count(outcome string) {
	if r.metrics != nil {
		r.metrics.JobsTotal.WithLabelValues(outcome).Inc()
	}
}
