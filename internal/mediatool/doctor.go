package mediatool

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// ToolStatus is the availability of one binary.
type ToolStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities summarises which media tools are usable.
type Capabilities struct {
	FFmpeg   ToolStatus `json:"ffmpeg"`
	FFprobe  ToolStatus `json:"ffprobe"`
	ProbedAt time.Time  `json:"probed_at"`
}

// Ready reports whether both tools can be executed.
func (c *Capabilities) Ready() bool {
	return c != nil && c.FFmpeg.Available && c.FFprobe.Available
}

// CachedDoctor runs `-version` against the configured binaries and caches
// the outcome for a TTL.
type CachedDoctor struct {
	runner      ToolRunner
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
	ttl         time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(runner ToolRunner, ffmpegPath, ffprobePath string, timeout time.Duration, logger *slog.Logger) *CachedDoctor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDoctor{
		runner:      runner,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
		ttl:         defaultCacheTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) *Capabilities {
	d.mu.RLock()
	if d.cached != nil && d.now().Sub(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes both binaries regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) *Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps := &Capabilities{
		FFmpeg:   d.check(ctx, "ffmpeg", d.ffmpegPath),
		FFprobe:  d.check(ctx, "ffprobe", d.ffprobePath),
		ProbedAt: d.now(),
	}

	d.logger.Info("media tool probe complete",
		"ffmpeg", caps.FFmpeg.Available,
		"ffmpeg_version", caps.FFmpeg.Version,
		"ffprobe", caps.FFprobe.Available,
		"ffprobe_version", caps.FFprobe.Version,
	)

	d.cached = caps
	return caps
}

func (d *CachedDoctor) check(ctx context.Context, tool, path string) ToolStatus {
	res, err := d.runner.Run(ctx, Invocation{
		Tool:    tool,
		Path:    path,
		Args:    []string{"-version"},
		Timeout: d.timeout,
	})
	if err != nil {
		return ToolStatus{Error: err.Error()}
	}
	return ToolStatus{Available: true, Version: parseVersion(res.Stdout)}
}

// parseVersion pulls "6.1.1" out of "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	if !sc.Scan() {
		return ""
	}
	fields := strings.Fields(sc.Text())
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
