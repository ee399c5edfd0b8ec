package transcode

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heimdex/heimdex-transcoder/internal/mediatool"
)

type Metrics struct {
	JobsTotal       *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	ActiveJobs      prometheus.Gauge
	ToolInvocations *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
}

// NewMetrics registers the transcoder collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcoder_jobs_total",
			Help: "Transcode job attempts by outcome",
		}, []string{"outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcoder_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"stage"}),
		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "transcoder_active_jobs",
			Help: "Number of jobs currently processing on this node",
		}),
		ToolInvocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcoder_tool_invocations_total",
			Help: "Media tool executions by tool and result",
		}, []string{"tool", "result"}),
		ToolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcoder_tool_duration_seconds",
			Help:    "Wall time of media tool executions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		}, []string{"tool"}),
	}
}

// InstrumentRunner wraps r so every invocation is counted and timed.
func (m *Metrics) InstrumentRunner(r mediatool.ToolRunner) mediatool.ToolRunner {
	return &instrumentedRunner{next: r, m: m}
}

type instrumentedRunner struct {
	next mediatool.ToolRunner
	m    *Metrics
}

func (ir *instrumentedRunner) Run(ctx context.Context, inv mediatool.Invocation) (mediatool.Result, error) {
	start := time.Now()
	res, err := ir.next.Run(ctx, inv)

	result := "ok"
	switch {
	case res.TimedOut:
		result = "timeout"
	case err != nil:
		result = "error"
	}
	ir.m.ToolInvocations.WithLabelValues(inv.Tool, result).Inc()
	ir.m.ToolDuration.WithLabelValues(inv.Tool).Observe(time.Since(start).Seconds())
	return res, err
}
