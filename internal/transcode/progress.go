package transcode

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const progressTTL = 24 * time.Hour

// Progress is the live view of a running job.
type Progress struct {
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	Profile   string    `json:"profile,omitempty"`
	Index     int       `json:"index,omitempty"`
	Total     int       `json:"total,omitempty"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker publishes job progress for status polling. Updates are best
// effort and never fail a job.
type Tracker interface {
	Update(ctx context.Context, sourceFileID int64, p Progress)
	Snapshot(ctx context.Context, sourceFileID int64) (*Progress, error)
}

type NopTracker struct{}

func (NopTracker) Update(context.Context, int64, Progress) {}

func (NopTracker) Snapshot(context.Context, int64) (*Progress, error) { return nil, nil }

// RedisTracker keeps one hash per source file, expiring a day after the
// last update.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTracker(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client, ttl: progressTTL}
}

func progressKey(sourceFileID int64) string {
	return fmt.Sprintf("transcode:%d", sourceFileID)
}

func (t *RedisTracker) Update(ctx context.Context, sourceFileID int64, p Progress) {
	key := progressKey(sourceFileID)
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, key,
		"job_id", p.JobID,
		"stage", p.Stage,
		"profile", p.Profile,
		"index", p.Index,
		"total", p.Total,
		"attempt", p.Attempt,
		"error", p.Error,
		"updated_at", p.UpdatedAt.UTC().Format(time.RFC3339),
	)
	pipe.Expire(ctx, key, t.ttl)
	pipe.Exec(ctx)
}

func (t *RedisTracker) Snapshot(ctx context.Context, sourceFileID int64) (*Progress, error) {
	fields, err := t.client.HGetAll(ctx, progressKey(sourceFileID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	p := &Progress{
		JobID:   fields["job_id"],
		Stage:   fields["stage"],
		Profile: fields["profile"],
		Error:   fields["error"],
	}
	p.Index, _ = strconv.Atoi(fields["index"])
	p.Total, _ = strconv.Atoi(fields["total"])
	p.Attempt, _ = strconv.Atoi(fields["attempt"])
	p.UpdatedAt, _ = time.Parse(time.RFC3339, fields["updated_at"])
	return p, nil
}
