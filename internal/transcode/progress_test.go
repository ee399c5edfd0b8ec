package transcode

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisTracker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tr := NewRedisTracker(client)
	ctx := context.Background()

	if p, err := tr.Snapshot(ctx, 7); err != nil || p != nil {
		t.Fatalf("Snapshot() before update = %+v, %v", p, err)
	}

	tr.Update(ctx, 7, Progress{JobID: "job-1", Stage: "encoding", Profile: "720p", Index: 3, Total: 4, Attempt: 2})

	p, err := tr.Snapshot(ctx, 7)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if p.JobID != "job-1" || p.Stage != "encoding" || p.Profile != "720p" || p.Index != 3 || p.Total != 4 || p.Attempt != 2 {
		t.Errorf("Snapshot() = %+v", p)
	}
	if p.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not recorded")
	}

	if ttl := mr.TTL("transcode:7"); ttl != 24*time.Hour {
		t.Errorf("TTL = %v, want 24h", ttl)
	}

	tr.Update(ctx, 7, Progress{JobID: "job-1", Stage: "done", Attempt: 2})
	p, _ = tr.Snapshot(ctx, 7)
	if p.Stage != "done" || p.Profile != "" {
		t.Errorf("after second update = %+v", p)
	}
}

func TestNopTracker(t *testing.T) {
	var tr Tracker = NopTracker{}
	tr.Update(context.Background(), 1, Progress{Stage: "probing"})
	if p, err := tr.Snapshot(context.Background(), 1); p != nil || err != nil {
		t.Errorf("NopTracker.Snapshot() = %+v, %v", p, err)
	}
}
