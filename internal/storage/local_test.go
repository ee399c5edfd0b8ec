package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func newTestLocal(t *testing.T) *LocalGateway {
	t.Helper()
	signer, err := NewGrantSigner(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewLocalGateway(t.TempDir(), "http://127.0.0.1:8790/", signer)
	if err != nil {
		t.Fatalf("NewLocalGateway() error = %v", err)
	}
	return g
}

func TestLocalPutGetStat(t *testing.T) {
	ctx := context.Background()
	g := newTestLocal(t)

	key := "videos/renditions/1/1-360p.mp4"
	if ok, err := g.Exists(ctx, key); err != nil || ok {
		t.Fatalf("Exists() before put = %v, %v", ok, err)
	}

	if err := g.Put(ctx, key, strings.NewReader("hello"), "video/mp4", VisibilityPrivate); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	info, err := g.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != 5 || info.ContentType != "video/mp4" {
		t.Errorf("Stat() = %+v", info)
	}

	rc, err := g.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Errorf("Get() = %q", data)
	}

	// overwrite
	if err := g.Put(ctx, key, strings.NewReader("hi"), "video/mp4", VisibilityPrivate); err != nil {
		t.Fatal(err)
	}
	info, _ = g.Stat(ctx, key)
	if info.Size != 2 {
		t.Errorf("size after overwrite = %d", info.Size)
	}
}

func TestLocalMissingAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	g := newTestLocal(t)

	if _, err := g.Stat(ctx, "videos/none.mp4"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Stat(missing) error = %v", err)
	}
	if _, err := g.Get(ctx, "videos/none.mp4"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
	for _, key := range []string{"", "/abs.mp4", "../escape.mp4", "a/../../b.mp4", "a//b.mp4"} {
		if err := g.Put(ctx, key, strings.NewReader("x"), "", VisibilityPrivate); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestLocalPresignAndAccept(t *testing.T) {
	ctx := context.Background()
	g := newTestLocal(t)

	key := "videos/uploads/42/tok.mp4"
	grant, err := g.PresignUpload(ctx, key, 15*time.Minute, map[string]string{"Content-Type": "video/mp4"})
	if err != nil {
		t.Fatalf("PresignUpload() error = %v", err)
	}
	if grant.Method != http.MethodPut || !strings.HasPrefix(grant.URL, "http://127.0.0.1:8790/uploads/") {
		t.Errorf("grant = %+v", grant)
	}
	if grant.Headers["Content-Type"] != "video/mp4" {
		t.Errorf("grant headers = %v", grant.Headers)
	}

	token := strings.TrimPrefix(grant.URL, "http://127.0.0.1:8790/uploads/")

	if _, err := g.AcceptUpload(ctx, token, http.MethodPut, "image/png", nil, bytes.NewReader([]byte("x"))); !errors.Is(err, ErrGrantMismatch) {
		t.Errorf("AcceptUpload(wrong type) error = %v", err)
	}

	locked := errors.New("key is registered")
	refuse := func(ctx context.Context, k string) error {
		if k != key {
			t.Errorf("guard saw key %q, want %q", k, key)
		}
		return locked
	}
	if _, err := g.AcceptUpload(ctx, token, http.MethodPut, "video/mp4", refuse, bytes.NewReader([]byte("movie"))); !errors.Is(err, locked) {
		t.Errorf("AcceptUpload(refused) error = %v", err)
	}
	if ok, _ := g.Exists(ctx, key); ok {
		t.Error("refused upload was written")
	}

	info, err := g.AcceptUpload(ctx, token, http.MethodPut, "video/mp4", nil, bytes.NewReader([]byte("movie")))
	if err != nil {
		t.Fatalf("AcceptUpload() error = %v", err)
	}
	if info.Key != key || info.Size != 5 {
		t.Errorf("AcceptUpload() = %+v", info)
	}
}

func TestLocalOpenPublic(t *testing.T) {
	ctx := context.Background()
	g := newTestLocal(t)

	g.Put(ctx, "videos/thumbnails/1/thumbnail.jpg", strings.NewReader("jpg"), "image/jpeg", VisibilityPublic)
	g.Put(ctx, "videos/renditions/1/1-360p.mp4", strings.NewReader("mp4"), "video/mp4", VisibilityPrivate)

	f, info, err := g.OpenPublic("videos/thumbnails/1/thumbnail.jpg")
	if err != nil {
		t.Fatalf("OpenPublic(public) error = %v", err)
	}
	f.Close()
	if info.ContentType != "image/jpeg" || info.Size != 3 {
		t.Errorf("info = %+v", info)
	}

	if _, _, err := g.OpenPublic("videos/renditions/1/1-360p.mp4"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("OpenPublic(private) error = %v", err)
	}
}
