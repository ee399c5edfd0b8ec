package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	os.Unsetenv(EnvPort)
	os.Unsetenv(EnvStorageBackend)
	os.Unsetenv(EnvAllowDegradedProbe)
	os.Unsetenv(EnvUploadTTLMinutes)
	os.Unsetenv(EnvMaxUploadMB)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.StorageBackend() != BackendLocal {
		t.Errorf("StorageBackend() = %q, want %q", cfg.StorageBackend(), BackendLocal)
	}
	if cfg.AllowDegradedProbe() {
		t.Error("AllowDegradedProbe() = true, want false by default")
	}
	if cfg.UploadTTL() != 60*time.Minute {
		t.Errorf("UploadTTL() = %v, want 60m", cfg.UploadTTL())
	}
	if cfg.MaxUploadBytes() != 10240<<20 {
		t.Errorf("MaxUploadBytes() = %d, want 10 GiB", cfg.MaxUploadBytes())
	}
	if cfg.MaxAttempts() != 3 {
		t.Errorf("MaxAttempts() = %d, want 3", cfg.MaxAttempts())
	}
	if cfg.TimeoutJob() != 2*time.Hour {
		t.Errorf("TimeoutJob() = %v, want 2h", cfg.TimeoutJob())
	}
	if cfg.TimeoutEncode() != time.Hour {
		t.Errorf("TimeoutEncode() = %v, want 1h", cfg.TimeoutEncode())
	}
	if cfg.Workers() < 1 {
		t.Errorf("Workers() = %d, want >= 1", cfg.Workers())
	}
}

func TestNew_InvalidPort(t *testing.T) {
	t.Setenv(EnvPort, "99999")

	if _, err := New(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Setenv(EnvStorageBackend, "ftp")

	if _, err := New(); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}
}

func TestNew_S3RequiresBucket(t *testing.T) {
	t.Setenv(EnvStorageBackend, "s3")
	t.Setenv(EnvS3Bucket, "")

	if _, err := New(); err == nil {
		t.Fatal("expected error when s3 bucket is missing")
	}

	t.Setenv(EnvS3Bucket, "media")
	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.S3().Bucket != "media" {
		t.Errorf("S3().Bucket = %q, want media", cfg.S3().Bucket)
	}
}

func TestNew_AllowDegradedProbe(t *testing.T) {
	t.Setenv(EnvAllowDegradedProbe, "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.AllowDegradedProbe() {
		t.Error("AllowDegradedProbe() = false, want true")
	}

	t.Setenv(EnvAllowDegradedProbe, "maybe")
	if _, err := New(); err == nil {
		t.Fatal("expected error for non-boolean flag")
	}
}

func TestNew_MaxUpload(t *testing.T) {
	t.Setenv(EnvMaxUploadMB, "64")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxUploadBytes() != 64<<20 {
		t.Errorf("MaxUploadBytes() = %d, want %d", cfg.MaxUploadBytes(), 64<<20)
	}

	t.Setenv(EnvMaxUploadMB, "0")
	if _, err := New(); err == nil {
		t.Fatal("expected error for zero upload cap")
	}
}

func TestNew_EnvFile(t *testing.T) {
	os.Unsetenv(EnvWorkers)
	t.Cleanup(func() { os.Unsetenv(EnvWorkers) })

	path := filepath.Join(t.TempDir(), "transcoder.env")
	if err := os.WriteFile(path, []byte("HEIMDEX_WORKERS=7\n"), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvFile, path)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers() != 7 {
		t.Errorf("Workers() = %d, want 7", cfg.Workers())
	}
}

func TestNew_EnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcoder.env")
	if err := os.WriteFile(path, []byte("HEIMDEX_WORKERS=7\n"), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvFile, path)
	t.Setenv(EnvWorkers, "2")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers() != 2 {
		t.Errorf("Workers() = %d, want 2", cfg.Workers())
	}
}

func TestNew_MissingExplicitEnvFile(t *testing.T) {
	t.Setenv(EnvFile, filepath.Join(t.TempDir(), "missing.env"))

	if _, err := New(); err == nil {
		t.Fatal("expected error for missing explicit env file")
	}
}

func TestPublicBaseURL_Default(t *testing.T) {
	os.Unsetenv(EnvPublicBaseURL)
	os.Unsetenv(EnvBindAddr)
	t.Setenv(EnvPort, "9000")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.PublicBaseURL(); got != "http://127.0.0.1:9000" {
		t.Errorf("PublicBaseURL() = %q, want http://127.0.0.1:9000", got)
	}
}
