// Package config provides configuration management for the Heimdex transcoder.
// Configuration is loaded from environment variables with sensible defaults.
// An optional dotenv file is read first; it never overrides variables that are
// already set in the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort      = 8790
	DefaultBindAddr  = "127.0.0.1"
	DefaultLogLevel  = "info"
	DefaultDataDir   = ".heimdex-transcoder"
	DefaultBackend   = BackendLocal
	DefaultUploadTTL = 60    // minutes
	DefaultMaxUpload = 10240 // megabytes
	DefaultEnvFile   = ".env"

	// Storage backends
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"

	// Environment variable names
	EnvFile     = "HEIMDEX_ENV_FILE"
	EnvPort     = "HEIMDEX_PORT"
	EnvBindAddr = "HEIMDEX_BIND_ADDR"
	EnvLogLevel = "HEIMDEX_LOG_LEVEL"
	EnvDataDir  = "HEIMDEX_DATA_DIR"

	// Storage environment variable names
	EnvStorageBackend    = "HEIMDEX_STORAGE_BACKEND"
	EnvPublicBaseURL     = "HEIMDEX_PUBLIC_BASE_URL"
	EnvUploadSigningKey  = "HEIMDEX_UPLOAD_SIGNING_KEY"
	EnvUploadTTLMinutes  = "HEIMDEX_UPLOAD_TTL_MINUTES"
	EnvMaxUploadMB       = "HEIMDEX_MAX_UPLOAD_MB"
	EnvS3Bucket          = "HEIMDEX_S3_BUCKET"
	EnvS3Region          = "HEIMDEX_S3_REGION"
	EnvS3Endpoint        = "HEIMDEX_S3_ENDPOINT"
	EnvS3AccessKey       = "HEIMDEX_S3_ACCESS_KEY"
	EnvS3SecretKey       = "HEIMDEX_S3_SECRET_KEY"
	EnvGCSBucket         = "HEIMDEX_GCS_BUCKET"
	EnvGCSCredentialFile = "HEIMDEX_GCS_CREDENTIALS_FILE"

	// Transcoding environment variable names
	EnvFFmpegPath         = "HEIMDEX_FFMPEG_PATH"
	EnvFFprobePath        = "HEIMDEX_FFPROBE_PATH"
	EnvWorkers            = "HEIMDEX_WORKERS"
	EnvAllowDegradedProbe = "HEIMDEX_ALLOW_DEGRADED_PROBE"
	EnvProfilesFile       = "HEIMDEX_PROFILES_FILE"
	EnvRedisAddr          = "HEIMDEX_REDIS_ADDR"

	// Database filename
	DBFilename = "transcoder.db"

	// Transcoding defaults
	DefaultFFmpegPath          = "ffmpeg"
	DefaultFFprobePath         = "ffprobe"
	DefaultMaxAttempts         = 3
	DefaultTimeoutJob          = 7200 // 2 hours
	DefaultTimeoutEncode       = 3600 // 1 hour per rendition
	DefaultTimeoutProbe        = 60
	DefaultTimeoutThumbnail    = 120
	DefaultTimeoutDoctor       = 10
	DefaultPollIntervalSeconds = 2
	DefaultDrainTimeoutSeconds = 30
)

// DefaultBackoff is the delay before attempts 2, 3, ... of a transcode job.
var DefaultBackoff = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

// Config defines the application configuration interface
type Config interface {
	Port() int
	BindAddr() string
	LogLevel() string
	DataDir() string
	DBPath() string
	ScratchDir() string
	ObjectsDir() string

	StorageBackend() string
	PublicBaseURL() string
	UploadSigningKey() []byte
	UploadTTL() time.Duration
	MaxUploadBytes() int64
	S3() S3Config
	GCS() GCSConfig

	FFmpegPath() string
	FFprobePath() string
	Workers() int
	AllowDegradedProbe() bool
	ProfilesFile() string
	RedisAddr() string
	MaxAttempts() int
	Backoff() []time.Duration
	PollInterval() time.Duration
	DrainTimeout() time.Duration
	TimeoutJob() time.Duration
	TimeoutEncode() time.Duration
	TimeoutProbe() time.Duration
	TimeoutThumbnail() time.Duration
	TimeoutDoctor() time.Duration
}

// S3Config groups the S3 gateway settings.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// GCSConfig groups the GCS gateway settings.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	bindAddr string
	logLevel string
	dataDir  string

	backend          string
	publicBaseURL    string
	uploadSigningKey string
	uploadTTL        int
	maxUploadMB      int
	s3               S3Config
	gcs              GCSConfig

	ffmpegPath         string
	ffprobePath        string
	workers            int
	allowDegradedProbe bool
	profilesFile       string
	redisAddr          string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &EnvConfig{
		port:        DefaultPort,
		bindAddr:    DefaultBindAddr,
		logLevel:    DefaultLogLevel,
		dataDir:     defaultDataDir(),
		backend:     DefaultBackend,
		uploadTTL:   DefaultUploadTTL,
		maxUploadMB: DefaultMaxUpload,
		ffmpegPath:  DefaultFFmpegPath,
		ffprobePath: DefaultFFprobePath,
		workers:     defaultWorkers(),
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if v := os.Getenv(EnvBindAddr); v != "" {
		cfg.bindAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.logLevel = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.dataDir = v
	}

	if v := os.Getenv(EnvStorageBackend); v != "" {
		switch strings.ToLower(v) {
		case BackendLocal, BackendS3, BackendGCS:
			cfg.backend = strings.ToLower(v)
		default:
			return nil, fmt.Errorf("invalid %s: unknown backend %q", EnvStorageBackend, v)
		}
	}

	cfg.publicBaseURL = strings.TrimRight(os.Getenv(EnvPublicBaseURL), "/")
	cfg.uploadSigningKey = os.Getenv(EnvUploadSigningKey)

	if v := os.Getenv(EnvUploadTTLMinutes); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvUploadTTLMinutes, err)
		}
		if ttl < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1 minute", EnvUploadTTLMinutes)
		}
		cfg.uploadTTL = ttl
	}

	if v := os.Getenv(EnvMaxUploadMB); v != "" {
		mb, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxUploadMB, err)
		}
		if mb < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvMaxUploadMB)
		}
		cfg.maxUploadMB = mb
	}

	cfg.s3 = S3Config{
		Bucket:    os.Getenv(EnvS3Bucket),
		Region:    os.Getenv(EnvS3Region),
		Endpoint:  os.Getenv(EnvS3Endpoint),
		AccessKey: os.Getenv(EnvS3AccessKey),
		SecretKey: os.Getenv(EnvS3SecretKey),
	}
	cfg.gcs = GCSConfig{
		Bucket:          os.Getenv(EnvGCSBucket),
		CredentialsFile: os.Getenv(EnvGCSCredentialFile),
	}

	switch cfg.backend {
	case BackendS3:
		if cfg.s3.Bucket == "" {
			return nil, fmt.Errorf("%s is required for the s3 backend", EnvS3Bucket)
		}
	case BackendGCS:
		if cfg.gcs.Bucket == "" {
			return nil, fmt.Errorf("%s is required for the gcs backend", EnvGCSBucket)
		}
	}

	if v := os.Getenv(EnvFFmpegPath); v != "" {
		cfg.ffmpegPath = v
	}
	if v := os.Getenv(EnvFFprobePath); v != "" {
		cfg.ffprobePath = v
	}

	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvWorkers, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvWorkers)
		}
		cfg.workers = n
	}

	if v := os.Getenv(EnvAllowDegradedProbe); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvAllowDegradedProbe, err)
		}
		cfg.allowDegradedProbe = allow
	}

	cfg.profilesFile = os.Getenv(EnvProfilesFile)
	cfg.redisAddr = os.Getenv(EnvRedisAddr)

	return cfg, nil
}

// loadEnvFile reads HEIMDEX_ENV_FILE, or ./.env when present.
func loadEnvFile() error {
	path := os.Getenv(EnvFile)
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// BindAddr returns the interface the HTTP server listens on
func (c *EnvConfig) BindAddr() string {
	return c.bindAddr
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ScratchDir returns the root for per-job scratch directories
func (c *EnvConfig) ScratchDir() string {
	return filepath.Join(c.dataDir, "scratch")
}

// ObjectsDir returns the root of the local object store
func (c *EnvConfig) ObjectsDir() string {
	return filepath.Join(c.dataDir, "objects")
}

func (c *EnvConfig) StorageBackend() string {
	return c.backend
}

// PublicBaseURL is the externally reachable base of this service, used to
// build local upload grant and object URLs.
func (c *EnvConfig) PublicBaseURL() string {
	if c.publicBaseURL != "" {
		return c.publicBaseURL
	}
	return fmt.Sprintf("http://%s:%d", c.bindAddr, c.port)
}

func (c *EnvConfig) UploadSigningKey() []byte {
	return []byte(c.uploadSigningKey)
}

func (c *EnvConfig) UploadTTL() time.Duration {
	return time.Duration(c.uploadTTL) * time.Minute
}

// MaxUploadBytes caps the body of a local-backend upload.
func (c *EnvConfig) MaxUploadBytes() int64 {
	return int64(c.maxUploadMB) << 20
}

func (c *EnvConfig) S3() S3Config {
	return c.s3
}

func (c *EnvConfig) GCS() GCSConfig {
	return c.gcs
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// Workers returns the size of the transcode worker pool
func (c *EnvConfig) Workers() int {
	return c.workers
}

// AllowDegradedProbe reports whether a failed probe may continue with
// default metadata instead of failing the attempt.
func (c *EnvConfig) AllowDegradedProbe() bool {
	return c.allowDegradedProbe
}

func (c *EnvConfig) ProfilesFile() string {
	return c.profilesFile
}

func (c *EnvConfig) RedisAddr() string {
	return c.redisAddr
}

func (c *EnvConfig) MaxAttempts() int {
	return DefaultMaxAttempts
}

func (c *EnvConfig) Backoff() []time.Duration {
	out := make([]time.Duration, len(DefaultBackoff))
	copy(out, DefaultBackoff)
	return out
}

func (c *EnvConfig) PollInterval() time.Duration {
	return time.Duration(DefaultPollIntervalSeconds) * time.Second
}

func (c *EnvConfig) DrainTimeout() time.Duration {
	return time.Duration(DefaultDrainTimeoutSeconds) * time.Second
}

func (c *EnvConfig) TimeoutJob() time.Duration {
	return time.Duration(DefaultTimeoutJob) * time.Second
}

func (c *EnvConfig) TimeoutEncode() time.Duration {
	return time.Duration(DefaultTimeoutEncode) * time.Second
}

func (c *EnvConfig) TimeoutProbe() time.Duration {
	return time.Duration(DefaultTimeoutProbe) * time.Second
}

func (c *EnvConfig) TimeoutThumbnail() time.Duration {
	return time.Duration(DefaultTimeoutThumbnail) * time.Second
}

func (c *EnvConfig) TimeoutDoctor() time.Duration {
	return time.Duration(DefaultTimeoutDoctor) * time.Second
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// defaultWorkers leaves half the CPUs to the encoder processes themselves.
func defaultWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		return 1
	}
	return n
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
