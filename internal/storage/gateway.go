// Package storage defines the object store gateway the transcoder depends on
// and its S3, GCS and local filesystem implementations.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrObjectNotFound is returned by Stat and Get when the key is absent.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that are empty or escape the store.
	ErrInvalidKey = errors.New("invalid object key")
)

// Visibility controls whether an object can be read without credentials.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Grant is a time-limited capability to write exactly one object.
type Grant struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Gateway is the object store contract. Implementations must be safe for
// concurrent use, and Put must overwrite an existing key.
type Gateway interface {
	Exists(ctx context.Context, key string) (bool, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string, visibility Visibility) error
	PresignUpload(ctx context.Context, key string, ttl time.Duration, headers map[string]string) (*Grant, error)
}
