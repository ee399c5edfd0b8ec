package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCSGateway struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
}

// NewGCSGateway opens a client for bucket. With an empty credentialsFile the
// client falls back to application default credentials. Extra options are
// passed through to the client, e.g. an emulator endpoint.
func NewGCSGateway(ctx context.Context, bucket, credentialsFile string, extra ...option.ClientOption) (*GCSGateway, error) {
	if bucket == "" {
		return nil, errors.New("storage: gcs bucket is required")
	}

	opts := append([]option.ClientOption{}, extra...)
	if credentialsFile != "" {
		credentialsJSON, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("storage: read gcs credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}

	return &GCSGateway{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

func (g *GCSGateway) Close() error {
	return g.client.Close()
}

func (g *GCSGateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.Stat(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (g *GCSGateway) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := g.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gcs attrs for %s: %w", key, err)
	}
	return &ObjectInfo{Key: key, Size: attrs.Size, ContentType: attrs.ContentType}, nil
}

func (g *GCSGateway) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", key, err)
	}
	return r, nil
}

// Put streams body to key. A failed read cancels the writer so the partial
// upload is never finalized.
func (g *GCSGateway) Put(ctx context.Context, key string, body io.Reader, contentType string, visibility Visibility) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wc := g.bucket.Object(key).NewWriter(ctx)
	wc.ContentType = contentType
	if visibility == VisibilityPublic {
		wc.PredefinedACL = "publicRead"
	}

	if _, err := io.Copy(wc, body); err != nil {
		cancel()
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}
	return nil
}

func (g *GCSGateway) PresignUpload(ctx context.Context, key string, ttl time.Duration, headers map[string]string) (*Grant, error) {
	expiresAt := time.Now().Add(ttl).UTC()
	url, err := g.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Scheme:      gcs.SigningSchemeV4,
		Method:      http.MethodPut,
		Expires:     expiresAt,
		ContentType: headers["Content-Type"],
	})
	if err != nil {
		return nil, fmt.Errorf("gcs signed url for %s: %w", key, err)
	}

	return &Grant{
		URL:       url,
		Method:    http.MethodPut,
		Headers:   copyHeaders(headers),
		ExpiresAt: expiresAt,
	}, nil
}
