// Package upload issues direct-upload grants and verifies the objects clients
// upload with them.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-transcoder/internal/catalog"
	"github.com/heimdex/heimdex-transcoder/internal/storage"
)

// DefaultTTL is how long an upload grant stays valid.
const DefaultTTL = 60 * time.Minute

var (
	ErrInvalidStorageKey  = errors.New("invalid storage key")
	ErrObjectNotFound     = storage.ErrObjectNotFound
	ErrObjectEmpty        = errors.New("uploaded object is empty")
	ErrGatewayUnavailable = errors.New("object store unavailable")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
)

// Grant is what a client needs to upload one file directly to the store.
type Grant struct {
	Key       string            `json:"key"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Issuer mints upload grants. It has no persistence side effects.
type Issuer struct {
	gateway  storage.Gateway
	ttl      time.Duration
	newToken func() string
	logger   *slog.Logger
}

func NewIssuer(gateway storage.Gateway, ttl time.Duration, logger *slog.Logger) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		gateway:  gateway,
		ttl:      ttl,
		newToken: uuid.NewString,
		logger:   logger,
	}
}

// Issue returns a grant for a fresh key under the asset's upload prefix. The
// key extension comes from filename only.
func (i *Issuer) Issue(ctx context.Context, assetID int64, filename string) (*Grant, error) {
	if assetID <= 0 {
		return nil, fmt.Errorf("%w: asset id %d", ErrInvalidStorageKey, assetID)
	}
	if !catalog.IsVideoFile(filename) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
	ext := catalog.Extension(filename)
	contentType := catalog.ContentTypeFor(ext)

	key := catalog.UploadKey(assetID, i.newToken(), ext)
	headers := map[string]string{"Content-Type": contentType}

	g, err := i.gateway.PresignUpload(ctx, key, i.ttl, headers)
	if err != nil {
		i.logger.Warn("presign failed", "asset_id", assetID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	return &Grant{
		Key:       key,
		URL:       g.URL,
		Method:    g.Method,
		Headers:   g.Headers,
		ExpiresAt: g.ExpiresAt,
	}, nil
}

// AssetFinder looks up an asset, returning nil when it does not exist.
type AssetFinder interface {
	GetAsset(ctx context.Context, id int64) (*catalog.Asset, error)
}

// Verifier confirms that an uploaded object exists and is usable.
type Verifier struct {
	gateway storage.Gateway
	assets  AssetFinder
}

func NewVerifier(gateway storage.Gateway, assets AssetFinder) *Verifier {
	return &Verifier{gateway: gateway, assets: assets}
}

// Verify checks key against the upload layout for assetID and then asks the
// store for the object. Key policy is enforced before any store call.
func (v *Verifier) Verify(ctx context.Context, assetID int64, key string) (*storage.ObjectInfo, error) {
	parts, ok := catalog.ParseUploadKey(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStorageKey, key)
	}
	if parts.AssetID != assetID {
		return nil, fmt.Errorf("%w: key belongs to asset %d", ErrInvalidStorageKey, parts.AssetID)
	}

	asset, err := v.assets.GetAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("lookup asset %d: %w", assetID, err)
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: asset %d does not exist", ErrInvalidStorageKey, assetID)
	}

	info, err := v.gateway.Stat(ctx, key)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	case info.Size <= 0:
		return nil, ErrObjectEmpty
	}

	if strings.TrimSpace(info.ContentType) == "" {
		info.ContentType = catalog.ContentTypeFor(parts.Ext)
	}
	return info, nil
}
