package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalGateway stores objects under a directory on the local filesystem.
// Object bytes live under <root>/data and a small JSON record with the content
// type and visibility lives under <root>/meta. Direct uploads are authorized
// with signed grants and received by AcceptUpload.
type LocalGateway struct {
	root    string
	baseURL string
	signer  *GrantSigner
	now     func() time.Time
}

type localMeta struct {
	ContentType string     `json:"content_type"`
	Visibility  Visibility `json:"visibility"`
}

func NewLocalGateway(root, baseURL string, signer *GrantSigner) (*LocalGateway, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: local root is required")
	}
	if signer == nil {
		return nil, errors.New("storage: grant signer is required")
	}
	for _, dir := range []string{"data", "meta"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("storage: ensure %s dir: %w", dir, err)
		}
	}
	return &LocalGateway{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		now:     time.Now,
	}, nil
}

// objectPath maps key to a path under dir, rejecting keys that would
// escape it.
func (g *LocalGateway) objectPath(dir, key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", ErrInvalidKey
	}
	return filepath.Join(g.root, dir, filepath.FromSlash(clean)), nil
}

func (g *LocalGateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.Stat(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (g *LocalGateway) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	p, err := g.objectPath("data", key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, ErrObjectNotFound
	}

	meta := g.readMeta(key)
	return &ObjectInfo{Key: key, Size: fi.Size(), ContentType: meta.ContentType}, nil
}

func (g *LocalGateway) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := g.objectPath("data", key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return f, err
}

// Put writes body to key through a temporary file so readers never see a
// partial object.
func (g *LocalGateway) Put(ctx context.Context, key string, body io.Reader, contentType string, visibility Visibility) error {
	p, err := g.objectPath("data", key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("storage: ensure object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("storage: create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: body}); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("storage: commit object %s: %w", key, err)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	return g.writeMeta(key, localMeta{ContentType: contentType, Visibility: visibility})
}

func (g *LocalGateway) PresignUpload(ctx context.Context, key string, ttl time.Duration, headers map[string]string) (*Grant, error) {
	if _, err := g.objectPath("data", key); err != nil {
		return nil, err
	}

	expiresAt := g.now().Add(ttl).UTC().Truncate(time.Second)
	token, err := g.signer.Sign(key, http.MethodPut, headers["Content-Type"], expiresAt)
	if err != nil {
		return nil, err
	}

	return &Grant{
		URL:       g.baseURL + "/uploads/" + token,
		Method:    http.MethodPut,
		Headers:   copyHeaders(headers),
		ExpiresAt: expiresAt,
	}, nil
}

// UploadGuard vets the key of a verified grant before any byte is written.
type UploadGuard func(ctx context.Context, key string) error

// AcceptUpload stores body under the key named by a grant token. The request
// method and content type must match what the grant was issued for. A nil
// guard accepts every key.
func (g *LocalGateway) AcceptUpload(ctx context.Context, token, method, contentType string, guard UploadGuard, body io.Reader) (*ObjectInfo, error) {
	claims, err := g.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	if method != claims.Method {
		return nil, fmt.Errorf("%w: method %s", ErrGrantMismatch, method)
	}
	if claims.ContentType != "" && !strings.EqualFold(contentType, claims.ContentType) {
		return nil, fmt.Errorf("%w: content type %q", ErrGrantMismatch, contentType)
	}
	if guard != nil {
		if err := guard(ctx, claims.Key); err != nil {
			return nil, err
		}
	}

	if err := g.Put(ctx, claims.Key, body, claims.ContentType, VisibilityPrivate); err != nil {
		return nil, err
	}
	return g.Stat(ctx, claims.Key)
}

// OpenPublic opens an object for anonymous reading. Private and missing
// objects both report ErrObjectNotFound.
func (g *LocalGateway) OpenPublic(key string) (*os.File, *ObjectInfo, error) {
	p, err := g.objectPath("data", key)
	if err != nil {
		return nil, nil, ErrObjectNotFound
	}
	meta := g.readMeta(key)
	if meta.Visibility != VisibilityPublic {
		return nil, nil, ErrObjectNotFound
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, &ObjectInfo{Key: key, Size: fi.Size(), ContentType: meta.ContentType}, nil
}

func (g *LocalGateway) readMeta(key string) localMeta {
	meta := localMeta{Visibility: VisibilityPrivate}
	if p, err := g.objectPath("meta", key); err == nil {
		if data, err := os.ReadFile(p + ".json"); err == nil {
			json.Unmarshal(data, &meta)
		}
	}
	if meta.ContentType == "" {
		meta.ContentType = mime.TypeByExtension(path.Ext(key))
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	return meta
}

func (g *LocalGateway) writeMeta(key string, meta localMeta) error {
	p, err := g.objectPath("meta", key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("storage: ensure meta dir: %w", err)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(p+".json", data, 0644)
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
