// Package s3storage is the storage gateway: single-shot uploads of local
// files, deletes, listings and time-limited download URLs on top of an
// S3-compatible object store.
package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/mimetype"
	"github.com/dharsanguruparan/propshield/internal/model"
)

var (
	// ErrObjectExists is returned when an upload targets an existing path.
	// The check runs before the write and is not atomic with it: two
	// concurrent uploads to one path can both pass it and the later write
	// wins. Callers keep paths unique with GeneratePath.
	ErrObjectExists = errors.New("object already exists")
	// ErrNotFound is returned for missing objects.
	ErrNotFound = errors.New("object not found")
)

const (
	uploadCacheControl = "max-age=3600"
	defaultListLimit   = 100
	// DefaultSignedURLTTL applies when callers pass a non-positive TTL.
	DefaultSignedURLTTL = time.Hour
)

// OpError tags a failure with the gateway operation and object it concerns.
type OpError struct {
	Op     string
	Bucket string
	Path   string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// UploadResult is returned by a successful Upload.
type UploadResult struct {
	Path        string `json:"path"`
	PublicURL   string `json:"publicUrl"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// ListOptions pages through a folder listing.
type ListOptions struct {
	Limit  int
	Offset int
}

// Gateway exposes the storage operations used by intake and the API.
type Gateway struct {
	store      ObjectStore
	publicBase string
	log        *zap.Logger
}

// NewGateway builds a Gateway. publicBase is the backend URL public object
// links are derived from.
func NewGateway(store ObjectStore, publicBase string, log *zap.Logger) *Gateway {
	return &Gateway{
		store:      store,
		publicBase: strings.TrimRight(publicBase, "/"),
		log:        log,
	}
}

// UploadOption customises a single Upload call.
type UploadOption func(*uploadOptions)

type uploadOptions struct {
	progress func(percent int)
}

// WithProgress reports 0 before the write and 100 after it succeeds.
func WithProgress(fn func(percent int)) UploadOption {
	return func(o *uploadOptions) { o.progress = fn }
}

// Upload reads file fully into memory and writes it to bucket/path in one
// request. An existing path is refused with ErrObjectExists, see there for
// the concurrent case.
func (g *Gateway) Upload(ctx context.Context, bucket, path string, file model.SelectedFile, opts ...UploadOption) (*UploadResult, error) {
	var o uploadOptions
	for _, opt := range opts {
		opt(&o)
	}
	contentType := mimetype.Normalize(file.MimeType, file.Name)
	g.log.Debug("upload",
		zap.String("bucket", bucket),
		zap.String("path", path),
		zap.String("declared_type", file.MimeType),
		zap.String("content_type", contentType),
	)
	if o.progress != nil {
		o.progress(0)
	}

	data, err := readLocal(file.URI)
	if err != nil {
		return nil, g.fail("upload", bucket, path, fmt.Errorf("read %s: %w", file.Name, err))
	}
	exists, err := g.store.Exists(ctx, bucket, path)
	if err != nil {
		return nil, g.fail("upload", bucket, path, err)
	}
	if exists {
		return nil, g.fail("upload", bucket, path, ErrObjectExists)
	}
	if err := g.store.Put(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), contentType, uploadCacheControl); err != nil {
		return nil, g.fail("upload", bucket, path, err)
	}
	if o.progress != nil {
		o.progress(100)
	}
	return &UploadResult{
		Path:        path,
		PublicURL:   g.PublicURL(bucket, path),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// Delete removes bucket/path.
func (g *Gateway) Delete(ctx context.Context, bucket, path string) error {
	if err := g.store.Remove(ctx, bucket, path); err != nil {
		return g.fail("delete", bucket, path, err)
	}
	return nil
}

// Download returns the stored bytes of bucket/path.
func (g *Gateway) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	data, err := g.store.Get(ctx, bucket, path)
	if err != nil {
		return nil, g.fail("download", bucket, path, err)
	}
	return data, nil
}

// SignedURL mints a download URL for bucket/path that expires after ttl.
func (g *Gateway) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	u, err := g.store.Presign(ctx, bucket, path, ttl)
	if err != nil {
		return "", g.fail("signed_url", bucket, path, err)
	}
	return u, nil
}

// List returns the entries under folder, newest first.
func (g *Gateway) List(ctx context.Context, bucket, folder string, opts ListOptions) ([]ObjectInfo, error) {
	prefix := strings.Trim(folder, "/")
	if prefix != "" {
		prefix += "/"
	}
	entries, err := g.store.List(ctx, bucket, prefix)
	if err != nil {
		return nil, g.fail("list", bucket, folder, err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastModified.After(entries[j].LastModified)
	})
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if opts.Offset >= len(entries) {
		return []ObjectInfo{}, nil
	}
	entries = entries[opts.Offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// PublicURL is the permanent link of bucket/path.
func (g *Gateway) PublicURL(bucket, path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", g.publicBase, bucket, strings.Join(segments, "/"))
}

// EnsureBuckets creates the named buckets when missing.
func (g *Gateway) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, b := range buckets {
		if err := g.store.EnsureBucket(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) fail(op, bucket, path string, err error) error {
	g.log.Error("storage operation failed",
		zap.String("op", op),
		zap.String("bucket", bucket),
		zap.String("path", path),
		zap.Error(err),
	)
	return &OpError{Op: op, Bucket: bucket, Path: path, Err: err}
}

func readLocal(uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, err
		}
		uri = u.Path
	}
	return os.ReadFile(uri)
}
