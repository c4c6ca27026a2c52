package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/propshield/internal/config"
)

// ObjectInfo describes one entry of a bucket listing.
type ObjectInfo struct {
	Name         string    `json:"name"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
	// IsFolder marks common prefixes returned by non-recursive listings.
	IsFolder bool `json:"isFolder,omitempty"`
}

// ObjectStore is the bucket-scoped object API the Gateway is built on.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType, cacheControl string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Remove(ctx context.Context, bucket, key string) error
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// MinioStore wraps MinIO/S3 interactions.
type MinioStore struct {
	client *minio.Client
	region string
}

// NewMinio creates a MinIO client from the Config.
func NewMinio(cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &MinioStore{client: client, region: cfg.S3Region}, nil
}

// EnsureBucket creates bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	return nil
}

// Exists reports whether key is present in bucket.
func (s *MinioStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat object: %w", err)
}

// Put writes the object in a single request.
func (s *MinioStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType, cacheControl string) error {
	opts := minio.PutObjectOptions{ContentType: contentType, CacheControl: cacheControl}
	if _, err := s.client.PutObject(ctx, bucket, key, r, size, opts); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Get fetches the object bytes.
func (s *MinioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return buf, nil
}

// Remove deletes the object. Removing a missing key is not an error.
func (s *MinioStore) Remove(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Presign returns a signed GET URL valid for ttl.
func (s *MinioStore) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// List returns the direct children of prefix.
func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		out = append(out, ObjectInfo{
			Name:         strings.TrimPrefix(obj.Key, prefix),
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
			IsFolder:     strings.HasSuffix(obj.Key, "/"),
		})
	}
	return out, nil
}

// MemoryStore keeps objects in process. It backs tests and local dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	now     func() time.Time
	// PutCalls counts successful and failed Put attempts.
	PutCalls int
	// FailPut, when set, is consulted before each Put; a non-nil error
	// aborts the write.
	FailPut func(bucket, key string, call int) error
}

type memoryObject struct {
	data         []byte
	contentType  string
	cacheControl string
	modified     time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), now: time.Now}
}

func memKey(bucket, key string) string { return bucket + "\x00" + key }

// EnsureBucket is a no-op; buckets are implicit.
func (m *MemoryStore) EnsureBucket(context.Context, string) error { return nil }

// Exists reports whether the object is present.
func (m *MemoryStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[memKey(bucket, key)]
	return ok, nil
}

// Put stores a copy of r.
func (m *MemoryStore) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType, cacheControl string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.FailPut != nil {
		if err := m.FailPut(bucket, key, m.PutCalls); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[memKey(bucket, key)] = memoryObject{
		data:         data,
		contentType:  contentType,
		cacheControl: cacheControl,
		modified:     m.now(),
	}
	return nil
}

// Get returns a copy of the stored bytes.
func (m *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(obj.data), nil
}

// ContentType returns the stored content type of an object.
func (m *MemoryStore) ContentType(bucket, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[memKey(bucket, key)].contentType
}

// CacheControl returns the stored cache-control header of an object.
func (m *MemoryStore) CacheControl(bucket, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[memKey(bucket, key)].cacheControl
}

// Remove deletes the object.
func (m *MemoryStore) Remove(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, memKey(bucket, key))
	return nil
}

// Presign returns a fake signed URL.
func (m *MemoryStore) Presign(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[memKey(bucket, key)]; !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, key, m.now().Add(ttl).Unix()), nil
}

// List returns every object whose key starts with prefix.
func (m *MemoryStore) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for k, obj := range m.objects {
		b, key, _ := strings.Cut(k, "\x00")
		if b != bucket || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, ObjectInfo{
			Name:         strings.TrimPrefix(key, prefix),
			Key:          key,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.modified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var errInjected = errors.New("injected failure")

// FailNthPut returns a FailPut hook that fails exactly the n-th Put call.
func FailNthPut(n int) func(bucket, key string, call int) error {
	return func(_, _ string, call int) error {
		if call == n {
			return errInjected
		}
		return nil
	}
}
