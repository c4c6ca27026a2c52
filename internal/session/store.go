package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store persists small string values across process restarts. Get returns
// "" and a nil error for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Platforms understood by NewStore.
const (
	PlatformNative   = "native"
	PlatformWeb      = "web"
	PlatformHeadless = "headless"
)

// StoreOptions configures NewStore.
type StoreOptions struct {
	Dir string
	// ClientID namespaces the redis keys of one installation. When empty
	// the web variant loads or creates one under Dir.
	ClientID      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// TTL bounds how long the redis variant keeps values. Zero keeps them
	// until removed.
	TTL time.Duration
}

// NewStore picks the store for platform once at startup: native uses the
// file store, web the redis store, headless keeps nothing. A store that
// cannot be initialised degrades to NoopStore.
func NewStore(ctx context.Context, platform string, opts StoreOptions, log *zap.Logger) Store {
	switch platform {
	case PlatformNative:
		fs, err := NewFileStore(opts.Dir)
		if err != nil {
			log.Warn("session store unavailable, sessions will not persist", zap.String("platform", platform), zap.Error(err))
			return NoopStore{}
		}
		return fs
	case PlatformWeb:
		clientID := opts.ClientID
		if clientID == "" {
			var err error
			if clientID, err = LoadClientID(ctx, opts.Dir); err != nil {
				log.Warn("session store unavailable, sessions will not persist", zap.String("platform", platform), zap.Error(err))
				return NoopStore{}
			}
		}
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			log.Warn("session store unavailable, sessions will not persist", zap.String("platform", platform), zap.Error(err))
			return NoopStore{}
		}
		return NewRedisStore(client, clientID, opts.TTL)
	case PlatformHeadless:
		return NoopStore{}
	default:
		log.Warn("unknown session platform", zap.String("platform", platform))
		return NoopStore{}
	}
}

// NoopStore forgets everything.
type NoopStore struct{}

func (NoopStore) Get(context.Context, string) (string, error) { return "", nil }
func (NoopStore) Set(context.Context, string, string) error { return nil }
func (NoopStore) Remove(context.Context, string) error { return nil }

// FileStore keeps one owner-only file per key.
type FileStore struct {
	dir string
}

// NewFileStore creates dir with mode 0700 when needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("session directory not set")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return nil, fmt.Errorf("chmod session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key)))
}

func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session value: %w", err)
	}
	return string(data), nil
}

// Set writes through a temp file and rename so readers never see a
// partial value.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write session value: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write session value: %w", err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write session value: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session value: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("write session value: %w", err)
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session value: %w", err)
	}
	return nil
}

const (
	redisPrefix = "propshield:session:"
	clientIDKey = "client-id"
)

// LoadClientID returns the installation id kept in dir, creating it on
// first use.
func LoadClientID(ctx context.Context, dir string) (string, error) {
	fs, err := NewFileStore(dir)
	if err != nil {
		return "", err
	}
	id, err := fs.Get(ctx, clientIDKey)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := fs.Set(ctx, clientIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// RedisStore keeps values in redis under a per-client key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. Keys live under clientID; an empty id gets a
// fresh one, so nothing is shared with other clients.
func NewRedisStore(client *redis.Client, clientID string, ttl time.Duration) *RedisStore {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return &RedisStore{client: client, prefix: redisPrefix + clientID + ":", ttl: ttl}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
