// Package backend bundles the remote capabilities (tables, object storage)
// into one value that is built at startup and handed to the services that
// need it.
package backend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/config"
	"github.com/dharsanguruparan/propshield/internal/database"
	"github.com/dharsanguruparan/propshield/internal/memstore"
	"github.com/dharsanguruparan/propshield/internal/repository"
	"github.com/dharsanguruparan/propshield/internal/s3storage"
)

// Buckets names the object store buckets.
type Buckets struct {
	Documents string
	Reports   string
	Avatars   string
}

// Backend is the remote platform as seen by the services.
type Backend struct {
	Profiles      repository.Profiles
	Verifications repository.Verifications
	Documents     repository.Documents
	Activity      repository.Activity
	Storage       *s3storage.Gateway
	Buckets       Buckets

	pool *pgxpool.Pool
}

// Connect opens PostgreSQL and MinIO from cfg, applies the schema and
// makes sure the buckets exist.
func Connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	store, err := s3storage.NewMinio(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	b := &Backend{
		Profiles:      repository.NewProfileRepository(pool, log),
		Verifications: repository.NewVerificationRepository(pool, log),
		Documents:     repository.NewDocumentRepository(pool, log),
		Activity:      repository.NewActivityRepository(pool, log),
		Storage:       s3storage.NewGateway(store, cfg.BackendURL, log),
		Buckets:       bucketsFrom(cfg),
		pool:          pool,
	}
	if err := b.Storage.EnsureBuckets(ctx, b.Buckets.Documents, b.Buckets.Reports, b.Buckets.Avatars); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure buckets: %w", err)
	}
	return b, nil
}

// NewMemory builds a Backend over an in-process store.
func NewMemory(store *memstore.Store, publicBase string, log *zap.Logger) *Backend {
	return &Backend{
		Profiles:      store,
		Verifications: store,
		Documents:     store,
		Activity:      store,
		Storage:       s3storage.NewGateway(store.Objects, publicBase, log),
		Buckets:       Buckets{Documents: "documents", Reports: "reports", Avatars: "avatars"},
	}
}

// Close releases the database pool.
func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func bucketsFrom(cfg *config.Config) Buckets {
	return Buckets{
		Documents: cfg.DocumentsBucket,
		Reports:   cfg.ReportsBucket,
		Avatars:   cfg.AvatarsBucket,
	}
}
