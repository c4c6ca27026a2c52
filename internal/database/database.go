package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is applied by EnsureSchema. Documents cascade with their
// verification so a deleted intake leaves no rows behind.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS verifications (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES profiles(id),
	property_address TEXT NOT NULL,
	property_type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	fraud_score DOUBLE PRECISION,
	risk_rating TEXT NOT NULL,
	report_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verifications_user ON verifications(user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	verification_id UUID NOT NULL REFERENCES verifications(id) ON DELETE CASCADE,
	document_type TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_url TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	mime_type TEXT NOT NULL,
	bucket TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	ocr_status TEXT NOT NULL,
	extracted_data JSONB,
	seq BIGSERIAL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_verification ON documents(verification_id, seq);
CREATE TABLE IF NOT EXISTS activity_logs (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES profiles(id),
	action TEXT NOT NULL,
	details JSONB,
	created_at TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the tables if needed so docker-compose can bootstrap
// everything without a migration tool.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
