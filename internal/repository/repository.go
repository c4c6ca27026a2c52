// Package repository holds the table contracts of the backend and their
// PostgreSQL implementations built with squirrel and pgx.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("record already exists")
)

// Profiles is the profiles table.
type Profiles interface {
	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	// UpsertProviderProfile creates the profile or links an existing one
	// with the same email to the provider, returning the stored row.
	UpsertProviderProfile(ctx context.Context, p *model.Profile) (*model.Profile, error)
}

// Verifications is the verifications table.
type Verifications interface {
	CreateVerification(ctx context.Context, v *model.Verification) error
	GetVerification(ctx context.Context, id uuid.UUID) (*model.Verification, error)
	ListVerifications(ctx context.Context, userID uuid.UUID) ([]model.Verification, error)
	UpdateVerificationStatus(ctx context.Context, id uuid.UUID, status model.VerificationStatus) error
	DeleteVerification(ctx context.Context, id uuid.UUID) error
}

// Documents is the documents table. ListDocuments returns rows in
// creation order.
type Documents interface {
	CreateDocument(ctx context.Context, d *model.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	ListDocuments(ctx context.Context, verificationID uuid.UUID) ([]model.Document, error)
	UpdateDocumentOCR(ctx context.Context, id uuid.UUID, status model.OCRStatus, data json.RawMessage) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

// Activity is the append-only activity_logs table.
type Activity interface {
	AppendActivity(ctx context.Context, entry *model.ActivityLog) error
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type selectBuilder = squirrel.SelectBuilder

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// dbError translates err and wraps it with op. Missing rows come back as
// the bare ErrNotFound; anything other than a missing row or a duplicate
// is logged.
func dbError(log *zap.Logger, op string, err error) error {
	err = translate(err)
	switch {
	case errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, ErrDuplicate):
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Error("database operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func affected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// jsonArg maps an empty payload to SQL NULL.
func jsonArg(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
