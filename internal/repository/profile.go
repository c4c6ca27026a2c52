package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/model"
)

var profileColumns = []string{
	"id", "email", "full_name", "phone", "avatar_url", "password_hash", "provider", "created_at", "updated_at",
}

// ProfileRepository stores user profiles.
type ProfileRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewProfileRepository constructs a repository.
func NewProfileRepository(db *pgxpool.Pool, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{db: db, logger: logger}
}

func (r *ProfileRepository) CreateProfile(ctx context.Context, p *model.Profile) error {
	query := psql.Insert("profiles").
		Columns(profileColumns...).
		Values(p.ID, p.Email, p.FullName, p.Phone, p.AvatarURL, p.PasswordHash, p.Provider, p.CreatedAt, p.UpdatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return dbError(r.logger, "insert profile", err)
	}
	return nil
}

func (r *ProfileRepository) GetProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return r.getOne(ctx, psql.Select(profileColumns...).From("profiles").Where("id = ?", id))
}

func (r *ProfileRepository) GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return r.getOne(ctx, psql.Select(profileColumns...).From("profiles").Where("email = ?", strings.ToLower(email)))
}

func (r *ProfileRepository) UpsertProviderProfile(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	now := time.Now().UTC()
	query := psql.Insert("profiles").
		Columns(profileColumns...).
		Values(p.ID, strings.ToLower(p.Email), p.FullName, p.Phone, p.AvatarURL, "", p.Provider, now, now).
		Suffix(`ON CONFLICT (email) DO UPDATE SET
			provider = EXCLUDED.provider,
			full_name = CASE WHEN profiles.full_name = '' THEN EXCLUDED.full_name ELSE profiles.full_name END,
			avatar_url = CASE WHEN profiles.avatar_url = '' THEN EXCLUDED.avatar_url ELSE profiles.avatar_url END,
			updated_at = EXCLUDED.updated_at
			RETURNING ` + strings.Join(profileColumns, ", "))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	out, err := scanProfile(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, dbError(r.logger, "upsert profile", err)
	}
	return out, nil
}

func (r *ProfileRepository) getOne(ctx context.Context, query selectBuilder) (*model.Profile, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	p, err := scanProfile(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, dbError(r.logger, "get profile", err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.AvatarURL, &p.PasswordHash, &p.Provider, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
