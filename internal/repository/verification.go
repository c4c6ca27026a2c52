package repository

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/model"
)

var verificationColumns = []string{
	"id", "user_id", "property_address", "property_type", "status", "fraud_score", "risk_rating", "report_url", "created_at", "updated_at",
}

// VerificationRepository stores verification records.
type VerificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewVerificationRepository constructs a repository.
func NewVerificationRepository(db *pgxpool.Pool, logger *zap.Logger) *VerificationRepository {
	return &VerificationRepository{db: db, logger: logger}
}

func (r *VerificationRepository) CreateVerification(ctx context.Context, v *model.Verification) error {
	query := psql.Insert("verifications").
		Columns(verificationColumns...).
		Values(v.ID, v.UserID, v.PropertyAddress, v.PropertyType, v.Status, v.FraudScore, v.RiskRating, v.ReportURL, v.CreatedAt, v.UpdatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return dbError(r.logger, "insert verification", err)
	}
	return nil
}

func (r *VerificationRepository) GetVerification(ctx context.Context, id uuid.UUID) (*model.Verification, error) {
	sql, args, err := psql.Select(verificationColumns...).
		From("verifications").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	v, err := scanVerification(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, dbError(r.logger, "get verification", err)
	}
	return v, nil
}

func (r *VerificationRepository) ListVerifications(ctx context.Context, userID uuid.UUID) ([]model.Verification, error) {
	sql, args, err := psql.Select(verificationColumns...).
		From("verifications").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbError(r.logger, "list verifications", err)
	}
	defer rows.Close()

	out := []model.Verification{}
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, dbError(r.logger, "scan verification", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(r.logger, "list verifications", err)
	}
	return out, nil
}

func (r *VerificationRepository) UpdateVerificationStatus(ctx context.Context, id uuid.UUID, status model.VerificationStatus) error {
	sql, args, err := psql.Update("verifications").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return dbError(r.logger, "update verification", err)
	}
	return affected(tag)
}

func (r *VerificationRepository) DeleteVerification(ctx context.Context, id uuid.UUID) error {
	sql, args, err := psql.Delete("verifications").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return dbError(r.logger, "delete verification", err)
	}
	return affected(tag)
}

func scanVerification(row pgx.Row) (*model.Verification, error) {
	var v model.Verification
	if err := row.Scan(&v.ID, &v.UserID, &v.PropertyAddress, &v.PropertyType, &v.Status, &v.FraudScore, &v.RiskRating, &v.ReportURL, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
