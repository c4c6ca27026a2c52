package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/model"
)

// ActivityRepository appends audit entries.
type ActivityRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewActivityRepository(db *pgxpool.Pool, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{db: db, logger: logger}
}

func (r *ActivityRepository) AppendActivity(ctx context.Context, entry *model.ActivityLog) error {
	sql, args, err := psql.Insert("activity_logs").
		Columns("id", "user_id", "action", "details", "created_at").
		Values(entry.ID, entry.UserID, entry.Action, jsonArg(entry.Details), entry.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return dbError(r.logger, "insert activity", err)
	}
	return nil
}
