package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/model"
)

var documentColumns = []string{
	"id", "verification_id", "document_type", "file_name", "file_url", "file_size", "mime_type",
	"bucket", "storage_path", "ocr_status", "extracted_data", "created_at", "updated_at",
}

// DocumentRepository wraps all document SQL used by intake, the API and
// the worker.
type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{db: db, logger: logger}
}

// CreateDocument inserts the commit marker of an uploaded file.
func (r *DocumentRepository) CreateDocument(ctx context.Context, d *model.Document) error {
	query := psql.Insert("documents").
		Columns(documentColumns...).
		Values(d.ID, d.VerificationID, d.DocumentType, d.FileName, d.FileURL, d.FileSize, d.MimeType,
			d.Bucket, d.StoragePath, d.OCRStatus, jsonArg(d.ExtractedData), d.CreatedAt, d.UpdatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return dbError(r.logger, "insert document", err)
	}
	return nil
}

// GetDocument returns a document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	sql, args, err := psql.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	d, err := scanDocument(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, dbError(r.logger, "get document", err)
	}
	return d, nil
}

// ListDocuments returns the documents of a verification in insert order.
func (r *DocumentRepository) ListDocuments(ctx context.Context, verificationID uuid.UUID) ([]model.Document, error) {
	sql, args, err := psql.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"verification_id": verificationID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbError(r.logger, "list documents", err)
	}
	defer rows.Close()

	out := []model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, dbError(r.logger, "scan document", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(r.logger, "list documents", err)
	}
	return out, nil
}

// UpdateDocumentOCR records OCR progress. A nil data keeps the stored
// payload.
func (r *DocumentRepository) UpdateDocumentOCR(ctx context.Context, id uuid.UUID, status model.OCRStatus, data json.RawMessage) error {
	query := psql.Update("documents").
		Set("ocr_status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id})
	if data != nil {
		query = query.Set("extracted_data", jsonArg(data))
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return dbError(r.logger, "update document", err)
	}
	return affected(tag)
}

// DeleteDocument removes a row.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	sql, args, err := psql.Delete("documents").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return dbError(r.logger, "delete document", err)
	}
	return affected(tag)
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var (
		d    model.Document
		data []byte
	)
	if err := row.Scan(&d.ID, &d.VerificationID, &d.DocumentType, &d.FileName, &d.FileURL, &d.FileSize, &d.MimeType,
		&d.Bucket, &d.StoragePath, &d.OCRStatus, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		d.ExtractedData = json.RawMessage(data)
	}
	return &d, nil
}
