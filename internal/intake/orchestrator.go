// Package intake runs the document intake workflow: one verification
// record, then for each selected file an upload followed by its document
// record, strictly in selection order.
package intake

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/backend"
	"github.com/dharsanguruparan/propshield/internal/mimetype"
	"github.com/dharsanguruparan/propshield/internal/model"
	"github.com/dharsanguruparan/propshield/internal/s3storage"
)

const (
	DefaultMaxFiles    = 10
	DefaultMaxFileSize = 10 << 20

	// uploadShare is the part of the progress range spent on uploads; the
	// rest covers record keeping.
	uploadShare = 80
)

// Dispatcher hands a committed verification to backend processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, verificationID uuid.UUID) error
}

// Request is one submission.
type Request struct {
	User         *model.Profile
	DocumentType model.DocumentType
	Files        []model.SelectedFile
	// Progress receives 0, then ((i+1)/n)*80 before each upload, then 100.
	Progress func(percent int)
}

// Result describes a committed submission.
type Result struct {
	VerificationID uuid.UUID        `json:"verificationId"`
	Documents      []model.Document `json:"documents"`
}

// Orchestrator runs submissions against a Backend.
type Orchestrator struct {
	backend     *backend.Backend
	dispatcher  Dispatcher
	log         *zap.Logger
	maxFiles    int
	maxFileSize int64
	compensate  bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDispatcher enqueues every committed verification.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithLimits overrides the file count and per-file size limits.
func WithLimits(maxFiles int, maxFileSize int64) Option {
	return func(o *Orchestrator) {
		if maxFiles > 0 {
			o.maxFiles = maxFiles
		}
		if maxFileSize > 0 {
			o.maxFileSize = maxFileSize
		}
	}
}

// WithoutCompensation leaves partial state behind on failure: the
// verification stays pending with the documents committed so far.
func WithoutCompensation() Option {
	return func(o *Orchestrator) { o.compensate = false }
}

// New builds an Orchestrator.
func New(b *backend.Backend, log *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:     b,
		log:         log,
		maxFiles:    DefaultMaxFiles,
		maxFileSize: DefaultMaxFileSize,
		compensate:  true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate checks req without touching the backend.
func (o *Orchestrator) Validate(req Request) error {
	if req.User == nil || req.User.ID == uuid.Nil {
		return invalid("user", ErrNotAuthenticated, "")
	}
	if req.DocumentType == "" {
		return invalid("document_type", ErrMissingType, "")
	}
	if !req.DocumentType.Valid() {
		return invalid("document_type", ErrUnknownType, "unknown document type %q", req.DocumentType)
	}
	if len(req.Files) == 0 {
		return invalid("files", ErrNoFiles, "")
	}
	if len(req.Files) > o.maxFiles {
		return invalid("files", ErrTooManyFiles, "at most %d files per verification, got %d", o.maxFiles, len(req.Files))
	}
	for _, f := range req.Files {
		if f.Size > o.maxFileSize {
			return invalid("files", ErrFileTooLarge, "%s is larger than %d bytes", f.Name, o.maxFileSize)
		}
	}
	return nil
}

// Submit runs the intake workflow. Failures are *ValidationError before
// any remote effect and *SubmitError afterwards.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}
	progress := req.Progress
	if progress == nil {
		progress = func(int) {}
	}
	progress(0)

	v := model.NewVerification(req.User.ID)
	if err := o.backend.Verifications.CreateVerification(ctx, v); err != nil {
		o.log.Error("create verification failed", zap.String("user_id", req.User.ID.String()), zap.Error(err))
		return nil, &SubmitError{Stage: StageCreateVerification, Err: err}
	}
	log := o.log.With(zap.String("verification_id", v.ID.String()))

	bucket := o.backend.Buckets.Documents
	n := len(req.Files)
	var (
		docs     = make([]model.Document, 0, n)
		uploaded = make([]string, 0, n)
	)
	for i, file := range req.Files {
		progress((i + 1) * uploadShare / n)

		path := s3storage.GeneratePath(req.User.ID.String(), file.Name, v.ID.String())
		res, err := o.backend.Storage.Upload(ctx, bucket, path, file)
		if err != nil {
			log.Error("upload failed", zap.String("file", file.Name), zap.Error(err))
			return nil, o.fail(ctx, v, docs, uploaded, &SubmitError{VerificationID: v.ID, FileName: file.Name, Stage: StageUpload, Err: err})
		}
		uploaded = append(uploaded, path)

		now := time.Now().UTC()
		doc := model.Document{
			ID:             uuid.New(),
			VerificationID: v.ID,
			DocumentType:   req.DocumentType,
			FileName:       file.Name,
			FileURL:        res.PublicURL,
			FileSize:       res.Size,
			MimeType:       mimetype.Normalize(file.MimeType, file.Name),
			Bucket:         bucket,
			StoragePath:    path,
			OCRStatus:      model.OCRPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := o.backend.Documents.CreateDocument(ctx, &doc); err != nil {
			log.Error("create document failed", zap.String("file", file.Name), zap.Error(err))
			return nil, o.fail(ctx, v, docs, uploaded, &SubmitError{VerificationID: v.ID, FileName: file.Name, Stage: StageCreateDocument, Err: err})
		}
		docs = append(docs, doc)
	}

	progress(100)
	o.afterCommit(ctx, req, v.ID, n)
	log.Info("verification submitted", zap.Int("documents", n))
	return &Result{VerificationID: v.ID, Documents: docs}, nil
}

func (o *Orchestrator) afterCommit(ctx context.Context, req Request, verificationID uuid.UUID, files int) {
	details, _ := json.Marshal(map[string]any{
		"verification_id": verificationID,
		"document_type":   req.DocumentType,
		"files":           files,
	})
	entry := &model.ActivityLog{
		ID:        uuid.New(),
		UserID:    req.User.ID,
		Action:    model.ActionVerificationSubmitted,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.backend.Activity.AppendActivity(ctx, entry); err != nil {
		o.log.Warn("append activity failed", zap.Error(err))
	}
	if o.dispatcher == nil {
		return
	}
	if err := o.dispatcher.Dispatch(ctx, verificationID); err != nil {
		o.log.Warn("dispatch verification failed", zap.String("verification_id", verificationID.String()), zap.Error(err))
	}
}

// fail undoes this submission's writes, newest first, when compensation is
// enabled. Cleanup runs even if ctx was cancelled.
func (o *Orchestrator) fail(ctx context.Context, v *model.Verification, docs []model.Document, paths []string, serr *SubmitError) error {
	if !o.compensate {
		return serr
	}
	ctx = context.WithoutCancel(ctx)
	log := o.log.With(zap.String("verification_id", v.ID.String()))
	clean := true
	for i := len(docs) - 1; i >= 0; i-- {
		if err := o.backend.Documents.DeleteDocument(ctx, docs[i].ID); err != nil {
			log.Error("compensate: delete document failed", zap.String("document_id", docs[i].ID.String()), zap.Error(err))
			clean = false
		}
	}
	for i := len(paths) - 1; i >= 0; i-- {
		if err := o.backend.Storage.Delete(ctx, o.backend.Buckets.Documents, paths[i]); err != nil {
			log.Error("compensate: remove object failed", zap.String("path", paths[i]), zap.Error(err))
			clean = false
		}
	}
	if err := o.backend.Verifications.UpdateVerificationStatus(ctx, v.ID, model.VerificationFailed); err != nil {
		log.Error("compensate: mark verification failed", zap.Error(err))
		clean = false
	}
	serr.Compensated = clean
	return serr
}
