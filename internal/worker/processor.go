package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/backend"
	"github.com/dharsanguruparan/propshield/internal/mimetype"
	"github.com/dharsanguruparan/propshield/internal/model"
	pdfutil "github.com/dharsanguruparan/propshield/internal/pdf"
	"github.com/dharsanguruparan/propshield/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	backend  *backend.Backend
	log      *zap.Logger
	attempts func(ctx context.Context) (retry, maxRetry int, ok bool)
}

// NewProcessor constructs a worker processor.
func NewProcessor(b *backend.Backend, log *zap.Logger) *Processor {
	return &Processor{backend: b, log: log, attempts: asynqAttempts}
}

// asynqAttempts reads the retry counters asynq puts on a task context. ok
// is false outside an asynq handler.
func asynqAttempts(ctx context.Context) (int, int, bool) {
	retry, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0, false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return retry, maxRetry, ok
}

// Handler registers the processing job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessVerificationTask, p.handleProcess)
	return mux
}

func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseProcessPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return p.Process(ctx, payload.VerificationID)
}

// Process moves a verification to processing and extracts the text layer of
// every PDF attached to it. Documents already extracted are skipped so a
// retried job only redoes the remainder. Other file types are left pending
// for the scoring service.
//
// A failure that will not be retried marks the verification failed: the
// error carries asynq.SkipRetry, asynq is on its last attempt, or the job
// runs outside asynq.
func (p *Processor) Process(ctx context.Context, verificationID uuid.UUID) error {
	err := p.process(ctx, verificationID)
	if err != nil && p.final(ctx, err) {
		p.fail(ctx, verificationID, err)
	}
	return err
}

func (p *Processor) final(ctx context.Context, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retry, maxRetry, ok := p.attempts(ctx)
	return !ok || retry >= maxRetry
}

func (p *Processor) fail(ctx context.Context, id uuid.UUID, cause error) {
	log := p.log.With(zap.String("verification_id", id.String()))
	if err := p.backend.Verifications.UpdateVerificationStatus(ctx, id, model.VerificationFailed); err != nil {
		log.Error("mark verification failed", zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	log.Warn("verification failed", zap.Error(cause))
}

func (p *Processor) process(ctx context.Context, verificationID uuid.UUID) error {
	log := p.log.With(zap.String("verification_id", verificationID.String()))

	v, err := p.backend.Verifications.GetVerification(ctx, verificationID)
	if err != nil {
		return fmt.Errorf("load verification: %w", err)
	}
	if v.Status.Terminal() {
		log.Info("verification already terminal, skipping", zap.String("status", string(v.Status)))
		return nil
	}
	if v.Status != model.VerificationProcessing {
		if err := p.backend.Verifications.UpdateVerificationStatus(ctx, v.ID, model.VerificationProcessing); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
	}

	docs, err := p.backend.Documents.ListDocuments(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	extracted := 0
	for i := range docs {
		doc := &docs[i]
		if doc.OCRStatus == model.OCRCompleted || !mimetype.IsPDF(doc.MimeType) {
			continue
		}
		if err := p.extract(ctx, doc); err != nil {
			log.Error("extract failed", zap.String("document_id", doc.ID.String()), zap.Error(err))
			if markErr := p.backend.Documents.UpdateDocumentOCR(ctx, doc.ID, model.OCRFailed, nil); markErr != nil {
				log.Error("mark document failed", zap.String("document_id", doc.ID.String()), zap.Error(markErr))
			}
			return err
		}
		extracted++
	}
	log.Info("verification processed", zap.Int("documents", len(docs)), zap.Int("extracted", extracted))
	return nil
}

func (p *Processor) extract(ctx context.Context, doc *model.Document) error {
	if err := p.backend.Documents.UpdateDocumentOCR(ctx, doc.ID, model.OCRProcessing, nil); err != nil {
		return fmt.Errorf("mark ocr processing: %w", err)
	}
	data, err := p.backend.Storage.Download(ctx, doc.Bucket, doc.StoragePath)
	if err != nil {
		return fmt.Errorf("download %s: %w", doc.StoragePath, err)
	}
	text, err := pdfutil.Extract(data)
	if err != nil {
		// Unreadable bytes will not improve on retry.
		return fmt.Errorf("extract %s: %v: %w", doc.FileName, err, asynq.SkipRetry)
	}
	raw, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("encode extracted data: %w", err)
	}
	if err := p.backend.Documents.UpdateDocumentOCR(ctx, doc.ID, model.OCRCompleted, raw); err != nil {
		return fmt.Errorf("mark ocr completed: %w", err)
	}
	p.log.Debug("document extracted", zap.String("document_id", doc.ID.String()), zap.Int("pages", text.Pages), zap.Int("chars", len(text.Text)))
	return nil
}
