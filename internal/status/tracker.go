package status

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/repository"
)

const defaultInterval = 2 * time.Second

// Tracker reads verification progress from the backend.
type Tracker struct {
	verifications repository.Verifications
	documents     repository.Documents
	interval      time.Duration
	log           *zap.Logger
}

// NewTracker builds a Tracker polling every interval.
func NewTracker(verifications repository.Verifications, documents repository.Documents, interval time.Duration, log *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Tracker{verifications: verifications, documents: documents, interval: interval, log: log}
}

// Snapshot reads the current progress of a verification.
func (t *Tracker) Snapshot(ctx context.Context, id uuid.UUID) (Progress, error) {
	v, err := t.verifications.GetVerification(ctx, id)
	if err != nil {
		return Progress{}, fmt.Errorf("load verification %s: %w", id, err)
	}
	docs, err := t.documents.ListDocuments(ctx, id)
	if err != nil {
		return Progress{}, fmt.Errorf("load documents of %s: %w", id, err)
	}
	return Derive(v, docs), nil
}

// Watch calls fn with the first snapshot and with every change after it.
// It returns nil once the verification is terminal, ctx.Err() when ctx is
// done, or the first read error.
func (t *Tracker) Watch(ctx context.Context, id uuid.UUID, fn func(Progress)) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	var last *Progress
	for {
		p, err := t.Snapshot(ctx, id)
		if err != nil {
			t.log.Error("status poll failed", zap.String("verification_id", id.String()), zap.Error(err))
			return err
		}
		if last == nil || !p.same(*last) {
			fn(p)
			last = &p
		}
		if p.Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
