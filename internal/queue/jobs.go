package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// ProcessVerificationTask is scheduled each time an intake commits.
	ProcessVerificationTask = "verification:process"

	maxRetry = 5
)

// ProcessPayload tells the worker which verification to pick up.
type ProcessPayload struct {
	VerificationID uuid.UUID `json:"verification_id"`
}

// NewProcessTask builds the task for a verification.
func NewProcessTask(verificationID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(ProcessPayload{VerificationID: verificationID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ProcessVerificationTask, data, asynq.MaxRetry(maxRetry)), nil
}

// ParseProcessPayload decodes a task payload.
func ParseProcessPayload(task *asynq.Task) (ProcessPayload, error) {
	var p ProcessPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if p.VerificationID == uuid.Nil {
		return p, fmt.Errorf("decode payload: missing verification_id")
	}
	return p, nil
}

// Enqueuer is the part of *asynq.Client the Dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues committed verifications for processing.
type Dispatcher struct {
	client Enqueuer
}

// NewDispatcher wraps an asynq client.
func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch enqueues a processing job for verificationID.
func (d *Dispatcher) Dispatch(ctx context.Context, verificationID uuid.UUID) error {
	task, err := NewProcessTask(verificationID)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}
