// Package processing runs verification jobs on in-process goroutines. It
// stands in for the Redis-backed worker when the API is started with inline
// processing.
package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Dispatch when every buffered slot is taken.
var ErrQueueFull = errors.New("processing queue full")

// Handler processes one verification.
type Handler func(ctx context.Context, verificationID uuid.UUID) error

// Pool consumes dispatched verifications with a fixed number of workers.
type Pool struct {
	handle  Handler
	queue   chan uuid.UUID
	workers int
	log     *zap.Logger
	wg      sync.WaitGroup
}

// New builds a Pool with queue capacity tied to worker count.
func New(handle Handler, workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		handle:  handle,
		queue:   make(chan uuid.UUID, workers*4),
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. They exit when ctx is done.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Dispatch queues a verification without blocking the caller.
func (p *Pool) Dispatch(_ context.Context, verificationID uuid.UUID) error {
	select {
	case p.queue <- verificationID:
		return nil
	default:
		p.log.Warn("processing queue full", zap.String("verification_id", verificationID.String()))
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.queue:
			if err := p.handle(ctx, id); err != nil {
				p.log.Error("processing failed", zap.String("verification_id", id.String()), zap.Error(err))
			}
		}
	}
}
