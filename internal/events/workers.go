package events

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/joseph-ayodele/fieldmedia/internal/processor"
)

// WorkerPublisher processes requests on an in-process worker pool, for
// deployments without a broker. Requests outlive the HTTP call that
// published them.
type WorkerPublisher struct {
	handler Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan processor.Request
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type WorkerOption func(*WorkerPublisher)

func WithWorkers(n int) WorkerOption {
	return func(p *WorkerPublisher) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) WorkerOption {
	return func(p *WorkerPublisher) {
		if n > 0 {
			p.ch = make(chan processor.Request, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) WorkerOption {
	return func(p *WorkerPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewWorkerPublisher(handler Handler, logger *slog.Logger, opts ...WorkerOption) *WorkerPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPublisher{
		handler: handler,
		logger:  logger,
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan processor.Request, 256),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *WorkerPublisher) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", "worker_id", workerID)

				for req := range p.ch {
					ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
					_, err := p.handler.Process(ctx, req)
					cancel()

					if err != nil {
						p.logger.Warn("processing failed", "worker_id", workerID, "media_id", req.MediaID, "error", err)
					}
				}

				p.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// PublishProcess queues req. A full queue blocks until a worker frees a
// slot or ctx ends.
func (p *WorkerPublisher) PublishProcess(ctx context.Context, req processor.Request) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.ch <- req:
		return nil
	default:
		p.logger.Warn("process queue full, applying backpressure", "media_id", req.MediaID)
	}
	select {
	case p.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting requests and waits for queued ones to finish.
func (p *WorkerPublisher) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("process queue drained")
	}
}

func (p *WorkerPublisher) Close() error {
	p.Shutdown(context.Background())
	return nil
}
