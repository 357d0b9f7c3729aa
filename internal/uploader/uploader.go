// Package uploader drains the upload queue in the background: a bounded pool
// of workers, at most one attempt per item in flight, exponential backoff
// between attempts and cancellation when an item is discarded.
package uploader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/queue"
)

type Uploader struct {
	queue     *queue.Queue
	transport Transport
	logger    *slog.Logger

	workers      int
	timeout      time.Duration
	pollInterval time.Duration
	backoffBase  time.Duration
	backoffMax   time.Duration
	now          func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	closed   bool
	inflight map[string]context.CancelFunc
	attempts sync.WaitGroup
}

type Option func(*Uploader)

func WithWorkers(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.workers = n
		}
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		if d > 0 {
			u.timeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(u *Uploader) {
		if d > 0 {
			u.pollInterval = d
		}
	}
}

// WithBackoff sets the delay after the first failure and its cap.
func WithBackoff(base, max time.Duration) Option {
	return func(u *Uploader) {
		if base > 0 {
			u.backoffBase = base
		}
		if max > 0 {
			u.backoffMax = max
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// New starts the worker pool. Items removed from q while an attempt is in
// flight have that attempt cancelled.
func New(q *queue.Queue, transport Transport, logger *slog.Logger, opts ...Option) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Uploader{
		queue:        q,
		transport:    transport,
		logger:       logger,
		workers:      3,
		timeout:      2 * time.Minute,
		pollInterval: 5 * time.Second,
		backoffBase:  2 * time.Second,
		backoffMax:   5 * time.Minute,
		now:          time.Now,
		inflight:     make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(u)
	}
	u.ch = make(chan string, u.workers)
	u.ctx, u.stop = context.WithCancel(context.Background())
	q.OnRemove(u.cancel)
	u.start()
	return u
}

func (u *Uploader) start() {
	u.once.Do(func() {
		for i := 0; i < u.workers; i++ {
			u.wg.Add(1)
			go func(workerID int) {
				defer u.wg.Done()
				u.logger.Debug("upload worker started", "worker_id", workerID)
				for id := range u.ch {
					u.attempt(workerID, id)
				}
				u.logger.Debug("upload worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Backoff is the wait after the given number of failed attempts.
func (u *Uploader) Backoff(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	b := retry.WithCappedDuration(u.backoffMax, retry.NewExponential(u.backoffBase))
	var d time.Duration
	for i := 0; i < attempts; i++ {
		d, _ = b.Next()
	}
	return d
}

func (u *Uploader) ready(it *queue.Item, now time.Time) bool {
	if it.Attempts == 0 || it.LastAttemptAt == nil {
		return true
	}
	return !now.Before(it.LastAttemptAt.Add(u.Backoff(it.Attempts)))
}

// Dispatch hands every pending item whose backoff has elapsed to the pool
// and returns how many were handed over. Items already in flight are
// skipped; when all workers are busy the rest wait for the next call.
func (u *Uploader) Dispatch(ctx context.Context) (int, error) {
	pending, err := u.queue.ListByStatus(ctx, constants.UploadPending)
	if err != nil {
		return 0, err
	}
	now := u.now()
	n := 0
	for _, it := range pending {
		if !u.ready(it, now) {
			continue
		}
		if !u.claim(it.ID) {
			continue
		}
		n++
	}
	return n, nil
}

// claim reserves id and queues it for a worker. It fails when id is already
// in flight, the pool is saturated or the uploader is shut down.
func (u *Uploader) claim(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return false
	}
	if _, busy := u.inflight[id]; busy {
		return false
	}
	select {
	case u.ch <- id:
		u.inflight[id] = func() {}
		u.attempts.Add(1)
		return true
	default:
		return false
	}
}

func (u *Uploader) release(id string) {
	u.mu.Lock()
	delete(u.inflight, id)
	u.mu.Unlock()
	u.attempts.Done()
}

// cancel aborts the in-flight attempt for id, if any.
func (u *Uploader) cancel(id string) {
	u.mu.Lock()
	cancel, ok := u.inflight[id]
	u.mu.Unlock()
	if ok {
		cancel()
	}
}

func (u *Uploader) attempt(workerID int, id string) {
	defer u.release(id)

	ctx, cancel := context.WithTimeout(u.ctx, u.timeout)
	defer cancel()
	u.mu.Lock()
	u.inflight[id] = cancel
	u.mu.Unlock()

	claimed, err := u.queue.MarkUploading(ctx, id)
	if err != nil || !claimed {
		if err != nil {
			u.logger.Warn("could not claim upload", "id", id, "error", err)
		}
		return
	}
	item, err := u.queue.Get(ctx, id)
	if err != nil {
		u.logger.Warn("claimed upload vanished", "id", id, "error", err)
		return
	}

	logger := u.logger.With("worker_id", workerID, "id", id, "job_id", item.JobID)
	receipt, err := u.transport.Upload(ctx, item)
	if err == nil {
		if rmErr := u.queue.Remove(context.Background(), id); rmErr != nil {
			logger.Error("uploaded but could not remove from queue", "error", rmErr)
			return
		}
		if receipt.DuplicateOf != "" {
			logger.Info("uploaded; server reports duplicate content", "duplicate_of", receipt.DuplicateOf)
		} else {
			logger.Info("uploaded", "media_id", receipt.MediaID)
		}
		return
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		// discarded by the user or the uploader is stopping; a stopped
		// attempt is reset to pending when the queue is next opened
		logger.Info("upload attempt cancelled")
		return
	}
	status, recErr := u.queue.RecordAttemptFailure(context.Background(), id, err.Error())
	switch {
	case errors.Is(recErr, common.ErrNotFound):
		logger.Debug("failed upload was already removed")
	case recErr != nil:
		logger.Error("could not record failed attempt", "error", recErr, "upload_error", err)
	default:
		logger.Warn("upload attempt failed", "error", err, "status", status)
	}
}

// RunOnce dispatches every ready item and waits for those attempts.
func (u *Uploader) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := u.Dispatch(ctx)
		total += n
		if err != nil || n == 0 {
			u.attempts.Wait()
			return total, err
		}
		u.attempts.Wait()
	}
}

// Run polls the queue until ctx is done.
func (u *Uploader) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.pollInterval)
	defer ticker.Stop()
	for {
		if _, err := u.Dispatch(ctx); err != nil && ctx.Err() == nil {
			u.logger.Error("dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Shutdown stops accepting work and waits for running attempts. If ctx
// expires first the running attempts are cancelled.
func (u *Uploader) Shutdown(ctx context.Context) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	close(u.ch)
	u.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); u.wg.Wait() }()

	select {
	case <-ctx.Done():
		u.logger.Warn("uploader shutdown interrupted; cancelling attempts")
		u.stop()
		<-done
	case <-done:
		u.logger.Info("uploader drained")
	}
	u.stop()
}
