// Package queue is the client-side durable upload queue. Items survive
// restarts, admission is bounded by item count and total bytes, and failed
// attempts are counted up to a ceiling after which an item waits for the user.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/exifmeta"
)

var (
	errReadOnly    = errors.New("queue: write in read-only transaction")
	errDuplicateID = errors.New("queue: duplicate item id")
	errMissingID   = errors.New("queue: item does not exist")
)

// Queue is the upload queue. One Queue per process; every mutation is a
// single store transaction.
type Queue struct {
	store    Store
	previews Previews
	limits   Limits
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	onRemove []func(id string)
}

// Option configures a Queue.
type Option func(*Queue)

// WithLimits overrides the admission ceilings and attempt ceiling.
func WithLimits(l Limits) Option {
	return func(q *Queue) { q.limits = l }
}

// WithPreviews enables local preview creation for queued photos.
func WithPreviews(p Previews) Option {
	return func(q *Queue) { q.previews = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Open wraps store and returns items a crashed process left in uploading
// back to pending.
func Open(ctx context.Context, store Store, opts ...Option) (*Queue, error) {
	q := &Queue{
		store:  store,
		limits: DefaultLimits(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(q)
	}

	var recovered int
	err := store.Update(ctx, func(tx Tx) error {
		stuck, err := tx.List(Filter{Status: constants.UploadUploading})
		if err != nil {
			return err
		}
		for _, it := range stuck {
			it.Status = constants.UploadPending
			if err := tx.Update(it); err != nil {
				return err
			}
		}
		recovered = len(stuck)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recover queue: %w", err)
	}
	if recovered > 0 {
		q.logger.Info("reset interrupted uploads", "count", recovered)
	}
	return q, nil
}

// Limits returns the configured ceilings.
func (q *Queue) Limits() Limits { return q.limits }

// OnRemove registers fn to be called with the id of every item that leaves
// the queue through Remove or ClearFailed.
func (q *Queue) OnRemove(fn func(id string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onRemove = append(q.onRemove, fn)
}

func (q *Queue) notifyRemoved(ids ...string) {
	q.mu.RLock()
	hooks := append([]func(string){}, q.onRemove...)
	q.mu.RUnlock()
	for _, id := range ids {
		for _, fn := range hooks {
			fn(id)
		}
	}
}

func (q *Queue) release(it *Item) {
	if q.previews == nil || it.PreviewRef == "" {
		return
	}
	if err := q.previews.Release(it.PreviewRef); err != nil {
		q.logger.Warn("failed to release preview", "id", it.ID, "preview", it.PreviewRef, "error", err)
	}
}

func rejected(err error) EnqueueResult {
	return EnqueueResult{Success: false, Error: err.Error(), Err: err}
}

// Enqueue admits item if both ceilings allow it. Capacity is checked and the
// item inserted inside one transaction. A repeated id is accepted without
// change. An item counts as the larger of its declared size and its content.
func (q *Queue) Enqueue(ctx context.Context, item Item) EnqueueResult {
	if n := int64(len(item.Content)); item.Size < n {
		item.Size = n
	}
	v := common.NewValidator().
		Field("id", item.ID, common.Required, common.PathSegment).
		Field("content", item.Content, common.Required).
		Field("job_id", item.JobID, common.Required, common.PathSegment).
		Field("business_id", item.BusinessID, common.Required, common.PathSegment).
		Field("size", item.Size, common.NonNegative)
	if err := v.Err(); err != nil {
		return rejected(err)
	}

	if existing, err := q.Get(ctx, item.ID); err == nil && existing != nil {
		q.logger.Debug("item already queued", "id", item.ID)
		return EnqueueResult{Success: true}
	}

	if item.Metadata == nil {
		item.Metadata = exifmeta.ExtractWithLogger(item.Content, q.logger)
	}
	if item.GPS == nil && item.Metadata != nil {
		item.GPS = item.Metadata.GPS
	}
	if item.MimeType == "" {
		item.MimeType = constants.MIMEForExt(filepath.Ext(item.Filename))
	}
	item.EnqueuedAt = q.now().UTC()
	item.Status = constants.UploadPending
	item.Attempts = 0
	item.LastAttemptAt = nil
	item.LastError = ""

	createdPreview := false
	if q.previews != nil && item.PreviewRef == "" &&
		constants.KindForMIME(item.MimeType, filepath.Ext(item.Filename)) == constants.KindPhoto {
		ref, err := q.previews.Create(item.ID, item.Content)
		if err != nil {
			q.logger.Warn("preview not created", "id", item.ID, "error", err)
		} else {
			item.PreviewRef = ref
			createdPreview = true
		}
	}

	var (
		warning     string
		duplicate   bool
		existingRef string
	)
	err := q.store.Update(ctx, func(tx Tx) error {
		existing, err := tx.Get(item.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			duplicate = true
			existingRef = existing.PreviewRef
			return nil
		}
		count, bytes, err := tx.Totals()
		if err != nil {
			return err
		}
		if count+1 > q.limits.MaxItems {
			return fmt.Errorf("%w: %d of %d items queued", common.ErrQueueFull, count, q.limits.MaxItems)
		}
		if bytes+item.Size > q.limits.MaxBytes {
			return fmt.Errorf("%w: %d of %d bytes queued, item is %d bytes",
				common.ErrQueueFull, bytes, q.limits.MaxBytes, item.Size)
		}
		if u := q.utilization(count, bytes); u >= q.limits.WarnRatio {
			warning = fmt.Sprintf("%d%% full", int(math.Round(u*100)))
		}
		return tx.Insert(&item)
	})
	// a concurrent enqueue of the same id may have written the same preview
	if createdPreview && (err != nil || (duplicate && existingRef != item.PreviewRef)) {
		q.release(&item)
	}
	if err != nil {
		q.logger.Warn("enqueue rejected", "id", item.ID, "size", item.Size, "error", err)
		return rejected(err)
	}
	if duplicate {
		q.logger.Debug("item already queued", "id", item.ID)
		return EnqueueResult{Success: true}
	}

	q.logger.Debug("enqueued upload", "id", item.ID, "job_id", item.JobID, "size", item.Size)
	return EnqueueResult{Success: true, Warning: warning}
}

// utilization is the larger of the count and byte ratios.
func (q *Queue) utilization(count int, bytes int64) float64 {
	var byCount, byBytes float64
	if q.limits.MaxItems > 0 {
		byCount = float64(count) / float64(q.limits.MaxItems)
	}
	if q.limits.MaxBytes > 0 {
		byBytes = float64(bytes) / float64(q.limits.MaxBytes)
	}
	return math.Max(byCount, byBytes)
}

// Get returns the item or common.ErrNotFound.
func (q *Queue) Get(ctx context.Context, id string) (*Item, error) {
	var out *Item
	err := q.store.View(ctx, func(tx Tx) error {
		it, err := tx.Get(id)
		out = it
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("queue item %s: %w", id, common.ErrNotFound)
	}
	return out, nil
}

// DequeueNext returns the oldest pending item without changing it, or nil.
func (q *Queue) DequeueNext(ctx context.Context) (*Item, error) {
	items, err := q.ListByStatus(ctx, constants.UploadPending)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// List returns every item oldest first.
func (q *Queue) List(ctx context.Context) ([]*Item, error) {
	return q.list(ctx, Filter{})
}

// ListByStatus returns items in status, oldest first.
func (q *Queue) ListByStatus(ctx context.Context, status constants.UploadStatus) ([]*Item, error) {
	return q.list(ctx, Filter{Status: status})
}

// ListByJob returns the items for one job, oldest first.
func (q *Queue) ListByJob(ctx context.Context, jobID string) ([]*Item, error) {
	return q.list(ctx, Filter{JobID: jobID})
}

func (q *Queue) list(ctx context.Context, f Filter) ([]*Item, error) {
	var out []*Item
	err := q.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.List(f)
		return err
	})
	return out, err
}

// MarkUploading claims a pending item for an attempt. It reports false when
// the item is not pending (already claimed, failed or removed).
func (q *Queue) MarkUploading(ctx context.Context, id string) (bool, error) {
	var claimed bool
	err := q.store.Update(ctx, func(tx Tx) error {
		it, err := tx.Get(id)
		if err != nil || it == nil || it.Status != constants.UploadPending {
			return err
		}
		it.Status = constants.UploadUploading
		claimed = true
		return tx.Update(it)
	})
	return claimed, err
}

// RecordAttemptFailure counts a failed attempt. The item becomes failed once
// its attempts reach the ceiling and returns to pending otherwise. The
// resulting status is returned.
func (q *Queue) RecordAttemptFailure(ctx context.Context, id, msg string) (constants.UploadStatus, error) {
	var status constants.UploadStatus
	err := q.store.Update(ctx, func(tx Tx) error {
		it, err := tx.Get(id)
		if err != nil {
			return err
		}
		if it == nil {
			return fmt.Errorf("queue item %s: %w", id, common.ErrNotFound)
		}
		now := q.now().UTC()
		it.Attempts++
		it.LastError = msg
		it.LastAttemptAt = &now
		if it.Attempts >= q.limits.MaxAttempts {
			it.Status = constants.UploadFailed
		} else {
			it.Status = constants.UploadPending
		}
		status = it.Status
		return tx.Update(it)
	})
	if err == nil && status == constants.UploadFailed {
		q.logger.Warn("upload attempts exhausted", "id", id, "error", msg)
	}
	return status, err
}

// Remove deletes an item and releases its preview. Removing an unknown id
// is not an error.
func (q *Queue) Remove(ctx context.Context, id string) error {
	var removed *Item
	err := q.store.Update(ctx, func(tx Tx) error {
		it, err := tx.Get(id)
		if err != nil || it == nil {
			return err
		}
		removed = it
		return tx.Delete(id)
	})
	if err != nil {
		return err
	}
	if removed != nil {
		q.release(removed)
		q.notifyRemoved(id)
	}
	return nil
}

// Summary counts items per status.
func (q *Queue) Summary(ctx context.Context) (Summary, error) {
	s := Summary{MaxItems: q.limits.MaxItems, MaxBytes: q.limits.MaxBytes}
	err := q.store.View(ctx, func(tx Tx) error {
		items, err := tx.List(Filter{})
		if err != nil {
			return err
		}
		for _, it := range items {
			switch it.Status {
			case constants.UploadPending:
				s.Pending++
			case constants.UploadUploading:
				s.Uploading++
			case constants.UploadFailed:
				s.Failed++
			}
			s.TotalBytes += it.Size
		}
		s.Total = len(items)
		return nil
	})
	s.Utilization = q.utilization(s.Total, s.TotalBytes)
	return s, err
}

// ClearFailed removes every failed item and returns how many were removed.
func (q *Queue) ClearFailed(ctx context.Context) (int, error) {
	var removed []*Item
	err := q.store.Update(ctx, func(tx Tx) error {
		failed, err := tx.List(Filter{Status: constants.UploadFailed})
		if err != nil {
			return err
		}
		for _, it := range failed {
			if err := tx.Delete(it.ID); err != nil {
				return err
			}
		}
		removed = failed
		return nil
	})
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(removed))
	for _, it := range removed {
		q.release(it)
		ids = append(ids, it.ID)
	}
	q.notifyRemoved(ids...)
	return len(removed), nil
}

// RetryFailed returns every failed item to pending with its attempt count
// and error cleared.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	var n int
	err := q.store.Update(ctx, func(tx Tx) error {
		failed, err := tx.List(Filter{Status: constants.UploadFailed})
		if err != nil {
			return err
		}
		for _, it := range failed {
			it.Status = constants.UploadPending
			it.Attempts = 0
			it.LastError = ""
			it.LastAttemptAt = nil
			if err := tx.Update(it); err != nil {
				return err
			}
		}
		n = len(failed)
		return nil
	})
	return n, err
}

// Close closes the underlying store.
func (q *Queue) Close() error {
	return q.store.Close()
}
