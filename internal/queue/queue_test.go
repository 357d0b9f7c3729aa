package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/imagefmt/imagetest"
)

type recordingPreviews struct {
	mu       sync.Mutex
	created  []string
	released []string
}

func (p *recordingPreviews) Create(id string, _ []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref := "preview://" + id
	p.created = append(p.created, ref)
	return ref, nil
}

func (p *recordingPreviews) Release(ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, ref)
	return nil
}

func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	opts = append([]Option{WithClock(tickingClock())}, opts...)
	q, err := Open(context.Background(), NewMemoryStore(), opts...)
	require.NoError(t, err)
	return q
}

func testItem(i int, size int) Item {
	return Item{
		ID:         fmt.Sprintf("item-%03d", i),
		Content:    make([]byte, size),
		MimeType:   "image/jpeg",
		Filename:   fmt.Sprintf("IMG_%04d.jpg", i),
		JobID:      "job-1",
		BusinessID: "biz-1",
	}
}

func TestEnqueue_WarningThresholdByCount(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for i := 1; i <= 79; i++ {
		res := q.Enqueue(ctx, testItem(i, 1024))
		require.True(t, res.Success, res.Error)
		require.Empty(t, res.Warning, "enqueue %d", i)
	}

	res := q.Enqueue(ctx, testItem(80, 1024))
	assert.True(t, res.Success)
	assert.Empty(t, res.Warning)

	res = q.Enqueue(ctx, testItem(81, 1024))
	assert.True(t, res.Success)
	assert.Equal(t, "80% full", res.Warning)
}

func TestEnqueue_RejectsAtItemCeiling(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for i := 1; i <= 100; i++ {
		require.True(t, q.Enqueue(ctx, testItem(i, 10)).Success)
	}

	res := q.Enqueue(ctx, testItem(101, 10))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.ErrorIs(t, res.Err, common.ErrQueueFull)
	assert.False(t, common.IsRetryable(res.Err))

	s, err := q.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Total)
	_, err = q.Get(ctx, "item-101")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestEnqueue_RejectsAtByteCeiling(t *testing.T) {
	ctx := context.Background()
	previews := &recordingPreviews{}
	q := newTestQueue(t, WithLimits(Limits{MaxItems: 100, MaxBytes: 1000, MaxAttempts: 10, WarnRatio: 0.8}), WithPreviews(previews))

	res := q.Enqueue(ctx, testItem(1, 600))
	require.True(t, res.Success)
	assert.Empty(t, res.Warning)

	res = q.Enqueue(ctx, testItem(2, 500))
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrQueueFull)
	// the rejected item's preview is released again
	assert.Equal(t, []string{"preview://item-002"}, previews.released)

	res = q.Enqueue(ctx, testItem(3, 250))
	require.True(t, res.Success)
	assert.Empty(t, res.Warning, "60%% before insert")

	res = q.Enqueue(ctx, testItem(4, 100))
	require.True(t, res.Success)
	assert.Equal(t, "85% full", res.Warning)

	s, err := q.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(950), s.TotalBytes)
	assert.Equal(t, 3, s.Total)
}

func TestEnqueue_DeclaredSizeCounts(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, WithLimits(Limits{MaxItems: 10, MaxBytes: 100, MaxAttempts: 10, WarnRatio: 0.8}))

	it := testItem(1, 5)
	it.Size = 101
	assert.False(t, q.Enqueue(ctx, it).Success)

	it.Size = 0
	require.True(t, q.Enqueue(ctx, it).Success)
	got, err := q.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Size)
}

func TestEnqueue_ContentCountsWhenDeclaredSizeIsSmaller(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, WithLimits(Limits{MaxItems: 10, MaxBytes: 100, MaxAttempts: 10, WarnRatio: 0.8}))

	it := testItem(1, 500)
	it.Size = 1
	res := q.Enqueue(ctx, it)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrQueueFull)

	it = testItem(2, 60)
	it.Size = 1
	require.True(t, q.Enqueue(ctx, it).Success)
	s, err := q.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), s.TotalBytes)
}

func TestEnqueue_InvalidItem(t *testing.T) {
	q := newTestQueue(t)
	it := testItem(1, 10)
	it.JobID = ""
	res := q.Enqueue(context.Background(), it)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrInvalidInput)
	assert.Contains(t, res.Error, "job_id")
}

func TestEnqueue_DuplicateIDIsNoop(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)
	res := q.Enqueue(ctx, testItem(1, 10))
	assert.True(t, res.Success)

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestEnqueue_DuplicateKeepsPreviewFile(t *testing.T) {
	ctx := context.Background()
	previews, err := NewFilePreviews(t.TempDir())
	require.NoError(t, err)
	q := newTestQueue(t, WithPreviews(previews))

	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)
	first, err := q.Get(ctx, "item-001")
	require.NoError(t, err)
	require.NotEmpty(t, first.PreviewRef)

	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)

	got, err := q.Get(ctx, "item-001")
	require.NoError(t, err)
	assert.Equal(t, first.PreviewRef, got.PreviewRef)
	_, err = os.Stat(got.PreviewRef)
	assert.NoError(t, err, "preview of the queued item must survive a repeated enqueue")
}

func TestEnqueue_DerivesMetadata(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	exif := imagetest.DefaultExif()
	it := testItem(1, 0)
	it.Content = imagetest.JPEG(imagetest.JPEGOptions{Width: 40, Height: 30, Exif: &exif})
	it.MimeType = ""
	require.True(t, q.Enqueue(ctx, it).Success)

	got, err := q.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", got.MimeType)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "Canon", got.Metadata.CameraMake)
	require.NotNil(t, got.GPS)
	assert.InDelta(t, 37.775, got.GPS.Latitude, 1e-6)
}

func TestRecordAttemptFailure_Ceiling(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)

	for i := 1; i <= 9; i++ {
		status, err := q.RecordAttemptFailure(ctx, "item-001", fmt.Sprintf("network error %d", i))
		require.NoError(t, err)
		assert.Equal(t, constants.UploadPending, status)
	}
	status, err := q.RecordAttemptFailure(ctx, "item-001", "network error 10")
	require.NoError(t, err)
	assert.Equal(t, constants.UploadFailed, status)

	got, err := q.Get(ctx, "item-001")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Attempts)
	assert.Equal(t, "network error 10", got.LastError)
	require.NotNil(t, got.LastAttemptAt)

	next, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next, "failed items are not dequeued")
}

func TestRecordAttemptFailure_AttemptsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)

	prev := 0
	for i := 0; i < 12; i++ {
		status, err := q.RecordAttemptFailure(ctx, "item-001", "timeout")
		require.NoError(t, err)
		got, err := q.Get(ctx, "item-001")
		require.NoError(t, err)
		assert.Greater(t, got.Attempts, prev)
		prev = got.Attempts
		if i >= 9 {
			assert.Equal(t, constants.UploadFailed, status, "attempt %d", i+1)
			assert.Equal(t, constants.UploadFailed, got.Status)
		} else {
			assert.Equal(t, constants.UploadPending, status, "attempt %d", i+1)
		}
	}
}

func TestRecordAttemptFailure_UnknownID(t *testing.T) {
	_, err := newTestQueue(t).RecordAttemptFailure(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRetryFailed_ResetsCounting(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)
	require.True(t, q.Enqueue(ctx, testItem(2, 10)).Success)
	for i := 0; i < 10; i++ {
		_, err := q.RecordAttemptFailure(ctx, "item-001", "boom")
		require.NoError(t, err)
	}

	n, err := q.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Get(ctx, "item-001")
	require.NoError(t, err)
	assert.Equal(t, constants.UploadPending, got.Status)
	assert.Zero(t, got.Attempts)
	assert.Empty(t, got.LastError)

	_, err = q.RecordAttemptFailure(ctx, "item-001", "again")
	require.NoError(t, err)
	got, err = q.Get(ctx, "item-001")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func TestClearFailed_ReleasesPreviews(t *testing.T) {
	ctx := context.Background()
	previews := &recordingPreviews{}
	q := newTestQueue(t, WithPreviews(previews), WithLimits(Limits{MaxItems: 10, MaxBytes: 1 << 20, MaxAttempts: 1, WarnRatio: 0.8}))

	var removed []string
	q.OnRemove(func(id string) { removed = append(removed, id) })

	for i := 1; i <= 3; i++ {
		require.True(t, q.Enqueue(ctx, testItem(i, 10)).Success)
	}
	_, err := q.RecordAttemptFailure(ctx, "item-001", "x")
	require.NoError(t, err)
	_, err = q.RecordAttemptFailure(ctx, "item-003", "x")
	require.NoError(t, err)

	n, err := q.ClearFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"preview://item-001", "preview://item-003"}, previews.released)
	assert.ElementsMatch(t, []string{"item-001", "item-003"}, removed)

	left, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "item-002", left[0].ID)
}

func TestRemove_IdempotentAndReleases(t *testing.T) {
	ctx := context.Background()
	previews := &recordingPreviews{}
	q := newTestQueue(t, WithPreviews(previews))
	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)

	require.NoError(t, q.Remove(ctx, "item-001"))
	require.NoError(t, q.Remove(ctx, "item-001"))
	require.NoError(t, q.Remove(ctx, "never-existed"))
	assert.Equal(t, []string{"preview://item-001"}, previews.released)
}

func TestList_FIFO(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	for i := 1; i <= 5; i++ {
		it := testItem(i, 10)
		if i%2 == 0 {
			it.JobID = "job-2"
		}
		require.True(t, q.Enqueue(ctx, it).Success)
	}

	all, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-001", "item-002", "item-003", "item-004", "item-005"}, ids(all))

	job2, err := q.ListByJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"item-002", "item-004"}, ids(job2))

	claimed, err := q.MarkUploading(ctx, "item-001")
	require.NoError(t, err)
	assert.True(t, claimed)

	next, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "item-002", next.ID)

	pending, err := q.ListByStatus(ctx, constants.UploadPending)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-002", "item-003", "item-004", "item-005"}, ids(pending))
}

func TestList_SameTimestampKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q, err := Open(ctx, NewMemoryStore(), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	for _, i := range []int{3, 1, 2} {
		require.True(t, q.Enqueue(ctx, testItem(i, 1)).Success)
	}
	all, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-003", "item-001", "item-002"}, ids(all))
}

func TestMarkUploading_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)

	ok, err := q.MarkUploading(ctx, "item-001")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = q.MarkUploading(ctx, "item-001")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = q.MarkUploading(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_RecoversInterruptedUploads(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	q, err := Open(ctx, store)
	require.NoError(t, err)
	require.True(t, q.Enqueue(ctx, testItem(1, 10)).Success)
	ok, err := q.MarkUploading(ctx, "item-001")
	require.NoError(t, err)
	require.True(t, ok)

	q2, err := Open(ctx, store)
	require.NoError(t, err)
	got, err := q2.Get(ctx, "item-001")
	require.NoError(t, err)
	assert.Equal(t, constants.UploadPending, got.Status)
}

func TestEnqueue_ConcurrentBurstRespectsCeiling(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if q.Enqueue(ctx, testItem(i, 10)).Success {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(100), accepted.Load())
	s, err := q.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Total)
	assert.InDelta(t, 1.0, s.Utilization, 1e-9)
}

func TestSQLiteStore_Roundtrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)

	q, err := Open(ctx, store, WithClock(tickingClock()))
	require.NoError(t, err)

	exif := imagetest.DefaultExif()
	it := testItem(1, 0)
	it.Content = imagetest.JPEG(imagetest.JPEGOptions{Width: 40, Height: 30, Exif: &exif})
	it.Category = "before"
	it.Description = "kitchen wall"
	require.True(t, q.Enqueue(ctx, it).Success)
	require.True(t, q.Enqueue(ctx, testItem(2, 20)).Success)
	_, err = q.RecordAttemptFailure(ctx, "item-002", "503")
	require.NoError(t, err)
	ok, err := q.MarkUploading(ctx, "item-001")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Close())

	// reopen: the interrupted upload is pending again and everything persisted
	store, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	q, err = Open(ctx, store)
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"item-001", "item-002"}, ids(items))

	first := items[0]
	assert.Equal(t, constants.UploadPending, first.Status)
	assert.Equal(t, it.Content, first.Content)
	assert.Equal(t, "kitchen wall", first.Description)
	require.NotNil(t, first.Metadata)
	assert.Equal(t, "EOS R6", first.Metadata.CameraModel)
	require.NotNil(t, first.GPS)
	assert.InDelta(t, -122.42, first.GPS.Longitude, 1e-6)

	second := items[1]
	assert.Equal(t, 1, second.Attempts)
	assert.Equal(t, "503", second.LastError)
	require.NotNil(t, second.LastAttemptAt)
	assert.Nil(t, second.Metadata)
}

func TestSQLiteStore_ConcurrentBurstRespectsCeiling(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	q, err := Open(ctx, store, WithLimits(Limits{MaxItems: 20, MaxBytes: 1 << 20, MaxAttempts: 10, WarnRatio: 0.8}))
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if q.Enqueue(ctx, testItem(i, 10)).Success {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(20), accepted.Load())

	s, err := q.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, s.Total)
}

func TestFilePreviews(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePreviews(dir)
	require.NoError(t, err)

	ref, err := p.Create("a/b", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "preview_a_b"), ref)
	require.NoError(t, p.Release(ref))
	require.NoError(t, p.Release(ref))
	assert.Error(t, p.Release("/etc/passwd"))
}

func ids(items []*Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}
