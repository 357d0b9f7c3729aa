package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/queue"
)

type funcTransport func(ctx context.Context, item *queue.Item) (Receipt, error)

func (f funcTransport) Upload(ctx context.Context, item *queue.Item) (Receipt, error) {
	return f(ctx, item)
}

func newQueue(t *testing.T, n int) *queue.Queue {
	t.Helper()
	ctx := context.Background()
	q, err := queue.Open(ctx, queue.NewMemoryStore())
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		res := q.Enqueue(ctx, queue.Item{
			ID:         fmt.Sprintf("m-%d", i),
			Content:    []byte("payload"),
			MimeType:   "image/jpeg",
			Filename:   fmt.Sprintf("p%d.jpg", i),
			JobID:      "job",
			BusinessID: "biz",
		})
		require.True(t, res.Success, res.Error)
	}
	return q
}

func TestBackoff(t *testing.T) {
	u := New(newQueue(t, 0), nil, nil, WithBackoff(2*time.Second, 5*time.Minute))
	defer u.Shutdown(context.Background())

	assert.Equal(t, time.Duration(0), u.Backoff(0))
	assert.Equal(t, 2*time.Second, u.Backoff(1))
	assert.Equal(t, 4*time.Second, u.Backoff(2))
	assert.Equal(t, 8*time.Second, u.Backoff(3))
	assert.Equal(t, 5*time.Minute, u.Backoff(10))
}

func TestRunOnce_SuccessRemovesItems(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 3)
	var calls atomic.Int32
	u := New(q, funcTransport(func(_ context.Context, item *queue.Item) (Receipt, error) {
		calls.Add(1)
		return Receipt{MediaID: item.ID}, nil
	}), nil)
	defer u.Shutdown(ctx)

	n, err := u.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(3), calls.Load())

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRunOnce_FailureRecordedAndBackedOff(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 1)
	now := time.Now()
	u := New(q, funcTransport(func(context.Context, *queue.Item) (Receipt, error) {
		return Receipt{}, errors.New("connection refused")
	}), nil, WithBackoff(time.Minute, time.Hour), WithClock(func() time.Time { return now }))
	defer u.Shutdown(ctx)

	n, err := u.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "backoff keeps the item out of the second round")

	it, err := q.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, constants.UploadPending, it.Status)
	assert.Equal(t, 1, it.Attempts)
	assert.Equal(t, "connection refused", it.LastError)

	n, err = u.Dispatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(2 * time.Minute)
	n, err = u.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	it, err = q.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 2, it.Attempts)
}

func TestRunOnce_StopsAtAttemptCeiling(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 1)
	var calls atomic.Int32
	u := New(q, funcTransport(func(context.Context, *queue.Item) (Receipt, error) {
		calls.Add(1)
		return Receipt{}, errors.New("503")
	}), nil, WithBackoff(time.Nanosecond, time.Nanosecond))
	defer u.Shutdown(ctx)

	_, err := u.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(10), calls.Load())

	it, err := q.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, constants.UploadFailed, it.Status)
}

func TestDispatch_SingleAttemptPerItem(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 1)
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var calls atomic.Int32
	u := New(q, funcTransport(func(context.Context, *queue.Item) (Receipt, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return Receipt{}, nil
	}), nil, WithWorkers(4))
	defer u.Shutdown(ctx)

	n, err := u.Dispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	<-started

	for i := 0; i < 3; i++ {
		n, err = u.Dispatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	close(release)
	u.attempts.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestWorkersBoundConcurrency(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 6)
	var (
		mu       sync.Mutex
		running  int
		maxSeen  int
		finished atomic.Int32
	)
	u := New(q, funcTransport(func(context.Context, *queue.Item) (Receipt, error) {
		mu.Lock()
		running++
		if running > maxSeen {
			maxSeen = running
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		finished.Add(1)
		return Receipt{}, nil
	}), nil, WithWorkers(2))
	defer u.Shutdown(ctx)

	_, err := u.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(6), finished.Load())
	assert.LessOrEqual(t, maxSeen, 2)
}

func TestDiscardCancelsInflightAttempt(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 1)
	started := make(chan struct{})
	cancelled := make(chan error, 1)
	u := New(q, funcTransport(func(ctx context.Context, _ *queue.Item) (Receipt, error) {
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		return Receipt{}, ctx.Err()
	}), nil)
	defer u.Shutdown(ctx)

	_, err := u.Dispatch(ctx)
	require.NoError(t, err)
	<-started

	require.NoError(t, q.Remove(ctx, "m-1"))
	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("attempt was not cancelled")
	}
	u.attempts.Wait()

	_, err = q.Get(ctx, "m-1")
	assert.Error(t, err)
}

func TestHTTPTransport_Upload(t *testing.T) {
	var got struct {
		mediaID, jobID, filename string
		body                     []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/uploads", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		got.mediaID = r.FormValue("media_id")
		got.jobID = r.FormValue("job_id")
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		got.filename = hdr.Filename
		got.body, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"mediaId":"m-1","duplicateOf":"m-0"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", nil, nil)
	rc, err := tr.Upload(context.Background(), &queue.Item{
		ID: "m-1", JobID: "job", BusinessID: "biz", Filename: "a.jpg", Content: []byte("abc"),
	})
	require.NoError(t, err)
	assert.Equal(t, Receipt{MediaID: "m-1", DuplicateOf: "m-0"}, rc)
	assert.Equal(t, "m-1", got.mediaID)
	assert.Equal(t, "job", got.jobID)
	assert.Equal(t, "a.jpg", got.filename)
	assert.Equal(t, []byte("abc"), got.body)
}

func TestHTTPTransport_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"job_id is required","code":"INVALID_INPUT"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(srv.URL, nil, nil).Upload(context.Background(), &queue.Item{ID: "x", Content: []byte("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_INPUT: job_id is required")
	assert.Contains(t, err.Error(), "400")
}
