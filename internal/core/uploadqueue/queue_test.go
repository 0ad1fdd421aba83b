package uploadqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bzrportal/knowledge/internal/models"
)

func waitStatus(t *testing.T, q *Queue, jobID, want string) models.UploadJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := q.Get(jobID)
		require.True(t, ok)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := q.Get(jobID)
	t.Fatalf("job %s stuck in %q, want %q", jobID, job.Status, want)
	return job
}

func TestQueue_ProcessesInFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	q := New(8, func(_ context.Context, job models.UploadJob, _ func(int)) (any, error) {
		mu.Lock()
		order = append(order, job.FilePath)
		mu.Unlock()
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var ids []string
	for _, p := range []string{"uploads/j1", "uploads/j2", "uploads/j3"} {
		id, err := q.Enqueue(p, "text/plain", "f.txt", "user-a")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitStatus(t, q, id, models.JobStatusCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"uploads/j1", "uploads/j2", "uploads/j3"}, order)
}

func TestQueue_CompletedJobState(t *testing.T) {
	q := New(4, func(_ context.Context, _ models.UploadJob, report func(int)) (any, error) {
		report(50)
		return map[string]string{"record_id": "rec-1"}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	id, err := q.Enqueue("uploads/a.pdf", "application/pdf", "a.pdf", "user-a")
	require.NoError(t, err)

	job := waitStatus(t, q, id, models.JobStatusCompleted)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.Error)
	assert.Equal(t, "a.pdf", job.OriginalFilename)
}

func TestQueue_FailedJobState(t *testing.T) {
	q := New(4, func(_ context.Context, _ models.UploadJob, _ func(int)) (any, error) {
		return nil, errors.New("extraction failed")
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	id, err := q.Enqueue("uploads/bad.bin", "application/octet-stream", "bad.bin", "user-a")
	require.NoError(t, err)

	job := waitStatus(t, q, id, models.JobStatusFailed)
	assert.Equal(t, "extraction failed", job.Error)
}

func TestQueue_SubscriberSeesProgressAndTerminalClose(t *testing.T) {
	release := make(chan struct{})
	q := New(4, func(_ context.Context, _ models.UploadJob, report func(int)) (any, error) {
		<-release
		report(40)
		report(90)
		return "done", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	id, err := q.Enqueue("uploads/a.txt", "text/plain", "a.txt", "user-a")
	require.NoError(t, err)

	events, unsubscribe := q.Subscribe(id)
	defer unsubscribe()
	close(release)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, "completed", last.Type)
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, "done", last.Result)
	for _, ev := range got[:len(got)-1] {
		assert.Equal(t, "progress", ev.Type)
	}
}

func TestQueue_SubscribeAfterTerminalReplaysAndCloses(t *testing.T) {
	q := New(4, func(_ context.Context, job models.UploadJob, _ func(int)) (any, error) {
		if job.OriginalFilename == "bad.bin" {
			return nil, errors.New("extraction failed")
		}
		return "done", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	okID, err := q.Enqueue("uploads/a.txt", "text/plain", "a.txt", "user-a")
	require.NoError(t, err)
	badID, err := q.Enqueue("uploads/bad.bin", "application/octet-stream", "bad.bin", "user-a")
	require.NoError(t, err)
	waitStatus(t, q, okID, models.JobStatusCompleted)
	waitStatus(t, q, badID, models.JobStatusFailed)

	// A subscription opened after the job finished must still end with a
	// terminal event and a closed channel, not hang.
	events, unsubscribe := q.Subscribe(okID)
	defer unsubscribe()
	select {
	case ev, open := <-events:
		require.True(t, open)
		assert.Equal(t, "completed", ev.Type)
		assert.Equal(t, 100, ev.Progress)
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal event for finished job")
	}
	select {
	case _, open := <-events:
		assert.False(t, open, "channel must close after the terminal event")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after terminal event")
	}

	events, unsubscribe = q.Subscribe(badID)
	defer unsubscribe()
	select {
	case ev, open := <-events:
		require.True(t, open)
		assert.Equal(t, "failed", ev.Type)
		assert.Equal(t, "extraction failed", ev.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal event for failed job")
	}
}

func TestQueue_EnqueueFullQueue(t *testing.T) {
	// Worker never started, so the single slot stays occupied.
	q := New(1, func(_ context.Context, _ models.UploadJob, _ func(int)) (any, error) {
		return nil, nil
	})

	_, err := q.Enqueue("uploads/a.txt", "text/plain", "a.txt", "user-a")
	require.NoError(t, err)

	id, err := q.Enqueue("uploads/b.txt", "text/plain", "b.txt", "user-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
	assert.Empty(t, id)

	// The rejected job leaves no trace.
	_, ok := q.Get(id)
	assert.False(t, ok)
}

func TestQueue_GetUnknownJob(t *testing.T) {
	q := New(4, nil)
	_, ok := q.Get("missing")
	assert.False(t, ok)
}

func TestQueue_WaitAfterCancel(t *testing.T) {
	q := New(4, func(_ context.Context, _ models.UploadJob, _ func(int)) (any, error) {
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after cancel")
	}
}
