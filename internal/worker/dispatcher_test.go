package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metalsense/internal/model"
)

type recordingAssessor struct {
	mu    sync.Mutex
	seen  []string
	block chan struct{}
	err   error
}

func (r *recordingAssessor) Assess(ctx context.Context, id string) (*model.Assessment, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.seen = append(r.seen, id)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &model.Assessment{SampleID: id}, nil
}

func (r *recordingAssessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func startDispatcher(t *testing.T, d *LocalDispatcher) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	return cancelFn, errCh
}

func TestLocalDispatcher_ProcessesQueue(t *testing.T) {
	ra := &recordingAssessor{}
	d := NewLocalDispatcher(ra, 3, 10)
	cancel, done := startDispatcher(t, d)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, d.Dispatch(context.Background(), id))
	}
	assert.Eventually(t, func() bool { return ra.count() == 4 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	assert.ErrorIs(t, d.Dispatch(context.Background(), "late"), ErrStopped)
}

func TestLocalDispatcher_QueueFull(t *testing.T) {
	ra := &recordingAssessor{block: make(chan struct{})}
	d := NewLocalDispatcher(ra, 1, 1)
	cancel, done := startDispatcher(t, d)
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, d.Dispatch(context.Background(), "first"))
	// Wait for the single worker to take "first" off the queue.
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Dispatch(context.Background(), "second"))

	err := d.Dispatch(context.Background(), "third")
	assert.True(t, errors.Is(err, ErrQueueFull))

	close(ra.block)
	assert.Eventually(t, func() bool { return ra.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestLocalDispatcher_FailuresDoNotStopPool(t *testing.T) {
	ra := &recordingAssessor{err: errors.New("store unavailable")}
	d := NewLocalDispatcher(ra, 1, 4)
	cancel, done := startDispatcher(t, d)
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, d.Dispatch(context.Background(), "x"))
	require.NoError(t, d.Dispatch(context.Background(), "y"))
	assert.Eventually(t, func() bool { return ra.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestLocalDispatcher_Defaults(t *testing.T) {
	d := NewLocalDispatcher(&recordingAssessor{}, 0, 0)
	assert.Equal(t, 4, d.concurrency)
	assert.Equal(t, 256, cap(d.queue))
}

func TestLocalDispatcher_AcceptsBeforeRun(t *testing.T) {
	ra := &recordingAssessor{}
	d := NewLocalDispatcher(ra, 2, 4)

	// The HTTP server can take requests before the pool goroutine is scheduled.
	require.NoError(t, d.Dispatch(context.Background(), "early"))
	assert.Equal(t, 1, d.Pending())

	cancel, done := startDispatcher(t, d)
	assert.Eventually(t, func() bool { return ra.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, d.Dispatch(context.Background(), "late"), ErrStopped)
}
