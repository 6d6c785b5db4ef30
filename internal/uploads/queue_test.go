package uploads_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"moviesnow/internal/uploads"
	"moviesnow/internal/uploads/mocks"
	"moviesnow/pkg/apierror"
)

// recorder collects subscriber snapshots for assertions.
type recorder struct {
	mu        sync.Mutex
	snapshots []uploads.Item
}

func (r *recorder) observe(item uploads.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, item)
}

func (r *recorder) states(id string) []uploads.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uploads.State
	for _, s := range r.snapshots {
		if s.ID == id {
			out = append(out, s.State)
		}
	}
	return out
}

func TestUploadCompletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	rec := &recorder{}

	transport.EXPECT().
		Upload(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uploads.Item, progress func(float64)) error {
			progress(0.5)
			progress(1)
			return nil
		})

	q := uploads.NewQueue(transport, uploads.WithSubscriber(rec.observe))
	defer q.Close()

	id, err := q.Enqueue("/media/heat.mkv", 8_000_000_000)
	require.NoError(t, err)
	q.Wait()

	item, ok := q.Item(id)
	require.True(t, ok)
	assert.Equal(t, uploads.StateCompleted, item.State)
	assert.Equal(t, 1.0, item.Progress)
	assert.NotEmpty(t, item.IdempotencyKey)

	states := rec.states(id)
	assert.Equal(t, uploads.StateQueued, states[0])
	assert.Equal(t, uploads.StateCompleted, states[len(states)-1])
}

func TestUploadFailureKeepsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)

	transport.EXPECT().
		Upload(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("connection reset"))

	q := uploads.NewQueue(transport)
	defer q.Close()

	id, err := q.Enqueue("/media/pilot.mp4", 1_000)
	require.NoError(t, err)
	q.Wait()

	item, _ := q.Item(id)
	assert.Equal(t, uploads.StateFailed, item.State)
	require.Error(t, item.Err)
}

func TestStateMachineNeverRegresses(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	rec := &recorder{}

	transport.EXPECT().
		Upload(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uploads.Item, progress func(float64)) error {
			progress(0.3)
			return nil
		}).AnyTimes()

	q := uploads.NewQueue(transport, uploads.WithSubscriber(rec.observe), uploads.WithConcurrency(2))
	defer q.Close()

	ids := make([]string, 0, 4)
	for range 4 {
		id, err := q.Enqueue("/media/file.mkv", 1)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	q.Wait()

	rank := map[uploads.State]int{
		uploads.StateQueued:    0,
		uploads.StateUploading: 1,
		uploads.StateCompleted: 2,
		uploads.StateFailed:    2,
		uploads.StateCancelled: 2,
	}
	for _, id := range ids {
		states := rec.states(id)
		for i := 1; i < len(states); i++ {
			assert.GreaterOrEqual(t, rank[states[i]], rank[states[i-1]],
				"state %s after %s", states[i], states[i-1])
		}
	}
}

func TestCancelQueuedItem(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	transport.EXPECT().
		Upload(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ uploads.Item, _ func(float64)) error {
			close(started)
			<-release
			return nil
		})

	// One worker: the second item stays queued while the first blocks.
	q := uploads.NewQueue(transport, uploads.WithConcurrency(1))
	defer q.Close()

	_, err := q.Enqueue("/media/first.mkv", 1)
	require.NoError(t, err)
	<-started

	queued, err := q.Enqueue("/media/second.mkv", 1)
	require.NoError(t, err)
	require.NoError(t, q.CancelItem(queued))

	item, _ := q.Item(queued)
	assert.Equal(t, uploads.StateCancelled, item.State)

	close(release)
	q.Wait()

	// The cancelled item never reached the transport.
	item, _ = q.Item(queued)
	assert.Equal(t, uploads.StateCancelled, item.State)
}

func TestCancelInFlightUpload(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)

	started := make(chan struct{})
	transport.EXPECT().
		Upload(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ uploads.Item, _ func(float64)) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})

	q := uploads.NewQueue(transport)
	defer q.Close()

	id, err := q.Enqueue("/media/big.mkv", 1)
	require.NoError(t, err)
	<-started

	require.NoError(t, q.CancelItem(id))
	q.Wait()

	item, _ := q.Item(id)
	assert.Equal(t, uploads.StateCancelled, item.State)
}

func TestDistinctIdempotencyKeysPerItem(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	q := uploads.NewQueue(transport)
	defer q.Close()

	a, err := q.Enqueue("/media/a.mkv", 1)
	require.NoError(t, err)
	b, err := q.Enqueue("/media/b.mkv", 1)
	require.NoError(t, err)
	q.Wait()

	itemA, _ := q.Item(a)
	itemB, _ := q.Item(b)
	assert.NotEqual(t, itemA.IdempotencyKey, itemB.IdempotencyKey)
}

func TestEnqueueValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := uploads.NewQueue(mocks.NewMockTransport(ctrl))
	defer q.Close()

	_, err := q.Enqueue("", 1)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))
}

func TestQueueFullRejectsEnqueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)

	release := make(chan struct{})
	transport.EXPECT().
		Upload(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uploads.Item, func(float64)) error {
			<-release
			return nil
		}).AnyTimes()

	q := uploads.NewQueue(transport, uploads.WithConcurrency(1), uploads.WithBuffer(1))
	defer q.Close()

	_, err := q.Enqueue("/media/a.mkv", 1)
	require.NoError(t, err)
	// Give the worker a moment to pull the first item off the buffer.
	require.Eventually(t, func() bool {
		for _, item := range q.Items() {
			if item.State == uploads.StateUploading {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	_, err = q.Enqueue("/media/b.mkv", 1)
	require.NoError(t, err)

	_, err = q.Enqueue("/media/c.mkv", 1)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeRateLimited))

	close(release)
}
