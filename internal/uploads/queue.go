// Package uploads runs a bounded client-side queue for bundle asset
// uploads: FIFO dispatch over a fixed number of workers, per-item state
// tracking, cooperative cancellation, and progress fan-out to a
// subscriber.
package uploads

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"moviesnow/internal/api"
	"moviesnow/internal/uploads/metrics"
	"moviesnow/pkg/apierror"
)

// State is where an item is in its upload lifecycle. Transitions only
// move forward: queued → uploading → completed, failed or cancelled.
type State string

const (
	StateQueued    State = "queued"
	StateUploading State = "uploading"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// terminal reports whether the state admits no further transitions.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Item is one tracked upload.
type Item struct {
	ID             string
	Path           string
	SizeBytes      int64
	State          State
	Progress       float64 // 0..1
	Err            error
	IdempotencyKey string
}

// Transport performs the actual transfer. Progress callbacks arrive from
// the transport's own goroutine; implementations must respect ctx
// cancellation.
//
//go:generate mockgen -source=queue.go -destination=mocks/transport_mock.go -package=mocks Transport
type Transport interface {
	Upload(ctx context.Context, item Item, progress func(fraction float64)) error
}

// Subscriber observes item snapshots as they change state or progress.
type Subscriber func(Item)

// Queue is the upload queue. Enqueue is non-blocking; workers drain the
// queue FIFO with bounded concurrency.
type Queue struct {
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	subscribe Subscriber

	concurrency int
	buffer      int

	mu      sync.Mutex
	items   map[string]*Item
	order   []string
	cancels map[string]context.CancelFunc
	pending sync.WaitGroup

	work   chan string
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithConcurrency bounds how many uploads run at once. Default 3.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

// WithBuffer bounds how many items may wait in the queue. Default 64.
func WithBuffer(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.buffer = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithSubscriber sets the progress observer. Snapshots are delivered
// sequentially per item but may interleave across items.
func WithSubscriber(fn Subscriber) Option {
	return func(q *Queue) { q.subscribe = fn }
}

// NewQueue starts the worker pool. Close it to stop accepting work and
// wait for in-flight uploads.
func NewQueue(transport Transport, opts ...Option) *Queue {
	q := &Queue{
		transport:   transport,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		concurrency: 3,
		buffer:      64,
		items:       make(map[string]*Item),
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}

	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.work = make(chan string, q.buffer)
	q.group = &errgroup.Group{}
	q.group.SetLimit(q.concurrency)

	go q.dispatch()
	return q
}

// Enqueue registers an upload and returns its tracking ID. Each item
// carries its own idempotency key, so a retried or resumed push
// deduplicates server-side.
func (q *Queue) Enqueue(path string, sizeBytes int64) (string, error) {
	if path == "" {
		return "", apierror.New(apierror.CodeValidation, "upload path is required")
	}

	item := &Item{
		ID:             uuid.New().String(),
		Path:           path,
		SizeBytes:      sizeBytes,
		State:          StateQueued,
		IdempotencyKey: api.NewIdempotencyKey(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", apierror.New(apierror.CodeUnavailable, "upload queue is closed")
	}
	select {
	case q.work <- item.ID:
	default:
		q.mu.Unlock()
		return "", apierror.New(apierror.CodeRateLimited, "upload queue is full")
	}
	q.items[item.ID] = item
	q.order = append(q.order, item.ID)
	q.pending.Add(1)
	snapshot := *item
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.IncrementEnqueued()
		q.metrics.SetQueued(q.count(StateQueued))
	}
	q.notify(snapshot)
	return item.ID, nil
}

// dispatch feeds queued items to the worker pool.
func (q *Queue) dispatch() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case id, ok := <-q.work:
			if !ok {
				return
			}
			q.group.Go(func() error {
				q.run(id)
				return nil
			})
		}
	}
}

// run performs one upload.
func (q *Queue) run(id string) {
	q.mu.Lock()
	item, ok := q.items[id]
	if !ok || item.State != StateQueued {
		// Cancelled while still queued.
		q.mu.Unlock()
		return
	}
	itemCtx, cancelItem := context.WithCancel(q.ctx)
	q.cancels[id] = cancelItem
	item.State = StateUploading
	snapshot := *item
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.SetQueued(q.count(StateQueued))
		q.metrics.SetActive(q.count(StateUploading))
	}
	q.notify(snapshot)

	err := q.transport.Upload(itemCtx, snapshot, func(fraction float64) {
		q.progress(id, fraction)
	})
	cancelItem()

	q.mu.Lock()
	delete(q.cancels, id)
	item, ok = q.items[id]
	if !ok || item.State.terminal() {
		q.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		item.State = StateCompleted
		item.Progress = 1
	case itemCtx.Err() != nil:
		item.State = StateCancelled
		item.Err = apierror.New(apierror.CodeNetwork, "upload cancelled")
	default:
		item.State = StateFailed
		item.Err = err
	}
	snapshot = *item
	q.mu.Unlock()
	q.pending.Done()

	if q.metrics != nil {
		q.metrics.SetActive(q.count(StateUploading))
		q.metrics.IncrementFinished(string(snapshot.State))
	}
	if snapshot.State == StateFailed {
		q.logger.Warn("upload failed", "id", id, "path", snapshot.Path, "error", err)
	}
	q.notify(snapshot)
}

// progress records a fractional update and fans it out.
func (q *Queue) progress(id string, fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	q.mu.Lock()
	item, ok := q.items[id]
	if !ok || item.State != StateUploading {
		q.mu.Unlock()
		return
	}
	item.Progress = fraction
	snapshot := *item
	q.mu.Unlock()

	q.notify(snapshot)
}

// CancelItem cancels one upload. Queued items move straight to
// cancelled; uploading items get their context cancelled and settle when
// the transport returns.
func (q *Queue) CancelItem(id string) error {
	q.mu.Lock()
	item, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return apierror.New(apierror.CodeNotFound, "no such upload")
	}
	if item.State.terminal() {
		q.mu.Unlock()
		return nil
	}
	if item.State == StateQueued {
		item.State = StateCancelled
		snapshot := *item
		q.mu.Unlock()
		q.pending.Done()
		if q.metrics != nil {
			q.metrics.IncrementFinished(string(StateCancelled))
		}
		q.notify(snapshot)
		return nil
	}
	cancel := q.cancels[id]
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Item returns a snapshot of one tracked upload.
func (q *Queue) Item(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Items returns snapshots of every tracked upload in enqueue order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.items[id])
	}
	return out
}

// Close stops accepting work, cancels in-flight uploads, and waits for
// the workers to settle. Items still queued move to cancelled.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var dropped []Item
	for _, item := range q.items {
		if item.State == StateQueued {
			item.State = StateCancelled
			dropped = append(dropped, *item)
		}
	}
	q.mu.Unlock()

	for _, snapshot := range dropped {
		q.pending.Done()
		q.notify(snapshot)
	}
	q.cancel()
	_ = q.group.Wait()
}

// Wait blocks until every enqueued upload has settled (completed, failed
// or cancelled). Callers stop enqueuing first; Wait is for tests and
// drain-style shutdowns.
func (q *Queue) Wait() {
	q.pending.Wait()
}

// notify delivers one snapshot to the subscriber, when set.
func (q *Queue) notify(snapshot Item) {
	if q.subscribe != nil {
		q.subscribe(snapshot)
	}
}

// count counts items in the given state.
func (q *Queue) count(state State) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.State == state {
			n++
		}
	}
	return n
}
