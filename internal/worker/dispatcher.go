package worker

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/metalsense/internal/model"
)

type constError string

func (e constError) Error() string { return string(e) }

// ErrQueueFull is returned by LocalDispatcher.Dispatch when no queue slot is free.
const ErrQueueFull = constError("worker: queue full")

// ErrStopped is returned when dispatching to a dispatcher whose Run has returned.
const ErrStopped = constError("worker: dispatcher stopped")

// Dispatcher schedules a stored sample for background assessment.
type Dispatcher interface {
	Dispatch(ctx context.Context, sampleID string) error
}

// SampleAssessor assesses one stored sample.
type SampleAssessor interface {
	Assess(ctx context.Context, sampleID string) (*model.Assessment, error)
}

// LocalDispatcher assesses samples on a fixed pool of goroutines fed by a
// bounded queue. Dispatch never blocks.
type LocalDispatcher struct {
	assessor    SampleAssessor
	queue       chan string
	concurrency int
	stopped     atomic.Bool
}

// NewLocalDispatcher creates a dispatcher with the given worker count and
// queue capacity. Non-positive values fall back to 4 and 256.
func NewLocalDispatcher(a SampleAssessor, concurrency, queueSize int) *LocalDispatcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &LocalDispatcher{
		assessor:    a,
		queue:       make(chan string, queueSize),
		concurrency: concurrency,
	}
}

// Dispatch enqueues sampleID. It accepts work from construction on, so
// samples queued before Run starts are picked up once it does. It returns
// ErrQueueFull when the queue is at capacity and ErrStopped after Run has
// returned.
func (d *LocalDispatcher) Dispatch(_ context.Context, sampleID string) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	select {
	case d.queue <- sampleID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued samples not yet picked up.
func (d *LocalDispatcher) Pending() int { return len(d.queue) }

// Run processes the queue until ctx is cancelled. Assessment failures are
// logged and do not stop the pool. Samples still queued at shutdown stay
// pending in the store.
func (d *LocalDispatcher) Run(ctx context.Context) error {
	defer d.stopped.Store(true)

	log := zap.L().With(zap.String("component", "local_dispatcher"))
	log.Info("dispatcher started", zap.Int("concurrency", d.concurrency), zap.Int("queue_size", cap(d.queue)))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case id := <-d.queue:
					if _, err := d.assessor.Assess(gctx, id); err != nil {
						log.Error("assessment failed", zap.String("sample_id", id), zap.Error(err))
					}
				}
			}
		})
	}

	err := g.Wait()
	log.Info("dispatcher stopped", zap.Int("pending", len(d.queue)))
	return err
}
