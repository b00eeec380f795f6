// Package audit publishes authentication events to downstream stores.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPublishTimeout = 2 * time.Second
	defaultQueueSize      = 1024
	defaultPublishers     = 4
)

type Sink interface {
	Publish(ctx context.Context, event models.AuthEvent) error
}

// MultiSink publishes to every sink concurrently and joins their errors.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Publish(ctx context.Context, event models.AuthEvent) error {
	errs := make([]error, len(m.sinks))

	var g errgroup.Group
	for i, s := range m.sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, event); err != nil {
				errs[i] = fmt.Errorf("sink %T: %w", s, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Recorder stamps events and queues them for a small pool of publishers, so
// a slow sink never holds up the request that raised the event. A full queue
// drops the event with a warning. Sink failures are logged and never surface
// to the caller.
type Recorder struct {
	sink    Sink
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan models.AuthEvent
	wg     sync.WaitGroup
}

type RecorderOption func(*Recorder)

// WithQueueSize bounds the number of events waiting to be published.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan models.AuthEvent, n)
		}
	}
}

func NewRecorder(sink Sink, buckets *bucketing.BucketingManager, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sink:    sink,
		buckets: buckets,
		logger:  logger,
		timeout: defaultPublishTimeout,
		now:     time.Now,
		queue:   make(chan models.AuthEvent, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(defaultPublishers)
	for i := 0; i < defaultPublishers; i++ {
		go r.publishLoop()
	}
	return r
}

func (r *Recorder) Record(_ context.Context, event models.AuthEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}
	r.buckets.AssignEvent(&event)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("Auth event recorded after shutdown",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		return
	}

	select {
	case r.queue <- event:
	default:
		r.logger.Warn("Audit queue full, dropping auth event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to
// end, whichever comes first.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit queue not drained: %w", ctx.Err())
	}
}

func (r *Recorder) publishLoop() {
	defer r.wg.Done()
	for event := range r.queue {
		r.publish(event)
	}
}

func (r *Recorder) publish(event models.AuthEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Publish(ctx, event); err != nil {
		r.logger.Error("Failed to publish auth event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			util.ErrorField(err))
	}
}
