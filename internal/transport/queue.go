// Package transport carries per-test records from a collector to a host without
// blocking the test that produced them.
package transport

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/circleci-coverage/internal/circuitbreaker"
	"github.com/kjstillabower/circleci-coverage/internal/models"
	"github.com/kjstillabower/circleci-coverage/internal/observability"
)

// DeliverFunc hands one record to its destination.
type DeliverFunc func(ctx context.Context, rec models.Record) error

// Queue is an unbounded FIFO with a single delivery goroutine. Send never blocks.
// Each record is delivered at most once; failures are logged and dropped.
type Queue struct {
	deliver DeliverFunc
	logger  *zap.Logger

	mu      sync.Mutex
	pending []models.Record
	closed  bool

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue starts the delivery goroutine. Call Close to drain and stop it.
func NewQueue(deliver DeliverFunc, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		deliver: deliver,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go q.run()
	return q
}

// Send enqueues rec. Records sent after Close are dropped.
func (q *Queue) Send(rec models.Record) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		observability.DeliveriesTotal.WithLabelValues("dropped").Inc()
		q.logger.Warn("record sent after close; dropped", zap.String("spec", rec.SpecPath), zap.String("title", rec.Title))
		return
	}
	q.pending = append(q.pending, rec)
	q.mu.Unlock()
	observability.QueueDepth.Inc()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of records not yet handed to the delivery goroutine.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting records and waits until everything already sent has been
// delivered. When ctx ends first, in-progress delivery is canceled and the rest is
// abandoned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for i, rec := range batch {
			if q.ctx.Err() != nil {
				dropped := len(batch) - i
				observability.QueueDepth.Sub(float64(dropped))
				observability.DeliveriesTotal.WithLabelValues("dropped").Add(float64(dropped))
				q.logger.Warn("queue abandoned before drain", zap.Int("dropped", dropped))
				return
			}
			q.deliverOne(rec)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		select {
		case <-q.wake:
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) deliverOne(rec models.Record) {
	defer observability.QueueDepth.Dec()
	err := q.deliver(q.ctx, rec)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.DeliveriesTotal.WithLabelValues("short_circuited").Inc()
		q.logger.Debug("record dropped while host breaker is open",
			zap.String("spec", rec.SpecPath),
			zap.String("title", rec.Title))
		return
	}
	if err != nil {
		observability.DeliveriesTotal.WithLabelValues("error").Inc()
		q.logger.Warn("record delivery failed",
			zap.String("spec", rec.SpecPath),
			zap.String("title", rec.Title),
			zap.Error(err))
		return
	}
	observability.DeliveriesTotal.WithLabelValues("success").Inc()
}
