package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/circleci-coverage/internal/circuitbreaker"
	"github.com/kjstillabower/circleci-coverage/internal/models"
	"github.com/kjstillabower/circleci-coverage/internal/observability"
)

// NewBreaker returns a circuit breaker that reports its transitions to logger and
// the transportBreakerState gauge.
func NewBreaker(threshold int, cooldown time.Duration, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.BreakerState.Set(float64(to))
			logger.Warn("host delivery breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Guarded wraps deliver so that, once the host has failed repeatedly, records are
// dropped immediately with circuitbreaker.ErrOpen instead of each waiting out a
// request timeout.
func Guarded(cb *circuitbreaker.CircuitBreaker, deliver DeliverFunc) DeliverFunc {
	return func(ctx context.Context, rec models.Record) error {
		return cb.Call(ctx, func(ctx context.Context) error {
			return deliver(ctx, rec)
		})
	}
}
