// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package backend

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/coachess/coachess/internal/logging"
	"github.com/coachess/coachess/internal/metrics"
	"github.com/coachess/coachess/internal/session"
)

// Ensure BreakerClient implements Resource.
var _ Resource = (*BreakerClient)(nil)

// BreakerClient wraps a Resource with a circuit breaker so a down or
// degraded backend fails callers fast instead of tying them up in
// timeouts.
//
// Only transport and 5xx failures count against the breaker. Client-side
// errors (NotAuthenticated, 4xx rejections) pass through without tripping
// it: the backend is healthy, the request was just wrong.
type BreakerClient struct {
	inner Resource
	cb    *gobreaker.CircuitBreaker[struct{}]
	name  string
}

// NewBreakerClient wraps inner with a circuit breaker.
//
// Breaker settings:
//   - 3 concurrent probes in half-open state
//   - counts reset every minute while closed
//   - 30 seconds open before probing again
//   - trips at >=60% failures over at least 10 requests
func NewBreakerClient(inner Resource) *BreakerClient {
	cbName := "resource-endpoint"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},

		IsSuccessful: func(err error) bool {
			return !countsAsBackendFailure(err)
		},
	})

	return &BreakerClient{inner: inner, cb: cb, name: cbName}
}

// countsAsBackendFailure reports whether err indicates backend
// unavailability rather than a request-level rejection.
func countsAsBackendFailure(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status >= 500
	}
	var rlErr *RateLimitedError
	if errors.As(err, &rlErr) {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	// Signed-out calls fail before touching the network.
	if errors.Is(err, session.ErrNotAuthenticated) {
		return false
	}
	// Everything else (transport errors, timeouts) is a backend failure.
	return true
}

// execute runs fn through the breaker and records metrics.
func (b *BreakerClient) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		logging.Warn().Err(err).Msg("resource request rejected by open circuit")
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return err
}

// Get fetches rows with circuit breaker protection.
func (b *BreakerClient) Get(ctx context.Context, collection string, q *Query, out interface{}) error {
	return b.execute(func() error {
		return b.inner.Get(ctx, collection, q, out)
	})
}

// GetAnonymous fetches rows anonymously with circuit breaker protection.
func (b *BreakerClient) GetAnonymous(ctx context.Context, collection string, q *Query, out interface{}) error {
	return b.execute(func() error {
		return b.inner.GetAnonymous(ctx, collection, q, out)
	})
}

// Insert creates a row with circuit breaker protection.
func (b *BreakerClient) Insert(ctx context.Context, collection string, record, out interface{}) error {
	return b.execute(func() error {
		return b.inner.Insert(ctx, collection, record, out)
	})
}

// Update patches rows with circuit breaker protection.
func (b *BreakerClient) Update(ctx context.Context, collection string, q *Query, changes, out interface{}) error {
	return b.execute(func() error {
		return b.inner.Update(ctx, collection, q, changes, out)
	})
}

// Delete removes rows with circuit breaker protection.
func (b *BreakerClient) Delete(ctx context.Context, collection string, q *Query) error {
	return b.execute(func() error {
		return b.inner.Delete(ctx, collection, q)
	})
}

// Count counts rows with circuit breaker protection.
func (b *BreakerClient) Count(ctx context.Context, collection string, q *Query) (int, error) {
	var total int
	err := b.execute(func() error {
		var innerErr error
		total, innerErr = b.inner.Count(ctx, collection, q)
		return innerErr
	})
	return total, err
}

// stateToFloat maps breaker states to the gauge encoding
// (0=closed, 1=half-open, 2=open).
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
