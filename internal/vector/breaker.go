package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig controls when a BreakerIndex stops calling its backend.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures before opening
	Timeout          time.Duration // how long the circuit stays open
	MaxRequests      uint32        // requests allowed while half-open
}

// BreakerIndex guards a remote index with a circuit breaker. While the circuit is open,
// calls fail fast with ErrUnavailable.
type BreakerIndex struct {
	VectorIndex
	cb     *gobreaker.CircuitBreaker[any]
	logger *zap.Logger
}

// NewBreakerIndex wraps inner. logger may be nil.
func NewBreakerIndex(inner VectorIndex, cfg BreakerConfig, logger *zap.Logger) *BreakerIndex {
	if cfg.Name == "" {
		cfg.Name = inner.Type()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDimensionMismatch) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("vector index circuit changed",
					zap.String("index", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	}
	return &BreakerIndex{
		VectorIndex: inner,
		cb:          gobreaker.NewCircuitBreaker[any](settings),
		logger:      logger,
	}
}

// State returns the circuit state name.
func (b *BreakerIndex) State() string {
	return b.cb.State().String()
}

// Upsert forwards to the wrapped index through the breaker.
func (b *BreakerIndex) Upsert(ctx context.Context, id int64, vector []float32) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.VectorIndex.Upsert(ctx, id, vector)
	})
	return b.wrap(err)
}

// QueryNearest forwards to the wrapped index through the breaker.
func (b *BreakerIndex) QueryNearest(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.VectorIndex.QueryNearest(ctx, query, k)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	neighbors, _ := res.([]Neighbor)
	return neighbors, nil
}

func (b *BreakerIndex) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, b.cb.Name(), err)
	}
	return err
}
