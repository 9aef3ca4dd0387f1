package concept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientProvider wraps a Provider with resilience patterns from fortify.
// Only provider errors are retried; misses and validation failures pass
// straight through.
type ResilientProvider struct {
	provider       Provider
	circuitBreaker circuitbreaker.CircuitBreaker[any]
	retrier        retry.Retry[any]
	bulkhead       bulkhead.Bulkhead[any]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// ResilientConfig holds configuration for the resilient wrapper
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableBulkhead       bool
	EnableRateLimit      bool

	// MaxAttempts for retry (default: 3)
	MaxAttempts int

	// InitialDelay before the first retry (default: 100ms)
	InitialDelay time.Duration

	// MaxConcurrent lookups for bulkhead (default: 16)
	MaxConcurrent int

	// RatePerSecond for rate limiting (default: 100)
	RatePerSecond int

	Logger *slog.Logger
}

// DefaultResilientConfig returns defaults suited to a database-backed catalog
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableBulkhead:       true,
		MaxAttempts:          3,
		InitialDelay:         100 * time.Millisecond,
		MaxConcurrent:        16,
		RatePerSecond:        100,
	}
}

// NewResilientProvider wraps provider
func NewResilientProvider(provider Provider, cfg ResilientConfig) *ResilientProvider {
	rp := &ResilientProvider{
		provider: provider,
		logger:   cfg.Logger,
	}
	if rp.logger == nil {
		rp.logger = slog.Default()
	}

	if cfg.EnableCircuitBreaker {
		rp.circuitBreaker = circuitbreaker.New[any](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				rp.logger.Warn("concept provider circuit state change",
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	if cfg.EnableRetry {
		attempts := cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		delay := cfg.InitialDelay
		if delay <= 0 {
			delay = 100 * time.Millisecond
		}
		rp.retrier = retry.New[any](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  delay,
			MaxDelay:      5 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   domain.IsRetryable,
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 16
		}
		rp.bulkhead = bulkhead.New[any](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  5 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 100
		}
		rp.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 2,
			Interval: time.Second,
		})
	}

	return rp
}

// Close releases resources held by the wrapper
func (p *ResilientProvider) Close() error {
	if p.rateLimit != nil {
		return p.rateLimit.Close()
	}
	return nil
}

func (p *ResilientProvider) GetByID(ctx context.Context, id string) (*domain.Concept, error) {
	return call(ctx, p, "get", func(ctx context.Context) (*domain.Concept, error) {
		return p.provider.GetByID(ctx, id)
	})
}

func (p *ResilientProvider) GetByIDs(ctx context.Context, ids []string) ([]domain.Concept, error) {
	return call(ctx, p, "get many", func(ctx context.Context) ([]domain.Concept, error) {
		return p.provider.GetByIDs(ctx, ids)
	})
}

func (p *ResilientProvider) Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Concept, error) {
	return call(ctx, p, "search", func(ctx context.Context) ([]domain.Concept, error) {
		return p.provider.Search(ctx, criteria)
	})
}

func (p *ResilientProvider) GetRandomExample(ctx context.Context, id string) (string, error) {
	return call(ctx, p, "random example", func(ctx context.Context) (string, error) {
		return p.provider.GetRandomExample(ctx, id)
	})
}

func (p *ResilientProvider) GetDetails(ctx context.Context, id string) (*domain.ConceptDetails, error) {
	return call(ctx, p, "details", func(ctx context.Context) (*domain.ConceptDetails, error) {
		return p.provider.GetDetails(ctx, id)
	})
}

// call runs fn through rate limit, bulkhead, circuit breaker and retry
func call[T any](ctx context.Context, p *ResilientProvider, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if p.rateLimit != nil && !p.rateLimit.Allow(ctx, "concepts") {
		return zero, &domain.ProviderError{Op: op, Err: fmt.Errorf("%w: rate limit exceeded", domain.ErrProviderUnavailable)}
	}

	operation := func(ctx context.Context) (any, error) {
		return fn(ctx)
	}

	if p.bulkhead != nil {
		inner := operation
		operation = func(ctx context.Context) (any, error) {
			return p.bulkhead.Execute(ctx, inner)
		}
	}

	if p.retrier != nil {
		inner := operation
		operation = func(ctx context.Context) (any, error) {
			return p.retrier.Do(ctx, inner)
		}
	}

	if p.circuitBreaker != nil {
		inner := operation
		operation = func(ctx context.Context) (any, error) {
			return p.circuitBreaker.Execute(ctx, inner)
		}
	}

	v, err := operation(ctx)
	if err != nil {
		return zero, asProviderError(op, err)
	}
	out, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return out, nil
}

// asProviderError keeps domain errors intact and maps resilience failures
// (open circuit, full bulkhead) to provider errors.
func asProviderError(op string, err error) error {
	var pe *domain.ProviderError
	if errors.As(err, &pe) || errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.ProviderError{Op: op, Err: fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)}
}
