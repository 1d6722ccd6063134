package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllFailed is returned when no backend in a [Chain] produced a result.
// The individual failures are joined into the returned error.
var ErrAllFailed = errors.New("resilience: all providers failed")

// Observer receives the outcome of every backend attempt made by a [Chain],
// including attempts rejected by an open breaker. It is the hook used to
// feed collaborator metrics.
type Observer func(ctx context.Context, provider string, elapsed time.Duration, err error)

type link[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain holds an ordered list of interchangeable backends, each guarded by
// its own [Breaker]. Backends are tried in the order they were added.
//
// Add must not be called concurrently with [Call].
type Chain[T any] struct {
	links    []link[T]
	cfg      BreakerConfig
	observer Observer
}

// NewChain returns an empty chain. cfg is the template for every backend's
// breaker; its Name is replaced by the backend name.
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a backend and returns the chain for chaining.
func (c *Chain[T]) Add(name string, backend T) *Chain[T] {
	bc := c.cfg
	bc.Name = name
	c.links = append(c.links, link[T]{name: name, value: backend, breaker: NewBreaker(bc)})
	return c
}

// Observe installs fn as the chain's [Observer].
func (c *Chain[T]) Observe(fn Observer) *Chain[T] {
	c.observer = fn
	return c
}

// Len returns the number of backends.
func (c *Chain[T]) Len() int { return len(c.links) }

// Names returns the backend names in call order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.links))
	for i, l := range c.links {
		names[i] = l.name
	}
	return names
}

// Breaker returns the breaker guarding the named backend, or nil.
func (c *Chain[T]) Breaker(name string) *Breaker {
	for _, l := range c.links {
		if l.name == name {
			return l.breaker
		}
	}
	return nil
}

// Call runs fn against each backend of c in order and returns the first
// successful result together with the name of the backend that produced it.
// It stops early when ctx is done. Go does not allow type parameters on
// methods, hence the package-level function.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, string, error) {
	var (
		zero R
		errs []error
	)
	if len(c.links) == 0 {
		return zero, "", fmt.Errorf("%w: no providers configured", ErrAllFailed)
	}
	for i := range c.links {
		l := &c.links[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		var result R
		start := time.Now()
		err := l.breaker.Do(ctx, func(ctx context.Context) error {
			var callErr error
			result, callErr = fn(ctx, l.value)
			return callErr
		})
		if c.observer != nil {
			c.observer(ctx, l.name, time.Since(start), err)
		}
		if err == nil {
			return result, l.name, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", l.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", l.name, "err", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
