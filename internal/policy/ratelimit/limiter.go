// Package ratelimit enforces per-host politeness: a minimum delay
// between requests to the same host and a cap on concurrent in-flight
// requests per host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/telemetry"
)

type hostState struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

// Limiter tracks one token bucket and one semaphore per host. Hosts are
// registered lazily from the policy carried by each request.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*hostState
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{hosts: make(map[string]*hostState)}
}

// Acquire blocks until the host's min delay has elapsed and a
// concurrency slot is free, or the context ends. The returned release
// function must be called when the request finishes.
func (l *Limiter) Acquire(ctx context.Context, policy crawler.HostPolicy) (func(), error) {
	state := l.stateFor(policy)

	start := time.Now()
	select {
	case state.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire host slot: %w", ctx.Err())
	}
	if err := state.limiter.Wait(ctx); err != nil {
		<-state.slots
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(policy.Host, waited)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-state.slots
	}, nil
}

func (l *Limiter) stateFor(policy crawler.HostPolicy) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.hosts[policy.Host]
	if ok {
		return state
	}
	limit := rate.Inf
	if policy.MinDelay > 0 {
		limit = rate.Every(policy.MinDelay)
	}
	capacity := policy.MaxConcurrent
	if capacity <= 0 {
		capacity = 1
	}
	state = &hostState{
		limiter: rate.NewLimiter(limit, 1),
		slots:   make(chan struct{}, capacity),
	}
	l.hosts[policy.Host] = state
	return state
}
