// Package ratelimit bounds the call rate to an upstream service.
//
// A Limiter admits one call at a time through a single gate, keeps a rolling
// window of successful call timestamps, and waits for room in the window
// before each attempt. Calls that fail with a quota signal are retried after
// a fixed delay, bounded by a retry count and an overall deadline.
//
//	lim := ratelimit.New(
//	    ratelimit.WithRequestsPerMinute(60),
//	    ratelimit.WithRetryIf(inference.IsQuotaExceeded),
//	)
//	resp, err := ratelimit.Execute(ctx, lim, func(ctx context.Context) (*inference.ChatResponse, error) {
//	    return provider.Chat(ctx, req)
//	})
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

var (
	// ErrRetriesExhausted is returned when a call still hits the quota after MaxRetries retries.
	ErrRetriesExhausted = errors.New("ratelimit: quota retries exhausted")

	// ErrDeadlineExceeded is returned when the next quota retry would pass the overall deadline.
	ErrDeadlineExceeded = errors.New("ratelimit: quota retry deadline exceeded")
)

// Limiter serializes calls and keeps them within a rolling-window budget.
// It is safe for concurrent use; waiting callers are admitted in arrival order.
type Limiter struct {
	cfg    Config
	clock  Clock
	logger *slog.Logger

	// gate is a one-slot semaphore. Holding it grants exclusive access to
	// window and the right to call upstream.
	gate   chan struct{}
	window []time.Time

	admitted atomic.Int64
	retried  atomic.Int64
}

// New creates a Limiter.
func New(opts ...Option) *Limiter {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	return &Limiter{
		cfg:    *cfg,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "ratelimit"),
		gate:   make(chan struct{}, 1),
		window: make([]time.Time, 0, cfg.RequestsPerMinute),
	}
}

// Do runs fn once the window has room. Quota failures (as judged by
// RetryIf) are retried; every other error is returned unchanged. Deadline
// covers the whole call, including time queued behind other callers and
// waiting for the window.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	deadline := l.clock.Now().Add(l.cfg.Deadline)

	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()

	for attempt := 0; ; attempt++ {
		if err := l.admit(ctx, deadline); err != nil {
			return err
		}

		err := l.call(ctx, fn)
		if err == nil {
			l.window = append(l.window, l.clock.Now())
			l.admitted.Add(1)
			return nil
		}

		if l.cfg.RetryIf == nil || !l.cfg.RetryIf(err) {
			return err
		}
		if attempt >= l.cfg.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}
		if l.cfg.Deadline > 0 && l.clock.Now().Add(l.cfg.RetryDelay).After(deadline) {
			return fmt.Errorf("%w after %d attempts: %w", ErrDeadlineExceeded, attempt+1, err)
		}

		l.retried.Add(1)
		l.logger.Warn("quota exceeded, retrying",
			"attempt", attempt+1,
			"max_retries", l.cfg.MaxRetries,
			"delay", l.cfg.RetryDelay,
			"error", err,
		)
		if err := l.clock.Sleep(ctx, l.cfg.RetryDelay); err != nil {
			return err
		}
	}
}

// Execute is Do for calls that produce a value.
func Execute[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := l.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Admitted returns the number of calls that completed successfully.
func (l *Limiter) Admitted() int64 { return l.admitted.Load() }

// Retried returns the number of quota retries performed.
func (l *Limiter) Retried() int64 { return l.retried.Load() }

// RequestsPerMinute returns the configured window budget.
func (l *Limiter) RequestsPerMinute() int { return l.cfg.RequestsPerMinute }

func (l *Limiter) acquire(ctx context.Context) error {
	var expired <-chan time.Time
	if l.cfg.Deadline > 0 {
		timer := time.NewTimer(l.cfg.Deadline)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case l.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("%w while queued", ErrDeadlineExceeded)
	}
}

func (l *Limiter) release() {
	<-l.gate
}

// admit blocks until the window holds fewer than RequestsPerMinute entries.
// It fails without waiting when the window opens after deadline. Caller
// must hold the gate.
func (l *Limiter) admit(ctx context.Context, deadline time.Time) error {
	for {
		now := l.clock.Now()
		l.prune(now)
		if len(l.window) < l.cfg.RequestsPerMinute {
			return nil
		}

		wait := l.window[0].Add(l.cfg.Window).Sub(now)
		if l.cfg.Deadline > 0 && now.Add(wait).After(deadline) {
			return fmt.Errorf("%w waiting for the window", ErrDeadlineExceeded)
		}
		l.logger.Debug("window full, waiting", "in_window", len(l.window), "wait", wait)
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops timestamps that have left the window. Caller must hold the gate.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.window) && !l.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}

func (l *Limiter) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.cfg.CallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()
	return fn(callCtx)
}
