package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Default limiter settings.
const (
	DefaultRequestsPerMinute = 60
	DefaultWindow            = 60 * time.Second
	DefaultRetryDelay        = 60 * time.Second
	DefaultMaxRetries        = 5
	DefaultDeadline          = 5 * time.Minute
	DefaultCallTimeout       = 30 * time.Second
)

// Config holds limiter configuration.
type Config struct {
	RequestsPerMinute int
	Window            time.Duration

	// Quota retry
	RetryIf    func(error) bool
	RetryDelay time.Duration
	MaxRetries int
	Deadline   time.Duration

	// CallTimeout bounds a single upstream attempt. Zero disables it.
	CallTimeout time.Duration

	Clock  Clock
	Logger *slog.Logger
}

// Option is a functional option for configuring a Limiter.
type Option func(*Config)

// WithRequestsPerMinute sets how many successful calls fit in one window.
func WithRequestsPerMinute(n int) Option {
	return func(c *Config) { c.RequestsPerMinute = n }
}

// WithWindow overrides the rolling window length.
func WithWindow(d time.Duration) Option {
	return func(c *Config) { c.Window = d }
}

// WithRetryIf sets the predicate that recognizes quota failures.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

// WithRetryDelay sets the fixed wait between quota retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithMaxRetries sets the maximum number of quota retries.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithDeadline bounds the total time spent retrying one call.
func WithDeadline(d time.Duration) Option {
	return func(c *Config) { c.Deadline = d }
}

// WithCallTimeout bounds each upstream attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Config) { c.CallTimeout = d }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerMinute: DefaultRequestsPerMinute,
		Window:            DefaultWindow,
		RetryDelay:        DefaultRetryDelay,
		MaxRetries:        DefaultMaxRetries,
		Deadline:          DefaultDeadline,
		CallTimeout:       DefaultCallTimeout,
		Clock:             SystemClock{},
		Logger:            slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Clock abstracts time so waits can be simulated.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits on a timer or ctx.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
