package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock advances instantly when slept on.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errQuota = errors.New("quota exceeded")

func isQuota(err error) bool { return errors.Is(err, errQuota) }

func TestLimiterAdmitsWithinBudget(t *testing.T) {
	clk := newFakeClock()
	start := clk.Now()
	lim := New(WithRequestsPerMinute(3), WithClock(clk))

	for i := 0; i < 3; i++ {
		if err := lim.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	if !clk.Now().Equal(start) {
		t.Errorf("calls within budget should not wait, clock moved by %v", clk.Now().Sub(start))
	}
	if lim.Admitted() != 3 {
		t.Errorf("Admitted = %d, want 3", lim.Admitted())
	}
}

func TestLimiterDelaysCallOverBudget(t *testing.T) {
	clk := newFakeClock()
	start := clk.Now()
	const rpm = 5
	lim := New(WithRequestsPerMinute(rpm), WithClock(clk))

	var admitted []time.Time
	for i := 0; i < rpm+1; i++ {
		clk.Advance(100 * time.Millisecond)
		err := lim.Do(context.Background(), func(context.Context) error {
			admitted = append(admitted, clk.Now())
			return nil
		})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	last := admitted[rpm]
	if last.Sub(admitted[0]) < time.Minute {
		t.Errorf("call %d admitted %v after the first, want at least 60s", rpm+1, last.Sub(admitted[0]))
	}
	if last.Sub(start) > time.Minute+time.Second {
		t.Errorf("call %d waited too long: %v", rpm+1, last.Sub(start))
	}

	// No rolling 60s window may contain more than rpm admissions.
	for i := range admitted {
		n := 0
		for j := i; j < len(admitted); j++ {
			if admitted[j].Sub(admitted[i]) < time.Minute {
				n++
			}
		}
		if n > rpm {
			t.Errorf("window starting at call %d holds %d calls, limit %d", i, n, rpm)
		}
	}
}

func TestLimiterQuotaRetry(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		delay      time.Duration
		deadline   time.Duration
		wantErr    error
		wantCalls  int
	}{
		{
			name:       "recovers after two quota failures",
			failures:   2,
			maxRetries: 5,
			delay:      time.Minute,
			deadline:   5 * time.Minute,
			wantCalls:  3,
		},
		{
			name:       "retry count exhausted",
			failures:   100,
			maxRetries: 2,
			delay:      time.Second,
			deadline:   time.Hour,
			wantErr:    ErrRetriesExhausted,
			wantCalls:  3,
		},
		{
			name:       "deadline exceeded before retries run out",
			failures:   100,
			maxRetries: 10,
			delay:      2 * time.Minute,
			deadline:   5 * time.Minute,
			wantErr:    ErrDeadlineExceeded,
			wantCalls:  3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clk := newFakeClock()
			lim := New(
				WithClock(clk),
				WithRetryIf(isQuota),
				WithRetryDelay(tc.delay),
				WithMaxRetries(tc.maxRetries),
				WithDeadline(tc.deadline),
			)

			calls := 0
			err := lim.Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tc.failures {
					return errQuota
				}
				return nil
			})

			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				if !errors.Is(err, errQuota) {
					t.Errorf("err should wrap the upstream quota error: %v", err)
				}
			}
			if calls != tc.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tc.wantCalls)
			}
		})
	}
}

func TestLimiterFailedCallsDoNotConsumeWindow(t *testing.T) {
	clk := newFakeClock()
	start := clk.Now()
	lim := New(WithRequestsPerMinute(1), WithClock(clk))
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = lim.Do(context.Background(), func(context.Context) error { return boom })
	}
	if err := lim.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if !clk.Now().Equal(start) {
		t.Error("failed calls should not occupy the window")
	}
}

func TestLimiterPropagatesOtherErrors(t *testing.T) {
	lim := New(WithClock(newFakeClock()), WithRetryIf(isQuota))
	boom := errors.New("connection reset")

	calls := 0
	err := lim.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	if err != boom {
		t.Errorf("err = %v, want the original error unchanged", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecute(t *testing.T) {
	lim := New(WithClock(newFakeClock()))
	got, err := Execute(context.Background(), lim, func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Errorf("Execute = %q, %v", got, err)
	}
}

func TestLimiterSerializesCalls(t *testing.T) {
	lim := New(WithRequestsPerMinute(1000))

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lim.Do(context.Background(), func(context.Context) error {
				n := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent calls = %d, want 1", maxInFlight.Load())
	}
	if lim.Admitted() != 20 {
		t.Errorf("Admitted = %d, want 20", lim.Admitted())
	}
}

func TestLimiterCancelWhileQueued(t *testing.T) {
	lim := New()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = lim.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := lim.Do(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	close(release)
}

func TestLimiterDeadlineCoversQueueing(t *testing.T) {
	lim := New(WithDeadline(30 * time.Millisecond))

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = lim.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ran := false
	err := lim.Do(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Errorf("err = %v, want ErrDeadlineExceeded", err)
	}
	if ran {
		t.Error("call ran after its deadline")
	}
}

func TestLimiterDeadlineCoversWindowWait(t *testing.T) {
	clk := newFakeClock()
	lim := New(
		WithRequestsPerMinute(1),
		WithDeadline(30*time.Second),
		WithClock(clk),
	)

	if err := lim.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	start := clk.Now()
	err := lim.Do(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Errorf("err = %v, want ErrDeadlineExceeded", err)
	}
	if !clk.Now().Equal(start) {
		t.Errorf("clock moved by %v, want no wait past the deadline", clk.Now().Sub(start))
	}
	if lim.Admitted() != 1 {
		t.Errorf("Admitted = %d, want 1", lim.Admitted())
	}
}
