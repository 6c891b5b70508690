package audioio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}
	if cfg.FrameSamples() != 1600 || cfg.FrameBytes() != 3200 {
		t.Errorf("frame = %d samples / %d bytes, want 1600 / 3200", cfg.FrameSamples(), cfg.FrameBytes())
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rate", func(c *Config) { c.SampleRate = 0 }},
		{"stereo", func(c *Config) { c.Channels = 2 }},
		{"zero frame", func(c *Config) { c.FrameDuration = 0 }},
		{"negative buffer", func(c *Config) { c.Buffer = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestFramer(t *testing.T) {
	f := NewFramer(4)
	if got := f.Write([]byte{1, 2, 3}); len(got) != 0 {
		t.Fatalf("partial write produced %d frames", len(got))
	}
	in := []byte{4, 5, 6, 7, 8, 9, 10}
	got := f.Write(in)
	if len(got) != 2 {
		t.Fatalf("frames = %d, want 2", len(got))
	}
	if !bytes.Equal(got[0], []byte{1, 2, 3, 4}) || !bytes.Equal(got[1], []byte{5, 6, 7, 8}) {
		t.Errorf("frames = %v", got)
	}
	in[0] = 99
	if got[0][3] != 4 {
		t.Error("frame aliases caller buffer")
	}
	if f.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", f.Pending())
	}
	if tail := f.Flush(); !bytes.Equal(tail, []byte{9, 10, 0, 0}) {
		t.Errorf("Flush() = %v", tail)
	}
	if f.Flush() != nil {
		t.Error("second Flush() not nil")
	}
	if NewFramer(5).Size() != 6 {
		t.Error("odd frame size not rounded to whole sample")
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 1000
	cfg.FrameDuration = 10 * time.Millisecond // 10 samples, 20 bytes
	cfg.Buffer = 4
	return cfg
}

func TestPushSource(t *testing.T) {
	src, err := NewPushSource(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewPushSource() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// 30 bytes yields one frame and leaves 10 pending.
	if err := src.Push(make([]byte, 30), 0); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if f := <-src.Frames(); len(f) != 20 {
		t.Errorf("frame len = %d, want 20", len(f))
	}

	// 2 kHz input is halved to the configured 1 kHz, completing two frames.
	if err := src.Push(make([]byte, 60), 2000); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if f := <-src.Frames(); len(f) != 20 {
		t.Errorf("resampled frame len = %d, want 20", len(f))
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	n := 0
	for range src.Frames() {
		n++
	}
	if n != 1 {
		t.Errorf("frames after Close = %d, want 1", n)
	}
	if err := src.Push(make([]byte, 20), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Push() after Close error = %v, want ErrClosed", err)
	}
	if err := src.Start(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestPushSource_Overrun(t *testing.T) {
	src, err := NewPushSource(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if err := src.Push(make([]byte, 20*6), 0); err != nil {
		t.Fatal(err)
	}
	st := src.Stats()
	if st.Frames != 4 || st.Overruns != 2 {
		t.Errorf("stats = %+v, want 4 frames and 2 overruns", st)
	}
	if st.Samples != 40 {
		t.Errorf("samples = %d, want 40", st.Samples)
	}
}

func TestPushSource_ContextCloses(t *testing.T) {
	src, err := NewPushSource(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-src.Frames():
		if ok {
			t.Error("unexpected frame")
		}
	case <-time.After(time.Second):
		t.Fatal("source not closed after context cancel")
	}
}

func TestToneSource(t *testing.T) {
	cfg := testConfig()
	src, err := NewToneSource(cfg, nil, WithSineWave(100, 0.5))
	if err != nil {
		t.Fatalf("NewToneSource() error = %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	select {
	case f := <-src.Frames():
		if len(f) != cfg.FrameBytes() {
			t.Errorf("frame len = %d, want %d", len(f), cfg.FrameBytes())
		}
		if Level(f) == 0 {
			t.Error("sine frame is silent")
		}
	case <-ctx.Done():
		t.Fatal("no frame generated")
	}

	if !src.Stats().Running {
		t.Error("Stats().Running = false while started")
	}
	src.Close()
	src.Close()
	if src.Stats().Running {
		t.Error("Stats().Running = true after Close")
	}
}

func TestNewSource(t *testing.T) {
	for _, b := range []Backend{BackendPush, BackendTone} {
		t.Run(string(b), func(t *testing.T) {
			cfg := testConfig()
			cfg.Backend = b
			src, err := NewSource(cfg, nil)
			if err != nil {
				t.Fatalf("NewSource() error = %v", err)
			}
			defer src.Close()
			if src.Name() != string(b) {
				t.Errorf("Name() = %q, want %q", src.Name(), b)
			}
		})
	}

	cfg := testConfig()
	cfg.Backend = "alsa"
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("NewSource(alsa) succeeded")
	}
	if _, err := ParseBackend("alsa"); err == nil {
		t.Error("ParseBackend(alsa) succeeded")
	}
	if b, err := ParseBackend("tone"); err != nil || b != BackendTone {
		t.Errorf("ParseBackend(tone) = %q, %v", b, err)
	}
}
