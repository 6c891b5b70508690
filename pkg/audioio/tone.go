package audioio

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// ToneSource generates silence or a sine wave in real time.
type ToneSource struct {
	cfg    Config
	logger *slog.Logger
	out    *emitter
	stop   chan struct{}

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// ToneOption configures a ToneSource.
type ToneOption func(*ToneSource)

// WithSineWave generates a sine wave instead of silence.
func WithSineWave(frequency, amplitude float64) ToneOption {
	return func(t *ToneSource) {
		t.frequency = frequency
		t.amplitude = amplitude
	}
}

// NewToneSource creates a synthetic source.
func NewToneSource(cfg Config, logger *slog.Logger, opts ...ToneOption) (*ToneSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &ToneSource{
		cfg:       cfg,
		logger:    logger.With("component", "audioio.tone"),
		out:       newEmitter(cfg.Buffer),
		stop:      make(chan struct{}),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Start begins generating one frame per FrameDuration.
func (t *ToneSource) Start(ctx context.Context) error {
	first, err := t.out.start()
	if err != nil || !first {
		return err
	}
	go t.loop(ctx)
	t.logger.Info("tone source started", "sample_rate", t.cfg.SampleRate, "frequency", t.frequency)
	return nil
}

func (t *ToneSource) loop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Close()
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.out.emit(t.next())
		}
	}
}

func (t *ToneSource) next() []byte {
	samples := make([]int16, t.cfg.FrameSamples())
	if t.frequency > 0 {
		rate := float64(t.cfg.SampleRate)
		for i := range samples {
			samples[i] = int16(t.amplitude * 32767 * math.Sin(2*math.Pi*t.frequency*t.phase/rate))
			t.phase++
			if t.phase >= rate {
				t.phase = 0
			}
		}
	}
	return SamplesToBytes(samples)
}

// Frames returns the frame channel.
func (t *ToneSource) Frames() <-chan []byte { return t.out.ch }

// Config returns the capture configuration.
func (t *ToneSource) Config() Config { return t.cfg }

// Name returns "tone".
func (t *ToneSource) Name() string { return string(BackendTone) }

// Stats returns capture counters.
func (t *ToneSource) Stats() Stats { return t.out.stats(t.Name()) }

// Close stops generation. It is safe to call more than once.
func (t *ToneSource) Close() error {
	if t.out.close() {
		close(t.stop)
		t.logger.Info("tone source stopped")
	}
	return nil
}

var _ Source = (*ToneSource)(nil)
