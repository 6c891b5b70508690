package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// PushSource frames audio pushed by a remote client. Pushed audio at any
// sample rate is resampled to the configured rate.
type PushSource struct {
	cfg    Config
	logger *slog.Logger
	out    *emitter

	mu     sync.Mutex
	framer *Framer
}

// NewPushSource creates a push source.
func NewPushSource(cfg Config, logger *slog.Logger) (*PushSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PushSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.push"),
		out:    newEmitter(cfg.Buffer),
		framer: NewFramer(cfg.FrameBytes()),
	}, nil
}

// Start closes the source when ctx is cancelled.
func (p *PushSource) Start(ctx context.Context) error {
	first, err := p.out.start()
	if err != nil || !first {
		return err
	}
	go func() {
		<-ctx.Done()
		p.Close()
	}()
	return nil
}

// Push appends PCM16 mono audio recorded at rate Hz. A rate of zero means
// the configured rate. It returns ErrClosed once the source is closed.
func (p *PushSource) Push(pcm []byte, rate int) error {
	if rate < 0 {
		return fmt.Errorf("audioio: invalid sample rate %d", rate)
	}
	if p.out.isClosed() {
		return ErrClosed
	}
	if rate == 0 {
		rate = p.cfg.SampleRate
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	pcm = ResampleBytes(pcm, rate, p.cfg.SampleRate)

	p.mu.Lock()
	frames := p.framer.Write(pcm)
	p.mu.Unlock()

	for _, f := range frames {
		if p.out.isClosed() {
			return ErrClosed
		}
		if !p.out.emit(f) {
			p.logger.Debug("audio buffer full, dropping frame")
		}
	}
	return nil
}

// Frames returns the frame channel.
func (p *PushSource) Frames() <-chan []byte { return p.out.ch }

// Config returns the capture configuration.
func (p *PushSource) Config() Config { return p.cfg }

// Name returns "push".
func (p *PushSource) Name() string { return string(BackendPush) }

// Stats returns capture counters.
func (p *PushSource) Stats() Stats { return p.out.stats(p.Name()) }

// Close flushes a trailing partial frame and closes the channel.
func (p *PushSource) Close() error {
	p.mu.Lock()
	tail := p.framer.Flush()
	p.mu.Unlock()
	if tail != nil {
		p.out.emit(tail)
	}
	if p.out.close() {
		p.logger.Debug("push source closed", "frames", p.out.frames.Load())
	}
	return nil
}

var _ Source = (*PushSource)(nil)
