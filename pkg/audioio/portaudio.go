//go:build cgo

package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	paInitOnce sync.Once
	paInitErr  error
)

func initPortAudio() error {
	paInitOnce.Do(func() { paInitErr = portaudio.Initialize() })
	return paInitErr
}

// PortAudioSource captures the default input device.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger
	out    *emitter

	mu     sync.Mutex
	stream *portaudio.Stream
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPortAudioSource opens PortAudio. The device stream is opened by Start.
func NewPortAudioSource(cfg Config, logger *slog.Logger) (*PortAudioSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := initPortAudio(); err != nil {
		return nil, fmt.Errorf("audioio: portaudio init: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.portaudio"),
		out:    newEmitter(cfg.Buffer),
		done:   make(chan struct{}),
	}, nil
}

// Start opens the default input stream and begins capture.
func (p *PortAudioSource) Start(ctx context.Context) error {
	first, err := p.out.start()
	if err != nil || !first {
		return err
	}

	buf := make([]int16, p.cfg.FrameSamples())
	stream, err := portaudio.OpenDefaultStream(p.cfg.Channels, 0, float64(p.cfg.SampleRate), len(buf), buf)
	if err != nil {
		p.out.close()
		return fmt.Errorf("audioio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		p.out.close()
		return fmt.Errorf("audioio: start input stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.stream = stream
	p.cancel = cancel
	p.mu.Unlock()

	go p.loop(ctx, stream, buf)
	p.logger.Info("audio capture started", "sample_rate", p.cfg.SampleRate, "frame_samples", len(buf))
	return nil
}

func (p *PortAudioSource) loop(ctx context.Context, stream *portaudio.Stream, buf []int16) {
	defer close(p.done)
	defer p.out.close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := stream.Read(); err != nil {
			p.logger.Debug("audio read error", "error", err)
			if err == portaudio.InputOverflowed {
				p.out.overruns.Add(1)
				continue
			}
			return
		}
		if !p.out.emit(SamplesToBytes(buf)) {
			p.logger.Debug("audio buffer full, dropping frame")
		}
	}
}

// Frames returns the frame channel.
func (p *PortAudioSource) Frames() <-chan []byte { return p.out.ch }

// Config returns the capture configuration.
func (p *PortAudioSource) Config() Config { return p.cfg }

// Name returns "portaudio".
func (p *PortAudioSource) Name() string { return string(BackendPortAudio) }

// Stats returns capture counters.
func (p *PortAudioSource) Stats() Stats { return p.out.stats(p.Name()) }

// Close stops capture and releases the device stream.
func (p *PortAudioSource) Close() error {
	p.mu.Lock()
	stream, cancel := p.stream, p.cancel
	p.stream, p.cancel = nil, nil
	p.mu.Unlock()

	if stream == nil {
		p.out.close()
		return nil
	}
	cancel()
	err := stream.Stop()
	<-p.done
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	p.logger.Info("audio capture stopped")
	return err
}

var _ Source = (*PortAudioSource)(nil)
