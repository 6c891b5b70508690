package audioio

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when starting a closed source.
var ErrClosed = errors.New("audioio: source closed")

// Source produces PCM16 little-endian mono frames of Config().FrameBytes().
type Source interface {
	// Start begins capture. Frames are delivered on Frames until Close
	// or until ctx is cancelled.
	Start(ctx context.Context) error

	// Frames returns the frame channel. It is closed when capture ends.
	Frames() <-chan []byte

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Stats returns capture counters.
	Stats() Stats

	io.Closer
}

// Stats contains capture counters.
type Stats struct {
	Frames   int64  `json:"frames"`
	Samples  int64  `json:"samples"`
	Overruns int64  `json:"overruns"`
	Running  bool   `json:"running"`
	Backend  string `json:"backend"`
}

// emitter delivers frames without blocking the capture loop; frames that
// do not fit in the buffer are counted as overruns and dropped.
type emitter struct {
	mu       sync.Mutex
	ch       chan []byte
	closed   bool
	running  bool
	frames   atomic.Int64
	samples  atomic.Int64
	overruns atomic.Int64
}

func newEmitter(buffer int) *emitter {
	return &emitter{ch: make(chan []byte, buffer)}
}

func (e *emitter) emit(frame []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	select {
	case e.ch <- frame:
		e.frames.Add(1)
		e.samples.Add(int64(len(frame) / 2))
		return true
	default:
		e.overruns.Add(1)
		return false
	}
}

// start marks the emitter running. It reports false if already running
// and returns ErrClosed after close.
func (e *emitter) start() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrClosed
	}
	if e.running {
		return false, nil
	}
	e.running = true
	return true, nil
}

// close closes the channel once and reports whether this call closed it.
func (e *emitter) close() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	e.running = false
	close(e.ch)
	return true
}

func (e *emitter) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *emitter) stats(backend string) Stats {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	return Stats{
		Frames:   e.frames.Load(),
		Samples:  e.samples.Load(),
		Overruns: e.overruns.Load(),
		Running:  running,
		Backend:  backend,
	}
}
