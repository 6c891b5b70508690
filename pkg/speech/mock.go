package speech

import (
	"context"
	"sync"
)

// Mock is a Service for tests. Each Open returns a new MockStream.
type Mock struct {
	mu      sync.Mutex
	streams []*MockStream

	// OpenFunc overrides Open when set.
	OpenFunc func(ctx context.Context, cfg Config) (Stream, error)
}

// NewMock creates a mock service.
func NewMock() *Mock {
	return &Mock{}
}

// Open returns a new MockStream, or the result of OpenFunc.
func (m *Mock) Open(ctx context.Context, cfg Config) (Stream, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := NewMockStream(cfg)
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Streams returns every stream opened so far.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// Last returns the most recently opened stream, or nil.
func (m *Mock) Last() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// MockStream records sent frames and lets tests inject results.
type MockStream struct {
	Config Config

	results chan Result
	done    chan struct{}

	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool

	sendMu sync.RWMutex
	once   sync.Once

	// SendFunc is called for every frame when set.
	SendFunc func(pcm []byte) error
}

// NewMockStream creates a mock stream for cfg.
func NewMockStream(cfg Config) *MockStream {
	return &MockStream{
		Config:  cfg,
		results: make(chan Result, 64),
		done:    make(chan struct{}),
	}
}

// Send records a copy of pcm.
func (s *MockStream) Send(pcm []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if s.SendFunc != nil {
		if err := s.SendFunc(pcm); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.frames = append(s.frames, append([]byte(nil), pcm...))
	s.mu.Unlock()
	return nil
}

// Results returns the result channel.
func (s *MockStream) Results() <-chan Result { return s.results }

// Err returns the error passed to Finish.
func (s *MockStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream without error.
func (s *MockStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Finish(nil)
	return nil
}

// Push delivers r to the consumer. It reports false once the stream ended.
func (s *MockStream) Push(r Result) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	select {
	case <-s.done:
		return false
	case s.results <- r:
		return true
	}
}

// Finish ends the stream with err, as a service-side failure would.
func (s *MockStream) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		s.sendMu.Lock()
		close(s.results)
		s.sendMu.Unlock()
	})
}

// Frames returns copies of every frame sent.
func (s *MockStream) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

// Closed reports whether Close was called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var (
	_ Service = (*Mock)(nil)
	_ Stream  = (*MockStream)(nil)
)
