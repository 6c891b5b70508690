package conversation

import (
	"context"
	"errors"
	"sync"
)

// ErrSinkClosed is returned by sinks that no longer accept events.
var ErrSinkClosed = errors.New("conversation: sink closed")

// Sink receives events for the presentation layer.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// FuncSink adapts a function to Sink.
type FuncSink func(ctx context.Context, ev Event) error

// Emit calls f.
func (f FuncSink) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// ChannelSink delivers events on a buffered channel. Emit blocks while the
// buffer is full, until ctx is done.
type ChannelSink struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Events returns the receive side. It is never closed; select on Done.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Done is closed once the sink stops accepting events.
func (s *ChannelSink) Done() <-chan struct{} {
	return s.done
}

// Emit sends ev.
func (s *ChannelSink) Emit(ctx context.Context, ev Event) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the sink. Pending events stay readable.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// MultiSink fans an event out to every sink.
type MultiSink []Sink

// Emit delivers ev to each sink and joins their errors.
func (m MultiSink) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Sink = FuncSink(nil)
	_ Sink = (*ChannelSink)(nil)
	_ Sink = MultiSink(nil)
)
