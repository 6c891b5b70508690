// Package video provides camera frame sources for object detection.
//
// Every Source delivers encoded still frames (JPEG or PNG) and keeps only
// the most recent undelivered frame: a slow consumer sees fresh frames
// rather than a backlog.
package video

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned when pushing to a closed source.
	ErrClosed = errors.New("video: source closed")

	// ErrBadDataURL indicates a malformed data URL frame.
	ErrBadDataURL = errors.New("video: malformed data URL")
)

// Source yields encoded frames.
type Source interface {
	// Frames returns the frame channel. It is closed when the source ends.
	Frames() <-chan []byte

	Close() error
}

// Stats counts frames through a latest-only buffer.
type Stats struct {
	Received  int64 `json:"received"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// latest is a one-slot mailbox that replaces an unread frame.
type latest struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool

	received atomic.Int64
	dropped  atomic.Int64
}

func newLatest() *latest {
	return &latest{ch: make(chan []byte, 1)}
}

func (l *latest) put(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.received.Add(1)
	select {
	case <-l.ch:
		l.dropped.Add(1)
	default:
	}
	l.ch <- frame
	return nil
}

func (l *latest) close() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	close(l.ch)
	return true
}

func (l *latest) stats() Stats {
	l.mu.Lock()
	pending := int64(len(l.ch))
	l.mu.Unlock()
	r, d := l.received.Load(), l.dropped.Load()
	return Stats{Received: r, Dropped: d, Delivered: r - d - pending}
}
