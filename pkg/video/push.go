package video

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// PushSource receives frames from a client, e.g. over a websocket.
type PushSource struct {
	box *latest
}

// NewPushSource creates a push source.
func NewPushSource() *PushSource {
	return &PushSource{box: newLatest()}
}

// Push offers an encoded frame, replacing any frame not yet consumed.
func (p *PushSource) Push(frame []byte) error {
	return p.box.put(frame)
}

// PushDataURL decodes a "data:image/...;base64," URL (or bare base64)
// and pushes the frame.
func (p *PushSource) PushDataURL(s string) error {
	frame, err := DecodeDataURL(s)
	if err != nil {
		return err
	}
	return p.Push(frame)
}

// Frames returns the frame channel.
func (p *PushSource) Frames() <-chan []byte { return p.box.ch }

// Stats returns frame counters.
func (p *PushSource) Stats() Stats { return p.box.stats() }

// Close ends the source.
func (p *PushSource) Close() error {
	p.box.close()
	return nil
}

// DecodeDataURL returns the payload of a base64 image data URL. A string
// without a "data:" prefix is decoded as plain base64.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, ErrBadDataURL
		}
		s = payload
	}
	if s == "" {
		return nil, ErrBadDataURL
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDataURL, err)
	}
	return data, nil
}

var _ Source = (*PushSource)(nil)
