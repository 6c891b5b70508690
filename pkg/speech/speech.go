// Package speech streams microphone audio to a transcription service and
// delivers interim and final transcripts.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for the speech package.
var (
	// ErrNoAPIKey indicates the service API key was not provided.
	ErrNoAPIKey = errors.New("speech: API key required")

	// ErrConnectFailed indicates the streaming connection could not be opened.
	ErrConnectFailed = errors.New("speech: connect failed")

	// ErrClosed is returned when sending on a closed stream.
	ErrClosed = errors.New("speech: stream closed")
)

// DefaultPhrases are boosted during recognition: the assistant's name,
// navigation words and Jakarta transit vocabulary.
var DefaultPhrases = []string{
	"MANTRA", "navigation", "directions", "help",
	"Bundaran HI", "Dukuh Atas", "Blok M", "Lebak Bulus", "Senayan", "Istora",
	"Tanah Abang", "Sudirman", "Manggarai", "Jakarta Kota",
	"MRT", "KRL", "TransJakarta", "halte", "stasiun",
	"elevator", "escalator", "toilet", "exit", "entrance",
	"Kalideres", "Pulogadung", "Kampung Melayu", "Harmoni",
	"Thamrin", "Kuningan", "Menteng",
}

// Config describes one recognition stream. Audio is PCM16 mono.
type Config struct {
	Language       string
	SampleRate     int
	FrameDuration  time.Duration
	Phrases        []string
	Boost          float64
	InterimResults bool
	Model          string
	Endpointing    time.Duration
}

// DefaultConfig returns 16 kHz en-US recognition with 100 ms frames.
func DefaultConfig() Config {
	return Config{
		Language:       "en-US",
		SampleRate:     16000,
		FrameDuration:  100 * time.Millisecond,
		Phrases:        DefaultPhrases,
		Boost:          20,
		InterimResults: true,
		Model:          "nova-2",
		Endpointing:    300 * time.Millisecond,
	}
}

// FrameSamples is the number of samples per frame.
func (c Config) FrameSamples() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// FrameBytes is the size of one PCM16 frame in bytes.
func (c Config) FrameBytes() int {
	return c.FrameSamples() * 2
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("speech: invalid sample rate %d", c.SampleRate)
	}
	if c.FrameSamples() <= 0 {
		return fmt.Errorf("speech: invalid frame duration %v", c.FrameDuration)
	}
	if strings.TrimSpace(c.Language) == "" {
		return errors.New("speech: language required")
	}
	return nil
}

// Result is one recognition result.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// Service opens recognition streams.
type Service interface {
	Open(ctx context.Context, cfg Config) (Stream, error)
}

// Stream is one live recognition session.
type Stream interface {
	// Send forwards one PCM16 frame.
	Send(pcm []byte) error

	// Results yields recognition results. It is closed when the stream ends.
	Results() <-chan Result

	// Err reports why the stream ended, nil after a clean Close.
	Err() error

	// Close ends the stream gracefully.
	Close() error
}
