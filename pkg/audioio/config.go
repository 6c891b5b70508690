// Package audioio captures PCM16 mono audio and cuts it into fixed-size
// frames for streaming recognition.
//
// Backends:
//   - portaudio: a local microphone through PortAudio
//   - push: audio pushed by a client, e.g. over a websocket
//   - tone: synthetic silence or a sine wave for tests and dry runs
package audioio

import (
	"fmt"
	"time"
)

// Backend names an audio source implementation.
type Backend string

const (
	BackendPortAudio Backend = "portaudio"
	BackendPush      Backend = "push"
	BackendTone      Backend = "tone"
)

// Config holds capture configuration.
type Config struct {
	// Backend selects the source. Default: "portaudio".
	Backend Backend `json:"backend"`

	// SampleRate in Hz. Default: 16000.
	SampleRate int `json:"sample_rate"`

	// Channels is always 1 for recognition audio.
	Channels int `json:"channels"`

	// FrameDuration is the length of each emitted frame. Default: 100ms.
	FrameDuration time.Duration `json:"frame_duration"`

	// Buffer is the number of frames queued before overruns are dropped.
	Buffer int `json:"buffer"`
}

// DefaultConfig returns 16 kHz mono capture in 100 ms frames.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendPortAudio,
		SampleRate:    16000,
		Channels:      1,
		FrameDuration: 100 * time.Millisecond,
		Buffer:        50,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 {
		return fmt.Errorf("audioio: only mono capture is supported, got %d channels", c.Channels)
	}
	if c.FrameSamples() <= 0 {
		return fmt.Errorf("audioio: frame_duration too short: %v", c.FrameDuration)
	}
	if c.Buffer < 0 {
		return fmt.Errorf("audioio: buffer must not be negative, got %d", c.Buffer)
	}
	return nil
}

// FrameSamples returns the number of samples per frame.
func (c Config) FrameSamples() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// FrameBytes returns the size of a PCM16 frame in bytes.
func (c Config) FrameBytes() int {
	return c.FrameSamples() * c.Channels * 2
}
