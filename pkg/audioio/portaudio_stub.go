//go:build !cgo

package audioio

import (
	"errors"
	"log/slog"
)

// NewPortAudioSource is unavailable without cgo.
func NewPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, errors.New("audioio: portaudio requires cgo")
}
