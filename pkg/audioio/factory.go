package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource creates a capture source for cfg.Backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating audio source",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"frame_ms", cfg.FrameDuration.Milliseconds(),
	)

	var (
		src Source
		err error
	)
	switch cfg.Backend {
	case BackendPortAudio, "":
		src, err = NewPortAudioSource(cfg, logger)
	case BackendPush:
		src, err = NewPushSource(cfg, logger)
	case BackendTone:
		src, err = NewToneSource(cfg, logger)
	default:
		return nil, fmt.Errorf("audioio: unsupported backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ParseBackend parses a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendPortAudio, BackendPush, BackendTone:
		return b, nil
	default:
		return "", fmt.Errorf("audioio: unknown backend %q", s)
	}
}
