package video

import (
	"bytes"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"log/slog"
	"sync"

	"github.com/corona10/goimagehash"
)

// FrameGate drops frames that are perceptually identical to the last
// frame let through, so a static scene is not re-detected every frame.
type FrameGate struct {
	// MaxDistance is the largest pHash Hamming distance treated as
	// unchanged. Default: 4.
	MaxDistance int

	// MaxSkips bounds consecutive skipped frames so detections are
	// refreshed periodically. Default: 10.
	MaxSkips int

	logger *slog.Logger

	mu      sync.Mutex
	last    *goimagehash.ImageHash
	skipped int
}

// NewFrameGate creates a gate with default thresholds.
func NewFrameGate(logger *slog.Logger) *FrameGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameGate{
		MaxDistance: 4,
		MaxSkips:    10,
		logger:      logger.With("component", "video.gate"),
	}
}

// Allow reports whether frame differs enough from the last allowed frame
// to be processed. Frames that cannot be hashed are always allowed.
func (g *FrameGate) Allow(frame []byte) bool {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return true
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.last != nil && g.skipped < g.MaxSkips {
		if dist, err := g.last.Distance(hash); err == nil && dist <= g.MaxDistance {
			g.skipped++
			g.logger.Debug("skipping unchanged frame", "distance", dist, "skipped", g.skipped)
			return false
		}
	}
	g.last = hash
	g.skipped = 0
	return true
}

// Reset forgets the last frame.
func (g *FrameGate) Reset() {
	g.mu.Lock()
	g.last = nil
	g.skipped = 0
	g.mu.Unlock()
}
