package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"sync"
	"time"
)

// Decoder turns an H264 Annex-B access unit sequence into a JPEG frame.
type Decoder interface {
	Decode(ctx context.Context, h264 []byte) ([]byte, error)
}

// FastDecoder decodes H264 through ffmpeg over stdin/stdout pipes.
type FastDecoder struct {
	// Binary is the ffmpeg executable. Default: "ffmpeg".
	Binary string

	// Timeout bounds one decode. Default: 200ms.
	Timeout time.Duration

	// MinInterval rate-limits decodes; calls inside it return the last
	// frame. Default: 100ms.
	MinInterval time.Duration

	// Quality is the ffmpeg mjpeg q:v value, 2 (best) to 31. Default: 3.
	Quality int

	mu         sync.Mutex
	lastDecode time.Time
	last       []byte
}

// NewFastDecoder creates a decoder producing at most one frame per interval.
func NewFastDecoder(interval time.Duration) *FastDecoder {
	return &FastDecoder{
		Binary:      "ffmpeg",
		Timeout:     200 * time.Millisecond,
		MinInterval: interval,
		Quality:     3,
	}
}

// Decode returns the first picture in h264 as JPEG. Too little data, a
// failed decode or a blank picture yield the previous frame, which is nil
// until one decode succeeds.
func (d *FastDecoder) Decode(ctx context.Context, h264 []byte) ([]byte, error) {
	if len(h264) < 100 {
		return d.Latest(), nil
	}

	d.mu.Lock()
	if time.Since(d.lastDecode) < d.MinInterval {
		d.mu.Unlock()
		return d.Latest(), nil
	}
	d.lastDecode = time.Now()
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.Quality),
		"pipe:1",
	)
	var out bytes.Buffer
	cmd.Stdin = bytes.NewReader(h264)
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() == nil {
			if _, ok := err.(*exec.ExitError); !ok {
				return nil, fmt.Errorf("video: run ffmpeg: %w", err)
			}
		}
		// Not enough data for a picture yet, or the decode timed out.
		return d.Latest(), nil
	}

	frame := out.Bytes()
	if isBlankJPEG(frame) {
		return d.Latest(), nil
	}

	d.mu.Lock()
	d.last = frame
	d.mu.Unlock()
	return frame, nil
}

// Latest returns a copy of the most recent decoded frame.
func (d *FastDecoder) Latest() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	return append([]byte(nil), d.last...)
}

// isBlankJPEG reports frames that are undecodable, tiny, near-black or the
// uniform grey an H264 decoder emits before the first keyframe.
func isBlankJPEG(data []byte) bool {
	if len(data) < 1000 {
		return true
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return true
	}
	return isBlank(img)
}

func isBlank(img image.Image) bool {
	b := img.Bounds()
	if b.Dx() < 100 || b.Dy() < 100 {
		return true
	}

	var rSum, gSum, bSum, n int
	for y := b.Min.Y; y < b.Max.Y; y += b.Dy() / 10 {
		for x := b.Min.X; x < b.Max.X; x += b.Dx() / 10 {
			r, g, bl, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(bl >> 8)
			n++
		}
	}
	r, g, bl := rSum/n, gSum/n, bSum/n

	if r < 30 && g < 30 && bl < 30 {
		return true
	}
	spread := absInt(r-g) + absInt(g-bl) + absInt(r-bl)
	return spread < 15 && r > 100 && r < 150
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

var _ Decoder = (*FastDecoder)(nil)
