package audioio

// Framer re-chunks a PCM16 byte stream into frames of a fixed size.
// It is not safe for concurrent use.
type Framer struct {
	size int
	buf  []byte
}

// NewFramer creates a framer emitting frames of size bytes. Odd sizes
// are rounded up to a whole sample.
func NewFramer(size int) *Framer {
	if size < 2 {
		size = 2
	}
	size += size % 2
	return &Framer{size: size, buf: make([]byte, 0, size*2)}
}

// Size returns the frame size in bytes.
func (f *Framer) Size() int { return f.size }

// Write appends p and returns every complete frame now available.
// Returned frames do not alias p or internal state.
func (f *Framer) Write(p []byte) [][]byte {
	f.buf = append(f.buf, p...)
	var out [][]byte
	off := 0
	for len(f.buf)-off >= f.size {
		frame := make([]byte, f.size)
		copy(frame, f.buf[off:off+f.size])
		out = append(out, frame)
		off += f.size
	}
	n := copy(f.buf, f.buf[off:])
	f.buf = f.buf[:n]
	return out
}

// Pending returns the number of buffered bytes not yet framed.
func (f *Framer) Pending() int { return len(f.buf) }

// Flush returns the buffered partial frame zero-padded to full size, or
// nil when nothing is pending.
func (f *Framer) Flush() []byte {
	if len(f.buf) == 0 {
		return nil
	}
	frame := make([]byte, f.size)
	copy(frame, f.buf)
	f.buf = f.buf[:0]
	return frame
}

// Reset discards buffered bytes.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
