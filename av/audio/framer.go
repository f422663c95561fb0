package audio

// Framer blocks a continuous capture stream into fixed-size frames.
// Samples that do not fill a whole frame stay buffered for the next
// Push.
type Framer struct {
	size int
	buf  []float32
}

// NewFramer creates a framer emitting frames of size samples.
func NewFramer(size int) *Framer {
	if size < 1 {
		size = 1
	}
	return &Framer{size: size, buf: make([]float32, 0, size*2)}
}

// Size returns the frame size in samples.
func (f *Framer) Size() int { return f.size }

// Buffered returns the number of samples waiting for a full frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Push appends samples and returns every completed frame in order.
func (f *Framer) Push(samples []float32) [][]float32 {
	f.buf = append(f.buf, samples...)

	var frames [][]float32
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		frames = append(frames, frame)
		f.buf = f.buf[f.size:]
	}

	// Compact so the backing array does not grow without bound.
	if cap(f.buf) > f.size*4 {
		rest := make([]float32, len(f.buf), f.size*2)
		copy(rest, f.buf)
		f.buf = rest
	}
	return frames
}

// Resize changes the frame size. Buffered samples are kept.
func (f *Framer) Resize(size int) {
	if size < 1 {
		size = 1
	}
	f.size = size
}

// Reset drops buffered samples.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
