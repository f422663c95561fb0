package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerBlocksStream(t *testing.T) {
	f := NewFramer(4)

	assert.Empty(t, f.Push([]float32{1, 2, 3}))
	assert.Equal(t, 3, f.Buffered())

	frames := f.Push([]float32{4, 5, 6, 7, 8, 9})
	require.Len(t, frames, 2)
	assert.Equal(t, []float32{1, 2, 3, 4}, frames[0])
	assert.Equal(t, []float32{5, 6, 7, 8}, frames[1])
	assert.Equal(t, 1, f.Buffered())
}

func TestFramerResizeKeepsBuffered(t *testing.T) {
	f := NewFramer(4)
	f.Push([]float32{1, 2})
	f.Resize(2)

	frames := f.Push(nil)
	require.Len(t, frames, 1)
	assert.Equal(t, []float32{1, 2}, frames[0])

	f.Push([]float32{3})
	f.Reset()
	assert.Zero(t, f.Buffered())
}

func TestFramerBoundedBacking(t *testing.T) {
	f := NewFramer(160)
	chunk := make([]float32, 97)
	for i := 0; i < 1000; i++ {
		f.Push(chunk)
	}
	assert.Less(t, f.Buffered(), 160)
	assert.LessOrEqual(t, cap(f.buf), 160*4+len(chunk))
}

func TestAntiAliasBypass(t *testing.T) {
	assert.True(t, AntiAlias(16000, 16000).Bypass())
	assert.True(t, AntiAlias(8000, 16000).Bypass())
	assert.False(t, AntiAlias(48000, 16000).Bypass())
}

func TestLowPassAttenuatesAboveCutoff(t *testing.T) {
	const rate = 48000
	tone := func(freq float64) []float32 {
		s := make([]float32, rate/10)
		for i := range s {
			s[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
		}
		return s
	}

	low := AntiAlias(rate, 16000).Process(tone(500))
	high := AntiAlias(rate, 16000).Process(tone(18000))

	// Skip the filter's settling time.
	assert.Greater(t, RMS(low[1000:]), 0.6)
	assert.Less(t, RMS(high[1000:]), 0.1)
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS(Silence(160)))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
	assert.Empty(t, Silence(-1))
}
