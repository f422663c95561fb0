package audio

import "math"

// LowPass is a second-order Butterworth low-pass biquad (RBJ cookbook,
// direct form I). It is used as the anti-alias stage ahead of
// downsampling.
type LowPass struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
	bypass             bool
}

// NewLowPass designs a filter for sampleRate with the given cutoff.
// A cutoff at or above Nyquist yields a pass-through filter.
func NewLowPass(sampleRate int, cutoff float64) *LowPass {
	nyquist := float64(sampleRate) / 2
	if sampleRate <= 0 || cutoff <= 0 || cutoff >= nyquist {
		return &LowPass{bypass: true}
	}

	w0 := 2 * math.Pi * cutoff / float64(sampleRate)
	alpha := math.Sin(w0) / math.Sqrt2 // Q = 1/sqrt(2)
	cos := math.Cos(w0)
	a0 := 1 + alpha

	return &LowPass{
		b0: (1 - cos) / 2 / a0,
		b1: (1 - cos) / a0,
		b2: (1 - cos) / 2 / a0,
		a1: -2 * cos / a0,
		a2: (1 - alpha) / a0,
	}
}

// AntiAlias returns the filter used before resampling from inputRate to
// targetRate: a cutoff just below half the target rate, or a bypass when
// no downsampling happens.
func AntiAlias(inputRate, targetRate int) *LowPass {
	if targetRate >= inputRate {
		return &LowPass{bypass: true}
	}
	return NewLowPass(inputRate, 0.45*float64(targetRate))
}

// Bypass reports whether the filter passes samples through unchanged.
func (f *LowPass) Bypass() bool { return f.bypass }

// Process filters samples in place and returns them.
func (f *LowPass) Process(samples []float32) []float32 {
	if f.bypass {
		return samples
	}
	for i, s := range samples {
		x := float64(s)
		y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
		f.x2, f.x1 = f.x1, x
		f.y2, f.y1 = f.y1, y
		samples[i] = float32(y)
	}
	return samples
}

// Reset clears the filter history.
func (f *LowPass) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}
