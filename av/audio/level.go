package audio

import "math"

// RMS returns the root-mean-square level of samples in [0, 1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Silence returns n zero samples.
func Silence(n int) []float32 {
	if n < 0 {
		n = 0
	}
	return make([]float32, n)
}
