package device

import "math"

func bytesToFloat(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(b[2*i]) | int16(b[2*i+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

func floatToBytes(samples []float32, dst []byte) {
	for i, v := range samples {
		if 2*i+1 >= len(dst) {
			return
		}
		s := int16(math.Max(-32768, math.Min(32767, math.Round(float64(v)*32767))))
		dst[2*i] = byte(s)
		dst[2*i+1] = byte(s >> 8)
	}
	for i := 2 * len(samples); i < len(dst); i++ {
		dst[i] = 0
	}
}
