package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Resampler converts a continuous mono stream between sample rates
// using linear interpolation.
//
// State is carried across calls so that consecutive blocks of one
// stream join without clicks: the last input sample of the previous
// block is kept as the left neighbour of the next block's first sample,
// and the fractional read position is preserved.
type Resampler struct {
	inputRate  int
	outputRate int
	step       float64 // input samples advanced per output sample
	position   float64 // read position relative to the current block, -1 = last sample of the previous block
	last       float32
}

// NewResampler creates a resampler from inputRate to outputRate.
func NewResampler(inputRate, outputRate int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		logrus.WithFields(logrus.Fields{
			"function":    "NewResampler",
			"input_rate":  inputRate,
			"output_rate": outputRate,
		}).Error("Sample rate validation failed")
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", inputRate, outputRate)
	}

	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		step:       float64(inputRate) / float64(outputRate),
	}, nil
}

// InputRate returns the configured input sample rate.
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the configured output sample rate.
func (r *Resampler) OutputRate() int { return r.outputRate }

// Resample converts one block. An empty block yields an empty result.
func (r *Resampler) Resample(input []float32) []float32 {
	n := len(input)
	if n == 0 {
		return nil
	}
	if r.inputRate == r.outputRate {
		out := make([]float32, n)
		copy(out, input)
		r.last = input[n-1]
		return out
	}

	out := make([]float32, 0, int(float64(n)/r.step)+2)
	for r.position < float64(n-1) {
		i := int(math.Floor(r.position))
		frac := float32(r.position - float64(i))
		a := r.sample(input, i)
		b := input[i+1]
		out = append(out, a+(b-a)*frac)
		r.position += r.step
	}

	r.position -= float64(n)
	r.last = input[n-1]
	return out
}

func (r *Resampler) sample(input []float32, i int) float32 {
	if i < 0 {
		return r.last
	}
	return input[i]
}

// OutputSize estimates the number of samples produced for inputSize
// input samples.
func (r *Resampler) OutputSize(inputSize int) int {
	return int(math.Round(float64(inputSize) / r.step))
}

// Reset clears the inter-block state.
func (r *Resampler) Reset() {
	r.position = 0
	r.last = 0
}

// Resample is a stateless one-shot conversion of a single block.
func Resample(input []float32, inputRate, outputRate int) ([]float32, error) {
	r, err := NewResampler(inputRate, outputRate)
	if err != nil {
		return nil, err
	}
	return r.Resample(input), nil
}
