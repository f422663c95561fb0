package video

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
)

// ErrMalformedFrame indicates a payload that is not a decodable JPEG.
var ErrMalformedFrame = errors.New("malformed video frame")

// Encoder compresses frames to JPEG at a fixed quality.
type Encoder struct {
	quality int
}

// NewEncoder creates an encoder. quality is in [0, 1] as configured and
// is mapped to the JPEG 1-100 scale.
func NewEncoder(quality float64) *Encoder {
	e := &Encoder{}
	e.SetQuality(quality)
	return e
}

// SetQuality updates the quality for subsequent frames.
func (e *Encoder) SetQuality(quality float64) {
	if math.IsNaN(quality) {
		quality = 0
	}
	q := int(math.Round(quality * 100))
	e.quality = max(1, min(100, q))
}

// Quality returns the JPEG quality on the 1-100 scale.
func (e *Encoder) Quality() int { return e.quality }

// Encode compresses img.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// IsJPEG reports whether payload starts with a JPEG SOI marker.
func IsJPEG(payload []byte) bool {
	return len(payload) >= 2 && payload[0] == 0xFF && payload[1] == 0xD8
}

// Decode decompresses a JPEG payload.
func Decode(payload []byte) (image.Image, error) {
	if !IsJPEG(payload) {
		return nil, ErrMalformedFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return img, nil
}
