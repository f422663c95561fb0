package video

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func TestScalerScale(t *testing.T) {
	s := NewScaler()

	tests := []struct {
		name      string
		src       image.Image
		w, h      int
		expectErr bool
	}{
		{"downscale", gradient(640, 360), 320, 180, false},
		{"upscale", gradient(160, 90), 320, 180, false},
		{"same_size", gradient(320, 180), 320, 180, false},
		{"nil_source", nil, 320, 180, true},
		{"zero_target", gradient(16, 16), 0, 180, true},
		{"empty_source", image.NewRGBA(image.Rect(0, 0, 0, 0)), 16, 16, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Scale(tt.src, tt.w, tt.h)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, out.Bounds().Dx())
			assert.Equal(t, tt.h, out.Bounds().Dy())
		})
	}
}

func TestScalerPreservesUniformColour(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 50, 40))
	c := color.RGBA{R: 200, G: 100, B: 50, A: 255}
	for y := 10; y < 40; y++ {
		for x := 10; x < 50; x++ {
			src.SetRGBA(x, y, c)
		}
	}

	out, err := NewScaler().Scale(src, 17, 11)
	require.NoError(t, err)
	assert.Equal(t, c, out.RGBAAt(0, 0))
	assert.Equal(t, c, out.RGBAAt(16, 10))
}

func TestEncoderQualityMapping(t *testing.T) {
	assert.Equal(t, 55, NewEncoder(0.55).Quality())
	assert.Equal(t, 1, NewEncoder(0).Quality())
	assert.Equal(t, 100, NewEncoder(3).Quality())
}

func TestEncodeDecode(t *testing.T) {
	payload, err := NewEncoder(0.8).Encode(gradient(64, 48))
	require.NoError(t, err)
	assert.True(t, IsJPEG(payload))

	img, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, payload := range [][]byte{nil, {0x89, 'P', 'N', 'G'}, {0xFF, 0xD8, 0x00}} {
		_, err := Decode(payload)
		assert.True(t, errors.Is(err, ErrMalformedFrame), "payload %v", payload)
	}
}
