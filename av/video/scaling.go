package video

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Scaler resizes captured frames to the configured send resolution
// using bilinear interpolation.
type Scaler struct{}

// NewScaler creates a new frame scaler.
func NewScaler() *Scaler {
	return &Scaler{}
}

// Scale resizes src to width x height. A source that already has the
// target size is copied.
func (s *Scaler) Scale(src image.Image, width, height int) (*image.RGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("source frame cannot be nil")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target dimensions: %dx%d", width, height)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty source frame: %dx%d", b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if !s.IsScalingRequired(b.Dx(), b.Dy(), width, height) {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst, nil
	}

	rgba := toRGBA(src)
	xRatio := float64(b.Dx()) / float64(width)
	yRatio := float64(b.Dy()) / float64(height)

	for y := 0; y < height; y++ {
		srcY := float64(y) * yRatio
		y1 := int(srcY)
		y2 := min(y1+1, b.Dy()-1)
		fy := srcY - float64(y1)

		for x := 0; x < width; x++ {
			srcX := float64(x) * xRatio
			x1 := int(srcX)
			x2 := min(x1+1, b.Dx()-1)
			fx := srcX - float64(x1)

			p11 := rgba.RGBAAt(x1, y1)
			p12 := rgba.RGBAAt(x2, y1)
			p21 := rgba.RGBAAt(x1, y2)
			p22 := rgba.RGBAAt(x2, y2)

			dst.SetRGBA(x, y, color.RGBA{
				R: lerp2(p11.R, p12.R, p21.R, p22.R, fx, fy),
				G: lerp2(p11.G, p12.G, p21.G, p22.G, fx, fy),
				B: lerp2(p11.B, p12.B, p21.B, p22.B, fx, fy),
				A: lerp2(p11.A, p12.A, p21.A, p22.A, fx, fy),
			})
		}
	}
	return dst, nil
}

// IsScalingRequired checks if scaling is needed for given dimensions.
func (s *Scaler) IsScalingRequired(srcWidth, srcHeight, dstWidth, dstHeight int) bool {
	return srcWidth != dstWidth || srcHeight != dstHeight
}

// toRGBA returns src as an *image.RGBA with origin (0, 0).
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	return rgba
}

func lerp2(p11, p12, p21, p22 uint8, fx, fy float64) uint8 {
	top := float64(p11)*(1-fx) + float64(p12)*fx
	bottom := float64(p21)*(1-fx) + float64(p22)*fx
	return uint8(top*(1-fy) + bottom*fy + 0.5) // round to nearest
}
