package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/opd-ai/roomcall/av"
)

// ErrCameraClosed is returned by Capture after Close.
var ErrCameraClosed = errors.New("camera closed")

var bars = []color.RGBA{
	{235, 235, 235, 255},
	{235, 235, 16, 255},
	{16, 235, 235, 255},
	{16, 235, 16, 255},
	{235, 16, 235, 255},
	{235, 16, 16, 255},
	{16, 16, 235, 255},
}

// PatternCamera is a synthetic camera that renders scrolling colour
// bars. It stands in for a real capture device.
type PatternCamera struct{}

// OpenCamera implements av.VideoDevice.
func (PatternCamera) OpenCamera(ctx context.Context, width, height int) (av.VideoStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid camera size %dx%d", width, height)
	}
	return &patternStream{width: width, height: height}, nil
}

type patternStream struct {
	width, height int

	mu     sync.Mutex
	frame  int
	closed bool
}

func (p *patternStream) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrCameraClosed
	}
	offset := p.frame
	p.frame++
	p.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	barWidth := p.width / len(bars)
	if barWidth == 0 {
		barWidth = 1
	}
	for x := 0; x < p.width; x++ {
		c := bars[((x+offset)/barWidth)%len(bars)]
		for y := 0; y < p.height; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

func (p *patternStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
