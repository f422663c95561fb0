package av

import (
	"context"
	"sync/atomic"

	"github.com/opd-ai/roomcall/av/video"
	"github.com/opd-ai/roomcall/config"
	"github.com/sirupsen/logrus"
)

// EncodedVideo is one captured frame ready for transmission, before it
// is given a sequence number.
type EncodedVideo struct {
	Payload  []byte
	Keyframe bool
	Width    int
	Height   int
}

// VideoCapture grabs, scales and encodes camera frames on a fixed
// interval. A tick that fires while the previous capture is still in
// flight is skipped.
type VideoCapture struct {
	stream  VideoStream
	cfg     config.Video
	scaler  *video.Scaler
	encoder *video.Encoder
	tp      TimeProvider
	deliver func(EncodedVideo)

	inFlight atomic.Bool
	forceKey atomic.Bool
	sinceKey int // owned by the in-flight capture

	captured atomic.Uint64
	skipped  atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewVideoCapture creates a capture loop over stream. deliver is called
// from a capture goroutine for every encoded frame.
func NewVideoCapture(stream VideoStream, cfg config.Video, tp TimeProvider, deliver func(EncodedVideo)) *VideoCapture {
	vc := &VideoCapture{
		stream:  stream,
		cfg:     cfg,
		scaler:  video.NewScaler(),
		encoder: video.NewEncoder(cfg.JPEGQuality),
		tp:      tp,
		deliver: deliver,
	}
	vc.forceKey.Store(true)
	return vc
}

// Start runs the timer until Stop or ctx is done.
func (vc *VideoCapture) Start(ctx context.Context) {
	ctx, vc.cancel = context.WithCancel(ctx)
	vc.done = make(chan struct{})
	ticker := vc.tp.NewTicker(vc.cfg.Interval())

	logrus.WithFields(logrus.Fields{
		"function": "VideoCapture.Start",
		"interval": vc.cfg.Interval(),
		"size":     [2]int{vc.cfg.Width, vc.cfg.Height},
	}).Info("Video capture started")

	go func() {
		defer close(vc.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				vc.tick(ctx)
			}
		}
	}()
}

// Stop halts the timer. An in-flight capture may still deliver; the
// receiver guards against that.
func (vc *VideoCapture) Stop() {
	if vc.cancel == nil {
		return
	}
	vc.cancel()
	<-vc.done
	vc.cancel = nil
}

// ForceKeyframe makes the next captured frame a keyframe.
func (vc *VideoCapture) ForceKeyframe() {
	vc.forceKey.Store(true)
}

// Skipped returns the number of ticks dropped because a capture was busy.
func (vc *VideoCapture) Skipped() uint64 { return vc.skipped.Load() }

// Captured returns the number of frames delivered.
func (vc *VideoCapture) Captured() uint64 { return vc.captured.Load() }

func (vc *VideoCapture) tick(ctx context.Context) {
	if !vc.inFlight.CompareAndSwap(false, true) {
		vc.skipped.Add(1)
		return
	}
	go func() {
		defer vc.inFlight.Store(false)
		if frame, ok := vc.capture(ctx); ok {
			vc.captured.Add(1)
			vc.deliver(frame)
		}
	}()
}

func (vc *VideoCapture) capture(ctx context.Context) (EncodedVideo, bool) {
	img, err := vc.stream.Capture(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{
				"function": "VideoCapture.capture",
				"error":    err.Error(),
			}).Debug("Camera capture failed")
		}
		return EncodedVideo{}, false
	}

	scaled, err := vc.scaler.Scale(img, vc.cfg.Width, vc.cfg.Height)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "VideoCapture.capture",
			"error":    err.Error(),
		}).Debug("Frame scaling failed")
		return EncodedVideo{}, false
	}
	payload, err := vc.encoder.Encode(scaled)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "VideoCapture.capture",
			"error":    err.Error(),
		}).Debug("Frame encoding failed")
		return EncodedVideo{}, false
	}

	key := vc.forceKey.Swap(false) || vc.sinceKey >= vc.cfg.KeyframeInterval
	if key {
		vc.sinceKey = 1
	} else {
		vc.sinceKey++
	}
	return EncodedVideo{Payload: payload, Keyframe: key, Width: vc.cfg.Width, Height: vc.cfg.Height}, true
}
