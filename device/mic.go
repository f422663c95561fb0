package device

import (
	"context"
	"fmt"
	"sync"

	malgo "github.com/gen2brain/malgo"
	"github.com/opd-ai/roomcall/av"
	"github.com/sirupsen/logrus"
)

// Microphone opens the default capture device as mono S16 at SampleRate.
type Microphone struct {
	SampleRate int
}

// NewMicrophone returns a microphone capturing at rate.
func NewMicrophone(rate int) *Microphone {
	return &Microphone{SampleRate: rate}
}

// OpenMicrophone implements av.AudioDevice.
func (m *Microphone) OpenMicrophone(ctx context.Context) (av.AudioStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logrus.WithFields(logrus.Fields{
			"function": "Microphone.OpenMicrophone",
			"source":   "malgo",
		}).Debug(message)
	})
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}

	s := &micStream{
		rate:    m.SampleRate,
		samples: make(chan []float32, 16),
		mctx:    mctx,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.SampleRate)

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("start capture: %w", err)
	}
	s.dev = dev

	logrus.WithFields(logrus.Fields{
		"function":    "Microphone.OpenMicrophone",
		"sample_rate": m.SampleRate,
	}).Info("Microphone opened")
	return s, nil
}

type micStream struct {
	rate    int
	samples chan []float32

	mctx *malgo.AllocatedContext
	dev  *malgo.Device

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

func (s *micStream) onData(_, input []byte, _ uint32) {
	if len(input) == 0 {
		return
	}
	block := bytesToFloat(input)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.samples <- block:
	default:
		s.dropped++
	}
}

func (s *micStream) SampleRate() int { return s.rate }

func (s *micStream) Samples() <-chan []float32 { return s.samples }

func (s *micStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := s.dropped
	s.mu.Unlock()

	var err error
	if s.dev != nil {
		err = s.dev.Stop()
		s.dev.Uninit()
	}
	if uerr := s.mctx.Uninit(); uerr != nil && err == nil {
		err = uerr
	}
	s.mctx.Free()
	close(s.samples)

	logrus.WithFields(logrus.Fields{
		"function": "micStream.Close",
		"dropped":  dropped,
	}).Info("Microphone closed")
	return err
}
