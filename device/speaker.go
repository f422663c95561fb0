package device

import (
	"fmt"
	"sync"
	"time"

	malgo "github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// Speaker plays the mixed audio of every peer on the default playback
// device. It implements av.AudioSink through its Mixer.
type Speaker struct {
	*Mixer

	rate int
	mctx *malgo.AllocatedContext
	dev  *malgo.Device
	once sync.Once
}

// NewSpeaker opens the default playback device as mono S16 at rate.
func NewSpeaker(rate int) (*Speaker, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logrus.WithFields(logrus.Fields{
			"function": "NewSpeaker",
			"source":   "malgo",
		}).Debug(message)
	})
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}

	s := &Speaker{Mixer: NewMixer(rate), rate: rate, mctx: mctx}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(rate)

	var buf []float32
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			if cap(buf) < int(frameCount) {
				buf = make([]float32, frameCount)
			}
			buf = buf[:frameCount]
			s.Fill(buf, time.Now())
			floatToBytes(buf, output)
		},
		Stop: func() {
			logrus.WithFields(logrus.Fields{
				"function": "Speaker",
			}).Debug("Playback device stopped")
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("start playback: %w", err)
	}
	s.dev = dev

	logrus.WithFields(logrus.Fields{
		"function":    "NewSpeaker",
		"sample_rate": rate,
	}).Info("Speaker opened")
	return s, nil
}

// Close stops playback and releases the device.
func (s *Speaker) Close() error {
	var err error
	s.once.Do(func() {
		if s.dev != nil {
			err = s.dev.Stop()
			s.dev.Uninit()
		}
		if s.mctx != nil {
			if uerr := s.mctx.Uninit(); uerr != nil && err == nil {
				err = uerr
			}
			s.mctx.Free()
		}
	})
	return err
}
