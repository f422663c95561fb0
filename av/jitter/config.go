package jitter

import (
	"time"

	"github.com/opd-ai/roomcall/config"
)

const (
	// maxDrainPasses bounds the drain-then-resync loop of one Drain call.
	maxDrainPasses = 16

	// maxConcealFrames caps the silence synthesised for one gap.
	maxConcealFrames = 64

	// maxBacklog is the buffered frame count at which a stalled buffer
	// gives up waiting for the missing frame.
	maxBacklog = 64
)

// Config holds the receive-side tunables shared by both buffers.
type Config struct {
	// Depth is the prebuffer size in frames and the resync threshold.
	Depth int

	// LeadTime is the minimum distance between now and a scheduled start.
	LeadTime time.Duration

	// MaxLatency bounds how far ahead of now the playout clock may run.
	MaxLatency time.Duration

	// SyncCap bounds how far video may be held back waiting for audio.
	SyncCap time.Duration

	// SampleRate and FrameDuration size concealment frames until a real
	// frame has been seen.
	SampleRate    int
	FrameDuration time.Duration

	// VideoFPS maps video sequence numbers onto the audio timeline.
	VideoFPS int
}

// NewConfig derives a buffer configuration from a snapshot.
func NewConfig(s config.Snapshot) Config {
	return Config{
		Depth:         s.Playout.JitterDepth,
		LeadTime:      s.Playout.LeadTime,
		MaxLatency:    s.Playout.MaxLatency,
		SyncCap:       s.Playout.SyncCap,
		SampleRate:    s.Audio.TargetSampleRate,
		FrameDuration: s.Audio.FrameDuration(),
		VideoFPS:      s.Video.FPS,
	}
}

// DefaultConfig returns NewConfig(config.Default()).
func DefaultConfig() Config {
	return NewConfig(config.Default())
}

func (c Config) depth() int64 {
	if c.Depth < 1 {
		return 1
	}
	return int64(c.Depth)
}

func (c Config) videoInterval() time.Duration {
	if c.VideoFPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.VideoFPS)
}

// frameDuration returns the duration of n samples at rate.
func frameDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
