// Package config holds the media settings snapshot that drives a call.
//
// A Snapshot is an immutable value: the session controller swaps whole
// snapshots when a new one arrives and compares old and new to decide
// what has to be restarted. Snapshots come either from a TOML file
// (see Loader) or from the media-settings row published by the room
// database (see the gateway package).
package config

import (
	"math"
	"time"

	"github.com/opd-ai/roomcall/limits"
)

// Codec names accepted for outbound audio.
const (
	CodecPCM16LE = "pcm16le"
	CodecMuLaw   = "mulaw"
	CodecOpus    = "opus"
)

// Audio holds the outbound audio encoding settings.
type Audio struct {
	TargetSampleRate    int     // Hz, e.g. 8000, 16000, 24000
	FrameMs             int     // frame duration in milliseconds
	MaxFrameBytes       int     // encoded frames larger than this are dropped
	TalkingRMSThreshold float64 // receiver-side talking indicator threshold
	Codec               string  // pcm16le or mulaw
	SilenceHoldFrames   int     // consecutive silent frames sent before suppression
}

// FrameDuration returns the nominal frame duration.
func (a Audio) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

// FrameSamples returns the number of samples in one frame at rate.
func (a Audio) FrameSamples(rate int) int {
	return rate * a.FrameMs / 1000
}

// Video holds the outbound video capture settings.
type Video struct {
	Width            int
	Height           int
	FPS              int
	JPEGQuality      float64 // 0.0 - 1.0
	MaxFrameBytes    int
	KeyframeInterval int // send a keyframe every N video frames
}

// Interval returns the capture timer period.
func (v Video) Interval() time.Duration {
	return time.Second / time.Duration(v.FPS)
}

// Playout holds the receive-side jitter and scheduling tunables.
type Playout struct {
	JitterDepth int           // frames buffered before playback starts
	LeadTime    time.Duration // minimum distance between now and a scheduled start
	MaxLatency  time.Duration // playout clock reset threshold
	TalkingHold time.Duration // talking indicator debounce
	SyncCap     time.Duration // maximum lead a video frame may be held for
}

// Snapshot is one complete set of media settings.
type Snapshot struct {
	Audio   Audio
	Video   Video
	Playout Playout
}

// Default returns the settings the room database seeds its media row with.
func Default() Snapshot {
	return Snapshot{
		Audio: Audio{
			TargetSampleRate:    16000,
			FrameMs:             50,
			MaxFrameBytes:       64000,
			TalkingRMSThreshold: 0.02,
			Codec:               CodecPCM16LE,
			SilenceHoldFrames:   20,
		},
		Video: Video{
			Width:            320,
			Height:           180,
			FPS:              5,
			JPEGQuality:      0.55,
			MaxFrameBytes:    512000,
			KeyframeInterval: 15,
		},
		Playout: DefaultPlayout(),
	}
}

// DefaultPlayout returns the receive-side defaults.
func DefaultPlayout() Playout {
	return Playout{
		JitterDepth: 2,
		LeadTime:    20 * time.Millisecond,
		MaxLatency:  250 * time.Millisecond,
		TalkingHold: 250 * time.Millisecond,
		SyncCap:     time.Second,
	}
}

// Validate reports the first missing or out-of-range field.
func (s Snapshot) Validate() error {
	a, v, p := s.Audio, s.Video, s.Playout

	checks := []struct {
		field string
		ok    bool
	}{
		{"audio.target_sample_rate", a.TargetSampleRate >= 4000 && a.TargetSampleRate <= 192000},
		{"audio.frame_ms", a.FrameMs >= 5 && a.FrameMs <= 1000},
		{"audio.max_frame_bytes", a.MaxFrameBytes > 0 && a.MaxFrameBytes <= limits.MaxAudioFrame},
		{"audio.talking_rms_threshold", finite(a.TalkingRMSThreshold) && a.TalkingRMSThreshold >= 0},
		{"audio.codec", a.Codec == CodecPCM16LE || a.Codec == CodecMuLaw},
		{"audio.silence_hold_frames", a.SilenceHoldFrames >= 0},
		{"video.width", v.Width > 0 && v.Width <= 4096},
		{"video.height", v.Height > 0 && v.Height <= 4096},
		{"video.fps", v.FPS > 0 && v.FPS <= 60},
		{"video.jpeg_quality", finite(v.JPEGQuality) && v.JPEGQuality > 0 && v.JPEGQuality <= 1},
		{"video.max_frame_bytes", v.MaxFrameBytes > 0 && v.MaxFrameBytes <= limits.MaxVideoFrame},
		{"video.keyframe_interval", v.KeyframeInterval > 0},
		{"playout.jitter_depth", p.JitterDepth > 0},
		{"playout.lead_time", p.LeadTime > 0},
		{"playout.max_latency", p.MaxLatency > p.LeadTime},
		{"playout.talking_hold", p.TalkingHold > 0},
		{"playout.sync_cap", p.SyncCap > 0},
	}
	for _, c := range checks {
		if !c.ok {
			return &ValidationError{Field: c.field}
		}
	}
	return nil
}

// VideoChanged reports whether any field that requires restarting video
// capture differs between s and other.
func (s Snapshot) VideoChanged(other Snapshot) bool {
	return s.Video != other.Video
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
