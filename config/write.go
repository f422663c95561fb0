package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

type fileSchema struct {
	Audio   audioSchema   `toml:"audio" comment:"Outbound audio encoding"`
	Video   videoSchema   `toml:"video" comment:"Outbound video capture (JPEG frames)"`
	Playout playoutSchema `toml:"playout" comment:"Receive-side jitter buffering"`
}

type audioSchema struct {
	TargetSampleRate    int     `toml:"target_sample_rate" comment:"e.g. 8000, 16000, 24000"`
	FrameMs             int     `toml:"frame_ms" comment:"e.g. 20, 40, 50"`
	MaxFrameBytes       int     `toml:"max_frame_bytes" comment:"drop frames larger than this"`
	TalkingRMSThreshold float64 `toml:"talking_rms_threshold"`
	Codec               string  `toml:"codec" comment:"pcm16le or mulaw"`
	SilenceHoldFrames   int     `toml:"silence_hold_frames" comment:"silent frames still sent before suppression"`
}

type videoSchema struct {
	Width            int     `toml:"width"`
	Height           int     `toml:"height"`
	FPS              int     `toml:"fps" comment:"send rate (interval = 1000/fps)"`
	JPEGQuality      float64 `toml:"jpeg_quality" comment:"0.0 - 1.0"`
	MaxFrameBytes    int     `toml:"max_frame_bytes"`
	KeyframeInterval int     `toml:"keyframe_interval" comment:"send a keyframe every N video frames"`
}

type playoutSchema struct {
	JitterDepth int    `toml:"jitter_depth"`
	LeadTime    string `toml:"lead_time"`
	MaxLatency  string `toml:"max_latency"`
	TalkingHold string `toml:"talking_hold"`
	SyncCap     string `toml:"sync_cap"`
}

func toSchema(s Snapshot) fileSchema {
	return fileSchema{
		Audio: audioSchema{
			TargetSampleRate:    s.Audio.TargetSampleRate,
			FrameMs:             s.Audio.FrameMs,
			MaxFrameBytes:       s.Audio.MaxFrameBytes,
			TalkingRMSThreshold: s.Audio.TalkingRMSThreshold,
			Codec:               s.Audio.Codec,
			SilenceHoldFrames:   s.Audio.SilenceHoldFrames,
		},
		Video: videoSchema{
			Width:            s.Video.Width,
			Height:           s.Video.Height,
			FPS:              s.Video.FPS,
			JPEGQuality:      s.Video.JPEGQuality,
			MaxFrameBytes:    s.Video.MaxFrameBytes,
			KeyframeInterval: s.Video.KeyframeInterval,
		},
		Playout: playoutSchema{
			JitterDepth: s.Playout.JitterDepth,
			LeadTime:    s.Playout.LeadTime.String(),
			MaxLatency:  s.Playout.MaxLatency.String(),
			TalkingHold: s.Playout.TalkingHold.String(),
			SyncCap:     s.Playout.SyncCap.String(),
		},
	}
}

// Marshal renders s as a TOML document readable by Loader.
func Marshal(s Snapshot) ([]byte, error) {
	data, err := toml.Marshal(toSchema(s))
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// WriteDefault writes Default() to path unless the file already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
