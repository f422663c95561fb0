package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const configType = "toml"

// Loader reads a Snapshot from a TOML file and optionally watches it.
type Loader struct {
	v    *viper.Viper
	path string

	mu      sync.Mutex
	current *Snapshot
}

// NewLoader creates a loader for the file at path. Keys missing from the
// file fall back to Default(); present keys must validate.
func NewLoader(path string, v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	v.SetConfigFile(path)
	v.SetConfigType(configType)
	registerDefaults(v, Default())
	return &Loader{v: v, path: path}
}

func registerDefaults(v *viper.Viper, d Snapshot) {
	v.SetDefault("audio.target_sample_rate", d.Audio.TargetSampleRate)
	v.SetDefault("audio.frame_ms", d.Audio.FrameMs)
	v.SetDefault("audio.max_frame_bytes", d.Audio.MaxFrameBytes)
	v.SetDefault("audio.talking_rms_threshold", d.Audio.TalkingRMSThreshold)
	v.SetDefault("audio.codec", d.Audio.Codec)
	v.SetDefault("audio.silence_hold_frames", d.Audio.SilenceHoldFrames)

	v.SetDefault("video.width", d.Video.Width)
	v.SetDefault("video.height", d.Video.Height)
	v.SetDefault("video.fps", d.Video.FPS)
	v.SetDefault("video.jpeg_quality", d.Video.JPEGQuality)
	v.SetDefault("video.max_frame_bytes", d.Video.MaxFrameBytes)
	v.SetDefault("video.keyframe_interval", d.Video.KeyframeInterval)

	v.SetDefault("playout.jitter_depth", d.Playout.JitterDepth)
	v.SetDefault("playout.lead_time", d.Playout.LeadTime)
	v.SetDefault("playout.max_latency", d.Playout.MaxLatency)
	v.SetDefault("playout.talking_hold", d.Playout.TalkingHold)
	v.SetDefault("playout.sync_cap", d.Playout.SyncCap)
}

// Load reads and validates the file.
func (l *Loader) Load() (Snapshot, error) {
	if err := l.v.ReadInConfig(); err != nil {
		return Snapshot{}, fmt.Errorf("read config %s: %w", l.path, err)
	}
	snap, err := l.decode()
	if err != nil {
		return Snapshot{}, err
	}

	l.mu.Lock()
	l.current = &snap
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Loader.Load",
		"path":        l.path,
		"sample_rate": snap.Audio.TargetSampleRate,
		"frame_ms":    snap.Audio.FrameMs,
		"video":       fmt.Sprintf("%dx%d@%d", snap.Video.Width, snap.Video.Height, snap.Video.FPS),
	}).Info("Configuration loaded")

	return snap, nil
}

func (l *Loader) decode() (Snapshot, error) {
	v := l.v
	snap := Snapshot{
		Audio: Audio{
			TargetSampleRate:    v.GetInt("audio.target_sample_rate"),
			FrameMs:             v.GetInt("audio.frame_ms"),
			MaxFrameBytes:       v.GetInt("audio.max_frame_bytes"),
			TalkingRMSThreshold: v.GetFloat64("audio.talking_rms_threshold"),
			Codec:               v.GetString("audio.codec"),
			SilenceHoldFrames:   v.GetInt("audio.silence_hold_frames"),
		},
		Video: Video{
			Width:            v.GetInt("video.width"),
			Height:           v.GetInt("video.height"),
			FPS:              v.GetInt("video.fps"),
			JPEGQuality:      v.GetFloat64("video.jpeg_quality"),
			MaxFrameBytes:    v.GetInt("video.max_frame_bytes"),
			KeyframeInterval: v.GetInt("video.keyframe_interval"),
		},
		Playout: Playout{
			JitterDepth: v.GetInt("playout.jitter_depth"),
			LeadTime:    v.GetDuration("playout.lead_time"),
			MaxLatency:  v.GetDuration("playout.max_latency"),
			TalkingHold: v.GetDuration("playout.talking_hold"),
			SyncCap:     v.GetDuration("playout.sync_cap"),
		},
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Current returns the last successfully loaded snapshot.
func (l *Loader) Current() (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return Snapshot{}, false
	}
	return *l.current, true
}

// Watch hot-reloads the file. onChange receives every valid new
// snapshot; onLost is called when the file disappears or a reload does
// not validate. Both run on viper's watcher goroutine.
func (l *Loader) Watch(onChange func(Snapshot), onLost func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
			l.lost(onLost, ErrUnavailable)
			return
		}
		if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
			l.lost(onLost, ErrUnavailable)
			return
		}
		snap, err := l.decode()
		if err != nil {
			l.lost(onLost, err)
			return
		}

		l.mu.Lock()
		l.current = &snap
		l.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "Loader.Watch",
			"path":     l.path,
			"op":       e.Op.String(),
		}).Info("Configuration reloaded")
		onChange(snap)
	})
	l.v.WatchConfig()
}

func (l *Loader) lost(onLost func(error), err error) {
	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Loader.Watch",
		"path":     l.path,
		"error":    err.Error(),
	}).Warn("Configuration became unavailable")
	onLost(err)
}
