package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opd-ai/roomcall/av"
	"github.com/opd-ai/roomcall/av/audio"
	"github.com/opd-ai/roomcall/config"
)

// Message types relayed by the bridge.
const (
	TypeAudioFrame           = "audio_frame"
	TypeVideoFrame           = "video_frame"
	TypeParticipant          = "participant"
	TypeRoster               = "roster"
	TypeMediaSettings        = "media_settings"
	TypeMediaSettingsDeleted = "media_settings_deleted"

	TypeSendAudioFrame = "send_audio_frame"
	TypeSendVideoFrame = "send_video_frame"
)

type envelope struct {
	Type string `json:"type"`
}

// AudioFrameMessage is an audio frame event. Older bridges put the
// payload under pcm16le without a codec.
type AudioFrameMessage struct {
	Type       string  `json:"type"`
	RoomID     string  `json:"room_id"`
	From       string  `json:"from,omitempty"`
	Seq        int64   `json:"seq"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	RMS        float64 `json:"rms"`
	Codec      string  `json:"codec,omitempty"`
	Payload    []byte  `json:"payload,omitempty"`
	PCM16LE    []byte  `json:"pcm16le,omitempty"`
}

// VideoFrameMessage is a video frame event.
type VideoFrameMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	From     string `json:"from,omitempty"`
	Seq      int64  `json:"seq"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Keyframe bool   `json:"is_iframe"`
	JPEG     []byte `json:"jpeg"`
}

// ParticipantMessage is a membership change. State is a variant tag.
type ParticipantMessage struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"room_id"`
	Identity string          `json:"identity"`
	State    json.RawMessage `json:"state"`
}

// RosterMessage lists every joined participant of a room.
type RosterMessage struct {
	Type   string   `json:"type"`
	RoomID string   `json:"room_id"`
	Joined []string `json:"joined"`
}

// MediaSettingsMessage mirrors the media settings row. Fields the row
// does not carry keep their defaults.
type MediaSettingsMessage struct {
	Type string `json:"type"`

	AudioTargetSampleRate    int     `json:"audio_target_sample_rate"`
	AudioFrameMs             int     `json:"audio_frame_ms"`
	AudioMaxFrameBytes       int     `json:"audio_max_frame_bytes"`
	AudioTalkingRMSThreshold float64 `json:"audio_talking_rms_threshold"`
	AudioCodec               string  `json:"audio_codec,omitempty"`
	AudioSilenceHoldFrames   *int    `json:"audio_silence_hold_frames,omitempty"`

	VideoWidth          int     `json:"video_width"`
	VideoHeight         int     `json:"video_height"`
	VideoFPS            int     `json:"video_fps"`
	VideoJPEGQuality    float64 `json:"video_jpeg_quality"`
	VideoMaxFrameBytes  int     `json:"video_max_frame_bytes"`
	VideoIFrameInterval int     `json:"video_iframe_interval"`

	JitterDepth   int `json:"jitter_depth,omitempty"`
	LeadTimeMs    int `json:"lead_time_ms,omitempty"`
	MaxLatencyMs  int `json:"max_latency_ms,omitempty"`
	TalkingHoldMs int `json:"talking_hold_ms,omitempty"`
	SyncCapMs     int `json:"sync_cap_ms,omitempty"`
}

// Snapshot converts the row into a validated settings snapshot.
func (m MediaSettingsMessage) Snapshot() (config.Snapshot, error) {
	s := config.Default()

	s.Audio.TargetSampleRate = m.AudioTargetSampleRate
	s.Audio.FrameMs = m.AudioFrameMs
	s.Audio.MaxFrameBytes = m.AudioMaxFrameBytes
	s.Audio.TalkingRMSThreshold = m.AudioTalkingRMSThreshold
	if m.AudioCodec != "" {
		s.Audio.Codec = m.AudioCodec
	}
	if m.AudioSilenceHoldFrames != nil {
		s.Audio.SilenceHoldFrames = *m.AudioSilenceHoldFrames
	}

	s.Video = config.Video{
		Width:            m.VideoWidth,
		Height:           m.VideoHeight,
		FPS:              m.VideoFPS,
		JPEGQuality:      m.VideoJPEGQuality,
		MaxFrameBytes:    m.VideoMaxFrameBytes,
		KeyframeInterval: m.VideoIFrameInterval,
	}

	overrideInt(&s.Playout.JitterDepth, m.JitterDepth)
	overrideMs(&s.Playout.LeadTime, m.LeadTimeMs)
	overrideMs(&s.Playout.MaxLatency, m.MaxLatencyMs)
	overrideMs(&s.Playout.TalkingHold, m.TalkingHoldMs)
	overrideMs(&s.Playout.SyncCap, m.SyncCapMs)

	if err := s.Validate(); err != nil {
		return config.Snapshot{}, err
	}
	return s, nil
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func overrideMs(dst *time.Duration, ms int) {
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

// Frame converts the event into an inbound audio frame.
func (m AudioFrameMessage) Frame() (av.AudioFrame, error) {
	if m.Channels > 1 {
		return av.AudioFrame{}, fmt.Errorf("%d channels: %w", m.Channels, ErrMalformedMessage)
	}
	codec := audio.Codec(m.Codec)
	payload := m.Payload
	if len(payload) == 0 && len(m.PCM16LE) > 0 {
		payload = m.PCM16LE
		codec = audio.CodecPCM16LE
	}
	return av.AudioFrame{
		RoomID:     m.RoomID,
		From:       m.From,
		Seq:        m.Seq,
		SampleRate: m.SampleRate,
		RMS:        m.RMS,
		Codec:      codec,
		Payload:    payload,
	}, nil
}

// Frame converts the event into an inbound video frame.
func (m VideoFrameMessage) Frame() av.VideoFrame {
	return av.VideoFrame{
		RoomID:   m.RoomID,
		From:     m.From,
		Seq:      m.Seq,
		Keyframe: m.Keyframe,
		Width:    m.Width,
		Height:   m.Height,
		Payload:  m.JPEG,
	}
}

// Event converts the message into a participant event.
func (m ParticipantMessage) Event() (av.ParticipantEvent, error) {
	tag, err := decodeTag(m.State)
	if err != nil {
		return av.ParticipantEvent{}, err
	}
	state, err := av.ParseParticipantState(tag)
	if err != nil {
		return av.ParticipantEvent{}, err
	}
	return av.ParticipantEvent{RoomID: m.RoomID, Identity: m.Identity, State: state}, nil
}

func sendAudioMessage(f av.AudioFrame) AudioFrameMessage {
	return AudioFrameMessage{
		Type:       TypeSendAudioFrame,
		RoomID:     f.RoomID,
		Seq:        f.Seq,
		SampleRate: f.SampleRate,
		Channels:   1,
		RMS:        f.RMS,
		Codec:      string(f.Codec),
		Payload:    f.Payload,
	}
}

func sendVideoMessage(f av.VideoFrame) VideoFrameMessage {
	return VideoFrameMessage{
		Type:     TypeSendVideoFrame,
		RoomID:   f.RoomID,
		Seq:      f.Seq,
		Width:    f.Width,
		Height:   f.Height,
		Keyframe: f.Keyframe,
		JPEG:     f.Payload,
	}
}
