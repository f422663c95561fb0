package av

import (
	"fmt"
	"strings"

	"github.com/opd-ai/roomcall/av/audio"
)

// CallType is the media a room call carries.
type CallType uint8

const (
	// CallVoice carries audio only.
	CallVoice CallType = iota
	// CallVideo carries audio and camera video.
	CallVideo
)

// String returns the string representation of CallType.
func (c CallType) String() string {
	switch c {
	case CallVoice:
		return "Voice"
	case CallVideo:
		return "Video"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// ParseCallType decodes a normalised call type tag.
func ParseCallType(tag string) (CallType, error) {
	switch strings.ToLower(tag) {
	case "voice":
		return CallVoice, nil
	case "video":
		return CallVideo, nil
	default:
		return 0, fmt.Errorf("call type %q: %w", tag, ErrInvalidDescriptor)
	}
}

// ParticipantState is a participant's membership in a room call.
type ParticipantState uint8

const (
	// ParticipantInvited has been invited but has not joined.
	ParticipantInvited ParticipantState = iota
	// ParticipantJoined takes part in the call.
	ParticipantJoined
	// ParticipantLeft has left the call.
	ParticipantLeft
)

// String returns the string representation of ParticipantState.
func (p ParticipantState) String() string {
	switch p {
	case ParticipantInvited:
		return "Invited"
	case ParticipantJoined:
		return "Joined"
	case ParticipantLeft:
		return "Left"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// ParseParticipantState decodes a normalised participant state tag.
func ParseParticipantState(tag string) (ParticipantState, error) {
	switch strings.ToLower(tag) {
	case "invited":
		return ParticipantInvited, nil
	case "joined":
		return ParticipantJoined, nil
	case "left":
		return ParticipantLeft, nil
	default:
		return 0, fmt.Errorf("participant state %q: %w", tag, ErrInvalidEvent)
	}
}

// State is the controller's session lifecycle state.
type State uint8

const (
	// StateIdle has no session.
	StateIdle State = iota
	// StateStarting is acquiring local capture devices.
	StateStarting
	// StateActive is exchanging media.
	StateActive
	// StateReconfiguring is restarting video capture after a settings change.
	StateReconfiguring
	// StateStopping is tearing the session down.
	StateStopping
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateActive:
		return "Active"
	case StateReconfiguring:
		return "Reconfiguring"
	case StateStopping:
		return "Stopping"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// CallDescriptor identifies a room call.
type CallDescriptor struct {
	RoomID   string
	CallType CallType
}

// Validate checks that the descriptor names a room and a known call type.
func (d CallDescriptor) Validate() error {
	if d.RoomID == "" {
		return fmt.Errorf("empty room id: %w", ErrInvalidDescriptor)
	}
	if d.CallType != CallVoice && d.CallType != CallVideo {
		return fmt.Errorf("call type %d: %w", d.CallType, ErrInvalidDescriptor)
	}
	return nil
}

// AudioFrame is one encoded audio frame, inbound or outbound.
type AudioFrame struct {
	RoomID     string
	From       string
	Seq        int64
	SampleRate int
	RMS        float64
	Codec      audio.Codec
	Payload    []byte
}

// VideoFrame is one JPEG video frame, inbound or outbound.
type VideoFrame struct {
	RoomID   string
	From     string
	Seq      int64
	Keyframe bool
	Width    int
	Height   int
	Payload  []byte
}

// ParticipantEvent reports a membership change in a room.
type ParticipantEvent struct {
	RoomID   string
	Identity string
	State    ParticipantState
}

// MediaFlags are a peer's self-reported media toggles. The controller
// passes them through without acting on them.
type MediaFlags struct {
	Muted     bool
	CameraOff bool
	Deafened  bool
}

// PeerState is the observable state of one remote participant.
type PeerState struct {
	ID      string
	Talking bool

	// Video is the latest decodable frame, nil before the first one.
	// It is owned by the controller and valid until the next PeerState
	// for the same peer.
	Video Resource

	Flags MediaFlags
	Stats PeerStats

	// Removed is set on the final notification for a departed peer.
	Removed bool
}

// SessionInfo describes the active session.
type SessionInfo struct {
	ID        string
	Call      CallDescriptor
	Identity  string
	AudioSeq  int64
	VideoSeq  int64
	PeerCount int
}
