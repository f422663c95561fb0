package av

import (
	"context"

	"github.com/google/uuid"
	"github.com/opd-ai/roomcall/config"
	"github.com/sirupsen/logrus"
)

// Session is the single active room call. It is owned by a Controller
// and only touched with the controller lock held.
type Session struct {
	id       uuid.UUID
	call     CallDescriptor
	identity string
	snap     config.Snapshot

	// Outbound sequence counters, the next value to assign.
	audioSeq int64
	videoSeq int64

	peers *PeerManager

	ctx    context.Context
	cancel context.CancelFunc

	mic      AudioStream
	pipeline *AudioPipeline

	camera   VideoStream
	capture  *VideoCapture
	videoGen uint64 // bumped on every camera (re)start

	closed bool
}

func newSession(parent context.Context, call CallDescriptor, identity string, snap config.Snapshot, sink AudioSink) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:       uuid.New(),
		call:     call,
		identity: identity,
		snap:     snap,
		peers:    NewPeerManager(identity, snap, sink),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID returns the session identity used to guard late continuations.
func (s *Session) ID() uuid.UUID { return s.id }

// Call returns the room call descriptor.
func (s *Session) Call() CallDescriptor { return s.call }

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:        s.id.String(),
		Call:      s.call,
		Identity:  s.identity,
		AudioSeq:  s.audioSeq,
		VideoSeq:  s.videoSeq,
		PeerCount: s.peers.Len(),
	}
}

func (s *Session) nextAudioSeq() int64 {
	seq := s.audioSeq
	s.audioSeq++
	return seq
}

func (s *Session) nextVideoSeq() int64 {
	seq := s.videoSeq
	s.videoSeq++
	return seq
}

// stopVideo halts capture and releases the camera.
func (s *Session) stopVideo() {
	if s.capture != nil {
		s.capture.Stop()
		s.capture = nil
	}
	if s.camera != nil {
		closeQuietly("camera", s.camera.Close)
		s.camera = nil
	}
}

// teardown releases every device and peer. It is idempotent.
func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()

	s.stopVideo()
	if s.mic != nil {
		closeQuietly("microphone", s.mic.Close)
		s.mic = nil
	}
	s.peers.Clear()
}

func closeQuietly(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "closeQuietly",
			"device":   what,
			"error":    err.Error(),
		}).Debug("Ignoring device release error")
	}
}
