// Package av is the per-peer real-time media core of a room call.
//
// A Controller owns at most one Session. The session captures local
// microphone and camera input, encodes it and hands numbered frames to a
// FrameSender. For every remote participant it keeps a Peer with its own
// audio and video jitter buffers, talking indicator and display
// resource, and schedules received audio onto an AudioSink.
//
// # Architecture
//
//   - Controller: lifecycle (Idle, Starting, Active, Reconfiguring,
//     Stopping), configuration hot-swap and inbound frame routing
//   - PeerManager: keeps one Peer per joined participant, excluding self
//   - AudioPipeline: framing, anti-alias filter, resampling, silence
//     suppression and encoding of captured audio
//   - VideoCapture: fixed-interval camera capture with keyframe cadence
//   - StatsReporter: periodic per-peer receive quality reports
//
// # Sub-Packages
//
//   - av/audio: PCM and μ-law codecs, Opus decoding, resampling, framing
//   - av/video: image scaling and JPEG frame codec
//   - av/jitter: reorder buffers, playout clock and voice activity
//
// # Usage
//
//	ctrl, err := av.NewController(av.Options{
//	    Sender: gw,
//	    Audio:  mic,
//	    Video:  camera,
//	    Sink:   speaker,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := ctrl.ApplyConfig(config.Default()); err != nil {
//	    return err
//	}
//	call := av.CallDescriptor{RoomID: "room-1", CallType: av.CallVideo}
//	if err := ctrl.StartSession(ctx, call, joined, "alice"); err != nil {
//	    return err
//	}
//	defer ctrl.StopSession()
//	go ctrl.Run(ctx)
//
// Inbound frames are delivered with HandleAudioFrame and
// HandleVideoFrame. Frames that cannot be used are dropped; the returned
// error only classifies the reason and never affects the session.
//
// # Thread Safety
//
// All Controller methods are safe for concurrent use. Device callbacks
// that complete after the session they were started for has been
// stopped or replaced are discarded.
package av
