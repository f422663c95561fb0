package av

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/opd-ai/roomcall/av/audio"
	"github.com/opd-ai/roomcall/av/jitter"
	"github.com/opd-ai/roomcall/av/video"
	"github.com/opd-ai/roomcall/config"
	"github.com/sirupsen/logrus"
)

// IterationInterval is how often Run expires talking indicators and
// re-drains held video.
const IterationInterval = 20 * time.Millisecond

// Options wires a Controller to its collaborators.
type Options struct {
	// Sender publishes outbound frames. Required.
	Sender FrameSender

	// Audio opens the microphone. Required.
	Audio AudioDevice

	// Video opens the camera. Video calls fail to start without it.
	Video VideoDevice

	// Sink plays received audio. Defaults to discarding it.
	Sink AudioSink

	// Resources builds display handles. Defaults to DecodingFactory.
	Resources ResourceFactory

	// Observer receives peer state changes.
	Observer Observer

	// Time defaults to DefaultTimeProvider.
	Time TimeProvider
}

// Controller owns the single active call session. All buffer mutation
// and scheduling happens with mu held; device callbacks re-enter through
// methods that first check the session identity.
type Controller struct {
	mu sync.Mutex

	sender    FrameSender
	audioDev  AudioDevice
	videoDev  VideoDevice
	sink      AudioSink
	resources ResourceFactory
	observer  Observer
	tp        TimeProvider

	state   State
	cfg     *config.Snapshot
	session *Session
}

// NewController creates an idle controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Sender == nil {
		return nil, errors.New("frame sender cannot be nil")
	}
	if opts.Audio == nil {
		return nil, errors.New("audio device cannot be nil")
	}

	c := &Controller{
		sender:    opts.Sender,
		audioDev:  opts.Audio,
		videoDev:  opts.Video,
		sink:      opts.Sink,
		resources: opts.Resources,
		observer:  opts.Observer,
		tp:        opts.Time,
		state:     StateIdle,
	}
	if c.sink == nil {
		c.sink = discardSink{}
	}
	if c.resources == nil {
		c.resources = DecodingFactory{}
	}
	if c.tp == nil {
		c.tp = DefaultTimeProvider{}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewController",
		"has_video": c.videoDev != nil,
	}).Debug("Controller created")
	return c, nil
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Configuration returns the current media settings.
func (c *Controller) Configuration() (config.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		return config.Snapshot{}, false
	}
	return *c.cfg, true
}

// ApplyConfig installs a new settings snapshot. During a call audio
// settings apply to the next frame; a change to video settings restarts
// camera capture.
func (c *Controller) ApplyConfig(snap config.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = &snap
	s := c.session
	if s == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.ApplyConfig",
		}).Debug("Configuration stored")
		return nil
	}

	videoChanged := s.snap.VideoChanged(snap)
	s.snap = snap
	s.peers.ApplyConfig(snap)
	if s.pipeline != nil {
		if err := s.pipeline.Reconfigure(snap.Audio); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.ApplyConfig",
				"error":    err.Error(),
			}).Warn("Audio pipeline reconfiguration failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Controller.ApplyConfig",
		"session":       s.id.String(),
		"video_changed": videoChanged,
	}).Info("Configuration applied to active session")

	if c.state != StateStarting && s.call.CallType == CallVideo && videoChanged {
		c.restartVideoLocked(s)
	}
	return nil
}

// ConfigLost drops the settings. An active session is stopped: there is
// no degraded mode.
func (c *Controller) ConfigLost(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = nil
	fields := logrus.Fields{"function": "Controller.ConfigLost"}
	if reason != nil {
		fields["error"] = reason.Error()
	}
	if c.session != nil {
		logrus.WithFields(fields).Warn("Configuration lost, stopping session")
		c.stopLocked("configuration lost")
		return
	}
	logrus.WithFields(fields).Info("Configuration lost")
}

// HandleMediaSettings applies settings received from the room backend.
func (c *Controller) HandleMediaSettings(snap config.Snapshot) error {
	return c.ApplyConfig(snap)
}

// HandleMediaSettingsDeleted reacts to the settings row disappearing.
func (c *Controller) HandleMediaSettingsDeleted() {
	c.ConfigLost(config.ErrUnavailable)
}

// StartSession joins a room call. It fails without changing state when
// no configuration is available. Starting the call that is already
// running is a no-op; starting a different one stops the current one
// first. Device errors are returned as *DeviceError.
func (c *Controller) StartSession(ctx context.Context, call CallDescriptor, initialPeers []string, identity string) error {
	if err := call.Validate(); err != nil {
		return err
	}
	if identity == "" {
		return ErrInvalidIdentity
	}

	c.mu.Lock()
	if c.cfg == nil {
		c.mu.Unlock()
		return ErrNoConfiguration
	}
	if cur := c.session; cur != nil {
		if cur.call == call && cur.identity == identity {
			c.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "Controller.StartSession",
				"room":     call.RoomID,
			}).Debug("Session already running")
			return nil
		}
		c.stopLocked("superseded by a new call")
	}

	s := newSession(context.Background(), call, identity, *c.cfg, c.sink)
	s.peers.onRemove = c.notifyRemovedLocked
	snap := s.snap
	c.session = s
	c.state = StateStarting
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Controller.StartSession",
		"session":   s.id.String(),
		"room":      call.RoomID,
		"call_type": call.CallType.String(),
	}).Info("Starting session")

	mic, err := c.audioDev.OpenMicrophone(ctx)
	if err != nil {
		return c.abortStart(s, &DeviceError{Device: "microphone", Err: err})
	}

	var cam VideoStream
	if call.CallType == CallVideo {
		if c.videoDev == nil {
			err = errors.New("no camera configured")
		} else {
			cam, err = c.videoDev.OpenCamera(ctx, snap.Video.Width, snap.Video.Height)
		}
		if err != nil {
			closeQuietly("microphone", mic.Close)
			return c.abortStart(s, &DeviceError{Device: "camera", Err: err})
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != s {
		closeQuietly("microphone", mic.Close)
		if cam != nil {
			closeQuietly("camera", cam.Close)
		}
		return ErrSessionCancelled
	}

	pipeline, err := NewAudioPipeline(mic.SampleRate(), s.snap.Audio)
	if err != nil {
		closeQuietly("microphone", mic.Close)
		if cam != nil {
			closeQuietly("camera", cam.Close)
		}
		s.teardown()
		c.session = nil
		c.state = StateIdle
		return &DeviceError{Device: "microphone", Err: err}
	}

	s.mic = mic
	s.pipeline = pipeline
	go c.pumpAudio(s, mic)

	if cam != nil {
		s.camera = cam
		c.startCaptureLocked(s)
	}

	for _, id := range initialPeers {
		c.addPeerLocked(s, id)
	}
	c.state = StateActive

	// Settings applied while starting reach the scaler but not a camera
	// already opened at the old size.
	if cam != nil && (s.snap.Video.Width != snap.Video.Width || s.snap.Video.Height != snap.Video.Height) {
		c.restartVideoLocked(s)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Controller.StartSession",
		"session":     s.id.String(),
		"peers":       s.peers.Len(),
		"sample_rate": mic.SampleRate(),
	}).Info("Session active")
	return nil
}

func (c *Controller) abortStart(s *Session, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == s {
		s.teardown()
		c.session = nil
		c.state = StateIdle
	}
	logrus.WithFields(logrus.Fields{
		"function": "Controller.StartSession",
		"session":  s.id.String(),
		"error":    err.Error(),
	}).Warn("Session start failed")
	return err
}

// StopSession leaves the current call. It is idempotent and never fails.
func (c *Controller) StopSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked("leave")
}

func (c *Controller) stopLocked(reason string) {
	s := c.session
	if s == nil {
		c.state = StateIdle
		return
	}

	c.state = StateStopping
	s.teardown()
	c.session = nil
	c.state = StateIdle

	logrus.WithFields(logrus.Fields{
		"function": "Controller.stopLocked",
		"session":  s.id.String(),
		"reason":   reason,
	}).Info("Session stopped")
}

// Session describes the active session.
func (c *Controller) Session() (SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return SessionInfo{}, false
	}
	return c.session.info(), true
}

// LocalMedia returns the session's capture streams for self-preview.
func (c *Controller) LocalMedia() (LocalMedia, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil || s.mic == nil {
		return LocalMedia{}, false
	}
	return LocalMedia{Microphone: s.mic, Camera: s.camera}, true
}

// AddPeer creates a playback context for a participant. Adding a known
// peer is a no-op.
func (c *Controller) AddPeer(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return ErrNoSession
	}
	if id == s.identity {
		return ErrSelfPeer
	}
	if id == "" {
		return fmt.Errorf("empty peer id: %w", ErrInvalidEvent)
	}
	c.addPeerLocked(s, id)
	return nil
}

// RemovePeer tears down a participant's playback context.
func (c *Controller) RemovePeer(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return ErrNoSession
	}
	if !s.peers.Remove(id) {
		return ErrUnknownPeer
	}
	return nil
}

// ReconcilePeers makes the peer set equal the joined participants of
// room, excluding self. A roster for another room changes nothing.
func (c *Controller) ReconcilePeers(room string, joined []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return ErrNoSession
	}
	if room != s.call.RoomID {
		return ErrWrongRoom
	}
	added, _ := s.peers.Reconcile(joined)
	for _, id := range added {
		if p, ok := s.peers.Get(id); ok {
			c.notifyLocked(p)
		}
	}
	return nil
}

// HandleParticipant applies a membership change for the session room.
func (c *Controller) HandleParticipant(ev ParticipantEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return ErrNoSession
	}
	if ev.RoomID != s.call.RoomID {
		return ErrWrongRoom
	}
	if ev.Identity == s.identity {
		return nil
	}

	switch ev.State {
	case ParticipantJoined:
		c.addPeerLocked(s, ev.Identity)
	case ParticipantInvited, ParticipantLeft:
		s.peers.Remove(ev.Identity)
	default:
		return fmt.Errorf("participant state %d: %w", ev.State, ErrInvalidEvent)
	}
	return nil
}

// SetPeerFlags records a peer's self-reported media toggles.
func (c *Controller) SetPeerFlags(id string, flags MediaFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return ErrNoSession
	}
	p, ok := s.peers.Get(id)
	if !ok {
		return ErrUnknownPeer
	}
	if p.flags != flags {
		p.flags = flags
		c.notifyLocked(p)
	}
	return nil
}

// Peers returns the observable state of every peer, sorted by id.
func (c *Controller) Peers() []PeerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return nil
	}
	out := make([]PeerState, 0, s.peers.Len())
	for _, id := range s.peers.IDs() {
		p, _ := s.peers.Get(id)
		out = append(out, p.state())
	}
	return out
}

// Peer returns the observable state of one peer.
func (c *Controller) Peer(id string) (PeerState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return PeerState{}, false
	}
	p, ok := c.session.peers.Get(id)
	if !ok {
		return PeerState{}, false
	}
	return p.state(), true
}

// route finds the peer an inbound frame belongs to.
func (c *Controller) route(room, from string) (*Session, *Peer, error) {
	s := c.session
	if s == nil || (c.state != StateActive && c.state != StateReconfiguring) {
		return nil, nil, ErrNoSession
	}
	if room != s.call.RoomID {
		return nil, nil, ErrWrongRoom
	}
	if from == s.identity {
		return nil, nil, ErrSelfPeer
	}
	p, ok := s.peers.Get(from)
	if !ok {
		return nil, nil, ErrUnknownPeer
	}
	return s, p, nil
}

// HandleAudioFrame decodes, buffers and schedules an inbound audio
// frame. Frames that cannot be used are dropped; the returned error only
// says why.
func (c *Controller) HandleAudioFrame(f AudioFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, p, err := c.route(f.RoomID, f.From)
	if err != nil {
		return dropped("audio", f.From, f.Seq, err)
	}

	now := c.tp.Now()
	p.stats.LastFrame = now

	if limit := s.snap.Audio.MaxFrameBytes; limit > 0 && len(f.Payload) > limit {
		p.stats.Dropped++
		return dropped("audio", f.From, f.Seq, ErrFrameTooLarge)
	}
	dec, err := p.decoder(f.Codec)
	if err != nil {
		p.stats.Dropped++
		return dropped("audio", f.From, f.Seq, err)
	}
	samples, rate, err := dec.Decode(f.Payload, f.SampleRate)
	if err != nil {
		p.stats.Dropped++
		return dropped("audio", f.From, f.Seq, err)
	}
	if !p.audio.Submit(f.Seq, samples, rate) {
		return dropped("audio", f.From, f.Seq, ErrFrameDiscarded)
	}

	rms := f.RMS
	if math.IsNaN(rms) || math.IsInf(rms, 0) || rms < 0 {
		rms = audio.RMS(samples)
	}
	if p.activity.Observe(rms, now) {
		c.notifyLocked(p)
	}

	for _, sf := range p.audio.Drain(now) {
		c.sink.Schedule(p.id, sf)
	}
	return nil
}

// HandleVideoFrame buffers an inbound video frame and displays the
// freshest releasable one.
func (c *Controller) HandleVideoFrame(f VideoFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, p, err := c.route(f.RoomID, f.From)
	if err != nil {
		return dropped("video", f.From, f.Seq, err)
	}

	now := c.tp.Now()
	p.stats.LastFrame = now

	if s.call.CallType != CallVideo {
		return dropped("video", f.From, f.Seq, ErrFrameDiscarded)
	}
	if limit := s.snap.Video.MaxFrameBytes; limit > 0 && len(f.Payload) > limit {
		p.stats.Dropped++
		return dropped("video", f.From, f.Seq, ErrFrameTooLarge)
	}
	if !video.IsJPEG(f.Payload) {
		p.stats.Dropped++
		return dropped("video", f.From, f.Seq, video.ErrMalformedFrame)
	}
	if !p.video.Submit(f.Seq, f.Payload, f.Keyframe) {
		return dropped("video", f.From, f.Seq, ErrFrameDiscarded)
	}

	c.drainVideoLocked(p, now)
	return nil
}

func (c *Controller) drainVideoLocked(p *Peer, now time.Time) {
	frame, ok := p.video.Drain(p.audio.Position(now))
	if !ok {
		return
	}
	res, err := c.resources.NewResource(p.id, frame)
	if err != nil {
		p.stats.Dropped++
		logrus.WithFields(logrus.Fields{
			"function": "Controller.drainVideoLocked",
			"peer":     p.id,
			"seq":      frame.Seq,
			"error":    err.Error(),
		}).Debug("Video frame not displayable")
		return
	}
	p.display.Replace(res)
	c.notifyLocked(p)
}

// Iterate expires talking indicators and releases video held for audio
// sync. Run calls it every IterationInterval.
func (c *Controller) Iterate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || (c.state != StateActive && c.state != StateReconfiguring) {
		return
	}
	now := c.tp.Now()
	for _, id := range s.peers.IDs() {
		p, _ := s.peers.Get(id)
		if p.activity.Expire(now) {
			c.notifyLocked(p)
		}
		if p.video.Buffered() > 0 {
			c.drainVideoLocked(p, now)
		}
	}
}

// Run calls Iterate until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := c.tp.NewTicker(IterationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.Iterate()
		}
	}
}

func (c *Controller) addPeerLocked(s *Session, id string) {
	if p, added := s.peers.Add(id); added {
		c.notifyLocked(p)
	}
}

func (c *Controller) notifyLocked(p *Peer) {
	if c.observer != nil {
		c.observer(p.state())
	}
}

func (c *Controller) notifyRemovedLocked(p *Peer) {
	if c.observer != nil {
		st := p.state()
		st.Removed = true
		st.Video = nil
		c.observer(st)
	}
}

// pumpAudio moves microphone blocks into the session until the stream
// ends or the session stops.
func (c *Controller) pumpAudio(s *Session, mic AudioStream) {
	samples := mic.Samples()
	for {
		select {
		case <-s.ctx.Done():
			return
		case block, ok := <-samples:
			if !ok {
				return
			}
			c.pushAudio(s, block)
		}
	}
}

func (c *Controller) pushAudio(s *Session, block []float32) {
	c.mu.Lock()
	if c.session != s || s.closed || s.pipeline == nil {
		c.mu.Unlock()
		return
	}

	encoded := s.pipeline.Push(block)
	frames := make([]AudioFrame, 0, len(encoded))
	for _, e := range encoded {
		frames = append(frames, AudioFrame{
			RoomID:     s.call.RoomID,
			From:       s.identity,
			Seq:        s.nextAudioSeq(),
			SampleRate: e.SampleRate,
			RMS:        e.RMS,
			Codec:      e.Codec,
			Payload:    e.Payload,
		})
	}
	ctx := s.ctx
	c.mu.Unlock()

	for _, f := range frames {
		if err := c.sender.SendAudio(ctx, f); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.pushAudio",
				"seq":      f.Seq,
				"error":    err.Error(),
			}).Debug("Audio frame not sent")
		}
	}
}

func (c *Controller) startCaptureLocked(s *Session) {
	gen := s.videoGen
	s.capture = NewVideoCapture(s.camera, s.snap.Video, c.tp, func(e EncodedVideo) {
		c.deliverVideo(s, gen, e)
	})
	s.capture.Start(s.ctx)
}

// restartVideoLocked tears video capture down and re-acquires the camera
// with the session's current settings in the background.
func (c *Controller) restartVideoLocked(s *Session) {
	s.stopVideo()
	s.videoGen++
	gen := s.videoGen
	cfg := s.snap.Video
	c.state = StateReconfiguring

	logrus.WithFields(logrus.Fields{
		"function": "Controller.restartVideoLocked",
		"session":  s.id.String(),
		"size":     fmt.Sprintf("%dx%d@%d", cfg.Width, cfg.Height, cfg.FPS),
	}).Info("Restarting video capture")

	if c.videoDev == nil {
		c.state = StateActive
		return
	}

	go func() {
		cam, err := c.videoDev.OpenCamera(s.ctx, cfg.Width, cfg.Height)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.session != s || s.closed || s.videoGen != gen {
			if cam != nil {
				closeQuietly("camera", cam.Close)
			}
			return
		}
		c.state = StateActive
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.restartVideoLocked",
				"session":  s.id.String(),
				"error":    err.Error(),
			}).Warn("Camera re-acquisition failed, video stays off")
			return
		}
		s.camera = cam
		c.startCaptureLocked(s)
	}()
}

func (c *Controller) deliverVideo(s *Session, gen uint64, e EncodedVideo) {
	c.mu.Lock()
	if c.session != s || s.closed || s.videoGen != gen {
		c.mu.Unlock()
		return
	}
	if limit := s.snap.Video.MaxFrameBytes; limit > 0 && len(e.Payload) > limit {
		if e.Keyframe && s.capture != nil {
			s.capture.ForceKeyframe()
		}
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Controller.deliverVideo",
			"size":     len(e.Payload),
			"limit":    limit,
		}).Debug("Video frame too large, dropped")
		return
	}

	frame := VideoFrame{
		RoomID:   s.call.RoomID,
		From:     s.identity,
		Seq:      s.nextVideoSeq(),
		Keyframe: e.Keyframe,
		Width:    e.Width,
		Height:   e.Height,
		Payload:  e.Payload,
	}
	ctx := s.ctx
	c.mu.Unlock()

	if err := c.sender.SendVideo(ctx, frame); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.deliverVideo",
			"seq":      frame.Seq,
			"error":    err.Error(),
		}).Debug("Video frame not sent")
	}
}

func dropped(kind, from string, seq int64, err error) error {
	logrus.WithFields(logrus.Fields{
		"function": "Controller.Handle",
		"kind":     kind,
		"from":     from,
		"seq":      seq,
		"reason":   err.Error(),
	}).Trace("Inbound frame dropped")
	return err
}

type discardSink struct{}

func (discardSink) Schedule(string, jitter.ScheduledFrame) {}
func (discardSink) ClosePeer(string) error               { return nil }
