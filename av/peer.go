package av

import (
	"github.com/opd-ai/roomcall/av/audio"
	"github.com/opd-ai/roomcall/av/jitter"
	"github.com/opd-ai/roomcall/config"
	"github.com/sirupsen/logrus"
)

// displaySlot holds the single display resource a peer owns.
type displaySlot struct {
	res Resource
}

// Replace installs r and releases the previous resource.
func (s *displaySlot) Replace(r Resource) {
	prev := s.res
	s.res = r
	release(prev)
}

// Release frees the held resource. Releasing an empty slot is a no-op.
func (s *displaySlot) Release() {
	prev := s.res
	s.res = nil
	release(prev)
}

func release(r Resource) {
	if r == nil {
		return
	}
	if err := r.Release(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "displaySlot.release",
			"error":    err.Error(),
		}).Debug("Ignoring display resource release error")
	}
}

// Peer is the playback context of one remote participant.
type Peer struct {
	id string

	audio    *jitter.AudioBuffer
	video    *jitter.VideoBuffer
	activity *jitter.VoiceActivity
	decoders map[audio.Codec]audio.Decoder

	display displaySlot
	flags   MediaFlags
	stats   PeerStats
}

func newPeer(id string, snap config.Snapshot) *Peer {
	cfg := jitter.NewConfig(snap)
	return &Peer{
		id:       id,
		audio:    jitter.NewAudioBuffer(cfg),
		video:    jitter.NewVideoBuffer(cfg),
		activity: jitter.NewVoiceActivity(snap.Audio.TalkingRMSThreshold, snap.Playout.TalkingHold),
		decoders: make(map[audio.Codec]audio.Decoder),
	}
}

// ID returns the participant identity.
func (p *Peer) ID() string { return p.id }

func (p *Peer) decoder(c audio.Codec) (audio.Decoder, error) {
	if c == "" {
		c = audio.CodecPCM16LE
	}
	if d, ok := p.decoders[c]; ok {
		return d, nil
	}
	d, err := audio.NewDecoder(c)
	if err != nil {
		return nil, err
	}
	p.decoders[c] = d
	return d, nil
}

func (p *Peer) applyConfig(snap config.Snapshot) {
	cfg := jitter.NewConfig(snap)
	p.audio.SetConfig(cfg)
	p.video.SetConfig(cfg)
	p.activity.SetThreshold(snap.Audio.TalkingRMSThreshold, snap.Playout.TalkingHold)
}

// state snapshots the observable state.
func (p *Peer) state() PeerState {
	p.stats.Audio = p.audio.Stats()
	p.stats.Video = p.video.Stats()
	return PeerState{
		ID:      p.id,
		Talking: p.activity.Talking(),
		Video:   p.display.res,
		Flags:   p.flags,
		Stats:   p.stats,
	}
}

// close releases everything the peer owns. It is safe to call twice.
func (p *Peer) close(sink AudioSink) {
	p.display.Release()
	p.activity.Reset()
	p.audio.Reset()
	p.video.Reset()
	if sink == nil {
		return
	}
	if err := sink.ClosePeer(p.id); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Peer.close",
			"peer":     p.id,
			"error":    err.Error(),
		}).Debug("Ignoring playback close error")
	}
}
