package device

import (
	"sync"
	"time"

	"github.com/opd-ai/roomcall/av/audio"
	"github.com/opd-ai/roomcall/av/jitter"
	"github.com/sirupsen/logrus"
)

type segment struct {
	start   time.Time
	samples []float32
	pos     int
}

type peerQueue struct {
	segments  []*segment
	resampler *audio.Resampler
	inputRate int
}

// Mixer sums the scheduled audio of every peer into one output stream
// at a fixed rate. Each frame starts no earlier than its scheduled time.
type Mixer struct {
	rate int

	mu    sync.Mutex
	peers map[string]*peerQueue
	stale uint64
}

// NewMixer creates a mixer producing rate samples per second.
func NewMixer(rate int) *Mixer {
	return &Mixer{rate: rate, peers: make(map[string]*peerQueue)}
}

// Schedule implements av.AudioSink.
func (m *Mixer) Schedule(peer string, f jitter.ScheduledFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.peers[peer]
	if !ok {
		q = &peerQueue{}
		m.peers[peer] = q
	}
	if f.Resync {
		q.segments = nil
		if q.resampler != nil {
			q.resampler.Reset()
		}
	}

	samples := f.Samples
	if f.SampleRate != m.rate {
		if q.resampler == nil || q.inputRate != f.SampleRate {
			r, err := audio.NewResampler(f.SampleRate, m.rate)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Mixer.Schedule",
					"peer":     peer,
					"error":    err.Error(),
				}).Debug("Dropping frame with bad sample rate")
				return
			}
			q.resampler, q.inputRate = r, f.SampleRate
		}
		samples = q.resampler.Resample(samples)
	}
	q.segments = append(q.segments, &segment{start: f.Start, samples: samples})
}

// ClosePeer implements av.AudioSink.
func (m *Mixer) ClosePeer(peer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peer)
	return nil
}

// Fill mixes len(out) samples whose first sample plays at now.
func (m *Mixer) Fill(out []float32, now time.Time) {
	for i := range out {
		out[i] = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dt := time.Second / time.Duration(m.rate)
	for _, q := range m.peers {
		m.dropStale(q, now)
		for i := 0; i < len(out) && len(q.segments) > 0; {
			seg := q.segments[0]
			if seg.pos == 0 && seg.start.After(now.Add(time.Duration(i)*dt)) {
				i++
				continue
			}
			n := min(len(out)-i, len(seg.samples)-seg.pos)
			for j := 0; j < n; j++ {
				out[i+j] += seg.samples[seg.pos+j]
			}
			seg.pos += n
			i += n
			if seg.pos >= len(seg.samples) {
				q.segments = q.segments[1:]
			}
		}
	}

	for i, v := range out {
		switch {
		case v > 1:
			out[i] = 1
		case v < -1:
			out[i] = -1
		}
	}
}

// dropStale discards unstarted segments that should already have ended.
func (m *Mixer) dropStale(q *peerQueue, now time.Time) {
	for len(q.segments) > 0 {
		seg := q.segments[0]
		end := seg.start.Add(time.Duration(len(seg.samples)) * time.Second / time.Duration(m.rate))
		if seg.pos > 0 || end.After(now) {
			return
		}
		q.segments = q.segments[1:]
		m.stale++
	}
}

// Pending returns the number of queued segments for peer.
func (m *Mixer) Pending(peer string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.peers[peer]; ok {
		return len(q.segments)
	}
	return 0
}

// Stale returns the number of segments dropped for arriving too late.
func (m *Mixer) Stale() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}
