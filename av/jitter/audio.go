package jitter

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// ScheduledFrame is one audio frame placed on the playout clock.
type ScheduledFrame struct {
	Seq        int64
	Samples    []float32
	SampleRate int
	Start      time.Time
	Duration   time.Duration

	// Silence marks a frame synthesised to conceal a gap.
	Silence bool

	// Resync marks the first frame after a runaway-latency reset. Audio
	// queued for the peer before this frame must be dropped.
	Resync bool
}

// AudioPosition describes what the listener is hearing right now.
type AudioPosition struct {
	// Heard is the sequence number currently being played out.
	Heard int64

	// Dry is true when no scheduled audio remains ahead of now.
	Dry bool

	// FrameDuration is the duration of the most recent frame.
	FrameDuration time.Duration
}

// AudioStats counts receive-side audio events.
type AudioStats struct {
	Received    uint64
	Duplicates  uint64
	Late        uint64
	Malformed   uint64
	Scheduled   uint64
	Silence     uint64
	Resyncs     uint64
	ClockResets uint64
}

type audioEntry struct {
	samples []float32
	rate    int
}

// AudioBuffer is a sequence-keyed reorder buffer feeding a PlayoutClock.
type AudioBuffer struct {
	cfg    Config
	frames map[int64]audioEntry
	clock  *PlayoutClock

	next    int64 // next sequence to drain, -1 until the first frame
	ready   bool
	started bool

	lastSamples int
	lastRate    int

	stats AudioStats
}

// NewAudioBuffer creates an empty buffer.
func NewAudioBuffer(cfg Config) *AudioBuffer {
	return &AudioBuffer{
		cfg:    cfg,
		frames: make(map[int64]audioEntry),
		clock:  NewPlayoutClock(cfg.LeadTime, cfg.MaxLatency),
		next:   -1,
	}
}

// Submit stores a decoded frame. A frame with a sequence number seen
// before replaces the stored one. It returns false when the frame was
// discarded: empty, negative sequence, or older than audio already
// scheduled.
func (b *AudioBuffer) Submit(seq int64, samples []float32, rate int) bool {
	if seq < 0 || len(samples) == 0 || rate <= 0 {
		b.stats.Malformed++
		return false
	}

	switch {
	case b.next < 0:
		b.next = seq
	case seq < b.next && !b.started:
		// Nothing played yet: an earlier frame moves the baseline back.
		b.next = seq
	case seq < b.next:
		b.stats.Late++
		return false
	}

	if _, dup := b.frames[seq]; dup {
		b.stats.Duplicates++
	}
	b.frames[seq] = audioEntry{samples: samples, rate: rate}
	b.stats.Received++

	if !b.ready && int64(len(b.frames)) >= b.cfg.depth() {
		b.ready = true
	}
	return true
}

// Drain schedules every frame that can be released now, in sequence
// order, concealing unrecoverable gaps with silence. Concealment is
// capped at maxConcealFrames per gap: the cursor then jumps to the next
// buffered frame, and the playout clock's latency limit absorbs the rest.
func (b *AudioBuffer) Drain(now time.Time) []ScheduledFrame {
	if !b.ready || len(b.frames) == 0 {
		return nil
	}

	var out []ScheduledFrame
	for pass := 0; pass < maxDrainPasses; pass++ {
		for {
			e, ok := b.frames[b.next]
			if !ok {
				break
			}
			delete(b.frames, b.next)
			out = append(out, b.schedule(now, b.next, e.samples, e.rate, false))
			b.lastSamples, b.lastRate = len(e.samples), e.rate
			b.next++
			b.started = true
		}

		if len(b.frames) == 0 {
			break
		}

		lowest := b.lowest()
		gap := lowest - b.next
		if gap <= 2*b.cfg.depth() && int64(len(b.frames)) <= 4*b.cfg.depth() {
			break // the missing frame may still arrive
		}

		fill := gap
		if fill > maxConcealFrames {
			fill = maxConcealFrames
		}
		samples, rate := b.silenceShape()
		for i := int64(0); i < fill; i++ {
			out = append(out, b.schedule(now, b.next+i, make([]float32, samples), rate, true))
		}
		b.stats.Silence += uint64(fill)
		b.stats.Resyncs++

		logrus.WithFields(logrus.Fields{
			"function": "AudioBuffer.Drain",
			"expected": b.next,
			"resume":   lowest,
			"gap":      gap,
			"silence":  fill,
			"buffered": len(b.frames),
		}).Debug("Concealing audio gap")

		b.next = lowest
		b.started = true
	}
	return out
}

func (b *AudioBuffer) schedule(now time.Time, seq int64, samples []float32, rate int, silence bool) ScheduledFrame {
	d := frameDuration(len(samples), rate)
	start, reset := b.clock.Schedule(now, d)
	if reset {
		b.stats.ClockResets++
		logrus.WithFields(logrus.Fields{
			"function": "AudioBuffer.schedule",
			"seq":      seq,
		}).Debug("Playout clock exceeded max latency, reset")
	}
	b.stats.Scheduled++
	return ScheduledFrame{
		Seq:        seq,
		Samples:    samples,
		SampleRate: rate,
		Start:      start,
		Duration:   d,
		Silence:    silence,
		Resync:     reset,
	}
}

// silenceShape sizes a concealment frame like the last real frame, or
// like one nominal frame before any was drained.
func (b *AudioBuffer) silenceShape() (samples, rate int) {
	if b.lastRate > 0 && b.lastSamples > 0 {
		return b.lastSamples, b.lastRate
	}
	rate = b.cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	samples = int(int64(rate) * int64(b.cfg.FrameDuration) / int64(time.Second))
	if samples <= 0 {
		samples = rate / 50
	}
	return samples, rate
}

func (b *AudioBuffer) lowest() int64 {
	lowest := int64(math.MaxInt64)
	for seq := range b.frames {
		if seq < lowest {
			lowest = seq
		}
	}
	return lowest
}

// Position returns the sequence being heard at now: the drain cursor
// minus the frames still queued on the playout clock.
func (b *AudioBuffer) Position(now time.Time) AudioPosition {
	d := frameDuration(b.lastSamples, b.lastRate)
	if !b.started || d <= 0 {
		return AudioPosition{Heard: b.next, Dry: true}
	}

	queued := b.clock.Queued(now)
	if queued <= 0 {
		return AudioPosition{Heard: b.next, Dry: true, FrameDuration: d}
	}
	ahead := int64(math.Ceil(float64(queued) / float64(d)))
	return AudioPosition{Heard: b.next - ahead, FrameDuration: d}
}

// Ready reports whether the prebuffer depth has been reached.
func (b *AudioBuffer) Ready() bool { return b.ready }

// Expected returns the next sequence to drain, -1 before the first frame.
func (b *AudioBuffer) Expected() int64 { return b.next }

// Buffered returns the number of frames waiting to be drained.
func (b *AudioBuffer) Buffered() int { return len(b.frames) }

// NextPlayTime returns the playout clock cursor.
func (b *AudioBuffer) NextPlayTime() time.Time { return b.clock.Next() }

// Stats returns a copy of the counters.
func (b *AudioBuffer) Stats() AudioStats { return b.stats }

// SetConfig applies new tunables to subsequent submits and drains.
func (b *AudioBuffer) SetConfig(cfg Config) {
	b.cfg = cfg
	b.clock.SetLimits(cfg.LeadTime, cfg.MaxLatency)
}

// Reset drops all buffered frames and returns to the initial state.
func (b *AudioBuffer) Reset() {
	b.frames = make(map[int64]audioEntry)
	b.clock.Reset()
	b.next = -1
	b.ready = false
	b.started = false
	b.lastSamples, b.lastRate = 0, 0
}
