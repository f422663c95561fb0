package jitter

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// VideoFrame is one encoded video frame.
type VideoFrame struct {
	Seq      int64
	Payload  []byte
	Keyframe bool
}

// VideoStats counts receive-side video events.
type VideoStats struct {
	Received   uint64
	Duplicates uint64
	Late       uint64
	Malformed  uint64
	Displayed  uint64
	Collapsed  uint64
	Discarded  uint64
	Held       uint64
	Resyncs    uint64
}

// VideoBuffer is a sequence-keyed reorder buffer that releases at most
// one frame per drain: the freshest displayable one. Audio lock only
// delays a frame by up to SyncCap; a frame leading audio by more is shown
// anyway, so video stays live when the audio clock stalls.
type VideoBuffer struct {
	cfg    Config
	frames map[int64]VideoFrame

	next    int64 // next sequence to drain, -1 until the first frame
	lastKey int64 // last keyframe released, -1 when none or after resync

	stats VideoStats
}

// NewVideoBuffer creates an empty buffer.
func NewVideoBuffer(cfg Config) *VideoBuffer {
	return &VideoBuffer{
		cfg:     cfg,
		frames:  make(map[int64]VideoFrame),
		next:    -1,
		lastKey: -1,
	}
}

// Submit stores a frame, replacing any earlier frame with the same
// sequence. It returns false when the frame was discarded.
func (b *VideoBuffer) Submit(seq int64, payload []byte, keyframe bool) bool {
	if seq < 0 || len(payload) == 0 {
		b.stats.Malformed++
		return false
	}
	if b.next < 0 {
		b.next = seq
	}
	if seq < b.next {
		b.stats.Late++
		return false
	}

	if _, dup := b.frames[seq]; dup {
		b.stats.Duplicates++
	}
	b.frames[seq] = VideoFrame{Seq: seq, Payload: payload, Keyframe: keyframe}
	b.stats.Received++
	return true
}

// Drain releases contiguous frames and returns the last displayable one.
// Frames that would lead the audio position pos are held in the buffer.
func (b *VideoBuffer) Drain(pos AudioPosition) (VideoFrame, bool) {
	var (
		candidate VideoFrame
		found     bool
		held      bool
	)

	for pass := 0; pass < maxDrainPasses && !held; pass++ {
		for {
			f, ok := b.frames[b.next]
			if !ok {
				break
			}
			if b.lastKey < 0 && !f.Keyframe {
				delete(b.frames, b.next)
				b.next++
				b.stats.Discarded++
				continue
			}
			if b.leadsAudio(f.Seq, pos) {
				held = true
				b.stats.Held++
				break
			}

			delete(b.frames, b.next)
			b.next++
			if f.Keyframe {
				b.lastKey = f.Seq
			}
			if found {
				b.stats.Collapsed++
			}
			candidate, found = f, true
		}

		if held || len(b.frames) == 0 || !b.resync() {
			break
		}
	}

	if found {
		b.stats.Displayed++
	}
	return candidate, found
}

// resync jumps the cursor over an unrecoverable gap. It reports whether
// the cursor moved.
func (b *VideoBuffer) resync() bool {
	lowest := int64(math.MaxInt64)
	key := int64(math.MaxInt64)
	for seq, f := range b.frames {
		if seq < lowest {
			lowest = seq
		}
		if f.Keyframe && seq < key {
			key = seq
		}
	}

	gap := lowest - b.next
	overflow := len(b.frames) > maxBacklog
	if gap <= b.cfg.depth() && !overflow {
		return false
	}

	target := key
	if key == math.MaxInt64 {
		if !overflow {
			return false // nothing safe to resume on yet
		}
		target = lowest
	}

	for seq := range b.frames {
		if seq < target {
			delete(b.frames, seq)
			b.stats.Discarded++
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "VideoBuffer.resync",
		"expected": b.next,
		"resume":   target,
		"keyframe": target == key,
		"buffered": len(b.frames),
	}).Debug("Resynchronising video")

	b.next = target
	b.lastKey = -1
	b.stats.Resyncs++
	return true
}

// leadsAudio reports whether frame seq is ahead of the heard audio by
// less than the sync cap. Leads at or beyond the cap, and any lead while
// audio is dry, release the frame.
func (b *VideoBuffer) leadsAudio(seq int64, pos AudioPosition) bool {
	interval := b.cfg.videoInterval()
	if pos.Dry || pos.FrameDuration <= 0 || interval <= 0 {
		return false
	}

	// Both streams are assumed to have started at sequence 0 together.
	mapped := int64(time.Duration(seq) * interval / pos.FrameDuration)
	lead := time.Duration(mapped-pos.Heard) * pos.FrameDuration
	return lead > 0 && lead < b.cfg.SyncCap
}

// Expected returns the next sequence to drain, -1 before the first frame.
func (b *VideoBuffer) Expected() int64 { return b.next }

// LastKeyframe returns the last released keyframe, -1 when none.
func (b *VideoBuffer) LastKeyframe() int64 { return b.lastKey }

// Buffered returns the number of frames waiting to be drained.
func (b *VideoBuffer) Buffered() int { return len(b.frames) }

// Stats returns a copy of the counters.
func (b *VideoBuffer) Stats() VideoStats { return b.stats }

// SetConfig applies new tunables to subsequent drains.
func (b *VideoBuffer) SetConfig(cfg Config) { b.cfg = cfg }

// Reset drops all buffered frames and returns to the initial state.
func (b *VideoBuffer) Reset() {
	b.frames = make(map[int64]VideoFrame)
	b.next = -1
	b.lastKey = -1
}
