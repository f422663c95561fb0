package jitter

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 16000

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameDuration = 20 * time.Millisecond
	return cfg
}

// frame20 returns 20 ms of 16 kHz audio filled with v.
func frame20(v float32) []float32 {
	s := make([]float32, testRate/50)
	for i := range s {
		s[i] = v
	}
	return s
}

func seqs(frames []ScheduledFrame) []int64 {
	out := make([]int64, len(frames))
	for i, f := range frames {
		out[i] = f.Seq
	}
	return out
}

func TestAudioOutOfOrderPrebuffer(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	now := epoch

	var scheduled []ScheduledFrame
	for _, seq := range []int64{2, 0, 1} {
		require.True(t, b.Submit(seq, frame20(0.1), testRate))
		scheduled = append(scheduled, b.Drain(now)...)
	}

	require.Equal(t, []int64{0, 1, 2}, seqs(scheduled))
	assert.False(t, scheduled[0].Start.Before(now.Add(20*time.Millisecond)))
	for i := 1; i < len(scheduled); i++ {
		assert.Equal(t, scheduled[i-1].Start.Add(scheduled[i-1].Duration), scheduled[i].Start)
	}
}

func TestAudioNoDrainBeforeReady(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	require.True(t, b.Submit(7, frame20(0), testRate))

	assert.False(t, b.Ready())
	assert.Empty(t, b.Drain(epoch))
	assert.Equal(t, int64(7), b.Expected())
}

func TestAudioInOrderDrainAnyPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const n = 50

	for trial := 0; trial < 20; trial++ {
		b := NewAudioBuffer(testConfig())
		for _, seq := range rng.Perm(n) {
			require.True(t, b.Submit(int64(seq), frame20(0), testRate))
		}

		got := seqs(b.Drain(epoch))
		require.Len(t, got, n, "trial %d", trial)
		for i, seq := range got {
			require.Equal(t, int64(i), seq, "trial %d", trial)
		}
		assert.Zero(t, b.Buffered())
	}
}

func TestAudioDuplicateLastWriteWins(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	require.True(t, b.Submit(0, frame20(0.1), testRate))
	require.True(t, b.Submit(0, frame20(0.9), testRate))
	require.True(t, b.Submit(1, frame20(0.1), testRate))

	out := b.Drain(epoch)
	require.Equal(t, []int64{0, 1}, seqs(out))
	assert.Equal(t, float32(0.9), out[0].Samples[0])
	assert.Equal(t, uint64(1), b.Stats().Duplicates)
}

func TestAudioGapInsertsSilence(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	for _, seq := range []int64{0, 1, 8, 9} {
		require.True(t, b.Submit(seq, frame20(0.5), testRate))
	}

	out := b.Drain(epoch)
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seqs(out))

	for _, f := range out {
		silent := f.Seq >= 2 && f.Seq <= 7
		assert.Equal(t, silent, f.Silence, "seq %d", f.Seq)
		assert.Len(t, f.Samples, testRate/50)
		if silent {
			assert.Equal(t, float32(0), f.Samples[0])
		}
	}
	assert.Equal(t, uint64(6), b.Stats().Silence)
	assert.Equal(t, int64(10), b.Expected())
}

func TestAudioConcealmentCapped(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	for _, seq := range []int64{0, 1, 200, 201} {
		require.True(t, b.Submit(seq, frame20(0.5), testRate))
	}

	out := b.Drain(epoch)
	require.Len(t, out, 2+maxConcealFrames+2)
	assert.Equal(t, int64(2), out[2].Seq)
	assert.True(t, out[1+maxConcealFrames].Silence)
	assert.Equal(t, int64(200), out[2+maxConcealFrames].Seq)
	assert.False(t, out[2+maxConcealFrames].Silence)
	assert.Equal(t, uint64(maxConcealFrames), b.Stats().Silence)
	assert.Equal(t, int64(202), b.Expected())
}

func TestAudioSmallGapWaits(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	for _, seq := range []int64{0, 1, 4} {
		b.Submit(seq, frame20(0), testRate)
	}
	assert.Equal(t, []int64{0, 1}, seqs(b.Drain(epoch)))

	// The missing frames arrive late but in time.
	b.Submit(3, frame20(0), testRate)
	assert.Empty(t, b.Drain(epoch))
	b.Submit(2, frame20(0), testRate)
	assert.Equal(t, []int64{2, 3, 4}, seqs(b.Drain(epoch)))
	assert.Zero(t, b.Stats().Silence)
}

func TestAudioBacklogForcesConcealment(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	b.Submit(0, frame20(0), testRate)
	b.Submit(1, frame20(0), testRate)
	b.Drain(epoch)

	// Frame 2 never arrives; the gap stays small but the backlog grows.
	for seq := int64(3); seq <= 10; seq++ {
		b.Submit(seq, frame20(0), testRate)
		assert.Empty(t, b.Drain(epoch), "seq %d", seq)
	}
	b.Submit(11, frame20(0), testRate)

	out := b.Drain(epoch)
	require.Len(t, out, 10)
	assert.True(t, out[0].Silence)
	assert.Equal(t, int64(2), out[0].Seq)
	assert.Equal(t, int64(11), out[9].Seq)
}

func TestAudioLateFrameDropped(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	b.Submit(0, frame20(0), testRate)
	b.Submit(1, frame20(0), testRate)
	require.Len(t, b.Drain(epoch), 2)

	assert.False(t, b.Submit(0, frame20(0), testRate))
	assert.Equal(t, uint64(1), b.Stats().Late)
}

func TestAudioRejectsMalformed(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	assert.False(t, b.Submit(-1, frame20(0), testRate))
	assert.False(t, b.Submit(0, nil, testRate))
	assert.False(t, b.Submit(0, frame20(0), 0))
	assert.Equal(t, uint64(3), b.Stats().Malformed)
	assert.Equal(t, int64(-1), b.Expected())
}

func TestAudioPlayoutClockMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewAudioBuffer(testConfig())

	// Frames sent every 20 ms arrive with up to 60 ms of jitter and some
	// reordering.
	type arrival struct {
		seq int64
		at  time.Time
	}
	var arrivals []arrival
	for seq := int64(0); seq < 200; seq++ {
		jitter := time.Duration(rng.Intn(60)) * time.Millisecond
		arrivals = append(arrivals, arrival{seq, epoch.Add(time.Duration(seq)*20*time.Millisecond + jitter)})
	}
	for i := 1; i < len(arrivals); i++ {
		for j := i; j > 0 && arrivals[j].at.Before(arrivals[j-1].at); j-- {
			arrivals[j], arrivals[j-1] = arrivals[j-1], arrivals[j]
		}
	}

	var prev *ScheduledFrame
	for _, a := range arrivals {
		b.Submit(a.seq, frame20(0), testRate)
		for _, f := range b.Drain(a.at) {
			f := f
			assert.False(t, f.Start.Before(a.at.Add(20*time.Millisecond)), "seq %d starts too early", f.Seq)
			if prev != nil && !f.Resync {
				assert.False(t, f.Start.Before(prev.Start.Add(prev.Duration)), "seq %d overlaps seq %d", f.Seq, prev.Seq)
				assert.Greater(t, f.Seq, prev.Seq)
			}
			prev = &f
		}
	}
	require.NotNil(t, prev)
}

func TestAudioRunawayLatencyResetsClock(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	for seq := int64(0); seq < 20; seq++ {
		b.Submit(seq, frame20(0), testRate)
	}

	out := b.Drain(epoch)
	require.Len(t, out, 20)

	var resets int
	for _, f := range out {
		if f.Resync {
			resets++
			assert.Equal(t, epoch.Add(20*time.Millisecond), f.Start)
		}
		assert.False(t, f.Start.After(epoch.Add(250*time.Millisecond+20*time.Millisecond)))
	}
	assert.Positive(t, resets)
	assert.Equal(t, uint64(resets), b.Stats().ClockResets)
}

func TestAudioPosition(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	assert.True(t, b.Position(epoch).Dry)

	for seq := int64(0); seq < 5; seq++ {
		b.Submit(seq, frame20(0), testRate)
	}
	require.Len(t, b.Drain(epoch), 5)
	assert.Equal(t, epoch.Add(120*time.Millisecond), b.NextPlayTime())

	pos := b.Position(epoch)
	assert.False(t, pos.Dry)
	assert.Equal(t, int64(-1), pos.Heard)
	assert.Equal(t, 20*time.Millisecond, pos.FrameDuration)

	pos = b.Position(epoch.Add(60 * time.Millisecond))
	assert.Equal(t, int64(2), pos.Heard)

	pos = b.Position(epoch.Add(200 * time.Millisecond))
	assert.True(t, pos.Dry)
	assert.Equal(t, int64(5), pos.Heard)
}

func TestAudioReset(t *testing.T) {
	b := NewAudioBuffer(testConfig())
	b.Submit(3, frame20(0), testRate)
	b.Submit(4, frame20(0), testRate)
	b.Drain(epoch)

	b.Reset()
	assert.Equal(t, int64(-1), b.Expected())
	assert.False(t, b.Ready())
	assert.Zero(t, b.Buffered())
	assert.True(t, b.NextPlayTime().IsZero())
}

func TestPlayoutClockSchedule(t *testing.T) {
	c := NewPlayoutClock(20*time.Millisecond, 250*time.Millisecond)

	start, reset := c.Schedule(epoch, 50*time.Millisecond)
	assert.False(t, reset)
	assert.Equal(t, epoch.Add(20*time.Millisecond), start)

	// A later now pushes the start forward instead of scheduling in the past.
	start, _ = c.Schedule(epoch.Add(time.Second), 50*time.Millisecond)
	assert.Equal(t, epoch.Add(time.Second+20*time.Millisecond), start)
	assert.Equal(t, 70*time.Millisecond, c.Queued(epoch.Add(time.Second)))

	c.Reset()
	assert.Zero(t, c.Queued(epoch))
}
