package av

import (
	"testing"

	"github.com/opd-ai/roomcall/av/audio"
	"github.com/opd-ai/roomcall/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAudioPipelineFramesAndResamples(t *testing.T) {
	cfg := config.Default().Audio
	cfg.TargetSampleRate = 16000
	cfg.FrameMs = 20

	p, err := NewAudioPipeline(48000, cfg)
	require.NoError(t, err)

	// 960 input samples per 20 ms frame at 48 kHz.
	assert.Empty(t, p.Push(constant(500, 0.3)))
	frames := p.Push(constant(1420, 0.3))
	require.Len(t, frames, 2)

	for _, f := range frames {
		assert.Equal(t, 16000, f.SampleRate)
		assert.Equal(t, audio.CodecPCM16LE, f.Codec)
		assert.InDelta(t, 320*2, len(f.Payload), 4)
		assert.InDelta(t, 0.3, f.RMS, 0.001)
	}
	assert.Equal(t, uint64(2), p.Stats().Frames)
}

func TestAudioPipelineSuppressesSilenceAfterHold(t *testing.T) {
	cfg := config.Default().Audio
	cfg.FrameMs = 20
	cfg.SilenceHoldFrames = 2

	p, err := NewAudioPipeline(16000, cfg)
	require.NoError(t, err)

	frames := p.Push(constant(320*5, 0))
	assert.Len(t, frames, 2, "hold frames are still sent")
	assert.Equal(t, uint64(3), p.Stats().Suppressed)

	assert.Len(t, p.Push(constant(320, 0.5)), 1)
	assert.Len(t, p.Push(constant(320, 0)), 1, "hold restarts after speech")
}

func TestAudioPipelineDropsOversizedFrames(t *testing.T) {
	cfg := config.Default().Audio
	cfg.FrameMs = 20
	cfg.MaxFrameBytes = 100

	p, err := NewAudioPipeline(16000, cfg)
	require.NoError(t, err)

	assert.Empty(t, p.Push(constant(320, 0.5)))
	assert.Equal(t, uint64(1), p.Stats().Oversized)
}

func TestAudioPipelineReconfigure(t *testing.T) {
	cfg := config.Default().Audio
	cfg.FrameMs = 20

	p, err := NewAudioPipeline(16000, cfg)
	require.NoError(t, err)

	cfg.Codec = config.CodecMuLaw
	cfg.FrameMs = 40
	require.NoError(t, p.Reconfigure(cfg))

	frames := p.Push(constant(640, 0.5))
	require.Len(t, frames, 1)
	assert.Equal(t, audio.CodecMuLaw, frames[0].Codec)
	assert.Len(t, frames[0].Payload, 640)

	cfg.Codec = "speex"
	assert.ErrorIs(t, p.Reconfigure(cfg), audio.ErrUnsupportedCodec)
}

func TestAudioPipelineRejectsBadInputRate(t *testing.T) {
	_, err := NewAudioPipeline(0, config.Default().Audio)
	assert.Error(t, err)
}
