package av

import (
	"fmt"

	"github.com/opd-ai/roomcall/av/audio"
	"github.com/opd-ai/roomcall/config"
	"github.com/sirupsen/logrus"
)

// EncodedAudio is one frame ready for transmission, before it is given
// a sequence number.
type EncodedAudio struct {
	Payload    []byte
	SampleRate int
	RMS        float64
	Codec      audio.Codec
}

// PipelineStats counts send-side audio decisions.
type PipelineStats struct {
	Frames     uint64
	Suppressed uint64
	Oversized  uint64
}

// AudioPipeline turns a continuous capture stream into encoded frames:
// framing at the input rate, anti-alias filtering, resampling, encoding,
// silence suppression and size limiting.
type AudioPipeline struct {
	inputRate int

	framer    *audio.Framer
	filter    *audio.LowPass
	resampler *audio.Resampler
	encoder   audio.Encoder

	targetRate int
	threshold  float64
	holdFrames int
	maxBytes   int

	silentRun int
	stats     PipelineStats
}

// NewAudioPipeline creates a pipeline for a stream captured at inputRate.
func NewAudioPipeline(inputRate int, cfg config.Audio) (*AudioPipeline, error) {
	p := &AudioPipeline{inputRate: inputRate}
	if err := p.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// Reconfigure applies new audio settings to subsequent frames. Buffered
// capture samples are kept.
func (p *AudioPipeline) Reconfigure(cfg config.Audio) error {
	resampler, err := audio.NewResampler(p.inputRate, cfg.TargetSampleRate)
	if err != nil {
		return fmt.Errorf("audio pipeline: %w", err)
	}
	encoder, err := audio.NewEncoder(audio.Codec(cfg.Codec))
	if err != nil {
		return fmt.Errorf("audio pipeline: %w", err)
	}

	block := cfg.FrameSamples(p.inputRate)
	if p.framer == nil {
		p.framer = audio.NewFramer(block)
	} else {
		p.framer.Resize(block)
	}

	// Keep filter state when the rates did not change.
	if p.filter == nil || p.targetRate != cfg.TargetSampleRate {
		p.filter = audio.AntiAlias(p.inputRate, cfg.TargetSampleRate)
	}

	p.resampler = resampler
	p.encoder = encoder
	p.targetRate = cfg.TargetSampleRate
	p.threshold = cfg.TalkingRMSThreshold
	p.holdFrames = cfg.SilenceHoldFrames
	p.maxBytes = cfg.MaxFrameBytes

	logrus.WithFields(logrus.Fields{
		"function":    "AudioPipeline.Reconfigure",
		"input_rate":  p.inputRate,
		"target_rate": p.targetRate,
		"block":       block,
		"codec":       cfg.Codec,
	}).Debug("Audio pipeline configured")
	return nil
}

// Push feeds captured samples and returns the frames to transmit, in
// order. Suppressed and oversized frames are not returned.
func (p *AudioPipeline) Push(samples []float32) []EncodedAudio {
	var out []EncodedAudio
	for _, block := range p.framer.Push(samples) {
		p.stats.Frames++

		rms := audio.RMS(block)

		// Filter and resampler state must see every block.
		resampled := p.resampler.Resample(p.filter.Process(block))

		if rms <= p.threshold {
			p.silentRun++
			if p.silentRun > p.holdFrames {
				p.stats.Suppressed++
				continue
			}
		} else {
			p.silentRun = 0
		}

		payload, err := p.encoder.Encode(resampled)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "AudioPipeline.Push",
				"error":    err.Error(),
			}).Debug("Audio encode failed, frame dropped")
			continue
		}
		if p.maxBytes > 0 && len(payload) > p.maxBytes {
			p.stats.Oversized++
			continue
		}

		out = append(out, EncodedAudio{
			Payload:    payload,
			SampleRate: p.targetRate,
			RMS:        rms,
			Codec:      p.encoder.Codec(),
		})
	}
	return out
}

// Stats returns a copy of the counters.
func (p *AudioPipeline) Stats() PipelineStats { return p.stats }
