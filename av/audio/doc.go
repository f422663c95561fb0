// Package audio provides the sample-level building blocks of the call
// media path.
//
// # Send side
//
// Capture arrives as a continuous float32 stream at the device rate and
// flows through:
//
//	Framer → LowPass (anti-alias) → Resampler → Encoder
//
// The Framer blocks the stream into frames sized for the input rate and
// the configured frame duration. AntiAlias returns a pass-through filter
// unless the stream is being downsampled.
//
// # Receive side
//
// Decoders turn wire payloads back into float32 samples:
//
//	dec, err := audio.NewDecoder(audio.CodecPCM16LE)
//	samples, rate, err := dec.Decode(payload, 16000)
//
// PCM16LE and μ-law (G.711) are symmetric. Opus is decode-only and is
// backed by github.com/pion/opus; its decoder reports the sample rate
// carried in the bitstream instead of the declared one.
//
// A malformed payload yields ErrMalformedPayload; callers drop the frame.
//
// # Levels
//
// RMS computes the frame loudness used for voice activity, on the sender
// before transmission and on the receiver when a frame arrives without
// one.
package audio
