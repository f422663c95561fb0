package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// Codec identifies an audio payload encoding.
type Codec string

// Supported payload encodings.
const (
	CodecPCM16LE Codec = "pcm16le"
	CodecMuLaw   Codec = "mulaw"
	CodecOpus    Codec = "opus"
)

var (
	// ErrUnsupportedCodec indicates the codec name is unknown.
	ErrUnsupportedCodec = errors.New("unsupported audio codec")

	// ErrEncodeUnsupported indicates the codec is decode-only.
	ErrEncodeUnsupported = errors.New("codec does not support encoding")

	// ErrMalformedPayload indicates a payload that cannot be decoded.
	ErrMalformedPayload = errors.New("malformed audio payload")
)

// Encoder turns float PCM in [-1, 1] into a wire payload.
type Encoder interface {
	Encode(samples []float32) ([]byte, error)
	Codec() Codec
}

// Decoder turns a wire payload into float PCM. The declared sample rate
// comes from the frame event; decoders that carry their own rate
// (Opus) return it instead.
type Decoder interface {
	Decode(payload []byte, sampleRate int) ([]float32, int, error)
}

// NewEncoder returns the encoder for c.
func NewEncoder(c Codec) (Encoder, error) {
	switch c {
	case CodecPCM16LE:
		return PCM16LE{}, nil
	case CodecMuLaw:
		return MuLaw{}, nil
	case CodecOpus:
		return nil, fmt.Errorf("%s: %w", c, ErrEncodeUnsupported)
	default:
		return nil, fmt.Errorf("%q: %w", c, ErrUnsupportedCodec)
	}
}

// NewDecoder returns the decoder for c.
func NewDecoder(c Codec) (Decoder, error) {
	switch c {
	case CodecPCM16LE, "":
		return PCM16LE{}, nil
	case CodecMuLaw:
		return MuLaw{}, nil
	case CodecOpus:
		return NewOpusDecoder(), nil
	default:
		return nil, fmt.Errorf("%q: %w", c, ErrUnsupportedCodec)
	}
}

// PCM16LE is signed 16-bit little-endian mono PCM.
type PCM16LE struct{}

// Codec implements Encoder.
func (PCM16LE) Codec() Codec { return CodecPCM16LE }

// Encode implements Encoder.
func (PCM16LE) Encode(samples []float32) ([]byte, error) {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out, nil
}

// Decode implements Decoder.
func (PCM16LE) Decode(payload []byte, sampleRate int) ([]float32, int, error) {
	if len(payload) == 0 || len(payload)%2 != 0 {
		return nil, 0, fmt.Errorf("pcm16le length %d: %w", len(payload), ErrMalformedPayload)
	}
	out := make([]float32, len(payload)/2)
	for i := range out {
		out[i] = int16ToFloat(int16(binary.LittleEndian.Uint16(payload[i*2:])))
	}
	return out, sampleRate, nil
}

// MuLaw is ITU-T G.711 μ-law, one byte per sample.
type MuLaw struct{}

// Codec implements Encoder.
func (MuLaw) Codec() Codec { return CodecMuLaw }

// Encode implements Encoder.
func (MuLaw) Encode(samples []float32) ([]byte, error) {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = MuLawEncode(floatToInt16(s))
	}
	return out, nil
}

// Decode implements Decoder.
func (MuLaw) Decode(payload []byte, sampleRate int) ([]float32, int, error) {
	if len(payload) == 0 {
		return nil, 0, fmt.Errorf("empty mulaw payload: %w", ErrMalformedPayload)
	}
	out := make([]float32, len(payload))
	for i, b := range payload {
		out[i] = int16ToFloat(MuLawDecode(b))
	}
	return out, sampleRate, nil
}

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawEncode compresses one linear sample.
func MuLawEncode(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

// MuLawDecode expands one μ-law byte.
func MuLawDecode(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := int(u>>4) & 0x07
	mantissa := int(u & 0x0F)
	s := ((mantissa << 3) + muLawBias) << exponent
	s -= muLawBias
	if sign != 0 {
		return int16(-s)
	}
	return int16(s)
}

// OpusDecoder decodes Opus frames sent by native clients. It is
// receive-only: pion/opus has no encoder.
type OpusDecoder struct {
	decoder opus.Decoder
	buf     []byte
}

// NewOpusDecoder creates a decoder with a 120 ms output buffer at 48 kHz.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		buf:     make([]byte, 5760*2),
	}
}

// Decode implements Decoder. The returned rate is the bandwidth's rate,
// not the declared one.
func (d *OpusDecoder) Decode(payload []byte, _ int) ([]float32, int, error) {
	if len(payload) == 0 {
		return nil, 0, fmt.Errorf("empty opus payload: %w", ErrMalformedPayload)
	}

	bandwidth, isStereo, err := d.decoder.Decode(payload, d.buf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "OpusDecoder.Decode",
			"size":     len(payload),
			"error":    err.Error(),
		}).Debug("Opus decode failed")
		return nil, 0, fmt.Errorf("opus decode: %w", ErrMalformedPayload)
	}

	rate := bandwidth.SampleRate()
	count := rate * opusFrameMs(payload[0]) / 1000
	if isStereo {
		count *= 2
	}
	if limit := len(d.buf) / 2; count <= 0 || count > limit {
		count = limit
	}

	pcm := make([]float32, 0, count)
	step := 1
	if isStereo {
		step = 2 // keep the left channel
	}
	for i := 0; i < count; i += step {
		pcm = append(pcm, int16ToFloat(int16(binary.LittleEndian.Uint16(d.buf[i*2:]))))
	}
	return pcm, rate, nil
}

// opusFrameMs reads the frame duration from the TOC byte (RFC 6716 3.1).
func opusFrameMs(toc byte) int {
	config := int(toc >> 3)
	switch {
	case config < 12: // SILK
		return [...]int{10, 20, 40, 60}[config%4]
	case config < 16: // Hybrid
		return [...]int{10, 20}[config%2]
	default: // CELT, 2.5 and 5 ms rounded up
		return [...]int{3, 5, 10, 20}[config%4]
	}
}

func floatToInt16(s float32) int16 {
	v := float64(s) * 32767
	v = math.Max(-32768, math.Min(32767, math.Round(v)))
	return int16(v)
}

func int16ToFloat(s int16) float32 {
	return float32(s) / 32768
}
