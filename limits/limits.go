package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxAudioFrame is the database limit for one audio payload.
	MaxAudioFrame = 64000

	// MaxVideoFrame is the database limit for one JPEG payload.
	MaxVideoFrame = 512000

	// MaxMessage bounds any message read from the bridge (1MB).
	MaxMessage = 1024 * 1024
)

var (
	// ErrFrameEmpty indicates an empty payload.
	ErrFrameEmpty = errors.New("empty frame payload")

	// ErrFrameTooLarge indicates a payload above its limit.
	ErrFrameTooLarge = errors.New("frame payload too large")
)

// ValidateFrameSize checks payload against maxSize.
func ValidateFrameSize(payload []byte, maxSize int) error {
	if len(payload) == 0 {
		return ErrFrameEmpty
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFrameTooLarge, len(payload), maxSize)
	}
	return nil
}

// ValidateAudioFrame checks an audio payload against MaxAudioFrame.
func ValidateAudioFrame(payload []byte) error {
	return ValidateFrameSize(payload, MaxAudioFrame)
}

// ValidateVideoFrame checks a JPEG payload against MaxVideoFrame.
func ValidateVideoFrame(payload []byte) error {
	return ValidateFrameSize(payload, MaxVideoFrame)
}
