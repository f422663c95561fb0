// Package device provides local capture and playback for a call:
// malgo-backed microphone and speaker, and a synthetic test-pattern
// camera.
package device
