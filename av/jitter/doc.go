// Package jitter implements the per-peer receive buffers of a call.
//
// Frames arrive out of order, duplicated, late or not at all. AudioBuffer
// reorders audio frames by sequence number, waits for a small prebuffer,
// conceals unrecoverable gaps with silence, and schedules each frame on a
// PlayoutClock so that a peer's output is gapless and strictly ordered.
// VideoBuffer reorders video frames, suppresses display until a keyframe
// has been seen, resynchronises on keyframes after loss, and holds frames
// that would run ahead of the audio the listener is currently hearing.
//
// Buffers are not safe for concurrent use. The call controller owns them
// from a single goroutine.
//
// Drains are explicit loops bounded by maxDrainPasses; each pass drains
// the contiguous run at the cursor and then applies at most one
// concealment or resync step.
package jitter
