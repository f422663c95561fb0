// Package limits holds the payload size ceilings the room database
// enforces on relayed frames.
//
// # Size Hierarchy
//
//   - MaxAudioFrame (64000 bytes): largest encoded audio payload the
//     database accepts in one frame event.
//   - MaxVideoFrame (512000 bytes): largest JPEG payload per video frame.
//   - MaxMessage (1 MiB): largest websocket message read from the bridge.
//     Payloads travel base64-encoded inside JSON, so this leaves room for
//     a maximal video frame plus framing.
//
// Configured frame limits may be lower than these ceilings but never
// higher: frames above the ceiling would be rejected by the database
// after having been encoded and sent.
//
//	if err := limits.ValidateVideoFrame(jpeg); err != nil {
//	    // ErrFrameEmpty or ErrFrameTooLarge
//	}
package limits
