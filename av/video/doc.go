// Package video converts between captured images and the JPEG payloads
// carried by video frame events.
//
// Every frame is an independently decodable JPEG; the keyframe flag on
// the wire only marks the encoder cadence at which receivers may safely
// resume after loss.
//
//	scaler := video.NewScaler()
//	frame, err := scaler.Scale(captured, 320, 180)
//	payload, err := video.NewEncoder(0.55).Encode(frame)
//
//	img, err := video.Decode(payload) // receive side
//
// Decode rejects payloads without a JPEG marker with ErrMalformedFrame.
package video
