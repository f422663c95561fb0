package av

import (
	"context"
	"image"

	"github.com/opd-ai/roomcall/av/jitter"
	"github.com/opd-ai/roomcall/av/video"
)

// FrameSender publishes outbound frames. Implementations must not block
// for long; the gateway queues and sheds load.
type FrameSender interface {
	SendAudio(ctx context.Context, frame AudioFrame) error
	SendVideo(ctx context.Context, frame VideoFrame) error
}

// AudioDevice opens the local microphone.
type AudioDevice interface {
	OpenMicrophone(ctx context.Context) (AudioStream, error)
}

// AudioStream is an open microphone delivering mono float32 blocks at
// SampleRate. Samples is closed when the stream ends.
type AudioStream interface {
	SampleRate() int
	Samples() <-chan []float32
	Close() error
}

// VideoDevice opens the local camera at the requested size.
type VideoDevice interface {
	OpenCamera(ctx context.Context, width, height int) (VideoStream, error)
}

// VideoStream is an open camera. Capture grabs one frame.
type VideoStream interface {
	Capture(ctx context.Context) (image.Image, error)
	Close() error
}

// AudioSink plays scheduled audio for each peer. ClosePeer releases the
// peer's playback context.
type AudioSink interface {
	Schedule(peer string, frame jitter.ScheduledFrame)
	ClosePeer(peer string) error
}

// Resource is a display handle for one decoded video frame.
type Resource interface {
	Release() error
}

// ResourceFactory turns a released video frame into a display Resource.
type ResourceFactory interface {
	NewResource(peer string, frame jitter.VideoFrame) (Resource, error)
}

// ImageResource is the Resource produced by DecodingFactory.
type ImageResource struct {
	Image image.Image
	Seq   int64
}

// Release implements Resource.
func (r *ImageResource) Release() error {
	r.Image = nil
	return nil
}

// DecodingFactory decodes JPEG payloads into ImageResources.
type DecodingFactory struct{}

// NewResource implements ResourceFactory.
func (DecodingFactory) NewResource(_ string, frame jitter.VideoFrame) (Resource, error) {
	img, err := video.Decode(frame.Payload)
	if err != nil {
		return nil, err
	}
	return &ImageResource{Image: img, Seq: frame.Seq}, nil
}

// LocalMedia exposes the session's capture streams for self-preview.
// Camera is nil for voice calls and while video capture restarts.
type LocalMedia struct {
	Microphone AudioStream
	Camera     VideoStream
}

// Observer receives peer state changes. It is called with the controller
// lock held and must not call back into the controller.
type Observer func(PeerState)
