package av

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/roomcall/av/jitter"
)

// fakeClock is a manually advanced TimeProvider. Tick fires every ticker
// it created.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) Tick() {
	c.mu.Lock()
	tickers := append([]*fakeTicker(nil), c.tickers...)
	now := c.now
	c.mu.Unlock()
	for _, t := range tickers {
		t.fire(now)
	}
}

type fakeTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
}

type fakeSender struct {
	mu    sync.Mutex
	audio []AudioFrame
	video []VideoFrame
}

func (s *fakeSender) SendAudio(_ context.Context, f AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, f)
	return nil
}

func (s *fakeSender) SendVideo(_ context.Context, f VideoFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = append(s.video, f)
	return nil
}

func (s *fakeSender) audioFrames() []AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AudioFrame(nil), s.audio...)
}

func (s *fakeSender) videoFrames() []VideoFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]VideoFrame(nil), s.video...)
}

type fakeMic struct {
	rate    int
	samples chan []float32

	mu     sync.Mutex
	closed int
}

func newFakeMic(rate int) *fakeMic {
	return &fakeMic{rate: rate, samples: make(chan []float32, 16)}
}

func (m *fakeMic) SampleRate() int           { return m.rate }
func (m *fakeMic) Samples() <-chan []float32 { return m.samples }
func (m *fakeMic) push(block []float32)      { m.samples <- block }

func (m *fakeMic) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeAudioDevice struct {
	mu    sync.Mutex
	mics  []*fakeMic
	err   error
	gate  chan struct{} // when set, OpenMicrophone waits for it to close
	enter chan struct{}
}

func (d *fakeAudioDevice) OpenMicrophone(ctx context.Context) (AudioStream, error) {
	if d.enter != nil {
		close(d.enter)
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	m := newFakeMic(16000)
	d.mics = append(d.mics, m)
	return m, nil
}

func (d *fakeAudioDevice) opened() []*fakeMic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeMic(nil), d.mics...)
}

type fakeCamera struct {
	width, height int
	block         chan struct{} // when set, Capture waits on it

	mu       sync.Mutex
	closed   int
	captures int
}

func (c *fakeCamera) Capture(ctx context.Context) (image.Image, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	c.captures++
	c.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *fakeCamera) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeVideoDevice struct {
	mu      sync.Mutex
	cameras []*fakeCamera
	err     error
}

func (d *fakeVideoDevice) OpenCamera(_ context.Context, w, h int) (VideoStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeCamera{width: w, height: h}
	d.cameras = append(d.cameras, c)
	return c, nil
}

func (d *fakeVideoDevice) opened() []*fakeCamera {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeCamera(nil), d.cameras...)
}

type fakeSink struct {
	mu        sync.Mutex
	scheduled map[string][]jitter.ScheduledFrame
	closed    map[string]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		scheduled: make(map[string][]jitter.ScheduledFrame),
		closed:    make(map[string]int),
	}
}

func (s *fakeSink) Schedule(peer string, f jitter.ScheduledFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[peer] = append(s.scheduled[peer], f)
}

func (s *fakeSink) ClosePeer(peer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[peer]++
	return nil
}

func (s *fakeSink) frames(peer string) []jitter.ScheduledFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jitter.ScheduledFrame(nil), s.scheduled[peer]...)
}

func (s *fakeSink) closeCount(peer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[peer]
}

type countingResource struct {
	seq      int64
	released int
}

func (r *countingResource) Release() error {
	r.released++
	if r.released > 1 {
		return errors.New("released twice")
	}
	return nil
}

type countingFactory struct {
	made []*countingResource
}

func (f *countingFactory) NewResource(_ string, frame jitter.VideoFrame) (Resource, error) {
	r := &countingResource{seq: frame.Seq}
	f.made = append(f.made, r)
	return r, nil
}

type observed struct {
	mu     sync.Mutex
	states []PeerState
}

func (o *observed) observe(s PeerState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *observed) all() []PeerState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PeerState(nil), o.states...)
}

func testClockStart() time.Time {
	return newFakeClock().Now()
}

func contextWithCleanup(t *testing.T) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx, cancel
}
