package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/roomcall/av"
	"github.com/opd-ai/roomcall/av/audio"
	"github.com/opd-ai/roomcall/config"
	"github.com/opd-ai/roomcall/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu          sync.Mutex
	audio       []av.AudioFrame
	video       []av.VideoFrame
	events      []av.ParticipantEvent
	rosters     [][]string
	rosterRooms []string
	settings    []config.Snapshot
	deleted     int
	frameErr    error
	notify      chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{notify: make(chan struct{}, 64)}
}

func (h *recordingHandler) record(fn func()) {
	h.mu.Lock()
	fn()
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *recordingHandler) HandleAudioFrame(f av.AudioFrame) error {
	h.record(func() { h.audio = append(h.audio, f) })
	return h.frameErr
}

func (h *recordingHandler) HandleVideoFrame(f av.VideoFrame) error {
	h.record(func() { h.video = append(h.video, f) })
	return h.frameErr
}

func (h *recordingHandler) HandleParticipant(ev av.ParticipantEvent) error {
	h.record(func() { h.events = append(h.events, ev) })
	return nil
}

func (h *recordingHandler) ReconcilePeers(room string, joined []string) error {
	h.record(func() {
		h.rosterRooms = append(h.rosterRooms, room)
		h.rosters = append(h.rosters, joined)
	})
	return nil
}

func (h *recordingHandler) HandleMediaSettings(s config.Snapshot) error {
	h.record(func() { h.settings = append(h.settings, s) })
	return nil
}

func (h *recordingHandler) HandleMediaSettingsDeleted() {
	h.record(func() { h.deleted++ })
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.audio) + len(h.video) + len(h.events) + len(h.rosters) + len(h.settings) + h.deleted
}

// mockBridge sends script to every client and collects what they send.
type mockBridge struct {
	server   *httptest.Server
	script   []string
	received chan []byte
}

func newMockBridge(t *testing.T, script ...string) *mockBridge {
	t.Helper()
	b := &mockBridge{script: script, received: make(chan []byte, 64)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range b.script {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			b.received <- data
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *mockBridge) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func TestClientDispatchesBridgeMessages(t *testing.T) {
	bridge := newMockBridge(t,
		`{"type":"media_settings","audio_target_sample_rate":16000,"audio_frame_ms":50,"audio_max_frame_bytes":64000,"audio_talking_rms_threshold":0.02,"video_width":320,"video_height":180,"video_fps":5,"video_jpeg_quality":0.55,"video_max_frame_bytes":512000,"video_iframe_interval":15}`,
		`{"type":"roster","room_id":"room-1","joined":["alice","bob"]}`,
		`{"type":"participant","room_id":"room-1","identity":"carol","state":{"Joined":{}}}`,
		`{"type":"participant","room_id":"room-1","identity":"bob","state":{"tag":"Left"}}`,
		`{"type":"audio_frame","room_id":"room-1","from":"carol","seq":7,"sample_rate":16000,"channels":1,"rms":0.1,"pcm16le":"AAA="}`,
		`{"type":"bogus"}`,
		`{"type":"media_settings_deleted"}`,
	)

	client, err := Dial(context.Background(), Options{URL: bridge.url()})
	require.NoError(t, err)
	defer client.Close()

	h := newRecordingHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, h) }()

	require.Eventually(t, func() bool { return h.count() == 6 }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, config.Default(), h.settings[0])
	assert.Equal(t, [][]string{{"alice", "bob"}}, h.rosters)
	assert.Equal(t, []string{"room-1"}, h.rosterRooms)
	require.Len(t, h.events, 2)
	assert.Equal(t, av.ParticipantJoined, h.events[0].State)
	assert.Equal(t, av.ParticipantLeft, h.events[1].State)
	require.Len(t, h.audio, 1)
	assert.Equal(t, int64(7), h.audio[0].Seq)
	assert.Equal(t, audio.CodecPCM16LE, h.audio[0].Codec)
	assert.Equal(t, []byte{0, 0}, h.audio[0].Payload)
	assert.Equal(t, 1, h.deleted)
	h.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientSendsFrames(t *testing.T) {
	bridge := newMockBridge(t)
	client, err := Dial(context.Background(), Options{URL: bridge.url()})
	require.NoError(t, err)
	defer client.Close()

	go client.Run(context.Background(), newRecordingHandler())

	require.NoError(t, client.SendAudio(context.Background(), av.AudioFrame{
		RoomID: "room-1", From: "alice", Seq: 4, SampleRate: 16000, RMS: 0.25, Codec: audio.CodecMuLaw, Payload: []byte{0xFF, 0x7F},
	}))
	require.NoError(t, client.SendVideo(context.Background(), av.VideoFrame{
		RoomID: "room-1", Seq: 2, Keyframe: true, Width: 320, Height: 180, Payload: []byte{0xFF, 0xD8, 0xFF},
	}))

	var gotAudio AudioFrameMessage
	select {
	case data := <-bridge.received:
		require.NoError(t, json.Unmarshal(data, &gotAudio))
	case <-time.After(2 * time.Second):
		t.Fatal("no audio frame received")
	}
	assert.Equal(t, TypeSendAudioFrame, gotAudio.Type)
	assert.Equal(t, int64(4), gotAudio.Seq)
	assert.Equal(t, 1, gotAudio.Channels)
	assert.Equal(t, "mulaw", gotAudio.Codec)
	assert.Equal(t, []byte{0xFF, 0x7F}, gotAudio.Payload)

	var gotVideo VideoFrameMessage
	select {
	case data := <-bridge.received:
		require.NoError(t, json.Unmarshal(data, &gotVideo))
	case <-time.After(2 * time.Second):
		t.Fatal("no video frame received")
	}
	assert.Equal(t, TypeSendVideoFrame, gotVideo.Type)
	assert.True(t, gotVideo.Keyframe)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, gotVideo.JPEG)

	require.Eventually(t, func() bool { return client.Sent() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestClientShedsLoadWhenQueueFull(t *testing.T) {
	bridge := newMockBridge(t)
	client, err := Dial(context.Background(), Options{URL: bridge.url(), QueueSize: 1})
	require.NoError(t, err)

	// Without Run nothing drains the queue.
	frame := av.AudioFrame{RoomID: "room-1", Payload: []byte{1}}
	require.NoError(t, client.SendAudio(context.Background(), frame))
	assert.ErrorIs(t, client.SendAudio(context.Background(), frame), ErrQueueFull)
	assert.Equal(t, uint64(1), client.Dropped())

	assert.ErrorIs(t, client.SendVideo(context.Background(), av.VideoFrame{Payload: make([]byte, limits.MaxVideoFrame+1)}), limits.ErrFrameTooLarge)
	assert.ErrorIs(t, client.SendAudio(context.Background(), av.AudioFrame{}), limits.ErrFrameEmpty)
	assert.Equal(t, uint64(1), client.Dropped(), "rejected frames are not load shedding")

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.ErrorIs(t, client.SendAudio(context.Background(), frame), ErrClosed)
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), Options{URL: "ws://127.0.0.1:1/", HandshakeTimeout: time.Second})
	assert.Error(t, err)
}
