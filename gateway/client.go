package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/roomcall/av"
	"github.com/opd-ai/roomcall/config"
	"github.com/opd-ai/roomcall/limits"
	"github.com/sirupsen/logrus"
)

// Handler receives decoded bridge messages. *av.Controller implements it.
type Handler interface {
	HandleAudioFrame(av.AudioFrame) error
	HandleVideoFrame(av.VideoFrame) error
	HandleParticipant(av.ParticipantEvent) error
	ReconcilePeers(room string, joined []string) error
	HandleMediaSettings(config.Snapshot) error
	HandleMediaSettingsDeleted()
}

// Options configures a Client.
type Options struct {
	URL    string
	Header http.Header

	// QueueSize bounds the outbound queue. Default 64.
	QueueSize int

	// HandshakeTimeout defaults to 10s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds one socket write. Default 5s.
	WriteTimeout time.Duration

	// PingInterval defaults to 25s. Reads time out after three missed pongs.
	PingInterval time.Duration
}

func (o *Options) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
}

// Client is a websocket connection to the bridge. It implements
// av.FrameSender.
type Client struct {
	conn *websocket.Conn
	opts Options

	queue     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Dial connects to the bridge.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	opts.setDefaults()

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Dial",
			"url":      opts.URL,
			"error":    err.Error(),
		}).Error("Failed to connect to bridge")
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"url":      opts.URL,
	}).Info("Connected to bridge")

	return newClient(conn, opts), nil
}

func newClient(conn *websocket.Conn, opts Options) *Client {
	return &Client{
		conn:   conn,
		opts:   opts,
		queue:  make(chan []byte, opts.QueueSize),
		closed: make(chan struct{}),
	}
}

// Run reads messages and dispatches them to h until the connection fails,
// ctx is done or Close is called. Outbound frames are only written while
// Run is running.
func (c *Client) Run(ctx context.Context, h Handler) error {
	readTimeout := 3 * c.opts.PingInterval
	c.conn.SetReadLimit(limits.MaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.wg.Add(1)
	go c.writeLoop()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"function": "Client.Run",
				"error":    err.Error(),
			}).Warn("Bridge read failed")
			return fmt.Errorf("read: %w", err)
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if err := dispatch(h, data); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.Run",
				"error":    err.Error(),
			}).Debug("Dropping bridge message")
		}
	}
}

// dispatch decodes one message and hands it to h. Handler errors for
// frames are expected drops and only logged at trace level.
func dispatch(h Handler, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("envelope: %w", ErrMalformedMessage)
	}

	switch env.Type {
	case TypeAudioFrame:
		var m AudioFrameMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, ErrMalformedMessage)
		}
		f, err := m.Frame()
		if err != nil {
			return err
		}
		traceDrop(env.Type, h.HandleAudioFrame(f))

	case TypeVideoFrame:
		var m VideoFrameMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, ErrMalformedMessage)
		}
		traceDrop(env.Type, h.HandleVideoFrame(m.Frame()))

	case TypeParticipant:
		var m ParticipantMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, ErrMalformedMessage)
		}
		ev, err := m.Event()
		if err != nil {
			return err
		}
		traceDrop(env.Type, h.HandleParticipant(ev))

	case TypeRoster:
		var m RosterMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, ErrMalformedMessage)
		}
		traceDrop(env.Type, h.ReconcilePeers(m.RoomID, m.Joined))

	case TypeMediaSettings:
		var m MediaSettingsMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, ErrMalformedMessage)
		}
		snap, err := m.Snapshot()
		if err != nil {
			return err
		}
		return h.HandleMediaSettings(snap)

	case TypeMediaSettingsDeleted:
		h.HandleMediaSettingsDeleted()

	default:
		return fmt.Errorf("unknown message type %q: %w", env.Type, ErrMalformedMessage)
	}
	return nil
}

func traceDrop(kind string, err error) {
	if err == nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "dispatch",
		"type":     kind,
		"reason":   err.Error(),
	}).Trace("Handler dropped message")
}

func (c *Client) writeLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case data := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Client.writeLoop",
					"error":    err.Error(),
				}).Warn("Bridge write failed")
				go c.Close()
				return
			}
			c.sent.Add(1)
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Client.writeLoop",
					"error":    err.Error(),
				}).Debug("Ping failed")
			}
		}
	}
}

// SendAudio implements av.FrameSender.
func (c *Client) SendAudio(_ context.Context, f av.AudioFrame) error {
	if err := limits.ValidateAudioFrame(f.Payload); err != nil {
		return err
	}
	return c.enqueue(sendAudioMessage(f))
}

// SendVideo implements av.FrameSender.
func (c *Client) SendVideo(_ context.Context, f av.VideoFrame) error {
	if err := limits.ValidateVideoFrame(f.Payload); err != nil {
		return err
	}
	return c.enqueue(sendVideoMessage(f))
}

func (c *Client) enqueue(msg any) error {
	if c.isClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	select {
	case c.queue <- data:
		return nil
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

// Sent returns the number of frames written to the socket.
func (c *Client) Sent() uint64 { return c.sent.Load() }

// Dropped returns the number of frames shed because the queue was full.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close sends a close frame and shuts the connection. It is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		deadline := time.Now().Add(c.opts.WriteTimeout)
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			logrus.WithFields(logrus.Fields{
				"function": "Client.Close",
				"error":    werr.Error(),
			}).Debug("Close frame not sent")
		}
		err = c.conn.Close()
		c.wg.Wait()

		logrus.WithFields(logrus.Fields{
			"function": "Client.Close",
			"sent":     c.sent.Load(),
			"dropped":  c.dropped.Load(),
		}).Info("Bridge connection closed")
	})
	return err
}
