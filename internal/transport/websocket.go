package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voicelink/mic-bridge/internal/observability"
	"github.com/voicelink/mic-bridge/internal/resilience"
)

// ErrNotConnected is returned by SendBinaryFrame when no websocket
// connection is up.
var ErrNotConnected = errors.New("websocket not connected")

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Client is a websocket connection to the audio server. Binary messages
// carry PCM16 audio frames; text messages are server control events
// delivered to OnMessage handlers.
type Client struct {
	url          string
	reconnectCfg *resilience.ReconnectConfig
	logger       zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	writeMu sync.Mutex

	handlerMu     sync.Mutex
	nextID        int
	msgHandlers   []msgSubscription
	stateHandlers []stateSubscription
}

type msgSubscription struct {
	id int
	fn func(data []byte)
}

type stateSubscription struct {
	id int
	fn func(connected bool)
}

// NewClient creates a client for the given websocket URL. Connect must
// be called before frames can be sent.
func NewClient(url string, reconnectCfg *resilience.ReconnectConfig, logger zerolog.Logger) *Client {
	return &Client{
		url:          url,
		reconnectCfg: reconnectCfg,
		logger:       logger.With().Str("component", "transport").Logger(),
	}
}

// Connect dials the server, retrying with exponential backoff per the
// reconnect configuration. On success a read loop runs until the
// connection drops or Close is called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	var conn *websocket.Conn
	err := resilience.Reconnect(ctx, func() error {
		var dialErr error
		conn, _, dialErr = dialer.DialContext(ctx, c.url, nil)
		return dialErr
	}, c.reconnectCfg)
	if err != nil {
		observability.RecordError("connect_failed", "transport")
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrNotConnected
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	observability.SetTransportConnected(true)
	c.logger.Info().Str("url", c.url).Msg("Connected to audio server")
	c.dispatchState(true)

	go c.readLoop(conn)
	return nil
}

// SendBinaryFrame writes one binary websocket message. Safe for
// concurrent use.
func (c *Client) SendBinaryFrame(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendText writes one text websocket message, for client control
// events.
func (c *Client) SendText(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// IsConnected reports whether a connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close tears down the connection permanently. The client cannot be
// reused after Close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = conn.Close()
	}

	if wasConnected {
		observability.SetTransportConnected(false)
		c.dispatchState(false)
	}
	c.logger.Info().Msg("Transport closed")
	return err
}

// OnMessage registers a handler for server text messages. Returns an
// unsubscribe func.
func (c *Client) OnMessage(h func(data []byte)) func() {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.nextID++
	id := c.nextID
	c.msgHandlers = append(c.msgHandlers, msgSubscription{id, h})
	return func() { c.removeMsgHandler(id) }
}

// OnStateChange registers a connectivity handler. Returns an
// unsubscribe func.
func (c *Client) OnStateChange(h func(connected bool)) func() {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.nextID++
	id := c.nextID
	c.stateHandlers = append(c.stateHandlers, stateSubscription{id, h})
	return func() { c.removeStateHandler(id) }
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			dropped := c.conn == conn && c.connected
			if dropped {
				c.connected = false
				c.conn = nil
			}
			closed := c.closed
			c.mu.Unlock()

			if dropped && !closed {
				observability.SetTransportConnected(false)
				observability.RecordError("connection_lost", "transport")
				c.logger.Warn().Err(err).Msg("Connection lost")
				c.dispatchState(false)
			}
			return
		}

		if msgType == websocket.TextMessage {
			c.dispatchMessage(data)
		}
	}
}

func (c *Client) removeMsgHandler(id int) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	for i, sub := range c.msgHandlers {
		if sub.id == id {
			c.msgHandlers = append(c.msgHandlers[:i], c.msgHandlers[i+1:]...)
			return
		}
	}
}

func (c *Client) removeStateHandler(id int) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	for i, sub := range c.stateHandlers {
		if sub.id == id {
			c.stateHandlers = append(c.stateHandlers[:i], c.stateHandlers[i+1:]...)
			return
		}
	}
}

func (c *Client) dispatchMessage(data []byte) {
	c.handlerMu.Lock()
	handlers := make([]msgSubscription, len(c.msgHandlers))
	copy(handlers, c.msgHandlers)
	c.handlerMu.Unlock()
	for _, sub := range handlers {
		sub.fn(data)
	}
}

func (c *Client) dispatchState(connected bool) {
	c.handlerMu.Lock()
	handlers := make([]stateSubscription, len(c.stateHandlers))
	copy(handlers, c.stateHandlers)
	c.handlerMu.Unlock()
	for _, sub := range handlers {
		sub.fn(connected)
	}
}
