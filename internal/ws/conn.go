package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
)

// Config holds connection options for a websocket transport.
type Config struct {
	// URL is the websocket server endpoint to connect to.
	URL string
	// PingInterval is the duration between protocol-level pings used to
	// keep the connection alive.
	PingInterval time.Duration
	// PongWait is the maximum time to wait for a pong before the
	// connection is considered dead.
	PongWait time.Duration
}

// Conn is a single-use websocket transport. It owns the socket, the read
// loop, and the keepalive deadline; every inbound text frame is handed to
// the OnFrame callback, and the close reason (if any) to OnClosed. It does
// not reconnect: when the peer goes away the connection is done and the
// owner must build a new one.
type Conn struct {
	config  Config
	state   *State
	handler *eventHandler
	logger  zerolog.Logger

	// OnFrame receives every inbound text frame. Set before Connect.
	OnFrame func(data []byte)
	// OnClosed fires once when the connection terminates for any reason.
	// Set before Connect.
	OnClosed func(err error)

	mu            sync.Mutex
	conn          *gws.Conn
	connectedChan chan struct{}
	closedChan    chan struct{}
	closedOnce    sync.Once
}

type eventHandler struct {
	conn *Conn
}

// New creates a websocket transport for the given configuration. Default
// values are applied for any zero-valued fields.
func New(config Config) *Conn {
	if config.PingInterval == 0 {
		config.PingInterval = 10 * time.Second
	}
	if config.PongWait == 0 {
		config.PongWait = 20 * time.Second
	}

	c := &Conn{
		config:        config,
		state:         &State{},
		connectedChan: make(chan struct{}),
		closedChan:    make(chan struct{}),
		logger:        zerolog.Nop(),
	}
	c.state.Store(StateIdle)
	c.handler = &eventHandler{conn: c}
	return c
}

// SetLogger configures the logger for the transport.
func (c *Conn) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {
	// A concurrent Close may already have moved the state past Connecting;
	// the handshake gate only opens when the transition to Open succeeds.
	if !h.conn.state.CompareAndSwap(StateConnecting, StateOpen) {
		return
	}
	close(h.conn.connectedChan)

	h.conn.logger.Info().
		Str("url", h.conn.config.URL).
		Msg("websocket connected")

	_ = socket.SetDeadline(time.Now().Add(h.conn.config.PingInterval + h.conn.config.PongWait))
}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	h.conn.state.Store(StateClosed)

	h.conn.logger.Warn().
		Err(err).
		Str("url", h.conn.config.URL).
		Msg("websocket disconnected")

	h.conn.signalClosed(err)
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.conn.config.PingInterval + h.conn.config.PongWait))
	_ = socket.WritePong(nil)
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.conn.config.PingInterval + h.conn.config.PongWait))
}

func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	data := message.Bytes()
	if len(data) == 0 {
		return
	}

	// The frame payload is only valid until message.Close; copy before
	// handing it out.
	frame := make([]byte, len(data))
	copy(frame, data)

	if c := h.conn; c.OnFrame != nil {
		c.OnFrame(frame)
	}
}

// Connect establishes the websocket connection and starts the read loop.
// It blocks until the handshake completes, ctx expires, or the connection
// fails.
func (c *Conn) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateIdle, StateConnecting) {
		return fmt.Errorf("invalid state for connect: %s", c.state.Load())
	}

	socket, _, err := gws.NewClient(c.handler, &gws.ClientOption{
		Addr: c.config.URL,
	})
	if err != nil {
		c.state.Store(StateClosed)
		return fmt.Errorf("connect websocket: %w", err)
	}

	c.mu.Lock()
	c.conn = socket
	c.mu.Unlock()

	go socket.ReadLoop()

	select {
	case <-c.connectedChan:
		return nil
	case <-c.closedChan:
		return fmt.Errorf("connection closed during handshake")
	case <-ctx.Done():
		_ = socket.NetConn().Close()
		c.state.Store(StateClosed)
		return ctx.Err()
	}
}

// Close terminates the connection. It does not wait for the read loop to
// exit, so calling it from inside an OnFrame handler cannot deadlock; the
// OnClosed callback still fires exactly once. Safe to call more than once.
func (c *Conn) Close() error {
	if !c.state.CompareAndSwap(StateOpen, StateClosing) &&
		!c.state.CompareAndSwap(StateConnecting, StateClosing) &&
		!c.state.CompareAndSwap(StateIdle, StateClosing) {
		return nil
	}

	c.mu.Lock()
	socket := c.conn
	c.mu.Unlock()

	if socket != nil {
		_ = socket.NetConn().Close()
	}

	c.state.Store(StateClosed)
	c.signalClosed(nil)
	return nil
}

// signalClosed fires the termination signal exactly once, whether the
// close was local or remote.
func (c *Conn) signalClosed(err error) {
	c.closedOnce.Do(func() {
		close(c.closedChan)
		if c.OnClosed != nil {
			c.OnClosed(err)
		}
	})
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	return c.state.Load()
}

// IsOpen returns true if the websocket has an active connection.
func (c *Conn) IsOpen() bool {
	return c.state.Load() == StateOpen
}

// WriteMessage sends raw bytes as one text frame. Writes are serialized
// so concurrent senders never interleave frames.
func (c *Conn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.state.Load() != StateOpen {
		return fmt.Errorf("websocket not connected")
	}

	return c.conn.WriteMessage(gws.OpcodeText, data)
}

// SendJSON marshals the given value and sends it as one text frame.
func (c *Conn) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return c.WriteMessage(data)
}

// SendPing sends a protocol-level ping frame.
func (c *Conn) SendPing() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.state.Load() != StateOpen {
		return fmt.Errorf("websocket not connected")
	}

	return c.conn.WritePing(nil)
}
