package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evgrid/backend/services/ocpp-server/internal/ocpp"
)

const (
	maxMessageSize = 1024 * 1024
	sendBuffer     = 16
)

// FrameProcessor handles one raw OCPP frame received from a station.
type FrameProcessor interface {
	Process(ctx context.Context, session ocpp.MessageContext, raw []byte) error
}

// ConnectionOptions tunes a station connection.
type ConnectionOptions struct {
	WriteTimeout       time.Duration
	PongWait           time.Duration
	MaxConcurrentCalls int
}

// Connection represents active station WebSocket connection. Incoming CALLs run
// concurrently up to MaxConcurrentCalls; results of server calls are handled in order on
// the read loop.
type Connection struct {
	session   ocpp.MessageContext
	ws        *websocket.Conn
	send      chan []byte
	pings     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	processor FrameProcessor
	opts      ConnectionOptions
	logger    *zap.Logger
	onClose   func(*Connection)
}

// NewConnection builds connection wrapper.
func NewConnection(session ocpp.MessageContext, ws *websocket.Conn, processor FrameProcessor, opts ConnectionOptions, logger *zap.Logger, onClose func(*Connection)) *Connection {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.MaxConcurrentCalls <= 0 {
		opts.MaxConcurrentCalls = 8
	}
	return &Connection{
		session:   session,
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
		pings:     make(chan struct{}, 1),
		closed:    make(chan struct{}),
		processor: processor,
		opts:      opts,
		logger:    logger.With(zap.String("station_id", session.StationID), zap.String("tenant_id", session.TenantID)),
		onClose:   onClose,
	}
}

// StationID returns identifier.
func (c *Connection) StationID() string {
	return c.session.StationID
}

// Session returns the context every message of this connection carries.
func (c *Connection) Session() ocpp.MessageContext {
	return c.session
}

// Start runs the write pump in the background and the read pump until the connection ends.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxConcurrentCalls)

	defer func() {
		c.Close()
		_ = g.Wait()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed", zap.Error(err))
			return
		}

		if !ocpp.IsCall(message) {
			c.process(ctx, message)
			continue
		}
		g.Go(func() error {
			c.process(gctx, message)
			return nil
		})
	}
}

func (c *Connection) process(ctx context.Context, message []byte) {
	if err := c.processor.Process(ctx, c.session, message); err != nil {
		c.logger.Warn("failed to process message", zap.Error(err))
	}
}

func (c *Connection) writePump(ctx context.Context) {
	defer c.ws.Close()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-c.closed:
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-c.pings:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Send enqueues a frame for writing. It fails once the connection is closed.
func (c *Connection) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return ocpp.ErrNotConnected
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.closed:
		return ocpp.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping asks the write pump to send a ping unless one is already pending.
func (c *Connection) Ping() {
	select {
	case c.pings <- struct{}{}:
	default:
	}
}

// Close stops the connection. It is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Done is closed when the connection stops.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}
