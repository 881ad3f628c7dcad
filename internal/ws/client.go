package ws

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-server/internal/observability"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 54 * time.Second
	defaultSendBuffer = 256
	defaultMaxMessage = 64 * 1024
)

// ConnInfo identifies one websocket connection in logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	Username    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) Identity() observability.IdentityInfo {
	return observability.IdentityInfo{Username: i.Username, DeviceID: i.DeviceID, IP: i.IP}
}

// ClientOptions tunes a connection's queue and inbound limits.
type ClientOptions struct {
	SendBuffer     int
	MaxMessageSize int64
	EventsPerSec   float64
	EventBurst     int
}

// Client is one authenticated websocket connection. Outbound frames go
// through a buffered queue drained by writePump; a full queue drops the frame.
type Client struct {
	conn    *websocket.Conn
	info    ConnInfo
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	maxSize int64
	logger  *zap.Logger
}

// NewClient wraps conn. conn may be nil for a detached client whose queue is
// read directly.
func NewClient(conn *websocket.Conn, info ConnInfo, opts ClientOptions, logger *zap.Logger) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessage
	}
	var limiter *rate.Limiter
	if opts.EventsPerSec > 0 {
		burst := opts.EventBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.EventsPerSec), burst)
	}
	return &Client{
		conn:    conn,
		info:    info,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: limiter,
		maxSize: opts.MaxMessageSize,
		logger:  logger.With(zap.String("username", info.Username), zap.String("conn_id", info.ConnID)),
	}
}

func (c *Client) Username() string { return c.info.Username }

func (c *Client) Info() ConnInfo { return c.info }

// Send enqueues payload without blocking.
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close asks the write pump to flush what is queued and close the socket.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} { return c.done }

// Outbound exposes the queue of a detached client.
func (c *Client) Outbound() <-chan []byte { return c.send }

func (c *Client) allow() bool {
	if c.limiter == nil || c.limiter.Allow() {
		return true
	}
	c.logger.Debug("rate limit exceeded, discarding event")
	return false
}

func (c *Client) setupReadConnection() {
	c.conn.SetReadLimit(c.maxSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("set read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// readPump feeds text frames to handle until the transport fails and returns
// the close reason.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, []byte)) string {
	c.setupReadConnection()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return c.readErrorReason(err)
		}
		if !c.allow() {
			continue
		}
		handle(ctx, raw)
	}
}

func (c *Client) readErrorReason(err error) string {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("frame exceeded maximum size", zap.Int64("limit", c.maxSize))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("connection closed", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
	return err.Error()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message := <-c.send:
			if !c.write(websocket.TextMessage, message) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes frames queued before Close.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if !c.write(websocket.TextMessage, message) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("set write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("websocket write error", zap.Error(err))
		}
		return false
	}
	return true
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("close connection", zap.Error(err))
	}
}
