package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/relay"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 54 * time.Second
	readWait     = 60 * time.Second
	sendBuffer   = 256
)

var (
	errConnectionClosed = errors.New(relaynet.ErrConnectionClosed)
	errContextCancelled = errors.New(relaynet.ErrContextCancelled)
)

// Client is one accepted socket. It is the relay.Transport of its
// connection: the write pump is the only writer of the socket.
type Client struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	rateLimiter *rate.Limiter

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
}

var _ relay.Transport = (*Client)(nil)

// NewClient wraps an upgraded socket and starts its write pump.
func NewClient(conn *websocket.Conn, remoteAddr string, rateLimitConfig *RateLimitConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}

	client := &Client{
		id:          uuid.New().String(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, sendBuffer),
		rateLimiter: limiter,
		closeCode:   websocket.CloseNormalClosure,
	}

	go client.writePump()

	return client
}

// ID returns the trace id of the socket. It is unrelated to the player id.
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the client's remote network address
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Context is cancelled once the socket is gone.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send queues an encoded frame for the write pump.
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errConnectionClosed
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errContextCancelled
	}
}

// Close closes the socket with a normal closure.
func (c *Client) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode stops accepting frames. The write pump flushes the frames
// already queued, sends the close frame and closes the socket.
func (c *Client) CloseWithCode(_ context.Context, code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.sendCh)
	return nil
}

// IsAlive returns true if the connection is still active
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.ctx.Err() == nil
}

// CheckRateLimit reports whether another inbound message is allowed.
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		return true
	}
	return c.rateLimiter.Allow()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.mu.RLock()
				frame := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
				c.mu.RUnlock()
				c.conn.WriteMessage(websocket.CloseMessage, frame)
				return
			}

			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
