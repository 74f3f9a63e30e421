// Package relay implements the per-connection protocol engine: envelope
// decoding, decompression, handshake gating, the connection timeout, typed
// message dispatch and error responses.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/metrics"
	"github.com/luciancaetano/relaynet/internal/protocol"
)

const tracerName = "github.com/luciancaetano/relaynet/internal/relay"

// Config is shared by every connection of a server.
type Config struct {
	// MajorVersion and MinorVersion are the protocol version clients must
	// declare in their handshake.
	MajorVersion uint32
	MinorVersion uint32

	// Production hides unexpected faults from clients and hands them to the
	// caller of HandleMessage instead.
	Production bool

	// ConnectionTimeout is how long a connection may go without sending
	// PLAYER_DATA before it is closed. Zero uses the default of 10s.
	ConnectionTimeout time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
}

func (c *Config) connectionTimeout() time.Duration {
	if c.ConnectionTimeout <= 0 {
		return relaynet.DefaultConnectionTimeoutMillis * time.Millisecond
	}
	return c.ConnectionTimeout
}

func (c *Config) tracer() trace.Tracer {
	if c.Tracer == nil {
		return otel.Tracer(tracerName)
	}
	return c.Tracer
}

// Connection is the protocol state of one client socket.
type Connection struct {
	id        uint32
	transport Transport
	registry  Registry
	cfg       *Config
	logger    zerolog.Logger
	guard     *TimeoutGuard

	mu      sync.RWMutex
	session *Session

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection creates the connection for an accepted socket and arms its
// timeout guard. id must be unique among live connections.
func NewConnection(id uint32, transport Transport, registry Registry, cfg *Config) *Connection {
	c := &Connection{
		id:        id,
		transport: transport,
		registry:  registry,
		cfg:       cfg,
		closed:    make(chan struct{}),
		logger: cfg.Logger.With().
			Uint32("conn_id", id).
			Str("remote_addr", transport.RemoteAddr()).
			Logger(),
	}
	c.guard = NewTimeoutGuard(cfg.connectionTimeout(), c.onTimeout)
	c.guard.Arm()
	return c
}

// ID returns the connection id.
func (c *Connection) ID() uint32 {
	return c.id
}

// Session returns the player session, or nil before a successful handshake.
func (c *Connection) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Connection) setSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// Guard returns the connection timeout guard.
func (c *Connection) Guard() *TimeoutGuard {
	return c.guard
}

// Done is closed once the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// Send encodes msg and writes it to the client.
func (c *Connection) Send(ctx context.Context, msg *protocol.ServerMessage) error {
	return c.transport.Send(ctx, protocol.EncodeServerMessage(msg))
}

// write sends a frame and logs delivery failures. A failed write is not a
// protocol fault: the socket is going away and the read loop will notice.
func (c *Connection) write(ctx context.Context, data []byte) {
	if err := c.transport.Send(ctx, data); err != nil {
		c.logger.Debug().Err(err).Msg("write failed")
	}
}

// HandleMessage decodes, validates and dispatches one binary frame. Client
// faults are answered on the wire and yield nil. An unexpected fault yields
// a *FaultError in production mode and an INTERNAL_SERVER_ERROR response
// otherwise.
func (c *Connection) HandleMessage(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = c.handleFailure(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.logger.Debug().Err(err).Msg("envelope decode failed")
		return c.handleFailure(ctx, NewBadRequest(relaynet.ErrDecodeFailed))
	}

	body, err := protocol.Expand(ctx, env)
	if err != nil {
		c.logger.Debug().Err(err).Stringer("compression", env.Compression).Msg("decompression failed")
		return c.handleFailure(ctx, NewBadRequest(relaynet.ErrDecompressionFailed))
	}
	if body == nil {
		return c.handleFailure(ctx, missing("data"))
	}

	msg, err := protocol.DecodeBody(body)
	if err != nil {
		c.logger.Debug().Err(err).Msg("body decode failed")
		return c.handleFailure(ctx, NewBadRequest(relaynet.ErrDecodeFailed))
	}

	return c.handleFailure(ctx, c.dispatch(ctx, data, msg))
}

// handleFailure converts a dispatch error into its wire response.
func (c *Connection) handleFailure(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		c.sendBadRequest(ctx, connErr)
		return nil
	}

	if !c.cfg.Production {
		c.sendInternalServerError(ctx, err)
		return nil
	}
	return &FaultError{ConnectionID: c.id, Err: err}
}

// sendBadRequest answers a client fault.
func (c *Connection) sendBadRequest(ctx context.Context, err *ConnectionError) {
	c.logger.Debug().Str("error", err.Message).Msg("bad request")
	c.cfg.Metrics.ErrorSent(err.Type.String())
	c.write(ctx, protocol.EncodeServerMessage(protocol.NewError(err.Type, err.Message)))
}

// sendInternalServerError reports an unexpected fault. Only used outside
// production mode.
func (c *Connection) sendInternalServerError(ctx context.Context, err error) {
	c.logger.Error().Err(err).Msg("internal server error")
	c.cfg.Metrics.ErrorSent(protocol.ErrorInternalServerError.String())
	c.write(ctx, protocol.EncodeServerMessage(protocol.NewError(protocol.ErrorInternalServerError, err.Error())))
}

func (c *Connection) onTimeout() {
	if !c.cfg.Production {
		c.logger.Info().Msg("a player timed out on handshake")
	}
	c.cfg.Metrics.HandshakeTimeout()
	c.Close(context.Background())
}

// Close forcibly closes the socket and tears the connection down.
func (c *Connection) Close(ctx context.Context) {
	if err := c.transport.Close(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("transport close failed")
	}
	c.Disconnect()
}

// Disconnect tears the connection down after its socket closed. It
// deregisters the connection and its session before the active count is
// read, and regrants the authority token only if this connection held the
// authoritative session for its id. Calling it again is a no-op.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		c.guard.Disarm()

		session := c.Session()
		current, ok := c.registry.Session(c.id)
		shouldGrantNewToken := session != nil && ok && current == session

		c.registry.DeregisterConnection(c.id)
		c.setSession(nil)
		if shouldGrantNewToken {
			c.registry.GrantNewToken()
		}

		active := c.registry.ActiveConnections()
		c.cfg.Metrics.SetActiveConnections(active)
		c.logger.Info().Int("active_users", active).Msg("connection closed")
		close(c.closed)
	})
}
