package relay

import (
	"context"

	"github.com/luciancaetano/relaynet/internal/protocol"
)

// Registry tracks every live connection and session and performs all
// cross-connection fan-out. Implementations synchronize internally; a
// Connection calls it from its own goroutine without holding any lock.
type Registry interface {
	// RegisterSession adds the session of a freshly handshaked player. It
	// fails unless owner still holds the session's connection id.
	RegisterSession(owner *Connection, s *Session) error

	// Session returns the authoritative session for a connection id.
	Session(id uint32) (*Session, bool)

	// DeregisterConnection removes the connection and its session.
	DeregisterConnection(id uint32)

	// GrantNewToken reissues the authority token. It is called only when a
	// disconnecting connection held the authoritative session for its id.
	GrantNewToken()

	// AggregateMetadata merges one metadata entry into the shared state.
	AggregateMetadata(meta protocol.Meta)

	// BroadcastGlobal delivers a chat line to every player.
	BroadcastGlobal(sender *Connection, text string)

	// SendPrivate delivers a chat line to a single player.
	SendPrivate(sender *Connection, receiverID uint32, text string)

	// DispatchCommand runs a chat command on behalf of sender.
	DispatchCommand(sender *Connection, text string, args []string)

	// ActiveConnections returns the number of live connections.
	ActiveConnections() int
}

// Transport is the exclusive handle on the socket of one connection.
type Transport interface {
	// Send queues a binary frame for delivery.
	Send(ctx context.Context, data []byte) error

	// Close closes the underlying socket. Closing twice is a no-op.
	Close(ctx context.Context) error

	// RemoteAddr returns the peer address.
	RemoteAddr() string
}
