// Package relaynet provides the connection-level protocol engine of a
// real-time multiplayer relay server.
//
// Each client socket becomes a connection that decodes a binary, optionally
// compressed protocol, gates players on a versioned handshake, reclaims
// connections that never start syncing, dispatches typed messages and
// answers faults with classified error messages.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/relaynet/ws"
//	)
//
//	// Protocol version 1.0, default rate limit (100 msgs/s, burst 200)
//	server := ws.New(ws.NewConfig(":3678", 1, 0, ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil))
//	server.Start(ctx)
//
// The relaynet binary under cmd/relaynet wires the same server to viper
// configuration, structured logging and the directory heartbeat.
//
// # Protocol Format
//
// Frames are protobuf-encoded envelopes carried in WebSocket binary
// messages:
//
//	ClientServerMessage { compression, data | compressed_data }
//
// The compression tag is NONE, GZIP or ZSTD. An uncompressed envelope
// carries the typed message inline; a compressed one carries the encoded
// message as an opaque blob. Client messages are one of HANDSHAKE, PING,
// PLAYER_UPDATE, PLAYER_DATA, META_DATA and CHAT. Server messages are
// HANDSHAKE acknowledgements, CONNECTION_DENIED, ERROR, CHAT and
// PLAYER_LIST.
//
// Maximum frame: 10MB.
//
// # Connection Lifecycle
//
//  1. The socket is assigned the lowest free player id. A full server
//     answers CONNECTION_DENIED/SERVER_FULL and closes the socket.
//  2. The client sends HANDSHAKE with the protocol version, a username and
//     a character id. A version mismatch is answered with
//     CONNECTION_DENIED/WRONG_VERSION and the socket stays open.
//  3. The first PLAYER_DATA disarms the connection timeout (10s by default).
//     Connections that never send one are closed.
//  4. Closing the socket deregisters the player.
//
// # Errors
//
// Malformed or incomplete messages are answered with a BAD_REQUEST error
// and the connection stays open. Unexpected faults are reported as
// INTERNAL_SERVER_ERROR in development mode; in production mode they are
// never written to the client and are reported to the server's fault hook
// instead.
//
// # Rate Limiting
//
// Each socket has its own token bucket:
//
//	// Default: 100 messages/second, burst 200
//	rateLimitConfig := ws.DefaultRateLimitConfig()
//
//	// Custom limits
//	rateLimitConfig := &ws.RateLimitConfig{
//	    MessagesPerSecond: 50,
//	    Burst:             100,
//	    Enabled:           true,
//	}
//
// A socket exceeding its limit is closed with a policy violation.
//
// # Thread Safety
//
// Frames of one connection are handled strictly in order. Connections only
// share state through the registry, which synchronizes internally.
package relaynet
