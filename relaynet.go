package relaynet

import (
	"context"
	"net"
	"net/http"
)

// Server is a relay server accepting player connections over WebSocket.
//
// Every socket is assigned the lowest free player id, must complete a
// handshake declaring the server's protocol version and must start sending
// player data before the connection timeout elapses.
//
// Example usage:
//
//	import "github.com/luciancaetano/relaynet/ws"
//
//	server := ws.New(ws.NewConfig(":3678", 1, 0, ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil))
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop(context.Background())
type Server interface {
	// Start listens on the configured address and serves in the background
	// until Stop is called or ctx is cancelled.
	//
	// Returns an error if the server is already running or if the address
	// cannot be bound.
	Start(ctx context.Context) error

	// Stop closes every connection and shuts the HTTP server down.
	Stop(ctx context.Context) error

	// Handler returns the HTTP routes: /ws, /healthz and /metrics.
	Handler() http.Handler

	// Addr returns the bound address, or nil before Start.
	Addr() net.Addr

	// Players returns the players that completed a handshake, ordered by id.
	Players() []Player

	// ActiveConnections returns the number of live connections, handshaked
	// or not.
	ActiveConnections() int

	// MaxPlayers returns the connection capacity.
	MaxPlayers() int
}

// Player describes a connected player.
type Player struct {
	ID          uint32 `json:"id"`
	Username    string `json:"username"`
	CharacterID uint32 `json:"characterId"`
}
