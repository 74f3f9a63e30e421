package e2e_test

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/protocol"
	"github.com/luciancaetano/relaynet/ws"
)

// Helper function to create a WebSocket dialer
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
}

// startServer starts a relay expecting protocol 1.0 on addr and stops it
// when the test ends.
func startServer(t *testing.T, addr string, mutate func(ws.ServerConfig)) relaynet.Server {
	t.Helper()

	cfg := ws.NewConfig(addr, 1, 0, ws.NoRateLimit(), ws.AllOrigins(), nil, nil)
	if mutate != nil {
		mutate(cfg)
	}
	server := ws.New(cfg)

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Stop(stopCtx)
	})

	return server
}

func connect(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := newDialer().Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *protocol.ClientMessage) {
	t.Helper()

	if err := conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeClientMessage(msg)); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) *protocol.ServerMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}

	msg, err := protocol.DecodeServerMessage(context.Background(), data)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	return msg
}

// join connects and completes a handshake, returning the assigned id.
func join(t *testing.T, url, username string) (*websocket.Conn, uint32) {
	t.Helper()

	conn := connect(t, url)
	send(t, conn, handshake(1, 0, username))

	msg := receive(t, conn)
	if msg.Type != protocol.ServerMessageHandshake || msg.Handshake == nil {
		t.Fatalf("expected handshake ack, got %v", msg.Type)
	}
	return conn, msg.Handshake.PlayerID
}

func handshake(major, minor uint32, username string) *protocol.ClientMessage {
	characterID := uint32(0)
	return &protocol.ClientMessage{
		Type: protocol.MessageTypeHandshake,
		Handshake: &protocol.Handshake{
			Major:       &major,
			Minor:       &minor,
			CharacterID: &characterID,
			Username:    &username,
		},
	}
}

func chat(chatType protocol.ChatType, text string) *protocol.ClientMessage {
	return &protocol.ClientMessage{
		Type: protocol.MessageTypeChat,
		Chat: &protocol.Chat{Type: chatType, Message: &text},
	}
}
