package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/relaynet/internal/protocol"
	"github.com/luciancaetano/relaynet/internal/relay"
)

const readTimeout = 2 * time.Second

func ptr[T any](v T) *T {
	return &v
}

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		RateLimitConfig: NoRateLimit(),
		CheckOrigin:     func(*http.Request) bool { return true },
		Relay: &relay.Config{
			MajorVersion:      1,
			MinorVersion:      0,
			ConnectionTimeout: time.Hour,
			Logger:            zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}
}

// startServer serves s over httptest and returns the /ws URL.
func startServer(t *testing.T, cfg *ServerConfig) (*Server, *httptest.Server, string) {
	t.Helper()

	s := New(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return s, ts, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame []byte) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(readTimeout))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, messageType)
	return data
}

func readServerMessage(t *testing.T, conn *websocket.Conn) *protocol.ServerMessage {
	t.Helper()
	msg, err := protocol.DecodeServerMessage(context.Background(), readFrame(t, conn))
	require.NoError(t, err)
	return msg
}

// readCloseCode reads until the server closes the socket.
func readCloseCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr.Code
	}
}

func handshakeFrame(major, minor uint32, username string) []byte {
	return protocol.EncodeClientMessage(&protocol.ClientMessage{
		Type: protocol.MessageTypeHandshake,
		Handshake: &protocol.Handshake{
			Major:       ptr(major),
			Minor:       ptr(minor),
			CharacterID: ptr(uint32(3)),
			Username:    ptr(username),
		},
	})
}

func pingFrame() []byte {
	return protocol.EncodeClientMessage(&protocol.ClientMessage{
		Type: protocol.MessageTypePing,
		Ping: &protocol.Ping{},
	})
}
