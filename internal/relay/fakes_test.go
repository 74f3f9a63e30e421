package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/relaynet/internal/protocol"
)

func ptr[T any](v T) *T {
	return &v
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  int
	sendErr error
}

func (t *fakeTransport) Send(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte{}, data...))
	return nil
}

func (t *fakeTransport) Close(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) RemoteAddr() string {
	return "127.0.0.1:50000"
}

func (t *fakeTransport) frames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte{}, t.sent...)
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type chatCall struct {
	kind       string
	senderID   uint32
	receiverID uint32
	text       string
	args       []string
}

type fakeRegistry struct {
	mu           sync.Mutex
	sessions     map[uint32]*Session
	registered   int
	deregistered []uint32
	grants       int
	metadata     []protocol.Meta
	chats        []chatCall
	registerErr  error
	panicOnMeta  bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{sessions: make(map[uint32]*Session)}
}

func (r *fakeRegistry) RegisterSession(_ *Connection, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return r.registerErr
	}
	r.registered++
	r.sessions[s.ConnectionID()] = s
	return nil
}

func (r *fakeRegistry) Session(id uint32) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *fakeRegistry) DeregisterConnection(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	r.deregistered = append(r.deregistered, id)
}

func (r *fakeRegistry) GrantNewToken() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants++
}

func (r *fakeRegistry) AggregateMetadata(meta protocol.Meta) {
	if r.panicOnMeta {
		panic("metadata store unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata = append(r.metadata, meta)
}

func (r *fakeRegistry) BroadcastGlobal(sender *Connection, text string) {
	r.record(chatCall{kind: "global", senderID: sender.ID(), text: text})
}

func (r *fakeRegistry) SendPrivate(sender *Connection, receiverID uint32, text string) {
	r.record(chatCall{kind: "private", senderID: sender.ID(), receiverID: receiverID, text: text})
}

func (r *fakeRegistry) DispatchCommand(sender *Connection, text string, args []string) {
	r.record(chatCall{kind: "command", senderID: sender.ID(), text: text, args: args})
}

func (r *fakeRegistry) ActiveConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeRegistry) record(c chatCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, c)
}

type registryState struct {
	registered   int
	deregistered []uint32
	grants       int
	metadata     []protocol.Meta
	chats        []chatCall
}

func (r *fakeRegistry) snapshot() registryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return registryState{
		registered:   r.registered,
		deregistered: append([]uint32{}, r.deregistered...),
		grants:       r.grants,
		metadata:     append([]protocol.Meta{}, r.metadata...),
		chats:        append([]chatCall{}, r.chats...),
	}
}

var errSendFailed = errors.New("send failed")

type harness struct {
	conn      *Connection
	transport *fakeTransport
	registry  *fakeRegistry
}

func newHarness(t *testing.T, id uint32, mutate func(*Config)) *harness {
	t.Helper()

	cfg := &Config{
		MajorVersion:      1,
		MinorVersion:      0,
		ConnectionTimeout: time.Hour,
		Logger:            zerolog.Nop(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{transport: &fakeTransport{}, registry: newFakeRegistry()}
	h.conn = NewConnection(id, h.transport, h.registry, cfg)
	t.Cleanup(h.conn.Disconnect)
	return h
}

// handle sends one frame and requires it to be handled without a fault.
func (h *harness) handle(t *testing.T, frame []byte) {
	t.Helper()
	require.NoError(t, h.conn.HandleMessage(context.Background(), frame))
}

// responses decodes every frame written to the transport.
func (h *harness) responses(t *testing.T) []*protocol.ServerMessage {
	t.Helper()

	var out []*protocol.ServerMessage
	for _, frame := range h.transport.frames() {
		msg, err := protocol.DecodeServerMessage(context.Background(), frame)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

// handshake completes a valid handshake and clears the transport.
func (h *harness) handshake(t *testing.T) {
	t.Helper()
	h.handle(t, handshakeFrame(1, 0, 3, "Mario"))
	require.NotNil(t, h.conn.Session())

	h.transport.mu.Lock()
	h.transport.sent = nil
	h.transport.mu.Unlock()
}

func handshakeFrame(major, minor, characterID uint32, username string) []byte {
	return protocol.EncodeClientMessage(&protocol.ClientMessage{
		Type: protocol.MessageTypeHandshake,
		Handshake: &protocol.Handshake{
			Major:       ptr(major),
			Minor:       ptr(minor),
			CharacterID: ptr(characterID),
			Username:    ptr(username),
		},
	})
}

func playerDataFrame(blob []byte) []byte {
	return protocol.EncodeClientMessage(&protocol.ClientMessage{
		Type: protocol.MessageTypePlayerData,
		PlayerData: &protocol.PlayerData{
			DataLength:  ptr(uint32(len(blob))),
			PlayerBytes: []protocol.PlayerBytes{{PlayerData: blob}},
		},
	})
}

func chatFrame(chat *protocol.Chat) []byte {
	return protocol.EncodeClientMessage(&protocol.ClientMessage{
		Type: protocol.MessageTypeChat,
		Chat: chat,
	})
}

// requireError asserts that exactly one ERROR with the given text was sent.
func requireError(t *testing.T, h *harness, errorType protocol.ErrorType, text string) {
	t.Helper()

	msgs := h.responses(t)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.ServerMessageError, msgs[0].Type)
	require.NotNil(t, msgs[0].Error)
	require.Equal(t, errorType, msgs[0].Error.Type)
	require.Equal(t, text, msgs[0].Error.Message)
}
