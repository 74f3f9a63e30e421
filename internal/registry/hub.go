// Package registry tracks the live connections and player sessions of a
// server and performs all cross-connection fan-out.
package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/protocol"
	"github.com/luciancaetano/relaynet/internal/relay"
)

var (
	// ErrServerFull is returned by Connect when every player id is taken.
	ErrServerFull = errors.New(relaynet.ErrServerFull)

	// ErrUnknownConnection is returned when a session is registered by a
	// connection the hub does not track.
	ErrUnknownConnection = errors.New("registry: unknown connection")
)

// CommandPlayers lists the players on the server.
const CommandPlayers = "/players"

// Hub is the in-memory registry. It implements relay.Registry.
type Hub struct {
	maxPlayers int
	logger     zerolog.Logger

	mu          sync.RWMutex
	connections map[uint32]*relay.Connection
	sessions    map[uint32]*relay.Session
	metadata    map[uint32][]byte
	token       string
}

var _ relay.Registry = (*Hub)(nil)

// NewHub creates a hub with room for maxPlayers connections. Values outside
// 1..255 fall back to relaynet.DefaultMaxPlayers.
func NewHub(maxPlayers int, logger zerolog.Logger) *Hub {
	if maxPlayers <= 0 || maxPlayers > 255 {
		maxPlayers = relaynet.DefaultMaxPlayers
	}
	return &Hub{
		maxPlayers:  maxPlayers,
		logger:      logger.With().Str("component", "registry").Logger(),
		connections: make(map[uint32]*relay.Connection),
		sessions:    make(map[uint32]*relay.Session),
		metadata:    make(map[uint32][]byte),
		token:       uuid.NewString(),
	}
}

// MaxPlayers returns the capacity of the hub.
func (h *Hub) MaxPlayers() int {
	return h.maxPlayers
}

// Connect assigns the lowest free id in 1..MaxPlayers and registers the
// connection that newConn builds for it.
func (h *Hub) Connect(newConn func(id uint32) *relay.Connection) (*relay.Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := uint32(1); id <= uint32(h.maxPlayers); id++ {
		if _, taken := h.connections[id]; taken {
			continue
		}
		conn := newConn(id)
		h.connections[id] = conn
		return conn, nil
	}
	return nil, ErrServerFull
}

// Connection returns the live connection with the given id.
func (h *Hub) Connection(id uint32) (*relay.Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.connections[id]
	return conn, ok
}

// RegisterSession records the session of owner. It fails with
// ErrUnknownConnection when owner no longer holds the session's id, e.g.
// after it was torn down and the id was handed to a new socket.
func (h *Hub) RegisterSession(owner *relay.Connection, s *relay.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, ok := h.connections[s.ConnectionID()]; !ok || conn != owner {
		return ErrUnknownConnection
	}
	h.sessions[s.ConnectionID()] = s
	return nil
}

func (h *Hub) Session(id uint32) (*relay.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) DeregisterConnection(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, id)
	delete(h.sessions, id)
}

// GrantNewToken rotates the authority token so that credentials issued to a
// departed player can no longer be replayed.
func (h *Hub) GrantNewToken() {
	token := uuid.NewString()

	h.mu.Lock()
	h.token = token
	h.mu.Unlock()

	h.logger.Debug().Msg("authority token regranted")
}

// Token returns the current authority token.
func (h *Hub) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// AggregateMetadata stores the entry under its address. The latest write for
// an address wins.
func (h *Hub) AggregateMetadata(meta protocol.Meta) {
	data := append([]byte{}, meta.Data...)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.metadata[meta.Address] = data
}

// Metadata returns a copy of the aggregated metadata.
func (h *Hub) Metadata() map[uint32][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[uint32][]byte, len(h.metadata))
	for addr, data := range h.metadata {
		out[addr] = append([]byte{}, data...)
	}
	return out
}

func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Players returns the handshaked players ordered by id.
func (h *Hub) Players() []protocol.PlayerEntry {
	h.mu.RLock()
	players := make([]protocol.PlayerEntry, 0, len(h.sessions))
	for id, s := range h.sessions {
		players = append(players, protocol.PlayerEntry{
			ID:          id,
			Username:    s.Username(),
			CharacterID: s.CharacterID(),
		})
	}
	h.mu.RUnlock()

	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

// BroadcastGlobal delivers a chat line to every handshaked player. Senders
// without a session are ignored.
func (h *Hub) BroadcastGlobal(sender *relay.Connection, text string) {
	session := sender.Session()
	if session == nil {
		return
	}
	msg := protocol.NewChat(protocol.ChatGlobal, text, sender.ID(), session.Username())

	for _, conn := range h.players() {
		h.send(conn, msg)
	}
}

// SendPrivate delivers a chat line to one player. The sender is told when
// the receiver does not exist.
func (h *Hub) SendPrivate(sender *relay.Connection, receiverID uint32, text string) {
	session := sender.Session()
	if session == nil {
		return
	}

	h.mu.RLock()
	receiver, ok := h.connections[receiverID]
	_, handshaked := h.sessions[receiverID]
	h.mu.RUnlock()

	if !ok || !handshaked {
		h.send(sender, protocol.NewError(protocol.ErrorBadRequest, relaynet.ErrReceiverNotFound))
		return
	}
	h.send(receiver, protocol.NewChat(protocol.ChatPrivate, text, sender.ID(), session.Username()))
}

// DispatchCommand runs a chat command for sender.
func (h *Hub) DispatchCommand(sender *relay.Connection, text string, args []string) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case CommandPlayers:
		h.send(sender, protocol.NewPlayerList(h.Players()))
	default:
		h.logger.Debug().Str("command", text).Strs("args", args).Msg("unknown command")
		h.send(sender, protocol.NewError(protocol.ErrorBadRequest, relaynet.ErrCommandUnknown))
	}
}

// players returns the connections that completed a handshake.
func (h *Hub) players() []*relay.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*relay.Connection, 0, len(h.sessions))
	for id := range h.sessions {
		if conn, ok := h.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

func (h *Hub) send(conn *relay.Connection, msg *protocol.ServerMessage) {
	if err := conn.Send(context.Background(), msg); err != nil {
		h.logger.Debug().Err(err).Uint32("conn_id", conn.ID()).Msg("fan-out write failed")
	}
}
