package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/metrics"
	"github.com/luciancaetano/relaynet/internal/protocol"
	"github.com/luciancaetano/relaynet/internal/registry"
	"github.com/luciancaetano/relaynet/internal/relay"
)

// CheckOriginFn validates the origin of a WebSocket upgrade request.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called once a socket has been assigned a player id, before
// its read loop starts. It runs on the accepting goroutine.
type OnConnectFn = func(connID uint32, remoteAddr string)

// OnClientDisconnectFn is called after a connection was torn down. voluntary
// is true when the client closed the socket itself.
type OnClientDisconnectFn = func(connID uint32, voluntary bool)

// OnFaultFn receives the unexpected faults raised in production mode.
type OnFaultFn = func(connID uint32, err error)

type ServerConfig struct {
	Addr               string
	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn
	OnFault            OnFaultFn

	// Relay configures the protocol engine of every connection.
	Relay *relay.Config

	// MaxPlayers is the number of concurrent connections; zero uses
	// relaynet.DefaultMaxPlayers.
	MaxPlayers int

	Logger zerolog.Logger

	// Metrics and Gatherer back /metrics. A nil Gatherer uses
	// prometheus.DefaultGatherer.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration.
// Player data is synced every frame, so it allows 100 messages per second
// with a burst of 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server accepts WebSocket connections and feeds their frames to the relay.
// It is the fault boundary of the process: production faults returned by a
// connection are logged, counted and handed to OnFault.
type Server struct {
	addr     string
	server   *http.Server
	router   chi.Router
	hub      *registry.Hub
	clients  sync.Map // map[uint32]*Client
	relayCfg *relay.Config
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	rateLimitConfig *RateLimitConfig

	mu           sync.RWMutex
	running      bool
	listenAddr   net.Addr
	upgrader     websocket.Upgrader
	onConnect    OnConnectFn
	onDisconnect OnClientDisconnectFn
	onFault      OnFaultFn
}

// New creates a server. A nil Relay config gets the server's logger; the
// relay inherits the server's metrics when it has none of its own.
func New(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	relayCfg := cfg.Relay
	if relayCfg == nil {
		relayCfg = &relay.Config{Logger: cfg.Logger}
	}
	if relayCfg.Metrics == nil {
		relayCfg.Metrics = cfg.Metrics
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		addr:            cfg.Addr,
		hub:             registry.NewHub(cfg.MaxPlayers, cfg.Logger),
		relayCfg:        relayCfg,
		logger:          cfg.Logger.With().Str("component", "websocket").Logger(),
		metrics:         cfg.Metrics,
		rateLimitConfig: cfg.RateLimitConfig,
		onConnect:       cfg.OnConnect,
		onDisconnect:    cfg.OnClientDisconnect,
		onFault:         cfg.OnFault,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.router = r

	return s
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(relaynet.ErrServerAlreadyRunning)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.running = true
	s.listenAddr = ln.Addr()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Int("max_players", s.hub.MaxPlayers()).
		Msg("relay listening")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(stopCtx)
	}()

	return nil
}

// Addr returns the address the server listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}

// Stop closes every client connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	closing := 0
	s.clients.Range(func(_, value any) bool {
		if client, ok := value.(*Client); ok && client.IsAlive() {
			client.CloseWithCode(ctx, websocket.CloseGoingAway, "server shutting down")
			closing++
		}
		return true
	})
	s.logger.Info().Int("clients", closing).Msg("relay stopping")

	return srv.Shutdown(ctx)
}

// Players returns the handshaked players ordered by id.
func (s *Server) Players() []relaynet.Player {
	entries := s.hub.Players()
	players := make([]relaynet.Player, len(entries))
	for i, e := range entries {
		players[i] = relaynet.Player{ID: e.ID, Username: e.Username, CharacterID: e.CharacterID}
	}
	return players
}

// ActiveConnections returns the number of live connections.
func (s *Server) ActiveConnections() int {
	return s.hub.ActiveConnections()
}

// MaxPlayers returns the connection capacity.
func (s *Server) MaxPlayers() int {
	return s.hub.MaxPlayers()
}

// Hub returns the registry shared by all connections.
func (s *Server) Hub() *registry.Hub {
	return s.hub
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	conn.SetReadLimit(protocol.MaxFrameSize)

	client := NewClient(conn, r.RemoteAddr, s.rateLimitConfig)
	rc, err := s.hub.Connect(func(id uint32) *relay.Connection {
		return relay.NewConnection(id, client, s.hub, s.relayCfg)
	})
	if err != nil {
		s.deny(client, err)
		return
	}

	s.clients.Store(rc.ID(), client)
	s.metrics.SetActiveConnections(s.hub.ActiveConnections())
	s.logger.Info().
		Uint32("conn_id", rc.ID()).
		Str("client_id", client.ID()).
		Str("remote_addr", client.RemoteAddr()).
		Msg("connection opened")

	go s.handleClient(client, rc)
}

// deny rejects a socket that could not be given a player id.
func (s *Server) deny(client *Client, err error) {
	ctx := context.Background()
	if errors.Is(err, registry.ErrServerFull) {
		s.logger.Warn().Str("remote_addr", client.RemoteAddr()).Msg("server full")
		s.metrics.Denied(protocol.DeniedServerFull.String())
		client.Send(ctx, protocol.EncodeServerMessage(protocol.NewServerFull(uint32(s.hub.MaxPlayers()))))
		client.CloseWithCode(ctx, websocket.CloseTryAgainLater, relaynet.ErrServerFull)
		return
	}
	s.logger.Error().Err(err).Msg("connect failed")
	client.CloseWithCode(ctx, websocket.CloseInternalServerErr, "")
}

// handleClient reads frames of one socket and hands them to its connection
// one at a time.
func (s *Server) handleClient(client *Client, rc *relay.Connection) {
	voluntary := false
	defer func() {
		client.Close(context.Background())
		rc.Disconnect()
		s.forget(rc.ID(), client)

		if s.onDisconnect != nil {
			s.onDisconnect(rc.ID(), voluntary)
		}
	}()

	client.conn.SetReadDeadline(time.Now().Add(readWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	if s.onConnect != nil {
		s.onConnect(rc.ID(), client.RemoteAddr())
	}

	for {
		messageType, data, err := client.conn.ReadMessage()
		if err != nil {
			voluntary = websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Uint32("conn_id", rc.ID()).Msg("unexpected close")
			}
			return
		}

		client.conn.SetReadDeadline(time.Now().Add(readWait))

		if !client.CheckRateLimit() {
			s.logger.Warn().
				Uint32("conn_id", rc.ID()).
				Str("remote_addr", client.RemoteAddr()).
				Msg("rate limit exceeded")
			s.metrics.RateLimited()
			client.CloseWithCode(context.Background(), websocket.ClosePolicyViolation, "Rate limit exceeded")
			return
		}

		if messageType != websocket.BinaryMessage {
			s.logger.Debug().Uint32("conn_id", rc.ID()).Int("type", messageType).Msg("ignoring non-binary frame")
			continue
		}

		if err := rc.HandleMessage(client.Context(), data); err != nil {
			s.fault(rc.ID(), err)
		}
	}
}

// forget drops client from the live set unless its id already belongs to a
// newer socket.
func (s *Server) forget(id uint32, client *Client) {
	s.clients.CompareAndDelete(id, client)
}

func (s *Server) fault(connID uint32, err error) {
	s.logger.Error().Err(err).Uint32("conn_id", connID).Msg("unexpected fault")
	s.metrics.Fault()
	if s.onFault != nil {
		s.onFault(connID, err)
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(healthResponse{
		Status:     "ok",
		Players:    s.hub.ActiveConnections(),
		MaxPlayers: s.hub.MaxPlayers(),
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("healthz write failed")
	}
}
