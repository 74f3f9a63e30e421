package ws

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/config"
	"github.com/luciancaetano/relaynet/internal/metrics"
	"github.com/luciancaetano/relaynet/internal/relay"
	"github.com/luciancaetano/relaynet/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn
type OnFaultFn = websocket.OnFaultFn
type ServerConfig = *websocket.ServerConfig

// New creates a relay server.
//
// Example:
//
//	server := ws.New(ws.NewConfig(":3678", 1, 0, ws.DefaultRateLimitConfig(), ws.AllOrigins(), func(connID uint32, remoteAddr string) {
//	    log.Printf("player %d connected from %s", connID, remoteAddr)
//	}, nil))
func New(cfg ServerConfig) relaynet.Server {
	return websocket.New(cfg)
}

// NewConfig returns a development configuration expecting protocol version
// major.minor. Logging is disabled; set Logger on the result to enable it.
func NewConfig(addr string, major, minor uint32, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) ServerConfig {
	return &websocket.ServerConfig{
		Addr:               addr,
		RateLimitConfig:    rateLimitConfig,
		CheckOrigin:        checkOrigin,
		OnConnect:          onConnect,
		OnClientDisconnect: onDisconnect,
		Relay: &relay.Config{
			MajorVersion: major,
			MinorVersion: minor,
			Logger:       zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}
}

// FromConfig builds the server configuration of the relaynet binary. The
// collectors are registered with reg.
func FromConfig(cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) ServerConfig {
	m := metrics.New(metrics.DefaultNamespace, reg)

	rateLimit := NoRateLimit()
	if cfg.RateLimit.Enabled {
		rateLimit = &RateLimitConfig{
			MessagesPerSecond: rate.Limit(cfg.RateLimit.MessagesPerSecond),
			Burst:             cfg.RateLimit.Burst,
			Enabled:           true,
		}
	}

	return &websocket.ServerConfig{
		Addr:            cfg.Addr,
		RateLimitConfig: rateLimit,
		CheckOrigin:     AllOrigins(),
		MaxPlayers:      cfg.MaxPlayers,
		Relay: &relay.Config{
			MajorVersion:      cfg.Major,
			MinorVersion:      cfg.Minor,
			Production:        cfg.Production(),
			ConnectionTimeout: cfg.ConnectionTimeout,
			Logger:            logger,
			Metrics:           m,
		},
		Logger:   logger,
		Metrics:  m,
		Gatherer: reg,
	}
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
