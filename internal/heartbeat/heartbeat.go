// Package heartbeat announces the server and its players to a server
// directory.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/relaynet"
)

// ErrUnauthorized is returned when the directory rejects the API key.
var ErrUnauthorized = errors.New("heartbeat: api key rejected")

const requestTimeout = 10 * time.Second

// PlayerSource provides the players to announce.
type PlayerSource interface {
	Players() []relaynet.Player
}

// Config describes the announced server and the directory endpoints.
type Config struct {
	Name        string
	Domain      string
	Description string
	Port        int
	APIKey      string
	Interval    time.Duration
	ListURL     string
	APIURL      string
	IPURL       string
}

// Location is the public address and position of the server.
type Location struct {
	IP          string  `json:"ip,omitempty"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
}

type ipLookup struct {
	Query       string  `json:"query"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Announcement is the body posted to the directory.
type Announcement struct {
	Name        string `json:"name"`
	Domain      string `json:"domain,omitempty"`
	Description string `json:"description,omitempty"`
	Port        int    `json:"port"`
	Location
	Players []relaynet.Player `json:"players"`
}

// Reporter periodically posts an Announcement.
type Reporter struct {
	cfg      Config
	client   *resty.Client
	source   PlayerSource
	logger   zerolog.Logger
	location Location
}

// New creates a reporter. Nothing is sent before Run.
func New(cfg Config, source PlayerSource, logger zerolog.Logger) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Reporter{
		cfg:    cfg,
		client: resty.New().SetTimeout(requestTimeout),
		source: source,
		logger: logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Locate resolves the public address of the server.
func (r *Reporter) Locate(ctx context.Context) error {
	var lookup ipLookup
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&lookup).
		Get(r.cfg.IPURL)
	if err != nil {
		return fmt.Errorf("heartbeat: ip lookup: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("heartbeat: ip lookup: unexpected status %d", resp.StatusCode())
	}

	r.location = Location{
		IP:          lookup.Query,
		Country:     lookup.Country,
		CountryCode: lookup.CountryCode,
		Lat:         lookup.Lat,
		Lon:         lookup.Lon,
	}
	return nil
}

// Location returns the result of the last successful Locate.
func (r *Reporter) Location() Location {
	return r.location
}

// Announcement builds the body of the next announcement.
func (r *Reporter) Announcement() Announcement {
	players := r.source.Players()
	if players == nil {
		players = []relaynet.Player{}
	}
	return Announcement{
		Name:        r.cfg.Name,
		Domain:      r.cfg.Domain,
		Description: r.cfg.Description,
		Port:        r.cfg.Port,
		Location:    r.location,
		Players:     players,
	}
}

// Announce posts one announcement.
func (r *Reporter) Announce(ctx context.Context) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "APIKEY "+r.cfg.APIKey).
		SetBody(r.Announcement()).
		Post(r.cfg.APIURL)
	if err != nil {
		return fmt.Errorf("heartbeat: announce: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.IsError() {
		return fmt.Errorf("heartbeat: announce: unexpected status %d", resp.StatusCode())
	}
	return nil
}

// Run locates the server once and then announces it every interval until
// ctx is done. A failed lookup or a rejected API key disables the reporter;
// other failures are retried on the next tick. It never fails the caller.
func (r *Reporter) Run(ctx context.Context) error {
	if err := r.Locate(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("heartbeat disabled, the lookup service is unavailable")
		return nil
	}
	r.logger.Info().Str("list_url", r.cfg.ListURL).Msg("heartbeat enabled")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		err := r.Announce(ctx)
		switch {
		case errors.Is(err, ErrUnauthorized):
			r.logger.Error().Msg("heartbeat disabled, the api key was rejected")
			return nil
		case err != nil && ctx.Err() == nil:
			r.logger.Warn().Err(err).Msg("announce failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
