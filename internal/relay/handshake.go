package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/protocol"
)

// ValidateHandshake checks the declared version of a complete handshake
// against the expected one and builds the session for connection id.
// It returns ErrWrongVersion when the versions differ.
func ValidateHandshake(id uint32, h *protocol.Handshake, major, minor uint32) (*Session, error) {
	if formatVersion(*h.Major, *h.Minor) != formatVersion(major, minor) {
		return nil, ErrWrongVersion
	}
	return NewSession(id, *h.Username, *h.CharacterID), nil
}

func formatVersion(major, minor uint32) string {
	return strconv.FormatUint(uint64(major), 10) + "." + strconv.FormatUint(uint64(minor), 10)
}

func (c *Connection) onHandshake(ctx context.Context, h *protocol.Handshake) error {
	switch {
	case h == nil:
		return missing("handshake")
	case h.Major == nil:
		return missing("major")
	case h.Minor == nil:
		return missing("minor")
	case h.CharacterID == nil:
		return missing("characterId")
	case h.Username == nil:
		return missing("username")
	}

	if c.Session() != nil {
		return NewBadRequest(relaynet.ErrAlreadyHandshaked)
	}

	if err := c.admit(ctx, h); err != nil {
		c.logger.Error().Err(err).Msg("handshake failed")
		c.cfg.Metrics.Handshake("failed")
	}
	return nil
}

// admit runs the handshake gate. Its failures never reach the client.
func (c *Connection) admit(ctx context.Context, h *protocol.Handshake) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	session, err := ValidateHandshake(c.id, h, c.cfg.MajorVersion, c.cfg.MinorVersion)
	if errors.Is(err, ErrWrongVersion) {
		c.logger.Debug().
			Uint32("major", *h.Major).
			Uint32("minor", *h.Minor).
			Msg("wrong protocol version")
		c.cfg.Metrics.Handshake("wrong_version")
		return c.Send(ctx, protocol.NewWrongVersion(c.cfg.MajorVersion, c.cfg.MinorVersion))
	}

	if err := c.registry.RegisterSession(c, session); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	c.setSession(session)

	c.logger.Info().
		Str("username", session.Username()).
		Uint32("character_id", session.CharacterID()).
		Msg("player joined")
	c.cfg.Metrics.Handshake("accepted")

	if err := c.Send(ctx, protocol.NewHandshakeAck(c.id)); err != nil {
		return fmt.Errorf("send handshake ack: %w", err)
	}
	return nil
}
