package relay

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/protocol"
)

// playerIDOffset is where a PLAYER_DATA blob embeds the sender's id.
const playerIDOffset = 3

// dispatch routes a decoded message to its handler. raw is the frame as it
// was received.
func (c *Connection) dispatch(ctx context.Context, raw []byte, msg *protocol.ClientMessage) (err error) {
	// Liveness only depends on the client having started to sync data.
	if msg.Type == protocol.MessageTypePlayerData {
		c.guard.Disarm()
	}

	ctx, span := c.cfg.tracer().Start(ctx, "relay.dispatch",
		trace.WithAttributes(
			attribute.String("message.type", msg.Type.String()),
			attribute.Int64("conn.id", int64(c.id)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	c.cfg.Metrics.MessageReceived(msg.Type.String())

	if msg.Type < protocol.MessageTypeHandshake || msg.Type > protocol.MessageTypeChat {
		return NewBadRequest(relaynet.ErrMessageTypeUnknown)
	}
	if !payloadMatches(msg) {
		return NewBadRequest(relaynet.ErrTypeMismatch)
	}

	switch msg.Type {
	case protocol.MessageTypeHandshake:
		return c.onHandshake(ctx, msg.Handshake)
	case protocol.MessageTypePing:
		return c.onPing(ctx, raw)
	case protocol.MessageTypePlayerUpdate:
		return c.onPlayerUpdate(msg.Player)
	case protocol.MessageTypePlayerData:
		return c.onPlayerData(msg.PlayerData)
	case protocol.MessageTypeMetaData:
		return c.onMetaData(msg.MetaData)
	default:
		return c.onChat(msg.Chat)
	}
}

// payloadMatches reports whether no sub-message other than the one belonging
// to the declared type is populated.
func payloadMatches(msg *protocol.ClientMessage) bool {
	populated := 0
	for _, set := range [...]bool{
		msg.Handshake != nil,
		msg.Ping != nil,
		msg.Player != nil,
		msg.PlayerData != nil,
		msg.MetaData != nil,
		msg.Chat != nil,
	} {
		if set {
			populated++
		}
	}

	var own bool
	switch msg.Type {
	case protocol.MessageTypeHandshake:
		own = msg.Handshake != nil
	case protocol.MessageTypePing:
		own = msg.Ping != nil
	case protocol.MessageTypePlayerUpdate:
		own = msg.Player != nil
	case protocol.MessageTypePlayerData:
		own = msg.PlayerData != nil
	case protocol.MessageTypeMetaData:
		own = msg.MetaData != nil
	case protocol.MessageTypeChat:
		own = msg.Chat != nil
	}
	if own {
		populated--
	}
	return populated == 0
}

func (c *Connection) onPing(ctx context.Context, raw []byte) error {
	c.write(ctx, raw)
	return nil
}

func (c *Connection) onPlayerUpdate(p *protocol.Player) error {
	if p == nil {
		return missing("player")
	}

	session := c.Session()
	if session == nil || p.CharacterID == nil {
		return nil
	}
	session.SetCharacterID(*p.CharacterID)
	return nil
}

func (c *Connection) onPlayerData(p *protocol.PlayerData) error {
	switch {
	case p == nil:
		return missing("playerData")
	case p.DataLength == nil:
		return missing("dataLength")
	case len(p.PlayerBytes) == 0:
		return missing("playerBytes")
	case p.PlayerBytes[0].PlayerData == nil:
		return missing("playerBytes.playerData")
	}

	session := c.Session()
	if session == nil {
		return nil
	}

	blob := p.PlayerBytes[0].PlayerData
	if len(blob) <= playerIDOffset || uint32(blob[playerIDOffset]) != c.id {
		c.logger.Debug().Int("length", len(blob)).Msg("dropping player data for another connection")
		return nil
	}
	session.SetPlayerData(blob)
	return nil
}

func (c *Connection) onMetaData(m *protocol.MetaData) error {
	if m == nil || len(m.Entries) == 0 {
		return missing("metaData")
	}

	for _, entry := range m.Entries {
		c.registry.AggregateMetadata(entry)
	}
	return nil
}

func (c *Connection) onChat(chat *protocol.Chat) error {
	if chat == nil {
		return missing("chat")
	}
	if chat.Message == nil || *chat.Message == "" {
		return missing("message")
	}

	text := *chat.Message
	switch chat.Type {
	case protocol.ChatGlobal:
		c.registry.BroadcastGlobal(c, text)
	case protocol.ChatPrivate:
		if chat.Private == nil || chat.Private.ReceiverID == nil {
			return missing("receiverId")
		}
		c.registry.SendPrivate(c, *chat.Private.ReceiverID, text)
	case protocol.ChatCommand:
		if chat.Command == nil {
			return missing("command")
		}
		c.registry.DispatchCommand(c, text, chat.Command.Arguments)
	default:
		return NewBadRequest(relaynet.ErrChatTypeUnknown)
	}
	return nil
}
