package protocol

import "google.golang.org/protobuf/encoding/protowire"

// appendVarintField appends a varint field. Zero values are written too, so
// decoders never rely on default values.
func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessageField appends a nested message produced by encode.
func appendMessageField(b []byte, num protowire.Number, encode func([]byte) []byte) []byte {
	return appendBytesField(b, num, encode(nil))
}

// EncodeEnvelope encodes an envelope. Data is written for CompressionNone,
// CompressedData otherwise.
func EncodeEnvelope(env *Envelope) []byte {
	b := appendVarintField(nil, fieldEnvelopeCompression, uint64(env.Compression))
	if env.Compression == CompressionNone {
		return appendBytesField(b, fieldEnvelopeData, env.Data)
	}
	return appendBytesField(b, fieldEnvelopeCompressedData, env.CompressedData)
}

// EncodeServerMessage encodes a server message into an uncompressed frame.
func EncodeServerMessage(msg *ServerMessage) []byte {
	return EncodeEnvelope(&Envelope{
		Compression: CompressionNone,
		Data:        EncodeServerBody(msg),
	})
}

// EncodeServerBody encodes the server-to-client body of msg.
func EncodeServerBody(msg *ServerMessage) []byte {
	b := appendVarintField(nil, fieldServerClientType, serverClientTypeServerMessage)
	return appendMessageField(b, fieldServerClientMessage, msg.appendTo)
}

func (m *ServerMessage) appendTo(b []byte) []byte {
	b = appendVarintField(b, fieldServerType, uint64(m.Type))
	if m.Handshake != nil {
		b = appendMessageField(b, fieldServerHandshake, func(b []byte) []byte {
			return appendVarintField(b, 1, uint64(m.Handshake.PlayerID))
		})
	}
	if m.ConnectionDenied != nil {
		b = appendMessageField(b, fieldServerConnectionDenied, m.ConnectionDenied.appendTo)
	}
	if m.Error != nil {
		b = appendMessageField(b, fieldServerError, func(b []byte) []byte {
			b = appendVarintField(b, 1, uint64(m.Error.Type))
			return appendStringField(b, 2, m.Error.Message)
		})
	}
	if m.Chat != nil {
		b = appendMessageField(b, fieldServerChat, func(b []byte) []byte {
			b = appendVarintField(b, 1, uint64(m.Chat.Type))
			b = appendStringField(b, 2, m.Chat.Message)
			b = appendVarintField(b, 3, uint64(m.Chat.SenderID))
			return appendStringField(b, 4, m.Chat.SenderName)
		})
	}
	if m.PlayerList != nil {
		b = appendMessageField(b, fieldServerPlayerList, func(b []byte) []byte {
			for _, p := range m.PlayerList.Players {
				b = appendMessageField(b, 1, func(b []byte) []byte {
					b = appendVarintField(b, 1, uint64(p.ID))
					b = appendStringField(b, 2, p.Username)
					return appendVarintField(b, 3, uint64(p.CharacterID))
				})
			}
			return b
		})
	}
	return b
}

func (d *ConnectionDenied) appendTo(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(d.Reason))
	if d.WrongVersion != nil {
		b = appendMessageField(b, 2, func(b []byte) []byte {
			b = appendVarintField(b, 1, uint64(d.WrongVersion.MajorVersion))
			return appendVarintField(b, 2, uint64(d.WrongVersion.MinorVersion))
		})
	}
	if d.ServerFull != nil {
		b = appendMessageField(b, 3, func(b []byte) []byte {
			return appendVarintField(b, 1, uint64(d.ServerFull.MaxPlayers))
		})
	}
	return b
}

// EncodeClientBody encodes a client-to-server body. Nil optional fields are
// left out, so callers can produce messages with missing fields.
func EncodeClientBody(msg *ClientMessage) []byte {
	b := appendVarintField(nil, fieldClientType, uint64(msg.Type))
	if h := msg.Handshake; h != nil {
		b = appendMessageField(b, fieldClientHandshake, func(b []byte) []byte {
			b = appendOptionalUint32(b, 1, h.Major)
			b = appendOptionalUint32(b, 2, h.Minor)
			b = appendOptionalUint32(b, 3, h.CharacterID)
			if h.Username != nil {
				b = appendStringField(b, 4, *h.Username)
			}
			return b
		})
	}
	if msg.Ping != nil {
		b = appendBytesField(b, fieldClientPing, nil)
	}
	if p := msg.Player; p != nil {
		b = appendMessageField(b, fieldClientPlayer, func(b []byte) []byte {
			return appendOptionalUint32(b, 1, p.CharacterID)
		})
	}
	if p := msg.PlayerData; p != nil {
		b = appendMessageField(b, fieldClientPlayerData, func(b []byte) []byte {
			b = appendOptionalUint32(b, 1, p.DataLength)
			for _, pb := range p.PlayerBytes {
				b = appendMessageField(b, 2, func(b []byte) []byte {
					if pb.PlayerData != nil {
						b = appendBytesField(b, 1, pb.PlayerData)
					}
					return b
				})
			}
			return b
		})
	}
	if m := msg.MetaData; m != nil {
		b = appendMessageField(b, fieldClientMetaData, func(b []byte) []byte {
			for _, meta := range m.Entries {
				b = appendMessageField(b, 1, func(b []byte) []byte {
					b = appendVarintField(b, 1, uint64(meta.Address))
					return appendBytesField(b, 2, meta.Data)
				})
			}
			return b
		})
	}
	if c := msg.Chat; c != nil {
		b = appendMessageField(b, fieldClientChat, func(b []byte) []byte {
			b = appendVarintField(b, 1, uint64(c.Type))
			if c.Message != nil {
				b = appendStringField(b, 2, *c.Message)
			}
			if c.Private != nil {
				b = appendMessageField(b, 3, func(b []byte) []byte {
					return appendOptionalUint32(b, 1, c.Private.ReceiverID)
				})
			}
			if c.Command != nil {
				b = appendMessageField(b, 4, func(b []byte) []byte {
					for _, arg := range c.Command.Arguments {
						b = appendStringField(b, 1, arg)
					}
					return b
				})
			}
			return b
		})
	}
	return b
}

// EncodeClientMessage encodes msg into an uncompressed client frame.
func EncodeClientMessage(msg *ClientMessage) []byte {
	return EncodeEnvelope(&Envelope{
		Compression: CompressionNone,
		Data:        EncodeClientBody(msg),
	})
}

func appendOptionalUint32(b []byte, num protowire.Number, v *uint32) []byte {
	if v == nil {
		return b
	}
	return appendVarintField(b, num, uint64(*v))
}

// NewHandshakeAck builds the acknowledgement of a successful handshake.
func NewHandshakeAck(playerID uint32) *ServerMessage {
	return &ServerMessage{
		Type:      ServerMessageHandshake,
		Handshake: &ServerHandshake{PlayerID: playerID},
	}
}

// NewWrongVersion builds the denial sent to clients on another version.
func NewWrongVersion(major, minor uint32) *ServerMessage {
	return &ServerMessage{
		Type: ServerMessageConnectionDenied,
		ConnectionDenied: &ConnectionDenied{
			Reason:       DeniedWrongVersion,
			WrongVersion: &WrongVersion{MajorVersion: major, MinorVersion: minor},
		},
	}
}

// NewServerFull builds the denial sent when no player slot is free.
func NewServerFull(maxPlayers uint32) *ServerMessage {
	return &ServerMessage{
		Type: ServerMessageConnectionDenied,
		ConnectionDenied: &ConnectionDenied{
			Reason:     DeniedServerFull,
			ServerFull: &ServerFull{MaxPlayers: maxPlayers},
		},
	}
}

// NewError builds a classified error message.
func NewError(errorType ErrorType, message string) *ServerMessage {
	return &ServerMessage{
		Type:  ServerMessageError,
		Error: &Error{Type: errorType, Message: message},
	}
}

// NewChat builds a chat line for delivery.
func NewChat(chatType ChatType, message string, senderID uint32, senderName string) *ServerMessage {
	return &ServerMessage{
		Type: ServerMessageChat,
		Chat: &ServerChat{
			Type:       chatType,
			Message:    message,
			SenderID:   senderID,
			SenderName: senderName,
		},
	}
}

// NewPlayerList builds a player list message.
func NewPlayerList(players []PlayerEntry) *ServerMessage {
	return &ServerMessage{
		Type:       ServerMessagePlayerList,
		PlayerList: &PlayerList{Players: players},
	}
}
