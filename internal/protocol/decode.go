package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// MaxFrameSize is the largest frame accepted from the network (10MB).
	MaxFrameSize = 10 * 1024 * 1024

	// MaxCollectionCount limits repeated fields to prevent OOM from huge
	// counts with small per-item overhead.
	MaxCollectionCount = 100_000
)

// Decoding errors.
var (
	// ErrMalformed is wrapped by every decode failure.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrEnvelopeMismatch is returned when the populated body field does not
	// belong to the compression tag.
	ErrEnvelopeMismatch = errors.New("protocol: envelope body does not match compression")

	// ErrFrameTooLarge is returned for frames over MaxFrameSize.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// Field numbers shared by both envelope directions.
const (
	fieldEnvelopeCompression    protowire.Number = 1
	fieldEnvelopeData           protowire.Number = 2
	fieldEnvelopeCompressedData protowire.Number = 3
)

// Client body field numbers.
const (
	fieldClientType       protowire.Number = 1
	fieldClientHandshake  protowire.Number = 2
	fieldClientPing       protowire.Number = 3
	fieldClientPlayer     protowire.Number = 4
	fieldClientPlayerData protowire.Number = 5
	fieldClientMetaData   protowire.Number = 6
	fieldClientChat       protowire.Number = 7
)

// Server body field numbers.
const (
	fieldServerClientType    protowire.Number = 1
	fieldServerClientMessage protowire.Number = 2

	fieldServerType             protowire.Number = 1
	fieldServerHandshake        protowire.Number = 2
	fieldServerConnectionDenied protowire.Number = 3
	fieldServerError            protowire.Number = 4
	fieldServerChat             protowire.Number = 5
	fieldServerPlayerList       protowire.Number = 6
)

// fieldFunc consumes the value of one field. It returns the number of bytes
// consumed, or 0 to have the field skipped as unknown.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk iterates the fields of a single message.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return malformed(protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func consumeVarint(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: field %d: expected varint, got wire type %d", ErrMalformed, num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, malformed(protowire.ParseError(n))
	}
	return v, n, nil
}

// consumeBytes returns the length-delimited value. The slice references b.
func consumeBytes(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: field %d: expected bytes, got wire type %d", ErrMalformed, num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, malformed(protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeUint32(num protowire.Number, typ protowire.Type, b []byte, dst **uint32) (int, error) {
	v, n, err := consumeVarint(num, typ, b)
	if err != nil {
		return 0, err
	}
	u := uint32(v)
	*dst = &u
	return n, nil
}

func consumeUint32Value(num protowire.Number, typ protowire.Type, b []byte, dst *uint32) (int, error) {
	v, n, err := consumeVarint(num, typ, b)
	if err != nil {
		return 0, err
	}
	*dst = uint32(v)
	return n, nil
}

func consumeString(num protowire.Number, typ protowire.Type, b []byte, dst **string) (int, error) {
	v, n, err := consumeBytes(num, typ, b)
	if err != nil {
		return 0, err
	}
	s := string(v)
	*dst = &s
	return n, nil
}

func consumeStringValue(num protowire.Number, typ protowire.Type, b []byte, dst *string) (int, error) {
	v, n, err := consumeBytes(num, typ, b)
	if err != nil {
		return 0, err
	}
	*dst = string(v)
	return n, nil
}

// consumeMessage decodes a nested message with decode.
func consumeMessage(num protowire.Number, typ protowire.Type, b []byte, decode func([]byte) error) (int, error) {
	v, n, err := consumeBytes(num, typ, b)
	if err != nil {
		return 0, err
	}
	if err := decode(v); err != nil {
		return 0, err
	}
	return n, nil
}

func checkCount(num protowire.Number, count int) error {
	if count >= MaxCollectionCount {
		return fmt.Errorf("%w: field %d exceeds %d entries", ErrMalformed, num, MaxCollectionCount)
	}
	return nil
}

// DecodeEnvelope decodes the outer envelope of a frame. The returned body
// slices are copies and safe to retain.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	env := &Envelope{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldEnvelopeCompression:
			v, n, err := consumeVarint(num, typ, b)
			env.Compression = Compression(v)
			return n, err
		case fieldEnvelopeData:
			v, n, err := consumeBytes(num, typ, b)
			env.Data = append([]byte{}, v...)
			return n, err
		case fieldEnvelopeCompressedData:
			v, n, err := consumeBytes(num, typ, b)
			env.CompressedData = append([]byte{}, v...)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}

	if env.Compression == CompressionNone && env.CompressedData != nil {
		return nil, ErrEnvelopeMismatch
	}
	if env.Compression != CompressionNone && env.Data != nil {
		return nil, ErrEnvelopeMismatch
	}
	return env, nil
}

// DecodeBody decodes a client-to-server message body.
func DecodeBody(data []byte) (*ClientMessage, error) {
	msg := &ClientMessage{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldClientType:
			v, n, err := consumeVarint(num, typ, b)
			msg.Type = MessageType(v)
			return n, err
		case fieldClientHandshake:
			msg.Handshake = &Handshake{}
			return consumeMessage(num, typ, b, msg.Handshake.decode)
		case fieldClientPing:
			msg.Ping = &Ping{}
			return consumeMessage(num, typ, b, func([]byte) error { return nil })
		case fieldClientPlayer:
			msg.Player = &Player{}
			return consumeMessage(num, typ, b, msg.Player.decode)
		case fieldClientPlayerData:
			msg.PlayerData = &PlayerData{}
			return consumeMessage(num, typ, b, msg.PlayerData.decode)
		case fieldClientMetaData:
			msg.MetaData = &MetaData{}
			return consumeMessage(num, typ, b, msg.MetaData.decode)
		case fieldClientChat:
			msg.Chat = &Chat{}
			return consumeMessage(num, typ, b, msg.Chat.decode)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (h *Handshake) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint32(num, typ, b, &h.Major)
		case 2:
			return consumeUint32(num, typ, b, &h.Minor)
		case 3:
			return consumeUint32(num, typ, b, &h.CharacterID)
		case 4:
			return consumeString(num, typ, b, &h.Username)
		}
		return 0, nil
	})
}

func (p *Player) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeUint32(num, typ, b, &p.CharacterID)
		}
		return 0, nil
	})
}

func (p *PlayerData) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint32(num, typ, b, &p.DataLength)
		case 2:
			if err := checkCount(num, len(p.PlayerBytes)); err != nil {
				return 0, err
			}
			var pb PlayerBytes
			n, err := consumeMessage(num, typ, b, pb.decode)
			p.PlayerBytes = append(p.PlayerBytes, pb)
			return n, err
		}
		return 0, nil
	})
}

func (p *PlayerBytes) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			v, n, err := consumeBytes(num, typ, b)
			p.PlayerData = append([]byte{}, v...)
			return n, err
		}
		return 0, nil
	})
}

func (m *MetaData) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			if err := checkCount(num, len(m.Entries)); err != nil {
				return 0, err
			}
			var meta Meta
			n, err := consumeMessage(num, typ, b, meta.decode)
			m.Entries = append(m.Entries, meta)
			return n, err
		}
		return 0, nil
	})
}

func (m *Meta) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(num, typ, b)
			m.Address = uint32(v)
			return n, err
		case 2:
			v, n, err := consumeBytes(num, typ, b)
			m.Data = append([]byte{}, v...)
			return n, err
		}
		return 0, nil
	})
}

func (c *Chat) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(num, typ, b)
			c.Type = ChatType(v)
			return n, err
		case 2:
			return consumeString(num, typ, b, &c.Message)
		case 3:
			c.Private = &PrivateChat{}
			return consumeMessage(num, typ, b, func(data []byte) error {
				return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					if num == 1 {
						return consumeUint32(num, typ, b, &c.Private.ReceiverID)
					}
					return 0, nil
				})
			})
		case 4:
			c.Command = &CommandChat{Arguments: []string{}}
			return consumeMessage(num, typ, b, func(data []byte) error {
				return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					if num == 1 {
						if err := checkCount(num, len(c.Command.Arguments)); err != nil {
							return 0, err
						}
						v, n, err := consumeBytes(num, typ, b)
						c.Command.Arguments = append(c.Command.Arguments, string(v))
						return n, err
					}
					return 0, nil
				})
			})
		}
		return 0, nil
	})
}

// DecodeServerBody decodes a server-to-client message body. It is the
// client-side counterpart of DecodeBody.
func DecodeServerBody(data []byte) (*ServerMessage, error) {
	var msg *ServerMessage
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldServerClientType:
			_, n, err := consumeVarint(num, typ, b)
			return n, err
		case fieldServerClientMessage:
			msg = &ServerMessage{}
			return consumeMessage(num, typ, b, msg.decode)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: server message is missing", ErrMalformed)
	}
	return msg, nil
}

func (m *ServerMessage) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldServerType:
			v, n, err := consumeVarint(num, typ, b)
			m.Type = ServerMessageType(v)
			return n, err
		case fieldServerHandshake:
			m.Handshake = &ServerHandshake{}
			return consumeMessage(num, typ, b, func(data []byte) error {
				return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					if num == 1 {
						return consumeUint32Value(num, typ, b, &m.Handshake.PlayerID)
					}
					return 0, nil
				})
			})
		case fieldServerConnectionDenied:
			m.ConnectionDenied = &ConnectionDenied{}
			return consumeMessage(num, typ, b, m.ConnectionDenied.decode)
		case fieldServerError:
			m.Error = &Error{}
			return consumeMessage(num, typ, b, m.Error.decode)
		case fieldServerChat:
			m.Chat = &ServerChat{}
			return consumeMessage(num, typ, b, m.Chat.decode)
		case fieldServerPlayerList:
			m.PlayerList = &PlayerList{}
			return consumeMessage(num, typ, b, m.PlayerList.decode)
		}
		return 0, nil
	})
}

func (d *ConnectionDenied) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(num, typ, b)
			d.Reason = DeniedReason(v)
			return n, err
		case 2:
			d.WrongVersion = &WrongVersion{}
			return consumeMessage(num, typ, b, func(data []byte) error {
				return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					switch num {
					case 1:
						return consumeUint32Value(num, typ, b, &d.WrongVersion.MajorVersion)
					case 2:
						return consumeUint32Value(num, typ, b, &d.WrongVersion.MinorVersion)
					}
					return 0, nil
				})
			})
		case 3:
			d.ServerFull = &ServerFull{}
			return consumeMessage(num, typ, b, func(data []byte) error {
				return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					if num == 1 {
						return consumeUint32Value(num, typ, b, &d.ServerFull.MaxPlayers)
					}
					return 0, nil
				})
			})
		}
		return 0, nil
	})
}

func (e *Error) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(num, typ, b)
			e.Type = ErrorType(v)
			return n, err
		case 2:
			return consumeStringValue(num, typ, b, &e.Message)
		}
		return 0, nil
	})
}

func (c *ServerChat) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(num, typ, b)
			c.Type = ChatType(v)
			return n, err
		case 2:
			return consumeStringValue(num, typ, b, &c.Message)
		case 3:
			return consumeUint32Value(num, typ, b, &c.SenderID)
		case 4:
			return consumeStringValue(num, typ, b, &c.SenderName)
		}
		return 0, nil
	})
}

func (l *PlayerList) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		if err := checkCount(num, len(l.Players)); err != nil {
			return 0, err
		}
		var p PlayerEntry
		n, err := consumeMessage(num, typ, b, p.decode)
		l.Players = append(l.Players, p)
		return n, err
	})
}

func (p *PlayerEntry) decode(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint32Value(num, typ, b, &p.ID)
		case 2:
			return consumeStringValue(num, typ, b, &p.Username)
		case 3:
			return consumeUint32Value(num, typ, b, &p.CharacterID)
		}
		return 0, nil
	})
}
