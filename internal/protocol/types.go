package protocol

// Compression identifies how the body of an envelope is carried.
type Compression int32

const (
	CompressionNone Compression = 0
	CompressionGzip Compression = 1
	CompressionZstd Compression = 2
)

// String returns the string representation of the compression tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "NONE"
	case CompressionGzip:
		return "GZIP"
	case CompressionZstd:
		return "ZSTD"
	default:
		return "UNKNOWN"
	}
}

// MessageType is the declared kind of a client message.
type MessageType int32

const (
	MessageTypeNone         MessageType = 0
	MessageTypeHandshake    MessageType = 1
	MessageTypePing         MessageType = 2
	MessageTypePlayerUpdate MessageType = 3
	MessageTypePlayerData   MessageType = 4
	MessageTypeMetaData     MessageType = 5
	MessageTypeChat         MessageType = 6
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageTypeHandshake:
		return "HANDSHAKE"
	case MessageTypePing:
		return "PING"
	case MessageTypePlayerUpdate:
		return "PLAYER_UPDATE"
	case MessageTypePlayerData:
		return "PLAYER_DATA"
	case MessageTypeMetaData:
		return "META_DATA"
	case MessageTypeChat:
		return "CHAT"
	default:
		return "UNKNOWN"
	}
}

// ChatType discriminates chat messages.
type ChatType int32

const (
	ChatGlobal  ChatType = 0
	ChatPrivate ChatType = 1
	ChatCommand ChatType = 2
)

// String returns the string representation of the chat type.
func (t ChatType) String() string {
	switch t {
	case ChatGlobal:
		return "GLOBAL"
	case ChatPrivate:
		return "PRIVATE"
	case ChatCommand:
		return "COMMAND"
	default:
		return "UNKNOWN"
	}
}

// Envelope is the outer wire structure of every message in both directions.
//
// Exactly one of Data and CompressedData is set: Data when Compression is
// CompressionNone, CompressedData otherwise. Data holds the still-encoded
// inline body.
type Envelope struct {
	Compression    Compression
	Data           []byte
	CompressedData []byte
}

// ClientMessage is a decoded client-to-server body. Only the sub-message
// matching Type is expected to be set.
type ClientMessage struct {
	Type       MessageType
	Handshake  *Handshake
	Ping       *Ping
	Player     *Player
	PlayerData *PlayerData
	MetaData   *MetaData
	Chat       *Chat
}

// Handshake is sent once by the client to become a player.
// Nil pointers are fields the client did not send.
type Handshake struct {
	Major       *uint32
	Minor       *uint32
	CharacterID *uint32
	Username    *string
}

// Ping carries no fields; the server echoes the whole frame.
type Ping struct{}

// Player updates mutable player attributes.
type Player struct {
	CharacterID *uint32
}

// PlayerData carries the raw player state of the sender.
type PlayerData struct {
	DataLength  *uint32
	PlayerBytes []PlayerBytes
}

// PlayerBytes is one raw state blob. PlayerData is nil when absent.
type PlayerBytes struct {
	PlayerData []byte
}

// MetaData carries game memory entries shared between players.
type MetaData struct {
	Entries []Meta
}

// Meta is a single metadata entry keyed by memory address.
type Meta struct {
	Address uint32
	Data    []byte
}

// Chat is a chat line sent by a player.
type Chat struct {
	Type    ChatType
	Message *string
	Private *PrivateChat
	Command *CommandChat
}

// PrivateChat addresses a chat line to one player.
type PrivateChat struct {
	ReceiverID *uint32
}

// CommandChat carries the arguments of a chat command.
type CommandChat struct {
	Arguments []string
}

// ServerMessageType is the kind of a server message.
type ServerMessageType int32

const (
	ServerMessageHandshake        ServerMessageType = 0
	ServerMessageConnectionDenied ServerMessageType = 1
	ServerMessageError            ServerMessageType = 2
	ServerMessageChat             ServerMessageType = 3
	ServerMessagePlayerList       ServerMessageType = 4
)

// String returns the string representation of the server message type.
func (t ServerMessageType) String() string {
	switch t {
	case ServerMessageHandshake:
		return "HANDSHAKE"
	case ServerMessageConnectionDenied:
		return "CONNECTION_DENIED"
	case ServerMessageError:
		return "ERROR"
	case ServerMessageChat:
		return "CHAT"
	case ServerMessagePlayerList:
		return "PLAYER_LIST"
	default:
		return "UNKNOWN"
	}
}

// serverClientTypeServerMessage is the only top-level server-to-client kind.
const serverClientTypeServerMessage = 0

// ErrorType classifies an error sent to the client.
type ErrorType int32

const (
	ErrorBadRequest          ErrorType = 0
	ErrorInternalServerError ErrorType = 1
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrorBadRequest:
		return "BAD_REQUEST"
	case ErrorInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	default:
		return "UNKNOWN"
	}
}

// DeniedReason explains a CONNECTION_DENIED message.
type DeniedReason int32

const (
	DeniedWrongVersion DeniedReason = 0
	DeniedServerFull   DeniedReason = 1
)

// String returns the string representation of the denial reason.
func (r DeniedReason) String() string {
	switch r {
	case DeniedWrongVersion:
		return "WRONG_VERSION"
	case DeniedServerFull:
		return "SERVER_FULL"
	default:
		return "UNKNOWN"
	}
}

// ServerMessage is a server-to-client message. Only the sub-message matching
// Type is set.
type ServerMessage struct {
	Type             ServerMessageType
	Handshake        *ServerHandshake
	ConnectionDenied *ConnectionDenied
	Error            *Error
	Chat             *ServerChat
	PlayerList       *PlayerList
}

// ServerHandshake acknowledges a successful handshake.
type ServerHandshake struct {
	PlayerID uint32
}

// ConnectionDenied tells the client why it cannot join.
type ConnectionDenied struct {
	Reason       DeniedReason
	WrongVersion *WrongVersion
	ServerFull   *ServerFull
}

// WrongVersion carries the version the server expects.
type WrongVersion struct {
	MajorVersion uint32
	MinorVersion uint32
}

// ServerFull carries the player capacity of the server.
type ServerFull struct {
	MaxPlayers uint32
}

// Error is a classified error with a human-readable message.
type Error struct {
	Type    ErrorType
	Message string
}

// ServerChat is a chat line delivered to a client.
type ServerChat struct {
	Type       ChatType
	Message    string
	SenderID   uint32
	SenderName string
}

// PlayerList lists the players currently on the server.
type PlayerList struct {
	Players []PlayerEntry
}

// PlayerEntry describes one player in a PlayerList.
type PlayerEntry struct {
	ID          uint32
	Username    string
	CharacterID uint32
}
