package relaynet

// Messages sent to clients in ERROR responses.
const (
	ErrDecodeFailed        = "Your message could not be decoded"
	ErrDecompressionFailed = "Your message could not be decompressed"
	ErrMessageTypeUnknown  = "Message type unknown"
	ErrTypeMismatch        = "Message type does not match payload"
	ErrChatTypeUnknown     = "Chat type unknown"
	ErrAlreadyHandshaked   = "Handshake already completed"
	ErrCommandUnknown      = "Command unknown"
	ErrReceiverNotFound    = "Receiver not found"

	// ErrFieldMissingFormat formats the message for an absent required field.
	ErrFieldMissingFormat = "%s is missing"
)

// Server errors.
const (
	ErrServerAlreadyRunning = "server already running"
	ErrServerFull           = "server is full"
	ErrConnectionClosed     = "client connection is closed"
	ErrContextCancelled     = "client context cancelled"
)

// Protocol defaults.
const (
	// DefaultMaxPlayers is the player capacity of a server. Player ids fit in
	// the single byte that PLAYER_DATA embeds them in.
	DefaultMaxPlayers = 24

	// DefaultConnectionTimeoutMillis is how long a connection may take to
	// start sending player data.
	DefaultConnectionTimeoutMillis = 10000
)
