package relay

import (
	"errors"
	"fmt"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/protocol"
)

// ErrWrongVersion is returned by ValidateHandshake when the client speaks
// another protocol version.
var ErrWrongVersion = errors.New("relay: wrong protocol version")

// ConnectionError is a client-fault error that is reported back on the wire.
// The connection stays open after it is sent.
type ConnectionError struct {
	Message string
	Type    protocol.ErrorType
}

// NewBadRequest returns a BAD_REQUEST classified error.
func NewBadRequest(message string) *ConnectionError {
	return &ConnectionError{Message: message, Type: protocol.ErrorBadRequest}
}

// missing reports an absent required field.
func missing(field string) *ConnectionError {
	return NewBadRequest(fmt.Sprintf(relaynet.ErrFieldMissingFormat, field))
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// FaultError is an unexpected failure raised while handling a message in
// production mode. It is never written to the client.
type FaultError struct {
	ConnectionID uint32
	Err          error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("connection %d: unexpected fault: %v", e.ConnectionID, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}
