package rpc

import (
	"encoding/json"
	"fmt"
)

var (
	// Connection errors
	ErrAlreadyConnected  = fmt.Errorf("already connected")
	ErrNotConnected      = fmt.Errorf("not connected to server")
	ErrConnectionTimeout = fmt.Errorf("websocket connection timeout")
	ErrReadingMessage    = fmt.Errorf("error reading message")
	ErrDialingWebsocket  = fmt.Errorf("error dialing websocket server")

	// Request errors
	ErrNilRequest        = fmt.Errorf("nil request")
	ErrMarshalingRequest = fmt.Errorf("error marshaling request")
	ErrSendingRequest    = fmt.Errorf("error sending request")
	ErrNoResponse        = fmt.Errorf("no response received")
	ErrSendingPing       = fmt.Errorf("error sending ping")
)

// errorParamKey is the Params key that carries an error message.
const errorParamKey = "error"

// Error is an error whose message is safe to send to the client. Handlers
// return plain errors for internal failures; those are replaced by a generic
// message before the response leaves the node.
//
//	return rpc.Errorf("unknown account: %s", addr)
type Error struct {
	err error
}

// Errorf formats a client-facing error.
func Errorf(format string, args ...any) Error {
	return Error{
		err: fmt.Errorf(format, args...),
	}
}

func (e Error) Error() string {
	return e.err.Error()
}

func (e Error) Unwrap() error {
	return e.err
}

// NewErrorParams returns {"error": errMsg}.
func NewErrorParams(errMsg string) Params {
	raw, err := json.Marshal(errMsg)
	if err != nil {
		raw = json.RawMessage(`""`)
	}
	return Params{errorParamKey: raw}
}
