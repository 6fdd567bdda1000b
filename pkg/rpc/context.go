package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/djeraseit/parity/pkg/sign"
)

// Handler processes a request. Middleware calls c.Next() to continue the
// chain; the final handler calls Succeed or Fail.
type Handler func(c *Context)

// SendResponseFunc pushes an unsolicited signed message to a connection.
type SendResponseFunc func(method string, params Params)

// Context carries one request through its handler chain.
type Context struct {
	// Context is cancelled when the connection closes. It carries the
	// request-scoped logger (see log.FromContext).
	Context context.Context
	// ConnectionID identifies the websocket connection that sent the request.
	ConnectionID string
	// Signer signs the response.
	Signer sign.Signer
	// Request is the decoded client request.
	Request Request
	// Response is filled in by Succeed or Fail.
	Response Response
	// Storage is shared by all requests of one connection.
	Storage *SafeStorage

	handlers []Handler
}

// Next runs the next handler in the chain, if any.
func (c *Context) Next() {
	if len(c.handlers) == 0 {
		return
	}

	handler := c.handlers[0]
	c.handlers = c.handlers[1:]
	handler(c)
}

// Succeed sets a successful response for the current request.
func (c *Context) Succeed(method string, params Params) {
	c.Response.Res = NewPayload(
		c.Request.Req.RequestID,
		method,
		params,
	)
}

// Fail sets an error response. The message of an rpc.Error in err's chain is
// sent as is; any other error is replaced by fallbackMessage.
func (c *Context) Fail(err error, fallbackMessage string) {
	message := fallbackMessage
	var rpcErr Error
	if errors.As(err, &rpcErr) {
		message = rpcErr.Error()
	}
	if message == "" {
		message = defaultNodeErrorMessage
	}

	c.Response = NewErrorResponse(
		c.Request.Req.RequestID,
		message,
	)
}

// Failed reports whether the response is an error response.
func (c *Context) Failed() bool {
	return c.Response.Res.Method == ErrorMethod.String()
}

// GetRawResponse returns the signed, encoded response.
func (c *Context) GetRawResponse() ([]byte, error) {
	if c.Response.Res.Method == "" {
		c.Fail(nil, "internal server error: no response from handler")
	}

	return prepareRawResponse(c.Signer, c.Response.Res)
}

func prepareRawResponse(signer sign.Signer, payload Payload) ([]byte, error) {
	payloadHash, err := payload.Hash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash response payload: %w", err)
	}

	signature, err := signer.Sign(payloadHash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign response data: %w", err)
	}

	responseMessage := &Response{
		Res: payload,
		Sig: []sign.Signature{signature},
	}
	resMessageBytes, err := json.Marshal(responseMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response message: %w", err)
	}

	return resMessageBytes, nil
}

// SafeStorage is a concurrency-safe key-value map scoped to a connection.
type SafeStorage struct {
	mu      sync.RWMutex
	storage map[string]any
}

func NewSafeStorage() *SafeStorage {
	return &SafeStorage{
		storage: make(map[string]any),
	}
}

func (s *SafeStorage) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storage[key] = value
}

func (s *SafeStorage) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.storage[key]
	return value, exists
}
