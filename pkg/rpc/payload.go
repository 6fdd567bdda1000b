package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Payload is the signed part of every request and response. It is encoded as
// a JSON array: [RequestID, Method, Params, Timestamp].
type Payload struct {
	// RequestID correlates a response with its request. Notifications use 0.
	RequestID uint64 `json:"request_id"`
	// Method is the RPC method name, e.g. "unlock_account".
	Method string `json:"method"`
	// Params holds the method-specific parameters.
	Params Params `json:"params"`
	// Timestamp is the creation time in Unix milliseconds.
	Timestamp uint64 `json:"ts"`
}

// NewPayload creates a Payload stamped with the current time.
func NewPayload(id uint64, method string, params Params) Payload {
	if params == nil {
		params = Params{}
	}

	return Payload{
		RequestID: id,
		Method:    method,
		Params:    params,
		Timestamp: uint64(time.Now().UnixMilli()),
	}
}

// Hash returns the Keccak256 hash of the encoded payload. This is the digest
// that request and response signatures cover.
func (p Payload) Hash() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return crypto.Keccak256(data), nil
}

// UnmarshalJSON decodes the compact array form.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var rawArr []json.RawMessage
	if err := json.Unmarshal(data, &rawArr); err != nil {
		return fmt.Errorf("error reading payload as array: %w", err)
	}
	if len(rawArr) != 4 {
		return errors.New("invalid payload: expected 4 elements in array")
	}

	if err := json.Unmarshal(rawArr[0], &p.RequestID); err != nil {
		return fmt.Errorf("invalid request_id: %w", err)
	}
	if err := json.Unmarshal(rawArr[1], &p.Method); err != nil {
		return fmt.Errorf("invalid method: %w", err)
	}
	if err := json.Unmarshal(rawArr[2], &p.Params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := json.Unmarshal(rawArr[3], &p.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}

	return nil
}

// MarshalJSON always emits the compact array form.
func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		p.RequestID,
		p.Method,
		p.Params,
		p.Timestamp,
	})
}

// Params holds method parameters as raw JSON until a handler translates them
// into its request type.
type Params map[string]json.RawMessage

// NewParams builds Params from any value that encodes to a JSON object.
//
//	params, err := NewParams(UnlockAccountResponse{Address: addr, Unlocked: true})
func NewParams(v any) (Params, error) {
	if v == nil {
		return Params{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error marshalling params: %w", err)
	}
	var params Params
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("error unmarshalling params: %w", err)
	}
	return params, nil
}

// Translate decodes the parameters into v, which should be a pointer.
//
//	var req SignRequest
//	if err := c.Request.Req.Params.Translate(&req); err != nil {
//		c.Fail(err, "invalid parameters")
//		return
//	}
func (p Params) Translate(v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("error marshalling params: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error unmarshalling params: %w", err)
	}
	return nil
}

// Error returns the message stored under the "error" key, or nil.
func (p Params) Error() error {
	if errMsgRaw, ok := p[errorParamKey]; ok {
		var errMsg string
		if err := json.Unmarshal(errMsgRaw, &errMsg); err == nil {
			return errors.New(errMsg)
		}
	}
	return nil
}
