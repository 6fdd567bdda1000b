package rpc

import (
	"github.com/djeraseit/parity/pkg/sign"
)

// Request is a client message: a payload plus optional client signatures.
type Request struct {
	Req Payload          `json:"req"`
	Sig []sign.Signature `json:"sig"`
}

func NewRequest(payload Payload, sig ...sign.Signature) Request {
	return Request{
		Req: payload,
		Sig: sig,
	}
}

// GetSigners recovers the addresses that signed the request payload.
func (r Request) GetSigners() ([]sign.Address, error) {
	return recoverPayloadSigners(r.Req, r.Sig)
}

// Response is a node message: a payload signed by the node.
type Response struct {
	Res Payload          `json:"res"`
	Sig []sign.Signature `json:"sig"`
}

func NewResponse(payload Payload, sig ...sign.Signature) Response {
	return Response{
		Res: payload,
		Sig: sig,
	}
}

// GetSigners recovers the addresses that signed the response payload.
func (r Response) GetSigners() ([]sign.Address, error) {
	return recoverPayloadSigners(r.Res, r.Sig)
}

// NewErrorResponse builds an unsigned error response for requestID.
func NewErrorResponse(requestID uint64, errMsg string, sig ...sign.Signature) Response {
	errParams := NewErrorParams(errMsg)
	errPayload := NewPayload(requestID, ErrorMethod.String(), errParams)
	return NewResponse(errPayload, sig...)
}

// Error returns the carried error if this is an error response.
func (r Response) Error() error {
	if r.Res.Method != ErrorMethod.String() {
		return nil
	}

	return r.Res.Params.Error()
}

func recoverPayloadSigners(payload Payload, sigs []sign.Signature) ([]sign.Address, error) {
	payloadHash, err := payload.Hash()
	if err != nil {
		return nil, err
	}

	addrs := make([]sign.Address, 0, len(sigs))
	for _, s := range sigs {
		addr, err := sign.RecoverAddressFromHash(payloadHash, s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}

	return addrs, nil
}
