package sign

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// HashLength is the size of the digest accepted by Signer.Sign.
	HashLength = 32
	// SignatureLength is the size of a recoverable secp256k1 signature (r || s || v).
	SignatureLength = 65
)

// Signer signs fixed-size digests.
type Signer interface {
	PublicKey() PublicKey                // Public key associated with this signer.
	Sign(hash []byte) (Signature, error) // Sign generates a signature for the given digest.
}

// PublicKey is the public half of a Signer.
type PublicKey interface {
	Address() Address
	Bytes() []byte
}

// Address is a printable account address.
type Address interface {
	fmt.Stringer

	// Equals returns true if this address equals the other address.
	Equals(other Address) bool
}

// Signature is a raw signature. It is encoded as a 0x-prefixed hex string in JSON.
type Signature []byte

// Type represents the signature scheme a signature belongs to.
type Type uint8

const (
	TypeEthereum Type = iota
	TypeUnknown       = 255
)

func (t Type) String() string {
	switch t {
	case TypeEthereum:
		return "Ethereum"
	default:
		return "Unknown"
	}
}

// Type guesses the signature scheme from the signature length.
func (s Signature) Type() Type {
	if len(s) == SignatureLength {
		return TypeEthereum
	}
	return TypeUnknown
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(hexStr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s Signature) String() string {
	return hexutil.Encode(s)
}
