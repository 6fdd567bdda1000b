package account

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/djeraseit/parity/pkg/sign"
)

// Address identifies an account.
type Address = common.Address

// Hash is the fixed-size digest accepted by Sign.
type Hash = common.Hash

// Signature is a recoverable secp256k1 signature (r || s || v).
type Signature = sign.Signature

// SecretLength is the size of an account secret.
const SecretLength = 32

// Secret is the raw signing key of an account.
type Secret [SecretLength]byte

// String hides the key material.
func (s Secret) String() string { return "Secret(***)" }

// GoString hides the key material from %#v.
func (s Secret) GoString() string { return s.String() }

// Provider is the account capability set.
type Provider interface {
	// Accounts returns every known address in no particular order.
	Accounts() ([]Address, error)
	// Unlock unlocks addr if password matches. Failures leave the account state unchanged.
	Unlock(addr Address, password string) error
	// NewAccount creates a locked account protected by password.
	NewAccount(password string) (Address, error)
	// AccountSecret returns the signing secret of an unlocked account.
	AccountSecret(addr Address) (Secret, error)
	// Sign signs hash with the key of an unlocked account.
	Sign(addr Address, hash Hash) (Signature, error)
}
