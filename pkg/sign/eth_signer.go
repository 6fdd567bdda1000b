package sign

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	_ Signer    = (*EthereumSigner)(nil)
	_ PublicKey = EthereumPublicKey{}
	_ Address   = EthereumAddress{}
)

// EthereumAddress wraps common.Address to satisfy Address.
type EthereumAddress struct{ common.Address }

// NewEthereumAddress wraps a common.Address.
func NewEthereumAddress(addr common.Address) EthereumAddress {
	return EthereumAddress{addr}
}

func (a EthereumAddress) String() string { return a.Address.Hex() }

// Equals compares two addresses. Non-Ethereum addresses are compared by their string form.
func (a EthereumAddress) Equals(other Address) bool {
	if o, ok := other.(EthereumAddress); ok {
		return a.Address == o.Address
	}
	return strings.EqualFold(a.String(), other.String())
}

// EthereumPublicKey wraps a secp256k1 public key.
type EthereumPublicKey struct{ *ecdsa.PublicKey }

func (p EthereumPublicKey) Address() Address {
	return EthereumAddress{ethcrypto.PubkeyToAddress(*p.PublicKey)}
}

func (p EthereumPublicKey) Bytes() []byte { return ethcrypto.FromECDSAPub(p.PublicKey) }

// EthereumSigner signs digests with a secp256k1 private key.
type EthereumSigner struct {
	privateKey *ecdsa.PrivateKey
	publicKey  EthereumPublicKey
}

// NewEthereumSigner creates a signer from a hex-encoded private key, with or without 0x prefix.
func NewEthereumSigner(privateKeyHex string) (*EthereumSigner, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return NewEthereumSignerFromKey(key)
}

// NewEthereumSignerFromKey creates a signer around an already parsed private key.
func NewEthereumSignerFromKey(key *ecdsa.PrivateKey) (*EthereumSigner, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	return &EthereumSigner{
		privateKey: key,
		publicKey:  EthereumPublicKey{&key.PublicKey},
	}, nil
}

func (s *EthereumSigner) PublicKey() PublicKey { return s.publicKey }

// Sign signs a 32-byte digest. The recovery id is shifted to 27/28 so the
// result can be fed to ecrecover.
func (s *EthereumSigner) Sign(hash []byte) (Signature, error) {
	if len(hash) != HashLength {
		return nil, fmt.Errorf("invalid hash length: got %d, want %d", len(hash), HashLength)
	}
	sig, err := ethcrypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return Signature(sig), nil
}

// RecoverAddressFromHash returns the address that produced sig over hash.
// The signature is not modified.
func RecoverAddressFromHash(hash []byte, sig Signature) (Address, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("invalid signature length: got %d, want %d", len(sig), SignatureLength)
	}
	localSig := make([]byte, SignatureLength)
	copy(localSig, sig)
	if localSig[64] >= 27 {
		localSig[64] -= 27
	}

	pubKey, err := ethcrypto.SigToPub(hash, localSig)
	if err != nil {
		return nil, fmt.Errorf("signature recovery failed: %w", err)
	}
	return EthereumAddress{ethcrypto.PubkeyToAddress(*pubKey)}, nil
}
