package sign

import (
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func setupSigner(t *testing.T) *EthereumSigner {
	t.Helper()

	signer, err := NewEthereumSigner(testPrivKey)
	require.NoError(t, err)
	require.NotNil(t, signer)
	return signer
}

func TestNewEthereumSigner(t *testing.T) {
	t.Run("with 0x prefix", func(t *testing.T) {
		signer, err := NewEthereumSigner(testPrivKey)
		require.NoError(t, err)
		assert.True(t, strings.EqualFold(testAddress, signer.PublicKey().Address().String()))
	})

	t.Run("without 0x prefix", func(t *testing.T) {
		signer, err := NewEthereumSigner(strings.TrimPrefix(testPrivKey, "0x"))
		require.NoError(t, err)
		assert.True(t, strings.EqualFold(testAddress, signer.PublicKey().Address().String()))
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := NewEthereumSigner("0xinvalidkey")
		assert.Error(t, err)
	})

	t.Run("nil key", func(t *testing.T) {
		_, err := NewEthereumSignerFromKey(nil)
		assert.EqualError(t, err, "private key is nil")
	})

	t.Run("from parsed key", func(t *testing.T) {
		key, err := ethcrypto.GenerateKey()
		require.NoError(t, err)

		signer, err := NewEthereumSignerFromKey(key)
		require.NoError(t, err)
		assert.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), signer.PublicKey().Address().String())
		assert.Len(t, signer.PublicKey().Bytes(), 65)
	})
}

func TestEthereumSigner_Sign(t *testing.T) {
	signer := setupSigner(t)
	hash := ethcrypto.Keccak256Hash([]byte("test message for signing"))

	sig, err := signer.Sign(hash.Bytes())
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])
	assert.Equal(t, TypeEthereum, sig.Type())

	recovered, err := RecoverAddressFromHash(hash.Bytes(), sig)
	require.NoError(t, err)
	assert.True(t, recovered.Equals(signer.PublicKey().Address()))

	t.Run("rejects non-digest input", func(t *testing.T) {
		_, err := signer.Sign([]byte("not a hash"))
		assert.EqualError(t, err, "invalid hash length: got 10, want 32")
	})
}

func TestRecoverAddressFromHash(t *testing.T) {
	signer := setupSigner(t)
	hash := ethcrypto.Keccak256Hash([]byte("some data to sign"))
	sig, err := signer.Sign(hash.Bytes())
	require.NoError(t, err)

	t.Run("does not mutate signature", func(t *testing.T) {
		v := sig[64]
		_, err := RecoverAddressFromHash(hash.Bytes(), sig)
		require.NoError(t, err)
		assert.Equal(t, v, sig[64])
	})

	t.Run("invalid signature length", func(t *testing.T) {
		_, err := RecoverAddressFromHash(hash.Bytes(), sig[:64])
		assert.EqualError(t, err, "invalid signature length: got 64, want 65")
	})

	t.Run("different hash recovers different address", func(t *testing.T) {
		other := ethcrypto.Keccak256Hash([]byte("other data"))
		recovered, err := RecoverAddressFromHash(other.Bytes(), sig)
		if err == nil {
			assert.False(t, recovered.Equals(signer.PublicKey().Address()))
		}
	})
}

func TestEthereumAddress_Equals(t *testing.T) {
	addr := NewEthereumAddress(ethcrypto.PubkeyToAddress(setupSigner(t).privateKey.PublicKey))

	assert.True(t, addr.Equals(NewMockAddress(strings.ToLower(testAddress))))
	assert.False(t, addr.Equals(NewMockAddress("0x0000000000000000000000000000000000000000")))
}
