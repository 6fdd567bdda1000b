// Package sign provides the signing primitives shared by the account
// providers and the RPC node.
//
// The package exposes a small set of interfaces so that a key held in memory,
// a mock used in tests or an external signer can all be used interchangeably:
//
//   - Signer: produces signatures over a 32-byte digest
//   - PublicKey: the public half of a signer
//   - Address: a printable, comparable account address
//
// Signers never hand out private key material. Callers that need the raw key
// (for example to export an account) must go through the account provider,
// which enforces the unlock precondition.
//
// Usage
//
//	signer, err := sign.NewEthereumSigner(privateKeyHex)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	hash := ethcrypto.Keccak256Hash([]byte("hello world"))
//	sig, err := signer.Sign(hash.Bytes())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	addr, err := sign.RecoverAddressFromHash(hash.Bytes(), sig)
package sign
