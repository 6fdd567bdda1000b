// Package account holds account credentials and gates their use behind an
// unlock step.
//
// A Provider owns a set of accounts keyed by address. Every account starts
// locked; Unlock with the account password moves it to the unlocked state,
// after which the account secret can be read and digests can be signed on its
// behalf. There is no way back to the locked state: an account stays unlocked
// for the lifetime of the provider.
//
// Two providers are available:
//
//   - MemoryProvider keeps a password per address and nothing else. It can list
//     and unlock accounts but holds no key material, so account creation,
//     secret export and signing report ErrNotSupported.
//   - KeyProvider keeps a secp256k1 key and a bcrypt password hash per account.
//     It supports every operation and can persist accounts through a Repository.
//
// Providers are safe for concurrent use. Reads share a lock; Unlock and
// account creation take it exclusively, so the lookup, password comparison and
// state change of an unlock happen as one step.
//
// Providers do not log, retry or rate limit. Unlock reports unknown addresses
// (ErrUnknownIdentifier) separately from wrong passwords (ErrInvalidPassword);
// callers exposing Unlock to untrusted clients decide whether to merge the two.
package account
