package account

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/bcrypt"

	"github.com/djeraseit/parity/pkg/sign"
)

var _ Provider = (*KeyProvider)(nil)

// maxProvisionAttempts bounds the number of fresh keys tried by NewAccount
// before giving up on finding an unused address.
const maxProvisionAttempts = 8

// MaxPasswordLength is the longest password bcrypt can hash. Longer
// passwords are refused at creation and never match on unlock.
const MaxPasswordLength = 72

// StoredAccount is the persisted form of a KeyProvider account. The unlock
// state is never persisted.
type StoredAccount struct {
	Address      Address
	PasswordHash []byte
	PrivateKey   []byte
}

// Repository persists KeyProvider accounts.
type Repository interface {
	LoadAccounts() ([]StoredAccount, error)
	SaveAccount(acc StoredAccount) error
}

type keyRecord struct {
	key          *ecdsa.PrivateKey
	passwordHash []byte
	unlocked     bool
}

// KeyProvider holds a secp256k1 key and a bcrypt password hash per account.
type KeyProvider struct {
	repo       Repository
	bcryptCost int
	generate   func() (*ecdsa.PrivateKey, error)

	mu       sync.RWMutex
	accounts map[Address]*keyRecord
}

// KeyProviderOption configures a KeyProvider.
type KeyProviderOption func(*KeyProvider)

// WithBcryptCost sets the bcrypt cost used for new password hashes.
func WithBcryptCost(cost int) KeyProviderOption {
	return func(p *KeyProvider) {
		p.bcryptCost = cost
	}
}

// WithKeyGenerator replaces the key source used by NewAccount.
func WithKeyGenerator(generate func() (*ecdsa.PrivateKey, error)) KeyProviderOption {
	return func(p *KeyProvider) {
		p.generate = generate
	}
}

// NewKeyProvider creates a provider and loads the accounts stored in repo.
// A nil repo gives a provider whose accounts live only in memory.
func NewKeyProvider(repo Repository, opts ...KeyProviderOption) (*KeyProvider, error) {
	p := &KeyProvider{
		repo:       repo,
		bcryptCost: bcrypt.DefaultCost,
		generate:   ethcrypto.GenerateKey,
		accounts:   make(map[Address]*keyRecord),
	}
	for _, opt := range opts {
		opt(p)
	}

	if repo == nil {
		return p, nil
	}

	stored, err := repo.LoadAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	for _, acc := range stored {
		key, err := ethcrypto.ToECDSA(acc.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key for account %s: %w", acc.Address.Hex(), err)
		}
		if derived := ethcrypto.PubkeyToAddress(key.PublicKey); derived != acc.Address {
			return nil, fmt.Errorf("stored account %s does not match its key (%s)", acc.Address.Hex(), derived.Hex())
		}
		if _, exists := p.accounts[acc.Address]; exists {
			return nil, fmt.Errorf("duplicate stored account %s", acc.Address.Hex())
		}
		p.accounts[acc.Address] = &keyRecord{key: key, passwordHash: acc.PasswordHash}
	}

	return p, nil
}

func (p *KeyProvider) Accounts() ([]Address, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	addrs := make([]Address, 0, len(p.accounts))
	for addr := range p.accounts {
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (p *KeyProvider) Unlock(addr Address, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.accounts[addr]
	if !ok {
		return ErrUnknownIdentifier
	}
	// bcrypt ignores bytes past the limit, so a longer candidate could match
	// a stored password it only starts with.
	if len(password) > MaxPasswordLength {
		return ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("failed to verify password: %w", err)
	}

	rec.unlocked = true
	return nil
}

// IsUnlocked reports whether addr has been unlocked.
func (p *KeyProvider) IsUnlocked(addr Address) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.accounts[addr]
	if !ok {
		return false, ErrUnknownIdentifier
	}
	return rec.unlocked, nil
}

// NewAccount generates a fresh key, persists it and registers it locked.
func (p *KeyProvider) NewAccount(password string) (Address, error) {
	hash, err := p.hashPassword(password)
	if err != nil {
		return Address{}, provisionError(err)
	}

	for attempt := 0; attempt < maxProvisionAttempts; attempt++ {
		key, err := p.generate()
		if err != nil {
			return Address{}, provisionError(fmt.Errorf("failed to generate key: %w", err))
		}

		addr, err := p.insert(key, hash)
		if errors.Is(err, ErrAccountExists) {
			continue
		}
		if err != nil {
			return Address{}, provisionError(err)
		}
		return addr, nil
	}

	return Address{}, provisionError(ErrAddressSpaceExhausted)
}

// ImportAccount registers an existing key protected by password.
func (p *KeyProvider) ImportAccount(key *ecdsa.PrivateKey, password string) (Address, error) {
	if key == nil {
		return Address{}, provisionError(errors.New("private key is nil"))
	}
	hash, err := p.hashPassword(password)
	if err != nil {
		return Address{}, provisionError(err)
	}

	addr, err := p.insert(key, hash)
	if err != nil {
		return Address{}, provisionError(err)
	}
	return addr, nil
}

func (p *KeyProvider) hashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return nil, ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// insert persists and registers a record. Nothing is registered when the
// repository rejects the account.
func (p *KeyProvider) insert(key *ecdsa.PrivateKey, passwordHash []byte) (Address, error) {
	addr := ethcrypto.PubkeyToAddress(key.PublicKey)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[addr]; exists {
		return Address{}, ErrAccountExists
	}

	if p.repo != nil {
		err := p.repo.SaveAccount(StoredAccount{
			Address:      addr,
			PasswordHash: passwordHash,
			PrivateKey:   ethcrypto.FromECDSA(key),
		})
		if err != nil {
			return Address{}, fmt.Errorf("failed to save account: %w", err)
		}
	}

	p.accounts[addr] = &keyRecord{key: key, passwordHash: passwordHash}
	return addr, nil
}

func (p *KeyProvider) AccountSecret(addr Address) (Secret, error) {
	key, err := p.unlockedKey(addr)
	if err != nil {
		return Secret{}, err
	}

	var secret Secret
	copy(secret[:], ethcrypto.FromECDSA(key))
	return secret, nil
}

func (p *KeyProvider) Sign(addr Address, hash Hash) (Signature, error) {
	key, err := p.unlockedKey(addr)
	if err != nil {
		return nil, err
	}

	signer, err := sign.NewEthereumSignerFromKey(key)
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash.Bytes())
}

// unlockedKey returns the key of addr if it is unlocked. Keys are never
// mutated after registration, so the pointer can be used outside the lock.
func (p *KeyProvider) unlockedKey(addr Address) (*ecdsa.PrivateKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.accounts[addr]
	if !ok {
		return nil, ErrUnknownIdentifier
	}
	if !rec.unlocked {
		return nil, ErrNotUnlocked
	}
	return rec.key, nil
}
