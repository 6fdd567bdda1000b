package account

import "sync"

var _ Provider = (*MemoryProvider)(nil)

// Account is a MemoryProvider credential record.
type Account struct {
	Password string
	Unlocked bool
}

// NewAccount returns a locked record protected by password.
func NewAccount(password string) Account {
	return Account{Password: password}
}

// MemoryProvider keeps plain password records in memory. It holds no key
// material.
type MemoryProvider struct {
	mu       sync.RWMutex
	accounts map[Address]Account
}

// NewMemoryProvider copies accounts into a new provider.
func NewMemoryProvider(accounts map[Address]Account) *MemoryProvider {
	m := make(map[Address]Account, len(accounts))
	for addr, acc := range accounts {
		m[addr] = acc
	}
	return &MemoryProvider{accounts: m}
}

func (p *MemoryProvider) Accounts() ([]Address, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	addrs := make([]Address, 0, len(p.accounts))
	for addr := range p.accounts {
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (p *MemoryProvider) Unlock(addr Address, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acc, ok := p.accounts[addr]
	if !ok {
		return ErrUnknownIdentifier
	}
	if acc.Password != password {
		return ErrInvalidPassword
	}

	acc.Unlocked = true
	p.accounts[addr] = acc
	return nil
}

// IsUnlocked reports whether addr has been unlocked.
func (p *MemoryProvider) IsUnlocked(addr Address) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	acc, ok := p.accounts[addr]
	if !ok {
		return false, ErrUnknownIdentifier
	}
	return acc.Unlocked, nil
}

// NewAccount always fails: the provider cannot allocate addresses.
func (p *MemoryProvider) NewAccount(string) (Address, error) {
	return Address{}, provisionError(ErrNotSupported)
}

// AccountSecret checks the unlock precondition and then fails with
// ErrNotSupported.
func (p *MemoryProvider) AccountSecret(addr Address) (Secret, error) {
	if err := p.requireUnlocked(addr); err != nil {
		return Secret{}, err
	}
	return Secret{}, ErrNotSupported
}

// Sign checks the unlock precondition and then fails with ErrNotSupported.
func (p *MemoryProvider) Sign(addr Address, _ Hash) (Signature, error) {
	if err := p.requireUnlocked(addr); err != nil {
		return nil, err
	}
	return nil, ErrNotSupported
}

func (p *MemoryProvider) requireUnlocked(addr Address) error {
	unlocked, err := p.IsUnlocked(addr)
	if err != nil {
		return err
	}
	if !unlocked {
		return ErrNotUnlocked
	}
	return nil
}
