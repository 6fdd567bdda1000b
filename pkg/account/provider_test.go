package account_test

import (
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/djeraseit/parity/pkg/account"
)

type unlockChecker interface {
	account.Provider
	IsUnlocked(addr account.Address) (bool, error)
}

// providerFactory builds a provider holding one account per password and
// returns the addresses in the same order.
type providerFactory func(t *testing.T, passwords ...string) (unlockChecker, []account.Address)

func memoryProviderFactory(t *testing.T, passwords ...string) (unlockChecker, []account.Address) {
	t.Helper()

	accounts := make(map[account.Address]account.Account, len(passwords))
	addrs := make([]account.Address, len(passwords))
	for i, pw := range passwords {
		addrs[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
		accounts[addrs[i]] = account.NewAccount(pw)
	}
	return account.NewMemoryProvider(accounts), addrs
}

func keyProviderFactory(t *testing.T, passwords ...string) (unlockChecker, []account.Address) {
	t.Helper()

	p, err := account.NewKeyProvider(nil, account.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	addrs := make([]account.Address, len(passwords))
	for i, pw := range passwords {
		key, err := ethcrypto.GenerateKey()
		require.NoError(t, err)
		addrs[i], err = p.ImportAccount(key, pw)
		require.NoError(t, err)
	}
	return p, addrs
}

var providerFactories = map[string]providerFactory{
	"memory": memoryProviderFactory,
	"key":    keyProviderFactory,
}

var unknownAddress = common.HexToAddress("0x00000000000000000000000000000000deadbeef")

func TestProvider_UnknownAccount(t *testing.T) {
	for name, factory := range providerFactories {
		t.Run(name, func(t *testing.T) {
			p, _ := factory(t, "pw1")

			assert.ErrorIs(t, p.Unlock(unknownAddress, "pw1"), account.ErrUnknownIdentifier)

			_, err := p.AccountSecret(unknownAddress)
			assert.ErrorIs(t, err, account.ErrUnknownIdentifier)

			_, err = p.Sign(unknownAddress, common.Hash{})
			assert.ErrorIs(t, err, account.ErrUnknownIdentifier)

			_, err = p.IsUnlocked(unknownAddress)
			assert.ErrorIs(t, err, account.ErrUnknownIdentifier)
		})
	}
}

func TestProvider_Unlock(t *testing.T) {
	for name, factory := range providerFactories {
		t.Run(name, func(t *testing.T) {
			p, addrs := factory(t, "pw1")
			a := addrs[0]

			t.Run("wrong password keeps account locked", func(t *testing.T) {
				assert.ErrorIs(t, p.Unlock(a, "wrong"), account.ErrInvalidPassword)
				assertUnlocked(t, p, a, false)
			})

			t.Run("correct password is idempotent", func(t *testing.T) {
				require.NoError(t, p.Unlock(a, "pw1"))
				require.NoError(t, p.Unlock(a, "pw1"))
				assertUnlocked(t, p, a, true)
			})

			t.Run("wrong password after unlock keeps account unlocked", func(t *testing.T) {
				assert.ErrorIs(t, p.Unlock(a, "wrong"), account.ErrInvalidPassword)
				assertUnlocked(t, p, a, true)
			})

			t.Run("empty password never matches", func(t *testing.T) {
				assert.ErrorIs(t, p.Unlock(a, ""), account.ErrInvalidPassword)
			})
		})
	}
}

func TestProvider_UnlockRejectsPasswordExtensions(t *testing.T) {
	password := strings.Repeat("s", account.MaxPasswordLength)

	for name, factory := range providerFactories {
		t.Run(name, func(t *testing.T) {
			p, addrs := factory(t, password)
			a := addrs[0]

			assert.ErrorIs(t, p.Unlock(a, password+"x"), account.ErrInvalidPassword)
			assert.ErrorIs(t, p.Unlock(a, password[:len(password)-1]), account.ErrInvalidPassword)
			assertUnlocked(t, p, a, false)

			require.NoError(t, p.Unlock(a, password))
			assertUnlocked(t, p, a, true)
		})
	}
}

func TestProvider_Accounts(t *testing.T) {
	for name, factory := range providerFactories {
		t.Run(name, func(t *testing.T) {
			p, addrs := factory(t, "a", "b", "c")
			require.NoError(t, p.Unlock(addrs[1], "b"))

			listed, err := p.Accounts()
			require.NoError(t, err)
			assert.ElementsMatch(t, addrs, listed, "lock state does not affect listing")
		})
	}
}

func TestProvider_ConcurrentUnlock(t *testing.T) {
	const wrongAttempts = 32

	for name, factory := range providerFactories {
		t.Run(name, func(t *testing.T) {
			p, addrs := factory(t, "correct")
			a := addrs[0]

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				failures  int
			)
			start := make(chan struct{})
			attempt := func(password string) {
				defer wg.Done()
				<-start
				err := p.Unlock(a, password)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else {
					assert.ErrorIs(t, err, account.ErrInvalidPassword)
					failures++
				}
			}

			wg.Add(wrongAttempts + 1)
			for i := 0; i < wrongAttempts; i++ {
				go attempt("wrong-" + string(rune('a'+i%26)))
			}
			go attempt("correct")
			close(start)
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, wrongAttempts, failures)
			assertUnlocked(t, p, a, true)
		})
	}
}

// Unlocking is permanent: no operation relocks an account.
func TestProvider_UnlockHasNoExpiry(t *testing.T) {
	for name, factory := range providerFactories {
		t.Run(name, func(t *testing.T) {
			p, addrs := factory(t, "pw1", "pw2")
			require.NoError(t, p.Unlock(addrs[0], "pw1"))

			assert.ErrorIs(t, p.Unlock(addrs[1], "pw1"), account.ErrInvalidPassword)
			_, _ = p.Accounts()
			_, _ = p.Sign(addrs[0], common.Hash{1})

			assertUnlocked(t, p, addrs[0], true)
			assertUnlocked(t, p, addrs[1], false)
		})
	}
}

func TestProvider_Scenario(t *testing.T) {
	for name, factory := range providerFactories {
		t.Run(name, func(t *testing.T) {
			p, addrs := factory(t, "pw1")
			a := addrs[0]
			digest := ethcrypto.Keccak256Hash([]byte("payload"))

			_, err := p.Sign(a, digest)
			assert.ErrorIs(t, err, account.ErrNotUnlocked)
			_, err = p.AccountSecret(a)
			assert.ErrorIs(t, err, account.ErrNotUnlocked)

			assert.ErrorIs(t, p.Unlock(a, "wrong"), account.ErrInvalidPassword)

			listed, err := p.Accounts()
			require.NoError(t, err)
			assert.Equal(t, []account.Address{a}, listed)

			require.NoError(t, p.Unlock(a, "pw1"))
			require.NoError(t, p.Unlock(a, "pw1"))
			assert.ErrorIs(t, p.Unlock(unknownAddress, "pw1"), account.ErrUnknownIdentifier)

			_, err = p.Sign(a, digest)
			assert.NotErrorIs(t, err, account.ErrNotUnlocked)
			_, err = p.AccountSecret(a)
			assert.NotErrorIs(t, err, account.ErrNotUnlocked)
		})
	}
}

func assertUnlocked(t *testing.T, p unlockChecker, addr account.Address, expected bool) {
	t.Helper()

	unlocked, err := p.IsUnlocked(addr)
	require.NoError(t, err)
	assert.Equal(t, expected, unlocked)
}
