package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/djeraseit/parity/pkg/account"
)

const seedFileName = "accounts.yaml"

// SeedAccount is one test-mode account.
type SeedAccount struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

type seedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

// LoadSeedAccounts reads accounts.yaml from configDirPath.
//
//	accounts:
//	  - address: "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
//	    password: "pw1"
func LoadSeedAccounts(configDirPath string) ([]SeedAccount, error) {
	path := filepath.Join(configDirPath, seedFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return file.Accounts, nil
}

// NewSeededProvider builds a MemoryProvider holding seeds, all locked.
func NewSeededProvider(seeds []SeedAccount) (*account.MemoryProvider, error) {
	accounts := make(map[account.Address]account.Account, len(seeds))
	for i, seed := range seeds {
		if !common.IsHexAddress(seed.Address) {
			return nil, fmt.Errorf("seed account %d: invalid address %q", i, seed.Address)
		}
		if seed.Password == "" {
			return nil, fmt.Errorf("seed account %d: %w", i, account.ErrEmptyPassword)
		}
		addr := common.HexToAddress(seed.Address)
		if _, exists := accounts[addr]; exists {
			return nil, fmt.Errorf("seed account %d: duplicate address %s", i, addr.Hex())
		}
		accounts[addr] = account.NewAccount(seed.Password)
	}
	return account.NewMemoryProvider(accounts), nil
}
