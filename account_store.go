package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gorm.io/gorm"

	"github.com/djeraseit/parity/pkg/account"
)

var _ account.Repository = (*AccountStore)(nil)

// AccountRecord is the persisted form of a key-backed account. The private
// key is stored hex encoded.
type AccountRecord struct {
	Address      string    `gorm:"column:address;primaryKey;size:42"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	PrivateKey   string    `gorm:"column:private_key;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;index"`
}

func (AccountRecord) TableName() string {
	return "accounts"
}

// AccountStore persists accounts with gorm.
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// LoadAccounts returns every stored account in creation order.
func (s *AccountStore) LoadAccounts() ([]account.StoredAccount, error) {
	var records []AccountRecord
	if err := s.db.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	accounts := make([]account.StoredAccount, 0, len(records))
	for _, rec := range records {
		if !common.IsHexAddress(rec.Address) {
			return nil, fmt.Errorf("invalid stored address %q", rec.Address)
		}
		key, err := hexutil.Decode(rec.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid stored key for account %s: %w", rec.Address, err)
		}
		accounts = append(accounts, account.StoredAccount{
			Address:      common.HexToAddress(rec.Address),
			PasswordHash: []byte(rec.PasswordHash),
			PrivateKey:   key,
		})
	}
	return accounts, nil
}

// SaveAccount inserts acc. It returns account.ErrAccountExists if the
// address is already stored.
func (s *AccountStore) SaveAccount(acc account.StoredAccount) error {
	rec := AccountRecord{
		Address:      acc.Address.Hex(),
		PasswordHash: string(acc.PasswordHash),
		PrivateKey:   hexutil.Encode(acc.PrivateKey),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing AccountRecord
		err := tx.Where("address = ?", rec.Address).Take(&existing).Error
		if err == nil {
			return account.ErrAccountExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check account: %w", err)
		}

		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}
		return nil
	})
}

// CountAccounts returns the number of stored accounts.
func (s *AccountStore) CountAccounts() (int64, error) {
	var count int64
	if err := s.db.Model(&AccountRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}
