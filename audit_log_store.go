package main

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AuditAction labels an account event.
type AuditAction string

const (
	AuditActionUnlocked       AuditAction = "unlocked"
	AuditActionUnlockRejected AuditAction = "unlock_rejected"
	AuditActionCreated        AuditAction = "created"
	AuditActionSigned         AuditAction = "signed"
)

// AccountAuditLog records one account event. Passwords and digests are never
// stored.
type AccountAuditLog struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Address      string      `gorm:"column:address;type:varchar(42);not null;index" json:"address"`
	Action       AuditAction `gorm:"column:action;type:varchar(32);not null" json:"action"`
	ConnectionID string      `gorm:"column:connection_id;type:varchar(64)" json:"connection_id"`
	CreatedAt    time.Time   `gorm:"column:created_at" json:"created_at"`
}

func (AccountAuditLog) TableName() string {
	return "account_audit_logs"
}

// AuditRecorder persists account events.
type AuditRecorder interface {
	Record(ctx context.Context, address string, action AuditAction, connectionID string) error
	List(ctx context.Context, address *string, action *AuditAction, options *ListOptions) ([]AccountAuditLog, error)
}

// AuditLogStore is the gorm AuditRecorder.
type AuditLogStore struct {
	db *gorm.DB
}

func NewAuditLogStore(db *gorm.DB) *AuditLogStore {
	return &AuditLogStore{db: db}
}

func (s *AuditLogStore) Record(ctx context.Context, address string, action AuditAction, connectionID string) error {
	record := &AccountAuditLog{
		Address:      address,
		Action:       action,
		ConnectionID: connectionID,
	}
	return s.db.WithContext(ctx).Create(record).Error
}

// List returns events newest first unless options say otherwise.
func (s *AuditLogStore) List(ctx context.Context, address *string, action *AuditAction, options *ListOptions) ([]AccountAuditLog, error) {
	query := applyListOptions(s.db.WithContext(ctx), "created_at", SortTypeDescending, options)

	if address != nil {
		query = query.Where("address = ?", *address)
	}
	if action != nil {
		query = query.Where("action = ?", *action)
	}

	var logs []AccountAuditLog
	err := query.Find(&logs).Error
	return logs, err
}

func (s *AuditLogStore) Count(ctx context.Context, address *string, action *AuditAction) (int64, error) {
	query := s.db.WithContext(ctx).Model(&AccountAuditLog{})

	if address != nil {
		query = query.Where("address = ?", *address)
	}
	if action != nil {
		query = query.Where("action = ?", *action)
	}

	var count int64
	err := query.Count(&count).Error
	return count, err
}
