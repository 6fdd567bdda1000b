package rpc

import (
	"time"

	"github.com/djeraseit/parity/pkg/sign"
)

// Method is the name of an RPC method.
type Method string

const (
	PingMethod  Method = "ping"
	PongMethod  Method = "pong"
	ErrorMethod Method = "error"

	// ListAccountsMethod returns every address known to the provider.
	ListAccountsMethod Method = "list_accounts"
	// UnlockAccountMethod unlocks an account with its password.
	UnlockAccountMethod Method = "unlock_account"
	// NewAccountMethod creates a locked account protected by a password.
	NewAccountMethod Method = "new_account"
	// SignMethod signs a 32-byte digest with an unlocked account.
	SignMethod Method = "sign"

	// GetAuditLogMethod lists recorded account events.
	GetAuditLogMethod Method = "get_audit_log"

	// AccountCreatedEvent is broadcast to every connection after new_account succeeds.
	AccountCreatedEvent Method = "account_created"
)

func (m Method) String() string {
	return string(m)
}

type ListAccountsResponse struct {
	Accounts []string `json:"accounts"`
}

type UnlockAccountRequest struct {
	Address  string `json:"address" validate:"required,eth_addr"`
	Password string `json:"password" validate:"required"`
}

type UnlockAccountResponse struct {
	Address  string `json:"address"`
	Unlocked bool   `json:"unlocked"`
}

type NewAccountRequest struct {
	// max counts characters; the provider also enforces its 72-byte limit.
	Password string `json:"password" validate:"required,max=72"`
}

type NewAccountResponse struct {
	Address string `json:"address"`
}

type SignRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
	Hash    string `json:"hash" validate:"required,hash32"`
}

type SignResponse struct {
	Address   string         `json:"address"`
	Signature sign.Signature `json:"signature"`
}

type AccountCreatedNotification struct {
	Address string `json:"address"`
}

type GetAuditLogRequest struct {
	Address string `json:"address,omitempty" validate:"omitempty,eth_addr"`
	Action  string `json:"action,omitempty" validate:"omitempty,oneof=unlocked unlock_rejected created signed"`
	Offset  uint32 `json:"offset,omitempty"`
	Limit   uint32 `json:"limit,omitempty" validate:"lte=100"`
	Sort    string `json:"sort,omitempty" validate:"omitempty,oneof=asc desc"`
}

type AuditLogEntry struct {
	Address      string    `json:"address"`
	Action       string    `json:"action"`
	ConnectionID string    `json:"connection_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type GetAuditLogResponse struct {
	Entries []AuditLogEntry `json:"entries"`
}
