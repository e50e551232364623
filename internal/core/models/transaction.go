package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TypeRecharge TransactionType = "RECHARGE"
	TypeAddFund  TransactionType = "ADD_FUND"
	TypeTransfer TransactionType = "TRANSFER"
	TypeReferral TransactionType = "REFERRAL"
	TypeCashback TransactionType = "CASHBACK"
	TypeDebit    TransactionType = "DEBIT"
)

// Valid reports whether t is one of the closed set of transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeRecharge, TypeAddFund, TypeTransfer, TypeReferral, TypeCashback, TypeDebit:
		return true
	}
	return false
}

// Debits reports whether a SUCCESS transaction of this type takes money out
// of the user's wallet. The complement credits the wallet.
func (t TransactionType) Debits() bool {
	switch t {
	case TypeRecharge, TypeTransfer, TypeDebit:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
	StatusRefund  TransactionStatus = "REFUND"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusRefund:
		return true
	}
	return false
}

// Transaction is the append-biased record of one money movement request.
// Amount is positive, in minor units. TransactionID is the external gateway
// correlation id, unique when present. IPAddress and DeviceInfo are
// write-once audit metadata.
type Transaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	TransactionID sql.NullString    `json:"transaction_id" db:"transaction_id"`
	UserID        uuid.UUID         `json:"user_id" db:"user_id"`
	Type          TransactionType   `json:"type" db:"type"`
	Status        TransactionStatus `json:"status" db:"status"`
	Amount        int64             `json:"amount" db:"amount"`
	OperatorID    uuid.NullUUID     `json:"operator_id" db:"operator_id"`
	RecipientID   uuid.NullUUID     `json:"recipient_id" db:"recipient_id"`
	Description   string            `json:"description" db:"description"`
	IPAddress     string            `json:"ip_address" db:"ip_address"`
	DeviceInfo    string            `json:"device_info" db:"device_info"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}
