package models

import (
	"time"

	"github.com/google/uuid"
)

// User owns exactly one wallet. WalletBalance is stored in minor units
// (paise) and is mutated only by the ledger repository.
type User struct {
	ID            uuid.UUID `json:"id" db:"id"`
	WalletBalance int64     `json:"wallet_balance" db:"wallet_balance"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
