package models

import (
	"time"

	"github.com/google/uuid"
)

type EffectDirection string

const (
	DirectionDebit  EffectDirection = "DEBIT"
	DirectionCredit EffectDirection = "CREDIT"
)

// Opposite returns the reversing direction.
func (d EffectDirection) Opposite() EffectDirection {
	if d == DirectionDebit {
		return DirectionCredit
	}
	return DirectionDebit
}

// SignedAmount is the wallet delta this direction applies for amount.
func (d EffectDirection) SignedAmount(amount int64) int64 {
	if d == DirectionDebit {
		return -amount
	}
	return amount
}

// LedgerEffect records one applied wallet delta. The pair
// (TransactionID, Direction) is unique: it is the durable idempotency guard
// against applying the same movement twice. Seq is assigned by the store in
// application order.
type LedgerEffect struct {
	Seq           int64           `json:"seq" db:"seq"`
	TransactionID uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	Direction     EffectDirection `json:"direction" db:"direction"`
	Amount        int64           `json:"amount" db:"amount"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
