package repository

import (
	"context"
	"errors"

	"github.com/Hacker-CK/ledger-engine/internal/core/models"
	"github.com/google/uuid"
)

// Storage-level sentinels. The usecase layer translates these into its own
// error taxonomy before they reach a caller.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrEffectExists      = errors.New("ledger effect already applied")
	ErrDuplicateKey      = errors.New("duplicate key")
)

// LedgerRepository is the single writer of wallet balances. Every method
// that carries a LedgerEffect applies the balance delta, the idempotency
// guard row and the transaction write inside one database transaction.
type LedgerRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetOperator(ctx context.Context, id uuid.UUID) (*models.Operator, error)
	// MissingUsers returns the subset of ids with no user row.
	MissingUsers(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetEffect(ctx context.Context, transactionID uuid.UUID, direction models.EffectDirection) (*models.LedgerEffect, error)

	// CreateTransactions persists all rows and applies all effects
	// atomically; on any failure nothing is persisted.
	CreateTransactions(ctx context.Context, txs []*models.Transaction, effects []models.LedgerEffect) error
	// UpdateStatus writes the new status (and description, when non-nil)
	// and applies the effect, when non-nil, in the same transaction.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus, description *string, effect *models.LedgerEffect) (*models.Transaction, error)
	// DeleteTransaction removes the row, applying the reversal delta, when
	// non-nil, in the same transaction.
	DeleteTransaction(ctx context.Context, id uuid.UUID, reversal *models.LedgerEffect) error
}
