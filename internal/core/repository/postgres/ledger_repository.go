package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Hacker-CK/ledger-engine/internal/core/logger"
	"github.com/Hacker-CK/ledger-engine/internal/core/models"
	"github.com/Hacker-CK/ledger-engine/internal/core/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pqCheckViolation  = "23514"
	pqUniqueViolation = "23505"
)

type postgresLedgerRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgresLedgerRepo(db *sqlx.DB, log logger.Logger) repository.LedgerRepository {
	return &postgresLedgerRepo{db: db, log: log}
}

func (r *postgresLedgerRepo) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT id, wallet_balance, created_at, updated_at FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", repository.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *postgresLedgerRepo) GetOperator(ctx context.Context, id uuid.UUID) (*models.Operator, error) {
	var operator models.Operator
	query := `SELECT id, code, type, commission FROM operators WHERE id = $1`
	if err := r.db.GetContext(ctx, &operator, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: operator %s", repository.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return &operator, nil
}

func (r *postgresLedgerRepo) MissingUsers(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	asStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		asStrings = append(asStrings, id.String())
	}

	var found []uuid.UUID
	query := `SELECT id FROM users WHERE id = ANY($1::uuid[])`
	if err := r.db.SelectContext(ctx, &found, query, pq.Array(asStrings)); err != nil {
		return nil, fmt.Errorf("check users: %w", err)
	}

	present := make(map[uuid.UUID]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}

	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

const transactionColumns = `id, transaction_id, user_id, type, status, amount,
	operator_id, recipient_id, description, ip_address, device_info, created_at, updated_at`

func (r *postgresLedgerRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

func (r *postgresLedgerRepo) GetEffect(ctx context.Context, transactionID uuid.UUID, direction models.EffectDirection) (*models.LedgerEffect, error) {
	var effect models.LedgerEffect
	query := `SELECT seq, transaction_id, user_id, direction, amount, created_at
		FROM ledger_effects WHERE transaction_id = $1 AND direction = $2`
	if err := r.db.GetContext(ctx, &effect, query, transactionID, direction); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: effect %s/%s", repository.ErrNotFound, transactionID, direction)
		}
		return nil, fmt.Errorf("get effect: %w", err)
	}
	return &effect, nil
}

func (r *postgresLedgerRepo) CreateTransactions(ctx context.Context, txs []*models.Transaction, effects []models.LedgerEffect) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, t := range txs {
			if err := r.insertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		for i := range effects {
			if err := r.applyEffect(ctx, tx, &effects[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *postgresLedgerRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus, description *string, effect *models.LedgerEffect) (*models.Transaction, error) {
	var updated models.Transaction

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if effect != nil {
			if err := r.applyEffect(ctx, tx, effect); err != nil {
				return err
			}
		}

		desc := sql.NullString{}
		if description != nil {
			desc = sql.NullString{String: *description, Valid: true}
		}

		query := `
			UPDATE transactions
			SET status = $2,
				description = COALESCE($3, description),
				updated_at = NOW()
			WHERE id = $1
			RETURNING ` + transactionColumns
		if err := tx.GetContext(ctx, &updated, query, id, status, desc); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
			}
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *postgresLedgerRepo) DeleteTransaction(ctx context.Context, id uuid.UUID, reversal *models.LedgerEffect) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if reversal != nil {
			if err := r.applyDelta(ctx, tx, reversal.UserID, reversal.Direction.SignedAmount(reversal.Amount)); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
		}
		return nil
	})
}

// withTx runs fn inside a serializable transaction, rolling back on any
// failure before commit.
func (r *postgresLedgerRepo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var isCommitted bool
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		r.log.Error("Error beginning transaction", logger.ErrorField("error", err))
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if err != nil && !isCommitted {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Error("Transaction rollback failed", logger.ErrorField("error", rbErr))
			} else {
				r.log.Warn("Transaction rolled back due to error", logger.ErrorField("error", err))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		r.log.Error("Error committing transaction", logger.ErrorField("error", err))
		return fmt.Errorf("commit failed: %w", err)
	}

	isCommitted = true
	return nil
}

// applyEffect moves money and records the idempotency guard row in the
// enclosing transaction. A guard conflict aborts the whole unit.
func (r *postgresLedgerRepo) applyEffect(ctx context.Context, tx *sqlx.Tx, effect *models.LedgerEffect) error {
	insertQuery := `
		INSERT INTO ledger_effects (transaction_id, user_id, direction, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transaction_id, direction) DO NOTHING
		RETURNING seq`
	err := tx.GetContext(ctx, &effect.Seq, insertQuery,
		effect.TransactionID, effect.UserID, effect.Direction, effect.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s/%s", repository.ErrEffectExists, effect.TransactionID, effect.Direction)
		}
		return fmt.Errorf("record effect: %w", err)
	}

	return r.applyDelta(ctx, tx, effect.UserID, effect.Direction.SignedAmount(effect.Amount))
}

func (r *postgresLedgerRepo) applyDelta(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta int64) error {
	var newBalance int64
	updateQuery := `
		UPDATE users
		SET wallet_balance = wallet_balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING wallet_balance`
	err := tx.GetContext(ctx, &newBalance, updateQuery, delta, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: user %s", repository.ErrNotFound, userID)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqCheckViolation {
			return repository.ErrInsufficientFunds
		}
		return fmt.Errorf("update balance: %w", err)
	}

	if newBalance < 0 {
		return repository.ErrInsufficientFunds
	}
	return nil
}

func (r *postgresLedgerRepo) insertTransaction(ctx context.Context, tx *sqlx.Tx, t *models.Transaction) error {
	const query = `
		INSERT INTO transactions
			(id, transaction_id, user_id, type, status, amount,
			 operator_id, recipient_id, description, ip_address, device_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`
	err := tx.QueryRowxContext(ctx, query,
		t.ID, t.TransactionID, t.UserID, t.Type, t.Status, t.Amount,
		t.OperatorID, t.RecipientID, t.Description, t.IPAddress, t.DeviceInfo,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: transaction_id %s", repository.ErrDuplicateKey, t.TransactionID.String)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}
