package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Hacker-CK/ledger-engine/internal/core/models"
	"github.com/Hacker-CK/ledger-engine/internal/core/repository"
	"github.com/google/uuid"
)

// fakeLedgerRepo mimics the Postgres repository's atomicity: a failing
// operation leaves balances, transactions and effects untouched.
type fakeLedgerRepo struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*models.User
	operators map[uuid.UUID]*models.Operator
	txs       map[uuid.UUID]*models.Transaction
	effects   map[string]*models.LedgerEffect
	seq       int64
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		users:     make(map[uuid.UUID]*models.User),
		operators: make(map[uuid.UUID]*models.Operator),
		txs:       make(map[uuid.UUID]*models.Transaction),
		effects:   make(map[string]*models.LedgerEffect),
	}
}

func effectKey(txID uuid.UUID, dir models.EffectDirection) string {
	return txID.String() + "/" + string(dir)
}

func (r *fakeLedgerRepo) addUser(balance int64) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.users[id] = &models.User{ID: id, WalletBalance: balance}
	return id
}

func (r *fakeLedgerRepo) addOperator(code string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.operators[id] = &models.Operator{ID: id, Code: code, Type: models.OperatorMobile}
	return id
}

func (r *fakeLedgerRepo) balance(id uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id].WalletBalance
}

func (r *fakeLedgerRepo) transactionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

func (r *fakeLedgerRepo) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", repository.ErrNotFound, id)
	}
	copied := *user
	return &copied, nil
}

func (r *fakeLedgerRepo) GetOperator(_ context.Context, id uuid.UUID) (*models.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	operator, ok := r.operators[id]
	if !ok {
		return nil, fmt.Errorf("%w: operator %s", repository.ErrNotFound, id)
	}
	copied := *operator
	return &copied, nil
}

func (r *fakeLedgerRepo) MissingUsers(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := r.users[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *fakeLedgerRepo) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	copied := *t
	return &copied, nil
}

func (r *fakeLedgerRepo) GetEffect(_ context.Context, txID uuid.UUID, dir models.EffectDirection) (*models.LedgerEffect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	effect, ok := r.effects[effectKey(txID, dir)]
	if !ok {
		return nil, fmt.Errorf("%w: effect %s/%s", repository.ErrNotFound, txID, dir)
	}
	copied := *effect
	return &copied, nil
}

// stageEffects validates all effects against current state and returns the
// resulting balances without mutating anything.
func (r *fakeLedgerRepo) stageEffects(effects []models.LedgerEffect) (map[uuid.UUID]int64, error) {
	staged := make(map[uuid.UUID]int64)
	for _, e := range effects {
		if _, exists := r.effects[effectKey(e.TransactionID, e.Direction)]; exists {
			return nil, repository.ErrEffectExists
		}
		user, ok := r.users[e.UserID]
		if !ok {
			return nil, repository.ErrNotFound
		}
		current, ok := staged[e.UserID]
		if !ok {
			current = user.WalletBalance
		}
		current += e.Direction.SignedAmount(e.Amount)
		if current < 0 {
			return nil, repository.ErrInsufficientFunds
		}
		staged[e.UserID] = current
	}
	return staged, nil
}

func (r *fakeLedgerRepo) commitEffects(effects []models.LedgerEffect, staged map[uuid.UUID]int64) {
	for userID, balance := range staged {
		r.users[userID].WalletBalance = balance
	}
	for _, e := range effects {
		r.seq++
		stored := e
		stored.Seq = r.seq
		stored.CreatedAt = time.Now()
		r.effects[effectKey(e.TransactionID, e.Direction)] = &stored
	}
}

func (r *fakeLedgerRepo) CreateTransactions(_ context.Context, txs []*models.Transaction, effects []models.LedgerEffect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range txs {
		if t.TransactionID.Valid {
			for _, existing := range r.txs {
				if existing.TransactionID.Valid && existing.TransactionID.String == t.TransactionID.String {
					return repository.ErrDuplicateKey
				}
			}
		}
	}

	staged, err := r.stageEffects(effects)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, t := range txs {
		t.CreatedAt = now
		t.UpdatedAt = now
		copied := *t
		r.txs[t.ID] = &copied
	}
	r.commitEffects(effects, staged)
	return nil
}

func (r *fakeLedgerRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.TransactionStatus, description *string, effect *models.LedgerEffect) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}

	var effects []models.LedgerEffect
	if effect != nil {
		effects = append(effects, *effect)
	}
	staged, err := r.stageEffects(effects)
	if err != nil {
		return nil, err
	}

	r.commitEffects(effects, staged)
	t.Status = status
	if description != nil {
		t.Description = *description
	}
	t.UpdatedAt = time.Now()

	copied := *t
	return &copied, nil
}

func (r *fakeLedgerRepo) DeleteTransaction(_ context.Context, id uuid.UUID, reversal *models.LedgerEffect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.txs[id]
	if !ok {
		return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}

	if reversal != nil {
		user, ok := r.users[reversal.UserID]
		if !ok {
			return repository.ErrNotFound
		}
		next := user.WalletBalance + reversal.Direction.SignedAmount(reversal.Amount)
		if next < 0 {
			return repository.ErrInsufficientFunds
		}
		user.WalletBalance = next
	}

	delete(r.txs, t.ID)
	delete(r.effects, effectKey(t.ID, models.DirectionDebit))
	delete(r.effects, effectKey(t.ID, models.DirectionCredit))
	return nil
}
