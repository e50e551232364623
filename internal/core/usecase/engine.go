package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Hacker-CK/ledger-engine/internal/core/logger"
	"github.com/Hacker-CK/ledger-engine/internal/core/metrics"
	"github.com/Hacker-CK/ledger-engine/internal/core/models"
	"github.com/Hacker-CK/ledger-engine/internal/core/repository"
	"github.com/google/uuid"
)

// CreateRequest describes a new transaction. Amount is in minor units.
// For TRANSFER the request fans out into one transaction per recipient,
// each for the full Amount.
type CreateRequest struct {
	UserID        uuid.UUID
	Type          models.TransactionType
	Status        models.TransactionStatus
	Amount        int64
	OperatorID    *uuid.UUID
	RecipientIDs  []uuid.UUID
	TransactionID string
	Description   string
	IPAddress     string
	DeviceInfo    string
}

// TransitionRequest asks for a status change. Refund intent is explicit:
// the engine never infers it from the transition alone.
type TransitionRequest struct {
	Status          models.TransactionStatus
	Description     *string
	RefundRequested bool
}

type BatchCreditRequest struct {
	UserIDs     []uuid.UUID
	Type        models.TransactionType
	Amount      int64
	Description string
}

type BatchFailure struct {
	UserID uuid.UUID `json:"user_id"`
	Error  string    `json:"error"`
}

type BatchResult struct {
	Created []*models.Transaction `json:"created"`
	Failed  []BatchFailure        `json:"failed"`
}

type TransactionUsecase interface {
	Create(ctx context.Context, req CreateRequest) ([]*models.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, req TransitionRequest) (*models.Transaction, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CreditBatch(ctx context.Context, req BatchCreditRequest) (*BatchResult, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
}

type transactionUsecase struct {
	repo    repository.LedgerRepository
	locks   *KeyLock
	metrics *metrics.Metrics
	log     logger.Logger
}

func NewTransactionUsecase(repo repository.LedgerRepository, m *metrics.Metrics, log logger.Logger) TransactionUsecase {
	return &transactionUsecase{
		repo:    repo,
		locks:   NewKeyLock(),
		metrics: m,
		log:     log,
	}
}

// Lock keys. The user lock is always taken before the transaction lock.
func userKey(id uuid.UUID) string { return "user:" + id.String() }
func txnKey(id uuid.UUID) string  { return "txn:" + id.String() }

func (uc *transactionUsecase) Create(ctx context.Context, req CreateRequest) ([]*models.Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !req.Type.Valid() {
		return nil, ErrInvalidType
	}

	action, err := DecideCreate(req.Status)
	if err != nil {
		return nil, err
	}

	if err := uc.checkLinkedEntities(ctx, req); err != nil {
		return nil, err
	}

	uc.locks.Lock(userKey(req.UserID))
	defer uc.locks.Unlock(userKey(req.UserID))

	txs := uc.buildTransactions(req)

	var effects []models.LedgerEffect
	if action == ActionApply {
		direction := ForwardDirection(req.Type)
		if direction == models.DirectionDebit {
			if err := uc.checkSufficiency(ctx, req.UserID, req.Amount*int64(len(txs))); err != nil {
				return nil, err
			}
		}
		for _, t := range txs {
			effects = append(effects, models.LedgerEffect{
				TransactionID: t.ID,
				UserID:        req.UserID,
				Direction:     direction,
				Amount:        t.Amount,
			})
		}
	}

	if err := uc.repo.CreateTransactions(ctx, txs, effects); err != nil {
		uc.log.Warn("transaction create rejected",
			logger.StringField("user_id", req.UserID.String()),
			logger.StringField("type", string(req.Type)),
			logger.ErrorField("error", err),
		)
		return nil, uc.mapRepoError(err)
	}

	uc.metrics.TransactionCreated(string(req.Type), string(req.Status))
	for _, e := range effects {
		uc.metrics.EffectApplied(string(e.Direction))
	}

	uc.log.Info("transactions created",
		logger.StringField("user_id", req.UserID.String()),
		logger.StringField("type", string(req.Type)),
		logger.StringField("status", string(req.Status)),
		logger.IntField("count", len(txs)),
		logger.Int64Field("amount", req.Amount),
	)

	return txs, nil
}

func (uc *transactionUsecase) checkLinkedEntities(ctx context.Context, req CreateRequest) error {
	if _, err := uc.repo.GetUser(ctx, req.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	if req.Type == models.TypeRecharge {
		if req.OperatorID == nil {
			return ErrOperatorNotFound
		}
		if _, err := uc.repo.GetOperator(ctx, *req.OperatorID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOperatorNotFound
			}
			return fmt.Errorf("get operator: %w", err)
		}
	}

	if req.Type == models.TypeTransfer {
		if len(req.RecipientIDs) == 0 {
			return ErrRecipientNotFound
		}
		missing, err := uc.repo.MissingUsers(ctx, req.RecipientIDs)
		if err != nil {
			return fmt.Errorf("check recipients: %w", err)
		}
		if len(missing) > 0 {
			return ErrRecipientNotFound
		}
	}

	return nil
}

// checkSufficiency is advisory: the repository re-checks the balance inside
// the committing transaction, so a concurrent debit cannot slip through.
func (uc *transactionUsecase) checkSufficiency(ctx context.Context, userID uuid.UUID, total int64) error {
	user, err := uc.repo.GetUser(ctx, userID)
	if err != nil {
		return uc.mapRepoError(err)
	}
	if user.WalletBalance < total {
		uc.log.Warn("insufficient funds",
			logger.StringField("user_id", userID.String()),
			logger.Int64Field("balance", user.WalletBalance),
			logger.Int64Field("requested", total),
		)
		return ErrInsufficientFunds
	}
	return nil
}

func (uc *transactionUsecase) buildTransactions(req CreateRequest) []*models.Transaction {
	externalID := func(i int) sql.NullString {
		if req.TransactionID == "" {
			return sql.NullString{}
		}
		if req.Type == models.TypeTransfer && len(req.RecipientIDs) > 1 {
			return sql.NullString{String: fmt.Sprintf("%s-%d", req.TransactionID, i+1), Valid: true}
		}
		return sql.NullString{String: req.TransactionID, Valid: true}
	}

	base := models.Transaction{
		UserID:      req.UserID,
		Type:        req.Type,
		Status:      req.Status,
		Amount:      req.Amount,
		Description: req.Description,
		IPAddress:   req.IPAddress,
		DeviceInfo:  req.DeviceInfo,
	}
	if req.OperatorID != nil {
		base.OperatorID = uuid.NullUUID{UUID: *req.OperatorID, Valid: true}
	}

	if req.Type != models.TypeTransfer {
		t := base
		t.ID = uuid.New()
		t.TransactionID = externalID(0)
		return []*models.Transaction{&t}
	}

	txs := make([]*models.Transaction, 0, len(req.RecipientIDs))
	for i, recipient := range req.RecipientIDs {
		t := base
		t.ID = uuid.New()
		t.TransactionID = externalID(i)
		t.RecipientID = uuid.NullUUID{UUID: recipient, Valid: true}
		txs = append(txs, &t)
	}
	return txs
}

func (uc *transactionUsecase) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := uc.repo.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (uc *transactionUsecase) ApplyTransition(ctx context.Context, id uuid.UUID, req TransitionRequest) (*models.Transaction, error) {
	if !req.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	t, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	uc.locks.Lock(userKey(t.UserID))
	defer uc.locks.Unlock(userKey(t.UserID))
	uc.locks.Lock(txnKey(t.ID))
	defer uc.locks.Unlock(txnKey(t.ID))

	// Reload under the lock; a concurrent transition may have moved it.
	t, err = uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	action, err := DecideTransition(t.Status, req.Status, req.RefundRequested)
	if err != nil {
		uc.log.Warn("illegal transition requested",
			logger.StringField("id", t.ID.String()),
			logger.StringField("from", string(t.Status)),
			logger.StringField("to", string(req.Status)),
		)
		return nil, err
	}

	effect, err := uc.effectFor(ctx, t, action)
	if err != nil {
		return nil, err
	}

	updated, err := uc.repo.UpdateStatus(ctx, t.ID, req.Status, req.Description, effect)
	if err != nil {
		if errors.Is(err, repository.ErrEffectExists) {
			uc.metrics.DuplicateEffect()
			uc.log.Warn("duplicate ledger effect rejected",
				logger.StringField("id", t.ID.String()),
				logger.StringField("to", string(req.Status)),
			)
			return nil, ErrAlreadyApplied
		}
		return nil, uc.mapRepoError(err)
	}

	uc.metrics.TransitionApplied(string(req.Status))
	if effect != nil {
		uc.metrics.EffectApplied(string(effect.Direction))
	}

	uc.log.Info("transition applied",
		logger.StringField("id", t.ID.String()),
		logger.StringField("from", string(t.Status)),
		logger.StringField("to", string(req.Status)),
		logger.AnyField("refund_requested", req.RefundRequested),
	)

	return updated, nil
}

// effectFor turns a ledger action into the concrete effect to apply.
// Reversal needs a previously applied forward effect; without one there is
// nothing to credit back and the transition is illegal.
func (uc *transactionUsecase) effectFor(ctx context.Context, t *models.Transaction, action LedgerAction) (*models.LedgerEffect, error) {
	switch action {
	case ActionNone:
		return nil, nil
	case ActionApply:
		return &models.LedgerEffect{
			TransactionID: t.ID,
			UserID:        t.UserID,
			Direction:     ForwardDirection(t.Type),
			Amount:        t.Amount,
		}, nil
	case ActionReverse:
		forward, err := uc.repo.GetEffect(ctx, t.ID, ForwardDirection(t.Type))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrIllegalTransition
			}
			return nil, fmt.Errorf("get forward effect: %w", err)
		}
		return &models.LedgerEffect{
			TransactionID: t.ID,
			UserID:        forward.UserID,
			Direction:     forward.Direction.Opposite(),
			Amount:        forward.Amount,
		}, nil
	}
	return nil, ErrIllegalTransition
}

func (uc *transactionUsecase) Delete(ctx context.Context, id uuid.UUID) error {
	t, err := uc.Get(ctx, id)
	if err != nil {
		return err
	}

	uc.locks.Lock(userKey(t.UserID))
	defer uc.locks.Unlock(userKey(t.UserID))
	uc.locks.Lock(txnKey(t.ID))
	defer uc.locks.Unlock(txnKey(t.ID))

	t, err = uc.Get(ctx, id)
	if err != nil {
		return err
	}

	if t.Status == models.StatusRefund {
		return ErrDeleteAmbiguous
	}

	forwardDir := ForwardDirection(t.Type)
	var reversal *models.LedgerEffect

	forward, err := uc.repo.GetEffect(ctx, t.ID, forwardDir)
	switch {
	case err == nil:
		if _, rerr := uc.repo.GetEffect(ctx, t.ID, forwardDir.Opposite()); rerr == nil {
			// Already reversed through a refund; removing the row now
			// would hide which credit belonged to it.
			return ErrDeleteAmbiguous
		} else if !errors.Is(rerr, repository.ErrNotFound) {
			return fmt.Errorf("get reverse effect: %w", rerr)
		}
		reversal = &models.LedgerEffect{
			TransactionID: t.ID,
			UserID:        forward.UserID,
			Direction:     forward.Direction.Opposite(),
			Amount:        forward.Amount,
		}
	case errors.Is(err, repository.ErrNotFound):
		// No money ever moved; a bare row removal is safe.
	default:
		return fmt.Errorf("get forward effect: %w", err)
	}

	if err := uc.repo.DeleteTransaction(ctx, t.ID, reversal); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTransactionNotFound
		}
		return uc.mapRepoError(err)
	}

	if reversal != nil {
		uc.metrics.EffectApplied(string(reversal.Direction))
	}

	uc.log.Info("transaction deleted",
		logger.StringField("id", t.ID.String()),
		logger.AnyField("reversed", reversal != nil),
	)

	return nil
}

// CreditBatch iterates per-user atomic creates. A failed item does not roll
// back the ones already committed; the caller gets both lists.
func (uc *transactionUsecase) CreditBatch(ctx context.Context, req BatchCreditRequest) (*BatchResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !req.Type.Valid() || req.Type.Debits() {
		return nil, ErrInvalidType
	}

	result := &BatchResult{}
	for _, userID := range req.UserIDs {
		created, err := uc.Create(ctx, CreateRequest{
			UserID:      userID,
			Type:        req.Type,
			Status:      models.StatusSuccess,
			Amount:      req.Amount,
			Description: req.Description,
		})
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{UserID: userID, Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, created...)
	}

	uc.log.Info("batch credit finished",
		logger.StringField("type", string(req.Type)),
		logger.IntField("succeeded", len(result.Created)),
		logger.IntField("failed", len(result.Failed)),
	)

	return result, nil
}

func (uc *transactionUsecase) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	user, err := uc.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("get user: %w", err)
	}
	return user.WalletBalance, nil
}

func (uc *transactionUsecase) mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, repository.ErrEffectExists):
		return ErrAlreadyApplied
	case errors.Is(err, repository.ErrDuplicateKey):
		return ErrDuplicateTransactionID
	case errors.Is(err, repository.ErrNotFound):
		return ErrTransactionNotFound
	}
	return err
}
