package usecase

import (
	"github.com/Hacker-CK/ledger-engine/internal/core/models"
)

// LedgerAction is what a legal status transition does to the wallet.
type LedgerAction int

const (
	// ActionNone moves no money.
	ActionNone LedgerAction = iota
	// ActionApply applies the transaction type's forward effect: a debit
	// for RECHARGE/TRANSFER/DEBIT, a credit for ADD_FUND/REFERRAL/CASHBACK.
	ActionApply
	// ActionReverse undoes a previously applied forward effect. It is only
	// valid when such an effect exists, and it lands on the idempotency
	// guard so it can happen at most once.
	ActionReverse
)

// ForwardDirection is the wallet direction a SUCCESS transaction of this
// type applies.
func ForwardDirection(t models.TransactionType) models.EffectDirection {
	if t.Debits() {
		return models.DirectionDebit
	}
	return models.DirectionCredit
}

// DecideCreate validates the initial status of a new transaction.
// Transactions are born PENDING (no money moves) or SUCCESS (the forward
// effect applies immediately).
func DecideCreate(status models.TransactionStatus) (LedgerAction, error) {
	switch status {
	case models.StatusPending:
		return ActionNone, nil
	case models.StatusSuccess:
		return ActionApply, nil
	}
	return ActionNone, ErrIllegalTransition
}

// DecideTransition implements the legal-edge table. Refund intent is always
// explicit: SUCCESS->FAILED without refundRequested changes the status and
// leaves the money debited.
func DecideTransition(from, to models.TransactionStatus, refundRequested bool) (LedgerAction, error) {
	// Any state may move to REFUND; the reversal is guarded, so a second
	// attempt reports already-applied instead of crediting twice.
	if to == models.StatusRefund {
		return ActionReverse, nil
	}

	// Same-status updates touch the description only, unless the caller is
	// retrying a refund, which must land on the guard.
	if from == to {
		if refundRequested {
			return ActionReverse, nil
		}
		return ActionNone, nil
	}

	switch {
	case from == models.StatusPending && to == models.StatusSuccess:
		return ActionApply, nil
	case from == models.StatusPending && to == models.StatusFailed:
		return ActionNone, nil
	case from == models.StatusSuccess && to == models.StatusFailed:
		if refundRequested {
			return ActionReverse, nil
		}
		return ActionNone, nil
	}

	return ActionNone, ErrIllegalTransition
}
