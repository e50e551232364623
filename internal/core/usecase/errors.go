package usecase

import "errors"

var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidType            = errors.New("invalid transaction type")
	ErrInvalidStatus          = errors.New("invalid transaction status")
	ErrUserNotFound           = errors.New("user not found")
	ErrOperatorNotFound       = errors.New("operator not found")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrIllegalTransition      = errors.New("illegal status transition")
	ErrAlreadyApplied         = errors.New("ledger effect already applied")
	ErrDuplicateTransactionID = errors.New("transaction id already exists")
	ErrDeleteAmbiguous        = errors.New("transaction already refunded, delete would be ambiguous")
	ErrNotReconcilable        = errors.New("transaction cannot be reconciled against the gateway")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrGatewayNotFound        = errors.New("payment gateway has no record of the transaction")
)
