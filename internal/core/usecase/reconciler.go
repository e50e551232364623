package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/Hacker-CK/ledger-engine/internal/core/gateway"
	"github.com/Hacker-CK/ledger-engine/internal/core/logger"
	"github.com/Hacker-CK/ledger-engine/internal/core/models"
	"github.com/google/uuid"
)

// StatusCheckResult is the read-only gateway answer. Found=false is a valid
// outcome, not an error.
type StatusCheckResult struct {
	Found        bool
	Payload      *gateway.Payload
	MappedStatus models.TransactionStatus
}

type SyncResult struct {
	StatusUpdated  bool
	PreviousStatus models.TransactionStatus
	NewStatus      models.TransactionStatus
	Transaction    *models.Transaction
}

// ReconcileUsecase reconciles local RECHARGE transactions against the
// external payment gateway. It never writes local state itself; a needed
// status change goes through the same transition path a manual update takes.
type ReconcileUsecase interface {
	CheckStatus(ctx context.Context, externalID string) (*StatusCheckResult, error)
	SyncFromGateway(ctx context.Context, id uuid.UUID) (*SyncResult, error)
}

type reconcileUsecase struct {
	engine  TransactionUsecase
	gateway gateway.Client
	log     logger.Logger
}

func NewReconcileUsecase(engine TransactionUsecase, gw gateway.Client, log logger.Logger) ReconcileUsecase {
	return &reconcileUsecase{engine: engine, gateway: gw, log: log}
}

func (uc *reconcileUsecase) CheckStatus(ctx context.Context, externalID string) (*StatusCheckResult, error) {
	if externalID == "" {
		return nil, ErrNotReconcilable
	}

	payload, err := uc.gateway.CheckStatus(ctx, externalID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return &StatusCheckResult{Found: false}, nil
		}
		uc.log.Warn("gateway check failed",
			logger.StringField("transaction_id", externalID),
			logger.ErrorField("error", err),
		)
		return nil, ErrGatewayUnavailable
	}

	mapped, ok := mapGatewayStatus(payload.Status)
	if !ok {
		uc.log.Warn("gateway returned unknown status word",
			logger.StringField("transaction_id", externalID),
			logger.StringField("status", payload.Status),
		)
		return nil, ErrGatewayUnavailable
	}

	return &StatusCheckResult{Found: true, Payload: payload, MappedStatus: mapped}, nil
}

func (uc *reconcileUsecase) SyncFromGateway(ctx context.Context, id uuid.UUID) (*SyncResult, error) {
	t, err := uc.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.Type != models.TypeRecharge || !t.TransactionID.Valid || t.TransactionID.String == "" {
		return nil, ErrNotReconcilable
	}

	check, err := uc.CheckStatus(ctx, t.TransactionID.String)
	if err != nil {
		return nil, err
	}
	if !check.Found {
		return nil, ErrGatewayNotFound
	}

	if check.MappedStatus == t.Status {
		return &SyncResult{
			StatusUpdated:  false,
			PreviousStatus: t.Status,
			NewStatus:      t.Status,
			Transaction:    t,
		}, nil
	}

	// A gateway-reported FAILED on a local SUCCESS does not refund; only a
	// gateway-reported REFUND drives the guarded reversal.
	refund := check.MappedStatus == models.StatusRefund

	updated, err := uc.engine.ApplyTransition(ctx, t.ID, TransitionRequest{
		Status:          check.MappedStatus,
		RefundRequested: refund,
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info("status synced from gateway",
		logger.StringField("id", t.ID.String()),
		logger.StringField("previous", string(t.Status)),
		logger.StringField("new", string(check.MappedStatus)),
	)

	return &SyncResult{
		StatusUpdated:  true,
		PreviousStatus: t.Status,
		NewStatus:      check.MappedStatus,
		Transaction:    updated,
	}, nil
}

// mapGatewayStatus translates the gateway vocabulary into the local enum.
// Anything unknown is treated as a malformed response.
func mapGatewayStatus(s string) (models.TransactionStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESS", "COMPLETED":
		return models.StatusSuccess, true
	case "PENDING", "PROCESSING":
		return models.StatusPending, true
	case "FAILED", "FAILURE":
		return models.StatusFailed, true
	case "REFUND", "REFUNDED":
		return models.StatusRefund, true
	}
	return "", false
}
