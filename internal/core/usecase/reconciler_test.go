package usecase

import (
	"context"
	"testing"

	"github.com/Hacker-CK/ledger-engine/internal/core/gateway"
	"github.com/Hacker-CK/ledger-engine/internal/core/logger"
	"github.com/Hacker-CK/ledger-engine/internal/core/metrics"
	"github.com/Hacker-CK/ledger-engine/internal/core/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	payload *gateway.Payload
	err     error
	calls   int
}

func (g *stubGateway) CheckStatus(_ context.Context, _ string) (*gateway.Payload, error) {
	g.calls++
	return g.payload, g.err
}

func newTestReconciler(t *testing.T, gw gateway.Client) (ReconcileUsecase, TransactionUsecase, *fakeLedgerRepo) {
	t.Helper()
	repo := newFakeLedgerRepo()
	engine := NewTransactionUsecase(repo, metrics.New(prometheus.NewRegistry()), logger.NewNop())
	return NewReconcileUsecase(engine, gw, logger.NewNop()), engine, repo
}

func TestCheckStatusMapsGatewayVocabulary(t *testing.T) {
	tests := []struct {
		raw    string
		mapped models.TransactionStatus
	}{
		{"SUCCESS", models.StatusSuccess},
		{"completed", models.StatusSuccess},
		{"PENDING", models.StatusPending},
		{"Processing", models.StatusPending},
		{"FAILED", models.StatusFailed},
		{"FAILURE", models.StatusFailed},
		{"REFUND", models.StatusRefund},
		{"refunded", models.StatusRefund},
	}

	for _, tt := range tests {
		gw := &stubGateway{payload: &gateway.Payload{TransactionID: "EXT-1", Status: tt.raw}}
		reconciler, _, _ := newTestReconciler(t, gw)

		result, err := reconciler.CheckStatus(context.Background(), "EXT-1")
		require.NoError(t, err, tt.raw)
		assert.True(t, result.Found)
		assert.Equal(t, tt.mapped, result.MappedStatus, tt.raw)
	}
}

func TestCheckStatusNotFoundIsValidOutcome(t *testing.T) {
	gw := &stubGateway{err: gateway.ErrNotFound}
	reconciler, _, _ := newTestReconciler(t, gw)

	result, err := reconciler.CheckStatus(context.Background(), "EXT-MISSING")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Nil(t, result.Payload)
}

func TestCheckStatusUnknownWordIsUnavailable(t *testing.T) {
	gw := &stubGateway{payload: &gateway.Payload{Status: "MAYBE"}}
	reconciler, _, _ := newTestReconciler(t, gw)

	_, err := reconciler.CheckStatus(context.Background(), "EXT-1")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestSyncNoChangeNeeded(t *testing.T) {
	gw := &stubGateway{payload: &gateway.Payload{Status: "SUCCESS"}}
	reconciler, engine, repo := newTestReconciler(t, gw)

	userID := repo.addUser(50000)
	tx := successRecharge(t, engine, repo, userID, 20000)

	result, err := reconciler.SyncFromGateway(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.False(t, result.StatusUpdated)
	assert.Equal(t, models.StatusSuccess, result.PreviousStatus)
	assert.Equal(t, models.StatusSuccess, result.NewStatus)
	assert.Equal(t, int64(30000), repo.balance(userID))
}

func TestSyncAppliesDebitWhenGatewayConfirmsPending(t *testing.T) {
	gw := &stubGateway{payload: &gateway.Payload{Status: "SUCCESS"}}
	reconciler, engine, repo := newTestReconciler(t, gw)

	userID := repo.addUser(50000)
	operatorID := repo.addOperator("AIRTEL")
	created, err := engine.Create(context.Background(), CreateRequest{
		UserID:        userID,
		Type:          models.TypeRecharge,
		Status:        models.StatusPending,
		Amount:        20000,
		OperatorID:    &operatorID,
		TransactionID: "EXT-42",
	})
	require.NoError(t, err)

	result, err := reconciler.SyncFromGateway(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.True(t, result.StatusUpdated)
	assert.Equal(t, models.StatusPending, result.PreviousStatus)
	assert.Equal(t, models.StatusSuccess, result.NewStatus)
	assert.Equal(t, int64(30000), repo.balance(userID))
}

func TestSyncFailedOnLocalSuccessDoesNotAutoRefund(t *testing.T) {
	gw := &stubGateway{payload: &gateway.Payload{Status: "FAILED"}}
	reconciler, engine, repo := newTestReconciler(t, gw)

	userID := repo.addUser(50000)
	tx := successRecharge(t, engine, repo, userID, 20000)

	result, err := reconciler.SyncFromGateway(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.True(t, result.StatusUpdated)
	assert.Equal(t, models.StatusFailed, result.NewStatus)

	// The money stays debited until an operator explicitly refunds.
	assert.Equal(t, int64(30000), repo.balance(userID))
}

func TestSyncRefundReversesOnce(t *testing.T) {
	gw := &stubGateway{payload: &gateway.Payload{Status: "REFUNDED"}}
	reconciler, engine, repo := newTestReconciler(t, gw)

	userID := repo.addUser(50000)
	tx := successRecharge(t, engine, repo, userID, 20000)

	result, err := reconciler.SyncFromGateway(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.True(t, result.StatusUpdated)
	assert.Equal(t, models.StatusRefund, result.NewStatus)
	assert.Equal(t, int64(50000), repo.balance(userID))

	// A second sync sees the statuses agree and changes nothing.
	result, err = reconciler.SyncFromGateway(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.False(t, result.StatusUpdated)
	assert.Equal(t, int64(50000), repo.balance(userID))
}

func TestSyncGatewayNotFoundMutatesNothing(t *testing.T) {
	gw := &stubGateway{err: gateway.ErrNotFound}
	reconciler, engine, repo := newTestReconciler(t, gw)

	userID := repo.addUser(50000)
	tx := successRecharge(t, engine, repo, userID, 20000)

	_, err := reconciler.SyncFromGateway(context.Background(), tx.ID)
	assert.ErrorIs(t, err, ErrGatewayNotFound)

	reloaded, err := engine.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, reloaded.Status)
	assert.Equal(t, int64(30000), repo.balance(userID))
}

func TestSyncGatewayUnavailableMutatesNothing(t *testing.T) {
	gw := &stubGateway{err: gateway.ErrUnavailable}
	reconciler, engine, repo := newTestReconciler(t, gw)

	userID := repo.addUser(50000)
	tx := successRecharge(t, engine, repo, userID, 20000)

	_, err := reconciler.SyncFromGateway(context.Background(), tx.ID)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	reloaded, err := engine.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, reloaded.Status)
	assert.Equal(t, int64(30000), repo.balance(userID))
}

func TestSyncRejectsNonRecharge(t *testing.T) {
	gw := &stubGateway{payload: &gateway.Payload{Status: "SUCCESS"}}
	reconciler, engine, repo := newTestReconciler(t, gw)

	userID := repo.addUser(50000)
	created, err := engine.Create(context.Background(), CreateRequest{
		UserID: userID,
		Type:   models.TypeAddFund,
		Status: models.StatusSuccess,
		Amount: 1000,
	})
	require.NoError(t, err)

	_, err = reconciler.SyncFromGateway(context.Background(), created[0].ID)
	assert.ErrorIs(t, err, ErrNotReconcilable)
	assert.Zero(t, gw.calls)
}

func TestSyncRejectsRechargeWithoutExternalID(t *testing.T) {
	gw := &stubGateway{payload: &gateway.Payload{Status: "SUCCESS"}}
	reconciler, engine, repo := newTestReconciler(t, gw)

	userID := repo.addUser(50000)
	operatorID := repo.addOperator("AIRTEL")
	created, err := engine.Create(context.Background(), CreateRequest{
		UserID:     userID,
		Type:       models.TypeRecharge,
		Status:     models.StatusPending,
		Amount:     1000,
		OperatorID: &operatorID,
	})
	require.NoError(t, err)

	_, err = reconciler.SyncFromGateway(context.Background(), created[0].ID)
	assert.ErrorIs(t, err, ErrNotReconcilable)
	assert.Zero(t, gw.calls)
}
