package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/Hacker-CK/ledger-engine/internal/core/gateway"
	"github.com/Hacker-CK/ledger-engine/internal/core/logger"
	"github.com/Hacker-CK/ledger-engine/internal/core/models"
	"github.com/Hacker-CK/ledger-engine/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// minorUnitsPerRupee fixes the stored precision at two fractional digits.
const minorUnitsPerRupee = 100

var amountRegexp = regexp.MustCompile(`^\s*\d{1,9}([.,]\d{1,2})?\s*$`)

type TransactionHandler struct {
	engine     usecase.TransactionUsecase
	reconciler usecase.ReconcileUsecase
	log        logger.Logger
}

func NewTransactionHandler(engine usecase.TransactionUsecase, reconciler usecase.ReconcileUsecase, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{engine: engine, reconciler: reconciler, log: log}
}

func (h *TransactionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/transactions", h.CreateTransaction).Methods("POST")
	router.HandleFunc("/api/v1/transactions/batch", h.CreditBatch).Methods("POST")
	router.HandleFunc("/api/v1/transactions/check-status/{transactionId}", h.CheckStatus).Methods("GET")
	router.HandleFunc("/api/v1/transactions/update-from-api/{id}", h.SyncFromGateway).Methods("POST")
	router.HandleFunc("/api/v1/transactions/{id}", h.GetTransaction).Methods("GET")
	router.HandleFunc("/api/v1/transactions/{id}", h.UpdateTransaction).Methods("PATCH")
	router.HandleFunc("/api/v1/transactions/{id}", h.DeleteTransaction).Methods("DELETE")
	router.HandleFunc("/api/v1/users/{id}/balance", h.GetBalance).Methods("GET")
}

type createTransactionRequest struct {
	UserID        uuid.UUID   `json:"userId"`
	Type          string      `json:"type"`
	Status        string      `json:"status"`
	Amount        string      `json:"amount"`
	OperatorID    *uuid.UUID  `json:"operatorId,omitempty"`
	RecipientID   []uuid.UUID `json:"recipientId,omitempty"`
	TransactionID string      `json:"transactionId,omitempty"`
	Description   string      `json:"description,omitempty"`
}

type updateTransactionRequest struct {
	Status          string  `json:"status"`
	Description     *string `json:"description,omitempty"`
	RefundRequested bool    `json:"refundRequested"`
}

type batchCreditRequest struct {
	UserIDs     []uuid.UUID `json:"userIds"`
	Type        string      `json:"type"`
	Amount      string      `json:"amount"`
	Description string      `json:"description,omitempty"`
}

type transactionPayload struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID string     `json:"transactionId,omitempty"`
	UserID        uuid.UUID  `json:"userId"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	OperatorID    *uuid.UUID `json:"operatorId,omitempty"`
	RecipientID   *uuid.UUID `json:"recipientId,omitempty"`
	Description   string     `json:"description,omitempty"`
	CreatedAt     string     `json:"createdAt"`
	UpdatedAt     string     `json:"updatedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.log.Warn("invalid amount", logger.StringField("amount", req.Amount), logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := models.StatusPending
	if req.Status != "" {
		status = models.TransactionStatus(strings.ToUpper(req.Status))
	}

	created, err := h.engine.Create(r.Context(), usecase.CreateRequest{
		UserID:        req.UserID,
		Type:          models.TransactionType(strings.ToUpper(req.Type)),
		Status:        status,
		Amount:        amount,
		OperatorID:    req.OperatorID,
		RecipientIDs:  req.RecipientID,
		TransactionID: req.TransactionID,
		Description:   req.Description,
		IPAddress:     clientIP(r),
		DeviceInfo:    r.UserAgent(),
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	payloads := make([]transactionPayload, 0, len(created))
	for _, t := range created {
		payloads = append(payloads, toPayload(t))
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"transactions": payloads,
	})
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toPayload(t))
}

func (h *TransactionHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateTransactionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		respondWithError(w, http.StatusBadRequest, "status is required")
		return
	}

	updated, err := h.engine.ApplyTransition(r.Context(), id, usecase.TransitionRequest{
		Status:          models.TransactionStatus(strings.ToUpper(req.Status)),
		Description:     req.Description,
		RefundRequested: req.RefundRequested,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toPayload(updated))
}

func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) CreditBatch(w http.ResponseWriter, r *http.Request) {
	var req batchCreditRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if len(req.UserIDs) == 0 {
		respondWithError(w, http.StatusBadRequest, "userIds is required")
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.engine.CreditBatch(r.Context(), usecase.BatchCreditRequest{
		UserIDs:     req.UserIDs,
		Type:        models.TransactionType(strings.ToUpper(req.Type)),
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	payloads := make([]transactionPayload, 0, len(result.Created))
	for _, t := range result.Created {
		payloads = append(payloads, toPayload(t))
	}

	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	respondWithJSON(w, status, map[string]interface{}{
		"created": payloads,
		"failed":  result.Failed,
	})
}

func (h *TransactionHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	externalID := mux.Vars(r)["transactionId"]

	result, err := h.reconciler.CheckStatus(r.Context(), externalID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	var apiResponse *gateway.Payload
	mapped := ""
	if result.Found {
		apiResponse = result.Payload
		mapped = string(result.MappedStatus)
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"apiResponse":  apiResponse,
		"mappedStatus": mapped,
	})
}

func (h *TransactionHandler) SyncFromGateway(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.reconciler.SyncFromGateway(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	payload := toPayload(result.Transaction)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"statusUpdated":  result.StatusUpdated,
		"previousStatus": string(result.PreviousStatus),
		"newStatus":      string(result.NewStatus),
		"transaction":    payload,
	})
}

func (h *TransactionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	balance, err := h.engine.GetBalance(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"userId":  id,
		"balance": formatAmount(balance),
	})
}

func (h *TransactionHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Warn("failed to decode request body", logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	return true
}

func (h *TransactionHandler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *TransactionHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidAmount),
		errors.Is(err, usecase.ErrInvalidType),
		errors.Is(err, usecase.ErrInvalidStatus),
		errors.Is(err, usecase.ErrNotReconcilable):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrInsufficientFunds):
		respondWithError(w, http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, usecase.ErrUserNotFound),
		errors.Is(err, usecase.ErrOperatorNotFound),
		errors.Is(err, usecase.ErrRecipientNotFound),
		errors.Is(err, usecase.ErrTransactionNotFound),
		errors.Is(err, usecase.ErrGatewayNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, usecase.ErrIllegalTransition),
		errors.Is(err, usecase.ErrAlreadyApplied),
		errors.Is(err, usecase.ErrDuplicateTransactionID),
		errors.Is(err, usecase.ErrDeleteAmbiguous):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrGatewayUnavailable):
		respondWithError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		h.log.Error("failed to process request", logger.ErrorField("error", err))
		respondWithError(w, http.StatusInternalServerError, "failed to process request")
	}
}

func parseAmount(amountStr string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.ReplaceAll(amountStr, " ", ""), ",", ".")

	if !amountRegexp.MatchString(cleaned) {
		return 0, fmt.Errorf("invalid amount format: %s", cleaned)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("could not parse amount: %v", err)
	}

	if amount.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("amount must be positive")
	}

	return amount.Mul(decimal.NewFromInt(minorUnitsPerRupee)).IntPart(), nil
}

func formatAmount(minorUnits int64) string {
	return decimal.NewFromInt(minorUnits).
		Div(decimal.NewFromInt(minorUnitsPerRupee)).
		StringFixedBank(2)
}

func toPayload(t *models.Transaction) transactionPayload {
	p := transactionPayload{
		ID:          t.ID,
		UserID:      t.UserID,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Amount:      formatAmount(t.Amount),
		Description: t.Description,
		CreatedAt:   t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if t.TransactionID.Valid {
		p.TransactionID = t.TransactionID.String
	}
	if t.OperatorID.Valid {
		id := t.OperatorID.UUID
		p.OperatorID = &id
	}
	if t.RecipientID.Valid {
		id := t.RecipientID.UUID
		p.RecipientID = &id
	}
	return p
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, body interface{}) {
	response, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
