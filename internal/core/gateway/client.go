package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Hacker-CK/ledger-engine/internal/core/logger"
	"github.com/Hacker-CK/ledger-engine/internal/core/metrics"
)

var (
	// ErrNotFound is a valid terminal outcome: not every local transaction
	// exists upstream (test data, timing).
	ErrNotFound = errors.New("gateway has no record of the transaction")
	// ErrUnavailable covers timeouts, transport failures and malformed
	// responses. It carries no status information whatsoever.
	ErrUnavailable = errors.New("gateway unavailable")
)

// Payload is the gateway's view of a recharge transaction.
type Payload struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	OperatorRef   string `json:"operator_ref,omitempty"`
	Message       string `json:"message,omitempty"`
}

type Client interface {
	CheckStatus(ctx context.Context, transactionID string) (*Payload, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type httpGatewayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	metrics *metrics.Metrics
	log     logger.Logger
}

func NewClient(cfg Config, m *metrics.Metrics, log logger.Logger) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &httpGatewayClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		metrics: m,
		log:     log,
	}
}

func (c *httpGatewayClient) CheckStatus(ctx context.Context, transactionID string) (*Payload, error) {
	start := time.Now()
	payload, err := c.checkStatus(ctx, transactionID)
	c.metrics.GatewayRequest("check_status", outcomeLabel(err), time.Since(start))
	return payload, err
}

func (c *httpGatewayClient) checkStatus(ctx context.Context, transactionID string) (*Payload, error) {
	endpoint := fmt.Sprintf("%s/api/v1/status/%s", c.baseURL, url.PathEscape(transactionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed",
			logger.StringField("transaction_id", transactionID),
			logger.ErrorField("error", err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		c.log.Warn("gateway returned unexpected status",
			logger.StringField("transaction_id", transactionID),
			logger.IntField("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	// Some gateways answer 200 with an in-band not-found marker.
	if strings.EqualFold(strings.TrimSpace(payload.Status), "NOT_FOUND") {
		return nil, ErrNotFound
	}

	return &payload, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unavailable"
	}
}
