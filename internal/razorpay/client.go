// Package razorpay is a narrow client for the payment gateway: order
// creation plus the two HMAC signature checks the gateway defines, one
// for browser checkout callbacks and one for server webhooks.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"harborcast/pkg/clients"
	"harborcast/pkg/logging"
)

// Webhook event names the gateway emits.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Order is the gateway's order resource, trimmed to the fields we read.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// WebhookEnvelope is the decoded webhook payload. The gateway nests the
// payment entity two levels deep.
type WebhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// PaymentEntity is the payment portion of a webhook payload.
type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// Config represents the configuration for the gateway client.
type Config struct {
	BaseURL              string
	KeyID                string
	KeySecret            string
	WebhookSecret        string
	Timeout              time.Duration
	Logger               logging.Logger
	RetryConfig          *clients.RetryConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// Client talks to the gateway's REST API and verifies its signatures.
type Client struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	httpClient    *http.Client
	logger        logging.Logger
	retryConfig   clients.RetryConfig
}

// NewClient creates a new gateway client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.razorpay.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	retryConfig := clients.DefaultRetryConfig()
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}
	if cfg.CircuitBreakerConfig != nil {
		retryConfig.CircuitBreaker = clients.NewCircuitBreaker(*cfg.CircuitBreakerConfig)
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: clients.DefaultTransport(),
		},
		logger:      cfg.Logger,
		retryConfig: retryConfig,
	}
}

// CreateOrder opens a new order for the given amount in minor units.
// Receipt lets the caller tie the order back to its donation row.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (Order, error) {
	payload := map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Order{}, fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Order{}, fmt.Errorf("build order request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := clients.DoWithRetry(ctx, c.httpClient, req, c.retryConfig)
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return Order{}, fmt.Errorf("create order failed (%d): %s", resp.StatusCode, raw)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return Order{}, fmt.Errorf("decode order response: %w", err)
	}
	return order, nil
}

// VerifyPaymentSignature checks the checkout callback signature, an HMAC
// over "orderID|paymentID" keyed with the API secret. A missing secret
// fails closed.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifyHMAC(c.keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks the webhook signature, an HMAC over the
// raw request body keyed with the dedicated webhook secret. A missing
// secret fails closed.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifyHMAC(c.webhookSecret, body, signature)
}

func verifyHMAC(secret string, message []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
