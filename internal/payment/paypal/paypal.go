// Package paypal is a minimal PayPal Orders v2 client.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const StatusCompleted = "COMPLETED"

type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Timeout      time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("paypal client id and secret are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// token requests use the same timeout as API calls
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	httpClient := cc.Client(ctx)
	httpClient.Timeout = cfg.Timeout
	return &Client{baseURL: base, http: httpClient, logger: logger}, nil
}

type APIError struct {
	Status  int
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal %d %s: %s", e.Status, e.Name, e.Message)
}

func (e *APIError) StatusCode() int { return e.Status }

type CreateOrderParams struct {
	ReferenceID string
	CustomID    string
	Amount      decimal.Decimal
	Currency    string
	RequestID   string
}

type Order struct {
	ID         string
	Status     string
	ApproveURL string
}

type Capture struct {
	ID            string
	Status        string
	CaptureID     string
	CaptureStatus string
	ReferenceID   string
	CustomID      string
	Amount        decimal.Decimal
	Currency      string
}

// Completed reports whether funds moved. An order can be COMPLETED while its
// capture is still PENDING, for example under payment review.
func (c *Capture) Completed() bool {
	return c.Status == StatusCompleted && c.CaptureStatus == StatusCompleted
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string  `json:"reference_id,omitempty"`
	CustomID    string  `json:"custom_id,omitempty"`
	Amount      *amount `json:"amount,omitempty"`
	Payments    *struct {
		Captures []struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			CustomID string `json:"custom_id"`
			Amount   amount `json:"amount"`
		} `json:"captures"`
	} `json:"payments,omitempty"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []link         `json:"links"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

func (c *Client) CreateOrder(ctx context.Context, p CreateOrderParams) (*Order, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []purchaseUnit{{
			ReferenceID: p.ReferenceID,
			CustomID:    p.CustomID,
			Amount: &amount{
				CurrencyCode: strings.ToUpper(p.Currency),
				Value:        p.Amount.StringFixed(2),
			},
		}},
	}
	var out orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", p.RequestID, body, &out); err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}
	o := &Order{ID: out.ID, Status: out.Status}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			o.ApproveURL = l.Href
			break
		}
	}
	return o, nil
}

// CaptureOrder captures an approved order. requestID makes retries of the
// same capture idempotent on PayPal's side.
func (c *Client) CaptureOrder(ctx context.Context, orderID, requestID string) (*Capture, error) {
	var out orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", requestID, struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("capture paypal order %s: %w", orderID, err)
	}
	capt := &Capture{ID: out.ID, Status: out.Status}
	for _, pu := range out.PurchaseUnits {
		capt.ReferenceID = pu.ReferenceID
		if pu.Payments == nil || len(pu.Payments.Captures) == 0 {
			continue
		}
		first := pu.Payments.Captures[0]
		capt.CaptureID = first.ID
		capt.CaptureStatus = first.Status
		capt.CustomID = first.CustomID
		capt.Currency = first.Amount.CurrencyCode
		if v, err := decimal.NewFromString(first.Amount.Value); err == nil {
			capt.Amount = v
		}
		break
	}
	return capt, nil
}

func (c *Client) do(ctx context.Context, method, path, requestID string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		c.logger.Warn("paypal error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("name", apiErr.Name),
			zap.String("debug_id", apiErr.DebugID))
		return apiErr
	}
	return json.Unmarshal(body, out)
}
