// internal/gateway/paystack.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gateway is the subset of the money-movement API the settlement engine needs.
type Gateway interface {
	CreateRecipient(ctx context.Context, req RecipientRequest) (string, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
}

type RecipientRequest struct {
	Name          string
	AccountNumber string
	BankCode      string
}

type TransferRequest struct {
	Amount    decimal.Decimal
	Recipient string
	Reason    string
	Reference string
}

type Transfer struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
}

// Transaction is the verified view of an inbound charge.
type Transaction struct {
	Status    string         `json:"status"`
	Reference string         `json:"reference"`
	Amount    int64          `json:"amount"`
	Channel   string         `json:"channel"`
	Metadata  Metadata       `json:"metadata"`
	Customer  struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
}

// Metadata is the free-form object attached to a charge. The gateway sends an
// empty string instead of an object when none was set.
type Metadata map[string]any

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || b[0] != '{' {
		*m = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// String returns the value under key rendered as a string, or "".
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Successful reports whether the gateway settled the charge.
func (t *Transaction) Successful() bool { return t != nil && t.Status == "success" }

// APIError is returned when the gateway answers with a non-2xx status or status=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: %s (http %d)", e.Message, e.StatusCode)
}

// Client talks to a Paystack-compatible API.
type Client struct {
	BaseURL    string
	SecretKey  string
	Currency   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewClient(baseURL, secretKey, currency string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		SecretKey:  secretKey,
		Currency:   currency,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     log,
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) CreateRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	body := map[string]string{
		"type":           "mobile_money",
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       c.Currency,
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", body, &data); err != nil {
		return "", err
	}
	if data.RecipientCode == "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: "recipient code missing from response"}
	}
	return data.RecipientCode, nil
}

func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    MinorUnits(req.Amount),
		"recipient": req.Recipient,
		"reason":    req.Reason,
		"reference": req.Reference,
	}
	var t Transfer
	if err := c.do(ctx, http.MethodPost, "/transfer", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// VerifyTransaction returns the gateway's view of a charge. A reference the
// gateway rejects as unknown (400 or 404) comes back as an unsuccessful
// transaction. Any other failure, auth and rate limiting included, is an error
// so the caller can retry.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &tx); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusNotFound) {
			return &Transaction{Status: "failed", Reference: reference}, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paystack %s %s: read body: %w", method, path, err)
	}
	c.Logger.Debug("paystack call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "malformed response"}
	}
	if resp.StatusCode >= 300 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("paystack %s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}

// MinorUnits converts a major-unit amount to pesewas, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

var _ Gateway = (*Client)(nil)
