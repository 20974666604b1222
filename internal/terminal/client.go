package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tillworks/tillpoint/pkg/config"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/types"
)

// UploadResult is what the engine needs from a reconciliation response: the
// server-assigned number, if any, and whether the server had seen the uuid
// before.
type UploadResult struct {
	ServerNumber *int64
	Replayed     bool
}

// Client is the terminal's HTTP client toward the reconciliation API. One
// request at a time, each with its own timeout.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logg    *logger.Logger
}

// NewClient builds the upload client from the terminal configuration.
func NewClient(cfg config.TerminalConfig, syncCfg config.SyncConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, fmt.Errorf("server url required")
	}
	if strings.TrimSpace(cfg.DeviceToken) == "" {
		return nil, fmt.Errorf("device token required")
	}
	timeout := syncCfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
		token:   cfg.DeviceToken,
		http:    &http.Client{Timeout: timeout},
		logg:    logg,
	}, nil
}

type uploadData struct {
	OrderNumber   *int64 `json:"order_number"`
	InvoiceNumber *int64 `json:"invoice_number"`
	Replayed      bool   `json:"replayed"`
}

// CreateOrder uploads an offline-created order.
func (c *Client) CreateOrder(ctx context.Context, payload json.RawMessage) (*UploadResult, error) {
	return c.send(ctx, http.MethodPost, "/api/v1/sync/orders", payload)
}

// UpdateOrder replays a local order edit.
func (c *Client) UpdateOrder(ctx context.Context, id uuid.UUID, payload json.RawMessage) (*UploadResult, error) {
	return c.send(ctx, http.MethodPatch, "/api/v1/sync/orders/"+id.String(), payload)
}

// CreateInvoice uploads an offline-created invoice.
func (c *Client) CreateInvoice(ctx context.Context, payload json.RawMessage) (*UploadResult, error) {
	return c.send(ctx, http.MethodPost, "/api/v1/sync/invoices", payload)
}

// CreatePayment uploads an offline-recorded payment.
func (c *Client) CreatePayment(ctx context.Context, payload json.RawMessage) (*UploadResult, error) {
	return c.send(ctx, http.MethodPost, "/api/v1/sync/payments", payload)
}

// CreateCustomer uploads an offline-created customer.
func (c *Client) CreateCustomer(ctx context.Context, payload json.RawMessage) (*UploadResult, error) {
	return c.send(ctx, http.MethodPost, "/api/v1/sync/customers", payload)
}

// Bootstrap pulls the reference data delta since the given cursor. A zero
// cursor pulls the full set.
func (c *Client) Bootstrap(ctx context.Context, since time.Time) (json.RawMessage, error) {
	path := "/api/v1/bootstrap"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build bootstrap request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "server unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read bootstrap response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.mapError(resp.StatusCode, raw)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode bootstrap response")
	}
	return envelope.Data, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload json.RawMessage) (*UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sync request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if key := idempotencyKey(payload); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "server unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read sync response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.mapError(resp.StatusCode, raw)
	}

	var envelope struct {
		Data uploadData `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode sync response")
	}

	result := &UploadResult{Replayed: envelope.Data.Replayed || resp.StatusCode == http.StatusOK}
	if envelope.Data.OrderNumber != nil {
		result.ServerNumber = envelope.Data.OrderNumber
	} else if envelope.Data.InvoiceNumber != nil {
		result.ServerNumber = envelope.Data.InvoiceNumber
	}
	return result, nil
}

// mapError classifies the server's status into retryable or fatal. 5xx and
// 429 come back once the server recovers; everything else means the payload
// itself is wrong and a retry cannot fix it.
func (c *Client) mapError(status int, raw []byte) error {
	message := "sync rejected"
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeDependency, message).WithDetails(string(raw))
	case status == http.StatusConflict:
		return pkgerrors.New(pkgerrors.CodeConflict, message).WithDetails(string(raw))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeForbidden, message)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(string(raw))
	}
}

// idempotencyKey reads the client-generated uuid from the payload so server
// middleware can short-circuit duplicate deliveries.
func idempotencyKey(payload json.RawMessage) string {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if _, err := uuid.Parse(body.ID); err != nil {
		return ""
	}
	return body.ID
}
