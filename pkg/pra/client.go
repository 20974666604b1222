package pra

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/pkg/config"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
)

const (
	postInvoicePath = "/postinvoicedata"

	// responseCodeOK is PRA's "invoice accepted" status code.
	responseCodeOK = "100"
)

var (
	errTokenRequired  = errors.New("pra token is required")
	errPOSIDRequired  = errors.New("pra pos id is required")
	errLoggerRequired = errors.New("pra logger is required")
)

// InvoiceItem is one line of the fiscal invoice payload.
type InvoiceItem struct {
	ItemName    string          `json:"itemName"`
	Quantity    int             `json:"quantity"`
	SaleValue   decimal.Decimal `json:"saleValue"`
	TaxCharged  decimal.Decimal `json:"taxCharged"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// InvoiceRequest is the payload posted to the fiscal authority.
type InvoiceRequest struct {
	POSID           string          `json:"posId"`
	NTN             string          `json:"ntnNumber"`
	USIN            string          `json:"usin"`
	DateTime        string          `json:"dateTime"`
	TotalSaleValue  decimal.Decimal `json:"totalSaleValue"`
	TotalTaxCharged decimal.Decimal `json:"totalTaxCharged"`
	Discount        decimal.Decimal `json:"discount"`
	TotalBillAmount decimal.Decimal `json:"totalBillAmount"`
	PaymentMode     string          `json:"paymentMode"`
	Items           []InvoiceItem   `json:"items"`
}

type invoiceResponse struct {
	InvoiceNumber string `json:"invoiceNumber"`
	Code          string `json:"code"`
	Response      string `json:"response"`
	Errors        string `json:"errors"`
}

// SubmitResult carries the authority-issued identifiers back to the caller.
type SubmitResult struct {
	FiscalNumber string
	QRCode       string
	RawResponse  json.RawMessage
}

// Client talks to the PRA invoice management service with centralized auth,
// timeouts, and error mapping.
type Client struct {
	baseURL  string
	token    string
	posID    string
	ntn      string
	testMode bool
	http     *http.Client
	logger   *logger.Logger
}

// NewClient validates credentials and builds the fiscal authority client.
// In test mode no credentials are needed and no network calls are made.
func NewClient(ctx context.Context, cfg config.PRAConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}

	token := strings.TrimSpace(cfg.Token)
	posID := strings.TrimSpace(cfg.POSID)
	if !cfg.TestMode {
		if token == "" {
			return nil, errTokenRequired
		}
		if posID == "" {
			return nil, errPOSIDRequired
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    token,
		posID:    posID,
		ntn:      strings.TrimSpace(cfg.NTN),
		testMode: cfg.TestMode,
		http:     &http.Client{Timeout: timeout},
		logger:   logg,
	}

	logg.Info(ctx, "pra client initialized")
	return c, nil
}

// POSID returns the registered point-of-sale identifier.
func (c *Client) POSID() string {
	if c == nil {
		return ""
	}
	return c.posID
}

// SubmitInvoice posts one invoice to the authority and returns the issued
// fiscal number. Transport and 5xx failures map to retryable dependency
// errors; an explicit rejection from the authority is terminal.
func (c *Client) SubmitInvoice(ctx context.Context, req InvoiceRequest) (*SubmitResult, error) {
	if c.testMode {
		return c.simulate(req)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal fiscal payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+postInvoicePath, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build fiscal request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fiscal authority unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read fiscal response")
	}

	if resp.StatusCode >= 500 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("fiscal authority returned %d", resp.StatusCode)).
			WithDetails(string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule,
			fmt.Sprintf("fiscal submission rejected with status %d", resp.StatusCode)).
			WithDetails(string(raw))
	}

	var parsed invoiceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode fiscal response")
	}

	if parsed.Code != responseCodeOK || parsed.InvoiceNumber == "" {
		msg := parsed.Response
		if parsed.Errors != "" {
			msg = parsed.Errors
		}
		if msg == "" {
			msg = "fiscal submission rejected"
		}
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, msg).WithDetails(string(raw))
	}

	return &SubmitResult{
		FiscalNumber: parsed.InvoiceNumber,
		QRCode:       qrPayload(parsed.InvoiceNumber),
		RawResponse:  json.RawMessage(raw),
	}, nil
}

// simulate issues a deterministic fiscal number so retries of the same
// invoice produce the same identifiers.
func (c *Client) simulate(req InvoiceRequest) (*SubmitResult, error) {
	sum := sha256.Sum256([]byte(req.USIN + "|" + req.TotalBillAmount.String()))
	fiscalNumber := "TEST-" + strings.ToUpper(hex.EncodeToString(sum[:8]))

	raw, _ := json.Marshal(invoiceResponse{
		InvoiceNumber: fiscalNumber,
		Code:          responseCodeOK,
		Response:      "simulated",
	})

	return &SubmitResult{
		FiscalNumber: fiscalNumber,
		QRCode:       qrPayload(fiscalNumber),
		RawResponse:  raw,
	}, nil
}

func qrPayload(fiscalNumber string) string {
	return "PRA:" + fiscalNumber
}
