package pra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillworks/tillpoint/pkg/config"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "pra-test"})
}

func sampleRequest() InvoiceRequest {
	return InvoiceRequest{
		POSID:           "812345",
		NTN:             "1234567-8",
		USIN:            "0d4407df-64c2-4b02-a0a4-5efae2ea8883",
		DateTime:        "2026-08-31 21:14:05",
		TotalSaleValue:  decimal.RequireFromString("250.00"),
		TotalTaxCharged: decimal.RequireFromString("40.00"),
		Discount:        decimal.Zero,
		TotalBillAmount: decimal.RequireFromString("290.00"),
		PaymentMode:     "cash",
		Items: []InvoiceItem{
			{ItemName: "Karahi", Quantity: 1, SaleValue: decimal.RequireFromString("250.00"), TaxCharged: decimal.RequireFromString("40.00"), TotalAmount: decimal.RequireFromString("290.00")},
		},
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), config.PRAConfig{}, testLogger())
	require.Error(t, err)

	_, err = NewClient(context.Background(), config.PRAConfig{Token: "tok"}, testLogger())
	require.Error(t, err)

	c, err := NewClient(context.Background(), config.PRAConfig{TestMode: true}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestSubmitInvoiceSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, postInvoicePath, r.URL.Path)

		var req InvoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "812345", req.POSID)

		json.NewEncoder(w).Encode(map[string]string{
			"invoiceNumber": "812345230831211405",
			"code":          "100",
			"response":      "Invoice received successfully",
		})
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), config.PRAConfig{
		BaseURL: srv.URL,
		Token:   "tok",
		POSID:   "812345",
	}, testLogger())
	require.NoError(t, err)

	result, err := c.SubmitInvoice(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "812345230831211405", result.FiscalNumber)
	assert.Equal(t, "PRA:812345230831211405", result.QRCode)
	assert.NotEmpty(t, result.RawResponse)
}

func TestSubmitInvoiceServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), config.PRAConfig{BaseURL: srv.URL, Token: "tok", POSID: "812345"}, testLogger())
	require.NoError(t, err)

	_, err = c.SubmitInvoice(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.Retryable(err))
}

func TestSubmitInvoiceRejectionIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"code":   "101",
			"errors": "invalid NTN",
		})
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), config.PRAConfig{BaseURL: srv.URL, Token: "tok", POSID: "812345"}, testLogger())
	require.NoError(t, err)

	_, err = c.SubmitInvoice(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.False(t, pkgerrors.Retryable(err))
	assert.Contains(t, err.Error(), "invalid NTN")
}

func TestSimulatedSubmissionIsDeterministic(t *testing.T) {
	c, err := NewClient(context.Background(), config.PRAConfig{TestMode: true}, testLogger())
	require.NoError(t, err)

	first, err := c.SubmitInvoice(context.Background(), sampleRequest())
	require.NoError(t, err)
	second, err := c.SubmitInvoice(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, first.FiscalNumber, second.FiscalNumber)
	assert.Contains(t, first.FiscalNumber, "TEST-")
}
