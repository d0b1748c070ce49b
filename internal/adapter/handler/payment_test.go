package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamkurence-png/psp-platform-sub000/internal/adapter/storage"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/lifecycle"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/risk"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/security"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/verification"
)

func newTestApp(t *testing.T) (*fiber.App, uuid.UUID, *storage.Memory) {
	t.Helper()

	store := storage.NewMemory()
	verifier := verification.NewEngine(store, nil, nil, verification.Config{})
	machine := lifecycle.NewMachine(store, risk.Heuristic{}, verifier, nil, nil, lifecycle.Config{HighRiskThreshold: 70})

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	vault, err := security.NewCardVault(key)
	require.NoError(t, err)

	merchantID := uuid.New()
	paymentHandler := &PaymentHandler{Machine: machine, Vault: vault, Store: store}

	app := fiber.New()
	// Stand-in for the API key middleware.
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("merchant_id", merchantID.String())
		return c.Next()
	})
	app.Post("/v1/charges", paymentHandler.ChargeCard)
	app.Get("/v1/transactions/:id", paymentHandler.GetTransaction)

	return app, merchantID, store
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestChargeCardCreatesTransaction(t *testing.T) {
	app, merchantID, store := newTestApp(t)

	resp := postJSON(t, app, "/v1/charges", ChargeRequest{
		Amount:         100_00,
		Currency:       "USD",
		CardholderName: "Jane Doe",
		CardNumber:     "4242424242424242",
		Expiry:         "12/30",
		CVC:            "123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Transaction  domain.Transaction `json:"transaction"`
		SubmissionID uuid.UUID          `json:"submission_id"`
		Brand        string             `json:"brand"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "VISA", body.Brand)
	assert.Equal(t, merchantID, body.Transaction.MerchantID)
	assert.Equal(t, domain.TxSubmitted, body.Transaction.Status)

	// The submission is persisted with the card data sealed, not raw.
	sub, err := store.GetSubmission(context.Background(), body.SubmissionID)
	require.NoError(t, err)
	assert.NotContains(t, string(sub.SealedCard), "4242424242424242")
}

func TestChargeCardRejectsUnsupportedBrand(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := postJSON(t, app, "/v1/charges", ChargeRequest{
		Amount:     100_00,
		Currency:   "USD",
		CardNumber: "378282246310005", // Amex
		Expiry:     "12/30",
		CVC:        "1234",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChargeCardRejectsBadCurrency(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := postJSON(t, app, "/v1/charges", ChargeRequest{
		Amount:     100_00,
		Currency:   "GBP",
		CardNumber: "4242424242424242",
		Expiry:     "12/30",
		CVC:        "123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTransactionScopedToMerchant(t *testing.T) {
	app, _, store := newTestApp(t)

	// A transaction belonging to somebody else is invisible.
	other := &domain.Transaction{
		ID:         uuid.New(),
		MerchantID: uuid.New(),
		Amount:     domain.NewMoney(10_00, domain.USD),
		Status:     domain.TxSubmitted,
	}
	require.NoError(t, store.CreateTransaction(context.Background(), other))

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions/"+other.ID.String(), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
