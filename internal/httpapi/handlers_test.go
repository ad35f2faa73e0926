package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbackoffice/backend/internal/cache"
	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/service"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/store/memory"
)

const testManagerPIN = "482915"

// newTestAPI wires the real service and auth manager over the seeded
// in-memory store so handler tests run the full request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NewMemoryReportCache(), service.Options{DefaultStoreID: "main-store"}, zerolog.Nop())
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, testManagerPIN, repo)
	return New(svc, auth, "*", zerolog.Nop())
}

type client struct {
	t     *testing.T
	api   *API
	token string
	csrf  string
}

func newClient(t *testing.T, api *API, username string, password string) *client {
	t.Helper()
	return &client{t: t, api: api, token: loginAs(t, api, username, password), csrf: fetchCSRFToken(t, api)}
}

func (c *client) do(method string, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	res := httptest.NewRecorder()
	c.api.Handler().ServeHTTP(res, req)
	return res
}

func decodeInto[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out), res.Body.String())
	return out
}

func cashCheckout(key string, sku string, qty int, cash int64) map[string]any {
	return map[string]any{
		"terminal_id":         "T1",
		"idempotency_key":     key,
		"payment_method":      "cash",
		"cash_received_cents": cash,
		"cart_items":          []map[string]any{{"sku": sku, "qty": qty}},
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := decodeInto[map[string]any](t, res)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestProductsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestCashierCanListProductsButNotManageThem(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	res := cashier.do(http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := decodeInto[map[string][]domain.Product](t, res)
	assert.NotEmpty(t, body["products"])

	res = cashier.do(http.MethodPost, "/api/v1/products", map[string]any{"sku": "SKU-X", "name": "X", "price_cents": 1000})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = cashier.do(http.MethodGet, "/api/v1/reports/summary", nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestCheckoutIsIdempotentAndReceiptCanBeReprinted(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	res := cashier.do(http.MethodPost, "/api/v1/checkout", cashCheckout("idem-http-1", "SKU-MIE-01", 2, 10000))
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	first := decodeInto[domain.CheckoutResponse](t, res)
	assert.Equal(t, int64(7000), first.TotalCents)
	assert.Equal(t, int64(3000), first.ChangeCents)

	res = cashier.do(http.MethodPost, "/api/v1/checkout", cashCheckout("idem-http-1", "SKU-MIE-01", 2, 10000))
	require.Equal(t, http.StatusOK, res.Code)
	again := decodeInto[domain.CheckoutResponse](t, res)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.SaleID, again.SaleID)

	res = cashier.do(http.MethodGet, "/api/v1/checkout/idempotency/idem-http-1", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, decodeInto[domain.CheckoutLookupResponse](t, res).Found)

	res = cashier.do(http.MethodGet, "/api/v1/sales/"+first.SaleID+"/receipt", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, decodeInto[domain.ReceiptResponse](t, res).EscposBase64)

	res = cashier.do(http.MethodPost, "/api/v1/sales/"+first.SaleID+"/reprints", domain.ReceiptReprintRequest{})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = cashier.do(http.MethodPost, "/api/v1/sales/"+first.SaleID+"/reprints", domain.ReceiptReprintRequest{Reason: "paper jam"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	reprint := decodeInto[domain.ReceiptReprintResponse](t, res)
	assert.Equal(t, 1, reprint.Reprint.ReprintNumber)
	assert.True(t, strings.HasPrefix(reprint.Reprint.AuthorizationCode, "RP-"))

	res = cashier.do(http.MethodGet, "/api/v1/sales/"+first.SaleID+"/reprints", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, decodeInto[map[string][]domain.ReceiptReprint](t, res)["reprints"], 1)
}

func TestCheckoutMapsStockAndValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	res := cashier.do(http.MethodPost, "/api/v1/checkout", cashCheckout("idem-http-short", "SKU-MIE-01", 1, 100))
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = cashier.do(http.MethodPost, "/api/v1/checkout", cashCheckout("idem-http-stock", "SKU-MIE-01", 500, 10_000_000))
	assert.Equal(t, http.StatusConflict, res.Code)

	res = cashier.do(http.MethodGet, "/api/v1/sales/sale-missing", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestVoidNeedsManagerPINAndRestocks(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	res := admin.do(http.MethodPost, "/api/v1/checkout", cashCheckout("idem-http-void", "SKU-KOPI-01", 3, 10000))
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	sale := decodeInto[domain.CheckoutResponse](t, res)

	res = admin.do(http.MethodPost, "/api/v1/sales/"+sale.SaleID+"/void", map[string]string{"reason": "salah input", "manager_pin": "000000"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = admin.do(http.MethodPost, "/api/v1/sales/"+sale.SaleID+"/void", map[string]string{"reason": "salah input", "manager_pin": testManagerPIN})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, domain.SaleStatusVoided, decodeInto[domain.VoidSaleResponse](t, res).Status)

	res = admin.do(http.MethodPost, "/api/v1/sales/"+sale.SaleID+"/void", map[string]string{"reason": "again", "manager_pin": testManagerPIN})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = admin.do(http.MethodGet, "/api/v1/stock?low_only=false", nil)
	require.Equal(t, http.StatusOK, res.Code)
	levels := decodeInto[domain.StockLevelResponse](t, res)
	for _, level := range levels.Items {
		if level.SKU == "SKU-KOPI-01" {
			assert.Equal(t, 120, level.Qty)
		}
	}
}

func TestBNPLCheckoutAndPaymentOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	res := admin.do(http.MethodPost, "/api/v1/customers", domain.CustomerCreateRequest{Name: "Bu Sari", Phone: "0812000111", CreditLimitCents: 100000})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	customer := decodeInto[map[string]domain.Customer](t, res)["customer"]

	over := map[string]any{
		"terminal_id":     "T1",
		"idempotency_key": "idem-http-bnpl-over",
		"payment_method":  "bnpl",
		"customer_id":     customer.ID,
		"cart_items":      []map[string]any{{"sku": "SKU-TELUR-01", "qty": 10}},
	}
	res = admin.do(http.MethodPost, "/api/v1/checkout", over)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code, res.Body.String())

	credit := map[string]any{
		"terminal_id":         "T1",
		"idempotency_key":     "idem-http-bnpl",
		"payment_method":      "bnpl",
		"customer_id":         customer.ID,
		"down_payment_cents":  7800,
		"cash_received_cents": 7800,
		"cart_items":          []map[string]any{{"sku": "SKU-SUSU-01", "qty": 2}},
	}
	res = admin.do(http.MethodPost, "/api/v1/checkout", credit)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	sale := decodeInto[domain.CheckoutResponse](t, res)
	require.NotNil(t, sale.BNPL)
	assert.Equal(t, int64(30000), sale.BNPL.BalanceCents)

	res = admin.do(http.MethodPost, "/api/v1/bnpl/payments", domain.BNPLPaymentRequest{CustomerID: customer.ID, AmountCents: 40000, Method: "cash"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = admin.do(http.MethodPost, "/api/v1/bnpl/payments/preview", domain.BNPLPaymentRequest{CustomerID: customer.ID, AmountCents: 10000, Method: "cash"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Len(t, decodeInto[domain.BNPLPaymentPreview](t, res).Allocations, 1)

	res = admin.do(http.MethodPost, "/api/v1/bnpl/payments", domain.BNPLPaymentRequest{CustomerID: customer.ID, AmountCents: 10000, Method: "cash"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	paid := decodeInto[domain.BNPLPaymentResponse](t, res)
	assert.True(t, strings.HasPrefix(paid.Payment.ConfirmationNumber, "BNPL-"))
	assert.Equal(t, int64(20000), paid.OutstandingCents)

	res = admin.do(http.MethodGet, fmt.Sprintf("/api/v1/customers/%s/account", customer.ID), nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = admin.do(http.MethodGet, "/api/v1/cash-ledger/balance", nil)
	require.Equal(t, http.StatusOK, res.Code)
	balance := decodeInto[domain.CashBalance](t, res)
	assert.Equal(t, int64(17800), balance.BalanceCents)
}

func TestDashboardAndServerTime(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	res := admin.do(http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "main-store", decodeInto[domain.Dashboard](t, res).StoreID)

	res = admin.do(http.MethodGet, "/api/v1/system/time", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.False(t, decodeInto[domain.ServerTime](t, res).AppTime.IsZero())

	res = admin.do(http.MethodGet, "/api/v1/reports/daily?date=not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: qty", store.ErrInvalidTransaction), http.StatusBadRequest},
		{store.ErrInsufficientStock, http.StatusConflict},
		{store.ErrConflict, http.StatusConflict},
		{store.ErrCreditLimitExceeded, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: manual override", service.ErrAdminRequired), http.StatusForbidden},
		{errors.New("boom"), http.StatusTeapot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err, http.StatusTeapot), tt.err.Error())
	}
}
