package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbackoffice/backend/internal/domain"
)

// send issues an unauthenticated request from a fixed client address.
func send(api *API, method string, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.1.1.7:41000"
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func TestResponsesCarrySecurityHeaders(t *testing.T) {
	res := send(newTestAPI(t), http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, res.Header().Get("Referrer-Policy"))
}

func TestPreflightAnsweredWithoutAuth(t *testing.T) {
	res := send(newTestAPI(t), http.MethodOptions, "/api/v1/bnpl/payments", "", nil)
	assert.Equal(t, http.StatusNoContent, res.Code)
}

func TestLoginThrottledAfterFiveFailures(t *testing.T) {
	api := newTestAPI(t)
	wrong := `{"username":"admin","password":"not-the-password"}`

	for attempt := 1; attempt <= 5; attempt++ {
		res := send(api, http.MethodPost, "/api/v1/auth/login", wrong, nil)
		require.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", attempt)
	}
	res := send(api, http.MethodPost, "/api/v1/auth/login", wrong, nil)
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
}

func TestOversizedBodyRejected(t *testing.T) {
	padding := strings.Repeat("x", 1<<20)
	res := send(newTestAPI(t), http.MethodPost, "/api/v1/auth/login", `{"username":"`+padding+`","password":"p"}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestMutationsNeedCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	bearer := map[string]string{"Authorization": "Bearer " + loginAs(t, api, "admin", "admin123")}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"expense", http.MethodPost, "/api/v1/expenses", `{"category":"utilities","description":"listrik","amount_cents":10000,"payment_method":"cash"}`},
		{"cash entry", http.MethodPost, "/api/v1/cash-ledger", `{"direction":"in","source":"opening_float","amount_cents":50000}`},
		{"product patch", http.MethodPatch, "/api/v1/products/SKU-MIE-01", `{"price_cents":3600}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := send(api, tt.method, tt.path, tt.body, bearer)
			assert.Equal(t, http.StatusForbidden, res.Code)
		})
	}

	forged := map[string]string{"Authorization": bearer["Authorization"], "X-CSRF-Token": "forged.token"}
	res := send(api, http.MethodPost, "/api/v1/suppliers", `{"name":"CV Maju"}`, forged)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestManagerPINThrottledAfterEightFailures(t *testing.T) {
	admin := newClient(t, newTestAPI(t), "admin", "admin123")
	attempt := map[string]string{"reason": "salah scan", "manager_pin": "000000"}

	for i := 1; i <= 8; i++ {
		res := admin.do(http.MethodPost, "/api/v1/sales/sale-unknown/void", attempt)
		require.Equal(t, http.StatusForbidden, res.Code, "attempt %d", i)
	}
	res := admin.do(http.MethodPost, "/api/v1/sales/sale-unknown/void", attempt)
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
}

func TestParsePositiveLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 50},
		{"abc", 50},
		{"0", 50},
		{"-3", 50},
		{"25", 25},
		{"9999", 200},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parsePositiveLimit(tt.raw, 50, 200), "raw %q", tt.raw)
	}
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()

	res := send(api, http.MethodGet, "/api/v1/auth/csrf-token", "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		Token string `json:"csrf_token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, payload.Token)
	return payload.Token
}

func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, err := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	require.NoError(t, err)
	res := send(api, http.MethodPost, "/api/v1/auth/login", string(body), nil)
	require.Equal(t, http.StatusOK, res.Code, "%s login", username)

	var payload domain.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, payload.AccessToken)
	return payload.AccessToken
}
