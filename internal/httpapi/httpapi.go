package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"posbackoffice/backend/internal/service"
	"posbackoffice/backend/internal/store"
)

const (
	roleAdmin   = "admin"
	roleCashier = "cashier"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
	log           zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger zerolog.Logger) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		panic(fmt.Sprintf("httpapi: read csrf secret: %v", err))
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
		log:           logger.With().Str("component", "http").Logger(),
	}
}

// csrfTokenForHour signs a Unix hour bucket with the per-process secret.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts tokens from the current or the previous hour.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	for _, bucket := range []int64{current, current - 3600} {
		if hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(bucket))) {
			return true
		}
	}
	return false
}

// attemptLimiter is a sliding-window counter keyed by client.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := history[:0]
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	staff := []string{roleCashier, roleAdmin}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /api/v1/system/time", a.requireAuth(a.handleServerTime, staff...))
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("GET /api/v1/users/cashiers", a.requireAuth(a.handleListCashiers, roleAdmin))
	mux.HandleFunc("POST /api/v1/users/cashiers", a.requireAuth(a.handleCreateCashier, roleAdmin))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, staff...))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, roleAdmin))
	mux.HandleFunc("PATCH /api/v1/products/{sku}", a.requireAuth(a.handleUpdateProduct, roleAdmin))
	mux.HandleFunc("GET /api/v1/products/{sku}/price-history", a.requireAuth(a.handlePriceHistory, roleAdmin))
	mux.HandleFunc("GET /api/v1/stock", a.requireAuth(a.handleStockLevels, staff...))
	mux.HandleFunc("POST /api/v1/stock-counts", a.requireAuth(a.handleStockCount, roleAdmin))
	mux.HandleFunc("GET /api/v1/reorder-suggestions", a.requireAuth(a.handleReorderSuggestions, roleAdmin))

	mux.HandleFunc("GET /api/v1/suppliers", a.requireAuth(a.handleListSuppliers, roleAdmin))
	mux.HandleFunc("POST /api/v1/suppliers", a.requireAuth(a.handleCreateSupplier, roleAdmin))
	mux.HandleFunc("GET /api/v1/purchase-orders", a.requireAuth(a.handleListPurchaseOrders, roleAdmin))
	mux.HandleFunc("POST /api/v1/purchase-orders", a.requireAuth(a.handleCreatePurchaseOrder, roleAdmin))
	mux.HandleFunc("GET /api/v1/purchase-orders/{id}", a.requireAuth(a.handleGetPurchaseOrder, roleAdmin))
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/receive", a.requireAuth(a.handleReceivePurchaseOrder, roleAdmin))
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/cancel", a.requireAuth(a.handleCancelPurchaseOrder, roleAdmin))

	mux.HandleFunc("POST /api/v1/checkout", a.requireAuth(a.handleCheckout, staff...))
	mux.HandleFunc("GET /api/v1/checkout/idempotency/{key}", a.requireAuth(a.handleCheckoutLookup, staff...))
	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales, roleAdmin))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale, staff...))
	mux.HandleFunc("POST /api/v1/sales/{id}/void", a.requireAuth(a.handleVoidSale, roleAdmin))
	mux.HandleFunc("GET /api/v1/sales/{id}/receipt", a.requireAuth(a.handleReceipt, staff...))
	mux.HandleFunc("GET /api/v1/sales/{id}/reprints", a.requireAuth(a.handleListReprints, staff...))
	mux.HandleFunc("POST /api/v1/sales/{id}/reprints", a.requireAuth(a.handleReprintReceipt, staff...))
	mux.HandleFunc("GET /api/v1/sales/{id}/return-eligibility", a.requireAuth(a.handleReturnEligibility, staff...))
	mux.HandleFunc("POST /api/v1/refunds", a.requireAuth(a.handleRefund, roleAdmin))
	mux.HandleFunc("POST /api/v1/returns/items", a.requireAuth(a.handleItemReturn, roleAdmin))

	mux.HandleFunc("GET /api/v1/customers", a.requireAuth(a.handleListCustomers, staff...))
	mux.HandleFunc("POST /api/v1/customers", a.requireAuth(a.handleCreateCustomer, roleAdmin))
	mux.HandleFunc("GET /api/v1/customers/{id}", a.requireAuth(a.handleGetCustomer, staff...))
	mux.HandleFunc("PATCH /api/v1/customers/{id}", a.requireAuth(a.handleUpdateCustomer, roleAdmin))
	mux.HandleFunc("GET /api/v1/customers/{id}/account", a.requireAuth(a.handleCustomerAccount, staff...))
	mux.HandleFunc("GET /api/v1/bnpl/transactions", a.requireAuth(a.handleListBNPLTransactions, staff...))
	mux.HandleFunc("POST /api/v1/bnpl/payments/preview", a.requireAuth(a.handlePreviewBNPLPayment, staff...))
	mux.HandleFunc("POST /api/v1/bnpl/payments", a.requireAuth(a.handleApplyBNPLPayment, staff...))
	mux.HandleFunc("GET /api/v1/bnpl/payments", a.requireAuth(a.handleListBNPLPayments, staff...))
	mux.HandleFunc("GET /api/v1/bnpl/aging", a.requireAuth(a.handleBNPLAging, roleAdmin))

	mux.HandleFunc("GET /api/v1/expenses", a.requireAuth(a.handleListExpenses, roleAdmin))
	mux.HandleFunc("POST /api/v1/expenses", a.requireAuth(a.handleCreateExpense, roleAdmin))
	mux.HandleFunc("GET /api/v1/cash-ledger", a.requireAuth(a.handleListCashEntries, roleAdmin))
	mux.HandleFunc("POST /api/v1/cash-ledger", a.requireAuth(a.handleRecordCashEntry, roleAdmin))
	mux.HandleFunc("GET /api/v1/cash-ledger/balance", a.requireAuth(a.handleCashBalance, roleAdmin))

	mux.HandleFunc("GET /api/v1/reports/summary", a.requireAuth(a.handleSalesSummary, roleAdmin))
	mux.HandleFunc("GET /api/v1/reports/daily", a.requireAuth(a.handleDailyReport, roleAdmin))
	mux.HandleFunc("GET /api/v1/dashboard", a.requireAuth(a.handleDashboard, roleAdmin))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, roleAdmin))
	mux.HandleFunc("GET /api/v1/alerts/anomalies", a.requireAuth(a.handleAnomalyAlerts, roleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// requireManagerPIN rate-limits and checks the manager PIN for one action.
func (a *API) requireManagerPIN(w http.ResponseWriter, r *http.Request, action string, pin string) bool {
	if !a.pinLimiter.Allow("pin:" + action + ":" + clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return false
	}
	if !a.auth.ValidateManagerPIN(pin) {
		a.log.Warn().Str("action", action).Str("client", clientKey(r)).Msg("rejected manager pin")
		a.writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return false
	}
	return true
}

// Login is the only mutating route reachable before a CSRF token can be fetched.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		a.writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Body != nil && r.Method != http.MethodGet {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if !a.checkCSRF(w, r) {
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)

		event := a.log.Info()
		if rec.status >= http.StatusInternalServerError {
			event = a.log.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(startedAt)).
			Msg("request")
	})
}

// statusFor maps store and service errors onto HTTP codes; fallback covers
// everything unrecognised.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, service.ErrAdminRequired):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrCreditLimitExceeded):
		return http.StatusUnprocessableEntity
	}
	return fallback
}

// fail writes err for a mutating request.
func (a *API) fail(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err, http.StatusUnprocessableEntity), err)
}

// failRead writes err for a read; unknown errors become 500.
func (a *API) failRead(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err, http.StatusInternalServerError), err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		a.log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
