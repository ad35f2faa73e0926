package httpapi

import (
	"errors"
	"net/http"
	"time"

	"posbackoffice/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleServerTime(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ServerTime(r.Context())
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken issues the token clients send as X-CSRF-Token on mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": a.generateCSRFToken()})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}

func (a *API) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	summary, err := a.service.SalesSummary(r.Context(), query.Get("store_id"), query.Get("from"), query.Get("to"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	report, err := a.service.DailyReport(r.Context(), query.Get("store_id"), query.Get("date"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := a.service.Dashboard(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(
		r.Context(),
		query.Get("store_id"),
		query.Get("date"),
		parsePositiveLimit(query.Get("limit"), 100, 500),
	)
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleAnomalyAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.DetectOperationalAnomalies(r.Context(), query.Get("store_id"), query.Get("date"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
