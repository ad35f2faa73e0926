package httpapi

import (
	"net/http"

	"posbackoffice/backend/internal/domain"
)

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListCustomers(r.Context(), query.Get("q"), parsePositiveLimit(query.Get("limit"), 50, 200))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.UpdateCustomer(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleCustomerAccount(w http.ResponseWriter, r *http.Request) {
	account, err := a.service.CustomerAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleListBNPLTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListBNPLTransactions(r.Context(), query.Get("customer_id"), query.Get("status"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePreviewBNPLPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.BNPLPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	preview, err := a.service.PreviewBNPLPayment(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *API) handleApplyBNPLPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.BNPLPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ApplyBNPLPayment(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListBNPLPayments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListBNPLPayments(r.Context(), query.Get("customer_id"), parsePositiveLimit(query.Get("limit"), 50, 200))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleBNPLAging(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.BNPLAgingReport(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListExpenses(r.Context(), query.Get("store_id"), query.Get("from"), query.Get("to"), query.Get("category"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	expense, err := a.service.CreateExpense(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
}

func (a *API) handleListCashEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListCashEntries(
		r.Context(),
		query.Get("store_id"),
		query.Get("from"),
		query.Get("to"),
		parsePositiveLimit(query.Get("limit"), 200, 1000),
	)
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRecordCashEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.CashEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := a.service.RecordCashEntry(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry})
}

func (a *API) handleCashBalance(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	balance, err := a.service.CashBalance(r.Context(), query.Get("store_id"), query.Get("as_of"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
