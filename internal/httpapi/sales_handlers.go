package httpapi

import (
	"net/http"

	"posbackoffice/backend/internal/domain"
)

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleCheckoutLookup(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.LookupCheckoutByIdempotency(r.Context(), r.PathValue("key"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListSales(
		r.Context(),
		query.Get("store_id"),
		query.Get("from"),
		query.Get("to"),
		query.Get("customer_id"),
		parsePositiveLimit(query.Get("limit"), 100, 500),
	)
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleVoidSale(w http.ResponseWriter, r *http.Request) {
	var req domain.VoidSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.requireManagerPIN(w, r, "void", req.ManagerPIN) {
		return
	}
	req.SaleID = r.PathValue("id")

	resp, err := a.service.VoidSale(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.requireManagerPIN(w, r, "refund", req.ManagerPIN) {
		return
	}

	resp, err := a.service.Refund(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReturnEligibility(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ReturnEligibility(r.Context(), r.PathValue("id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleItemReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.requireManagerPIN(w, r, "return", req.ManagerPIN) {
		return
	}

	resp, err := a.service.ProcessItemReturn(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.Receipt(r.Context(), r.PathValue("id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReprintReceipt(w http.ResponseWriter, r *http.Request) {
	var req domain.ReceiptReprintRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ReprintReceipt(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListReprints(w http.ResponseWriter, r *http.Request) {
	reprints, err := a.service.ListReprints(r.Context(), r.PathValue("id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reprints": reprints})
}
