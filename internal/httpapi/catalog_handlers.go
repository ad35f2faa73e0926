package httpapi

import (
	"net/http"
	"strings"

	"posbackoffice/backend/internal/domain"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("sku"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	history, err := a.service.ListProductPriceHistory(r.Context(), r.PathValue("sku"), limit)
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleStockLevels(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lowOnly := strings.EqualFold(query.Get("low_only"), "true") || query.Get("low_only") == "1"
	resp, err := a.service.ListStockLevels(r.Context(), query.Get("store_id"), lowOnly)
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStockCount(w http.ResponseWriter, r *http.Request) {
	var req domain.StockCountRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.StockCount(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ReorderSuggestions(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
}

func (a *API) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListPurchaseOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetPurchaseOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		a.failRead(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderReceiveRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	resp, err := a.service.ReceivePurchaseOrder(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.CancelPurchaseOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
