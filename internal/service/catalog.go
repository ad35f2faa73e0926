package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.InitialStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: initial stock cannot be negative", store.ErrInvalidTransaction)
	}

	storeID := s.storeOr(req.StoreID)
	product := domain.Product{
		SKU:        normalizeSKU(req.SKU),
		Name:       strings.TrimSpace(req.Name),
		Category:   strings.TrimSpace(req.Category),
		PriceCents: req.PriceCents,
		MarginRate: req.MarginRate,
		Active:     true,
	}
	if err := store.ValidateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	if req.InitialStock > 0 {
		opening := []domain.StockAdjustment{{SKU: created.SKU, Qty: req.InitialStock}}
		if err := s.repo.IncreaseStock(ctx, storeID, opening); err != nil {
			return domain.Product{}, err
		}
	}

	s.seedCost(ctx, storeID, *created)
	s.logAudit(ctx, storeID, "product_create", "product", created.SKU,
		fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, req.InitialStock))
	return *created, nil
}

// UpdateProduct applies a partial update. A price change is recorded in the
// price history under the acting admin.
func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	sku = normalizeSKU(sku)
	if sku == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	before, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	after, err := patchProduct(*before, req)
	if err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, after)
	if err != nil {
		return domain.Product{}, err
	}

	if saved.PriceCents != before.PriceCents {
		change := domain.ProductPriceHistory{
			ID:            xid.New("ph"),
			SKU:           saved.SKU,
			OldPriceCents: before.PriceCents,
			NewPriceCents: saved.PriceCents,
			ChangedBy:     actor.Username,
			ChangedAt:     s.now(),
		}
		if err := s.repo.CreatePriceHistory(ctx, change); err != nil {
			s.log.Warn().Err(err).Str("sku", saved.SKU).Msg("price history not recorded")
		}
	}

	s.seedCost(ctx, s.opts.DefaultStoreID, *saved)
	s.logAudit(ctx, s.opts.DefaultStoreID, "product_update", "product", saved.SKU,
		fmt.Sprintf("active=%t,price=%d,margin=%.4f", saved.Active, saved.PriceCents, saved.MarginRate))
	return *saved, nil
}

func patchProduct(product domain.Product, req domain.ProductUpdateRequest) (domain.Product, error) {
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		product.PriceCents = *req.PriceCents
	}
	if req.MarginRate != nil {
		product.MarginRate = *req.MarginRate
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	return product, store.ValidateProduct(product)
}

// seedCost keeps a margin-derived unit cost on file until a purchase order
// supplies a real one.
func (s *Service) seedCost(ctx context.Context, storeID string, product domain.Product) {
	if err := s.repo.UpsertProductCost(ctx, storeID, product.SKU, deriveUnitCost(product)); err != nil {
		s.log.Warn().Err(err).Str("sku", product.SKU).Str("store_id", storeID).Msg("product cost not seeded")
	}
}

func (s *Service) ListProductPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	sku = normalizeSKU(sku)
	if sku == "" {
		return nil, store.ErrInvalidTransaction
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, sku, limit)
}

// shelfSnapshot is the active catalog with on-hand quantities for one store.
type shelfSnapshot struct {
	products []domain.Product
	onHand   map[string]int
	skus     []string
}

func (s *Service) snapshotShelf(ctx context.Context, storeID string) (shelfSnapshot, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return shelfSnapshot{}, err
	}
	products = slices.DeleteFunc(products, func(p domain.Product) bool { return !p.Active })

	snap := shelfSnapshot{products: products, skus: make([]string, len(products))}
	for i, product := range products {
		snap.skus[i] = product.SKU
	}
	snap.onHand, err = s.repo.GetStockMap(ctx, storeID, snap.skus)
	if err != nil {
		return shelfSnapshot{}, err
	}
	return snap, nil
}

// ListStockLevels reports on-hand qty for every active product.
func (s *Service) ListStockLevels(ctx context.Context, storeID string, lowOnly bool) (domain.StockLevelResponse, error) {
	storeID = s.storeOr(storeID)
	snap, err := s.snapshotShelf(ctx, storeID)
	if err != nil {
		return domain.StockLevelResponse{}, err
	}

	levels := make([]domain.StockLevel, 0, len(snap.products))
	for _, product := range snap.products {
		qty := snap.onHand[product.SKU]
		point := defaultReorderPoint(product)
		if lowOnly && qty > point {
			continue
		}
		levels = append(levels, domain.StockLevel{
			SKU:          product.SKU,
			Name:         product.Name,
			Category:     product.Category,
			Qty:          qty,
			ReorderPoint: point,
			Low:          qty <= point,
		})
	}
	slices.SortFunc(levels, func(a, b domain.StockLevel) int { return strings.Compare(a.SKU, b.SKU) })

	return domain.StockLevelResponse{StoreID: storeID, Items: levels}, nil
}

// StockCount overwrites system quantities with counted ones and reports the
// delta for every counted line, including lines that matched.
func (s *Service) StockCount(ctx context.Context, req domain.StockCountRequest) (domain.StockCountResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.StockCountResponse{}, err
	}
	if len(req.Items) == 0 {
		return domain.StockCountResponse{}, fmt.Errorf("%w: nothing counted", store.ErrInvalidTransaction)
	}

	storeID := s.storeOr(req.StoreID)
	counted := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		sku := normalizeSKU(item.SKU)
		if sku == "" || item.CountedQty < 0 {
			return domain.StockCountResponse{}, fmt.Errorf("%w: counted lines need a sku and qty >= 0", store.ErrInvalidTransaction)
		}
		if _, dup := counted[sku]; !dup {
			order = append(order, sku)
		}
		counted[sku] = item.CountedQty
	}

	onHand, err := s.repo.GetStockMap(ctx, storeID, order)
	if err != nil {
		return domain.StockCountResponse{}, err
	}

	adjustments := make([]domain.StockCountAdjustment, 0, len(order))
	for _, sku := range order {
		adj := domain.StockCountAdjustment{SKU: sku, SystemQty: onHand[sku], CountedQty: counted[sku]}
		adj.DeltaQty = adj.CountedQty - adj.SystemQty
		if adj.DeltaQty != 0 {
			if err := s.repo.SetStock(ctx, storeID, sku, adj.CountedQty); err != nil {
				return domain.StockCountResponse{}, err
			}
		}
		adjustments = append(adjustments, adj)
	}

	countID := xid.New("count")
	s.logAudit(ctx, storeID, "stock_count", "inventory", countID, fmt.Sprintf("items=%d,notes=%s", len(adjustments), req.Notes))
	return domain.StockCountResponse{
		CountID:     countID,
		StoreID:     storeID,
		Notes:       req.Notes,
		Adjustments: adjustments,
		CreatedAt:   s.now().Format(time.RFC3339),
	}, nil
}

// ReorderSuggestions lists products at or under their reorder point, topping
// each up to twice the point. Lowest stock comes first, then the larger spend.
func (s *Service) ReorderSuggestions(ctx context.Context, storeID string) (domain.ReorderSuggestionResponse, error) {
	storeID = s.storeOr(storeID)
	snap, err := s.snapshotShelf(ctx, storeID)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	costs, err := s.repo.GetProductCosts(ctx, storeID, snap.skus)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}

	suggestions := make([]domain.ReorderSuggestion, 0, 16)
	for _, product := range snap.products {
		qty := snap.onHand[product.SKU]
		point := defaultReorderPoint(product)
		topUp := 2*point - qty
		if qty > point || topUp < 1 {
			continue
		}
		unitCost := costs[product.SKU]
		if unitCost < 1 {
			unitCost = deriveUnitCost(product)
		}
		suggestions = append(suggestions, domain.ReorderSuggestion{
			SKU:                    product.SKU,
			Name:                   product.Name,
			Category:               product.Category,
			CurrentStock:           qty,
			ReorderPoint:           point,
			RecommendedQty:         topUp,
			LastCostCents:          unitCost,
			EstimatedPurchaseCents: int64(topUp) * unitCost,
		})
	}

	slices.SortFunc(suggestions, func(a, b domain.ReorderSuggestion) int {
		if a.CurrentStock != b.CurrentStock {
			return a.CurrentStock - b.CurrentStock
		}
		if a.EstimatedPurchaseCents != b.EstimatedPurchaseCents {
			if a.EstimatedPurchaseCents > b.EstimatedPurchaseCents {
				return -1
			}
			return 1
		}
		return strings.Compare(a.SKU, b.SKU)
	})

	return domain.ReorderSuggestionResponse{
		StoreID:     storeID,
		GeneratedAt: s.now().Format(time.RFC3339),
		Suggestions: suggestions,
	}, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, s.opts.DefaultStoreID, "supplier_create", "supplier", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	draft := domain.PurchaseOrder{
		StoreID:    s.storeOr(req.StoreID),
		SupplierID: strings.TrimSpace(req.SupplierID),
		CreatedAt:  s.now(),
		Items:      req.Items,
	}
	if err := store.PreparePurchaseOrder(&draft); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	saved, err := s.repo.CreatePurchaseOrder(ctx, draft)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	s.logAudit(ctx, saved.StoreID, "purchase_order_create", "purchase_order", saved.ID,
		fmt.Sprintf("items=%d,total=%d", len(saved.Items), saved.TotalCostCents()))
	return domain.PurchaseOrderResponse{PurchaseOrder: *saved}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	po, err := s.loadPurchaseOrder(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

func (s *Service) loadPurchaseOrder(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		return nil, fmt.Errorf("%w: purchase order id required", store.ErrInvalidTransaction)
	}
	return s.repo.GetPurchaseOrderByID(ctx, purchaseOrderID)
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string) (domain.PurchaseOrderListResponse, error) {
	orders, err := s.repo.ListPurchaseOrders(ctx, s.opts.DefaultStoreID, strings.ToLower(strings.TrimSpace(status)), 200)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: orders}, nil
}

// ReceivePurchaseOrder books a draft order into stock. The store re-checks
// the draft status inside its own transaction.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	po, err := s.loadPurchaseOrder(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	if po.Status != domain.PurchaseOrderDraft {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: purchase order is %s", store.ErrInvalidTransaction, po.Status)
	}

	receivedBy := defaultString(strings.TrimSpace(req.ReceivedBy), actor.Username)
	received, err := s.repo.ReceivePurchaseOrder(ctx, po.ID, receivedBy, s.now())
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	s.logAudit(ctx, received.StoreID, "purchase_order_receive", "purchase_order", received.ID, "received_by="+receivedBy)
	return domain.PurchaseOrderResponse{PurchaseOrder: *received}, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidTransaction
	}

	cancelled, err := s.repo.CancelPurchaseOrder(ctx, purchaseOrderID, s.now())
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	s.logAudit(ctx, cancelled.StoreID, "purchase_order_cancel", "purchase_order", cancelled.ID, "")
	return domain.PurchaseOrderResponse{PurchaseOrder: *cancelled}, nil
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
