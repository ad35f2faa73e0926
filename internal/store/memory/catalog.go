package memory

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

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if product.Active {
			active = append(active, product)
		}
	}
	slices.SortFunc(active, func(a, b domain.Product) int {
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return active, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	product.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.products[product.SKU]; taken {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
	}
	s.products[product.SKU] = product
	return &product, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.SKU]; !ok {
		return nil, store.ErrNotFound
	}
	s.products[product.SKU] = product
	return &product, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceHistory[entry.SKU] = append(s.priceHistory[entry.SKU], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := append([]domain.ProductPriceHistory{}, s.priceHistory[sku]...)
	slices.SortFunc(history, func(a, b domain.ProductPriceHistory) int {
		return newestFirst(a.ChangedAt, b.ChangedAt, a.ID, b.ID)
	})
	return truncate(history, limit), nil
}

// GetProductsBySKUs returns only the active products among skus.
func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if product, ok := s.products[sku]; ok && product.Active {
			found[sku] = product
		}
	}
	return found, nil
}

func (s *Store) GetStockMap(_ context.Context, storeID string, skus []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shelf := s.stock[storeID]
	levels := make(map[string]int, len(skus))
	for _, sku := range skus {
		levels[sku] = shelf[sku]
	}
	return levels, nil
}

func (s *Store) SetStock(_ context.Context, storeID string, sku string, qty int) error {
	if sku == "" || qty < 0 {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[sku]; !ok {
		return fmt.Errorf("%w: sku %s", store.ErrNotFound, sku)
	}
	s.stockFor(storeID)[sku] = qty
	return nil
}

// IncreaseStock applies all adjustments or none; non-positive quantities
// are skipped.
func (s *Store) IncreaseStock(_ context.Context, storeID string, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, adj := range adjustments {
		if _, ok := s.products[adj.SKU]; adj.Qty > 0 && !ok {
			return fmt.Errorf("%w: sku %s", store.ErrNotFound, adj.SKU)
		}
	}
	shelf := s.stockFor(storeID)
	for _, adj := range adjustments {
		if adj.Qty > 0 {
			shelf[adj.SKU] += adj.Qty
		}
	}
	return nil
}

func (s *Store) GetProductCosts(_ context.Context, storeID string, skus []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	known := s.costs[storeID]
	costs := make(map[string]int64, len(skus))
	for _, sku := range skus {
		costs[sku] = known[sku]
	}
	return costs, nil
}

func (s *Store) UpsertProductCost(_ context.Context, storeID string, sku string, costCents int64) error {
	if sku == "" || costCents < 1 {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[sku]; !ok {
		return store.ErrNotFound
	}
	s.costsFor(storeID)[sku] = costCents
	return nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.Name == "" {
		return nil, fmt.Errorf("%w: supplier name required", store.ErrInvalidTransaction)
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := valuesOf(s.suppliers)
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if err := store.PreparePurchaseOrder(&po); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[po.SupplierID]; !ok {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, po.SupplierID)
	}
	for _, item := range po.Items {
		if _, ok := s.products[item.SKU]; !ok {
			return nil, fmt.Errorf("%w: sku %s", store.ErrNotFound, item.SKU)
		}
	}

	s.orders[po.ID] = clonePurchaseOrder(po)
	return ptr(clonePurchaseOrder(po)), nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.orders[purchaseOrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ptr(clonePurchaseOrder(po)), nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	status = strings.ToLower(strings.TrimSpace(status))

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PurchaseOrder, 0, len(s.orders))
	for _, po := range s.orders {
		if (storeID == "" || po.StoreID == storeID) && (status == "" || po.Status == status) {
			orders = append(orders, clonePurchaseOrder(po))
		}
	}
	slices.SortFunc(orders, func(a, b domain.PurchaseOrder) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(orders, limit), nil
}

// ReceivePurchaseOrder books every line into stock and folds its cost into
// the weighted average cost of that store.
func (s *Store) ReceivePurchaseOrder(_ context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = orDefault(strings.TrimSpace(receivedBy), "system")

	s.mu.Lock()
	defer s.mu.Unlock()

	po, err := s.draftOrder(purchaseOrderID)
	if err != nil {
		return nil, err
	}

	shelf := s.stockFor(po.StoreID)
	costs := s.costsFor(po.StoreID)
	for _, item := range po.Items {
		onHand := shelf[item.SKU]
		previous := costs[item.SKU]
		if previous < 1 {
			previous = item.CostCents
		}
		costs[item.SKU] = store.WeightedCostCents(previous, onHand, item.CostCents, item.Qty)
		shelf[item.SKU] = onHand + item.Qty
	}

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &receivedAt
	s.orders[po.ID] = po
	return ptr(clonePurchaseOrder(po)), nil
}

func (s *Store) CancelPurchaseOrder(_ context.Context, purchaseOrderID string, cancelledAt time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, err := s.draftOrder(purchaseOrderID)
	if err != nil {
		return nil, err
	}
	po.Status = domain.PurchaseOrderCancelled
	po.CancelledAt = &cancelledAt
	s.orders[po.ID] = po
	return ptr(clonePurchaseOrder(po)), nil
}

// draftOrder needs the write lock.
func (s *Store) draftOrder(purchaseOrderID string) (domain.PurchaseOrder, error) {
	po, ok := s.orders[purchaseOrderID]
	if !ok {
		return domain.PurchaseOrder{}, store.ErrNotFound
	}
	if po.Status != domain.PurchaseOrderDraft {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order is %s", store.ErrInvalidTransaction, po.Status)
	}
	return po, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if (storeID == "" || entry.StoreID == storeID) && inRange(entry.CreatedAt, from, to) {
			logs = append(logs, entry)
		}
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(logs, limit), nil
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func ptr[T any](v T) *T {
	return &v
}
