package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

const productColumns = `sku, name, category, price_cents, margin_rate, active`

func scanProduct(r rowScanner) (domain.Product, error) {
	var p domain.Product
	err := r.Scan(&p.SKU, &p.Name, &p.Category, &p.PriceCents, &p.MarginRate, &p.Active)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.Product, error) { return scanProduct(r) })
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, price_cents, margin_rate, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.MarginRate, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE sku = $1
	`, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, margin_rate = $5, active = $6, updated_at = now()
		WHERE sku = $1
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.MarginRate, product.Active)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}

	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, sku, old_price_cents, new_price_cents, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.SKU, entry.OldPriceCents, entry.NewPriceCents, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, old_price_cents, new_price_cents, changed_by, changed_at
		FROM product_price_history
		WHERE sku = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, sku, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.ProductPriceHistory, error) {
		var entry domain.ProductPriceHistory
		err := r.Scan(&entry.ID, &entry.SKU, &entry.OldPriceCents, &entry.NewPriceCents, &entry.ChangedBy, &entry.ChangedAt)
		entry.ChangedAt = entry.ChangedAt.UTC()
		return entry, err
	})
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	return activeProducts(ctx, s.db, skus)
}

func activeProducts(ctx context.Context, q querier, skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	products, err := collect(rows, func(r *sql.Rows) (domain.Product, error) { return scanProduct(r) })
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.SKU] = p
	}
	return result, nil
}

func (s *Store) GetStockMap(ctx context.Context, storeID string, skus []string) (map[string]int, error) {
	return stockMap(ctx, s.db, storeID, skus, false)
}

// stockMap reads qty per SKU, zero for SKUs without a row. With lock set the
// rows stay locked until the surrounding transaction ends.
func stockMap(ctx context.Context, q querier, storeID string, skus []string, lock bool) (map[string]int, error) {
	result := make(map[string]int, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	query := `
		SELECT sku, qty
		FROM inventory_stocks
		WHERE store_id = $1 AND sku = ANY($2)
	`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, storeID, skus)
	if err != nil {
		return nil, err
	}
	type stockRow struct {
		sku string
		qty int
	}
	found, err := collect(rows, func(r *sql.Rows) (stockRow, error) {
		var row stockRow
		err := r.Scan(&row.sku, &row.qty)
		return row, err
	})
	if err != nil {
		return nil, err
	}
	for _, sku := range skus {
		result[sku] = 0
	}
	for _, row := range found {
		result[row.sku] = row.qty
	}
	return result, nil
}

func (s *Store) SetStock(ctx context.Context, storeID string, sku string, qty int) error {
	if sku == "" || qty < 0 {
		return store.ErrInvalidTransaction
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_stocks (store_id, sku, qty, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (store_id, sku)
		DO UPDATE SET qty = EXCLUDED.qty, updated_at = now()
	`, storeID, sku, qty)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: sku %s", store.ErrNotFound, sku)
	}
	return err
}

func (s *Store) IncreaseStock(ctx context.Context, storeID string, adjustments []domain.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, adj := range adjustments {
			if adj.Qty < 1 {
				continue
			}
			if err := addStock(ctx, tx, storeID, adj.SKU, adj.Qty); err != nil {
				return err
			}
		}
		return nil
	})
}

func addStock(ctx context.Context, q querier, storeID string, sku string, qty int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO inventory_stocks (store_id, sku, qty, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (store_id, sku)
		DO UPDATE SET qty = inventory_stocks.qty + EXCLUDED.qty, updated_at = now()
	`, storeID, sku, qty)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: sku %s", store.ErrNotFound, sku)
	}
	return err
}

func (s *Store) GetProductCosts(ctx context.Context, storeID string, skus []string) (map[string]int64, error) {
	return productCosts(ctx, s.db, storeID, skus, false)
}

func productCosts(ctx context.Context, q querier, storeID string, skus []string, lock bool) (map[string]int64, error) {
	result := make(map[string]int64, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	query := `
		SELECT sku, cost_cents
		FROM product_costs
		WHERE store_id = $1 AND sku = ANY($2)
	`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, storeID, skus)
	if err != nil {
		return nil, err
	}
	type costRow struct {
		sku  string
		cost int64
	}
	found, err := collect(rows, func(r *sql.Rows) (costRow, error) {
		var row costRow
		err := r.Scan(&row.sku, &row.cost)
		return row, err
	})
	if err != nil {
		return nil, err
	}
	for _, sku := range skus {
		result[sku] = 0
	}
	for _, row := range found {
		result[row.sku] = row.cost
	}
	return result, nil
}

func (s *Store) UpsertProductCost(ctx context.Context, storeID string, sku string, costCents int64) error {
	if sku == "" || costCents < 1 {
		return store.ErrInvalidTransaction
	}
	return upsertCost(ctx, s.db, storeID, sku, costCents)
}

func upsertCost(ctx context.Context, q querier, storeID string, sku string, costCents int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO product_costs (store_id, sku, cost_cents, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (store_id, sku)
		DO UPDATE SET cost_cents = EXCLUDED.cost_cents, updated_at = now()
	`, storeID, sku, costCents)
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), created_at
		FROM suppliers
		ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.Supplier, error) {
		var item domain.Supplier
		err := r.Scan(&item.ID, &item.Name, &item.Phone, &item.CreatedAt)
		item.CreatedAt = item.CreatedAt.UTC()
		return item, err
	})
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if err := store.PreparePurchaseOrder(&po); err != nil {
		return nil, err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_orders (id, store_id, supplier_id, status, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, po.ID, po.StoreID, po.SupplierID, po.Status, po.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: supplier %s", store.ErrNotFound, po.SupplierID)
			}
			return err
		}
		for _, item := range po.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO purchase_order_items (purchase_order_id, sku, qty, cost_cents)
				VALUES ($1,$2,$3,$4)
			`, po.ID, item.SKU, item.Qty, item.CostCents)
			if err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("%w: sku %s", store.ErrNotFound, item.SKU)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	saved := po
	return &saved, nil
}

const purchaseOrderColumns = `id, store_id, supplier_id, status, created_at, received_at, COALESCE(received_by,''), cancelled_at`

func scanPurchaseOrder(r rowScanner) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var receivedAt, cancelledAt sql.NullTime
	err := r.Scan(&po.ID, &po.StoreID, &po.SupplierID, &po.Status, &po.CreatedAt, &receivedAt, &po.ReceivedBy, &cancelledAt)
	po.CreatedAt = po.CreatedAt.UTC()
	po.ReceivedAt = timePtr(receivedAt)
	po.CancelledAt = timePtr(cancelledAt)
	return po, err
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	return findPurchaseOrder(ctx, s.db, purchaseOrderID, false)
}

func findPurchaseOrder(ctx context.Context, q querier, purchaseOrderID string, lock bool) (*domain.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	po, err := scanPurchaseOrder(q.QueryRowContext(ctx, query, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := purchaseOrderItems(ctx, q, []string{po.ID})
	if err != nil {
		return nil, err
	}
	po.Items = items[po.ID]
	return &po, nil
}

func purchaseOrderItems(ctx context.Context, q querier, ids []string) (map[string][]domain.PurchaseOrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT purchase_order_id, sku, qty, cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	type itemRow struct {
		poID string
		item domain.PurchaseOrderItem
	}
	found, err := collect(rows, func(r *sql.Rows) (itemRow, error) {
		var row itemRow
		err := r.Scan(&row.poID, &row.item.SKU, &row.item.Qty, &row.item.CostCents)
		return row, err
	})
	if err != nil {
		return nil, err
	}
	result := make(map[string][]domain.PurchaseOrderItem, len(ids))
	for _, row := range found {
		result[row.poID] = append(result[row.poID], row.item)
	}
	return result, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 200
	}
	status = strings.ToLower(strings.TrimSpace(status))
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, storeID, status, limit)
	if err != nil {
		return nil, err
	}
	result, err := collect(rows, func(r *sql.Rows) (domain.PurchaseOrder, error) { return scanPurchaseOrder(r) })
	if err != nil || len(result) == 0 {
		return result, err
	}

	ids := make([]string, 0, len(result))
	for _, po := range result {
		ids = append(ids, po.ID)
	}
	items, err := purchaseOrderItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = items[result[i].ID]
	}
	return result, nil
}

// ReceivePurchaseOrder adds the ordered qty to stock and folds the order
// cost into the moving average cost per SKU.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	var po *domain.PurchaseOrder
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		po, err = findPurchaseOrder(ctx, tx, purchaseOrderID, true)
		if err != nil {
			return err
		}
		if po.Status != domain.PurchaseOrderDraft {
			return fmt.Errorf("%w: purchase order is %s", store.ErrInvalidTransaction, po.Status)
		}
		if len(po.Items) == 0 {
			return store.ErrInvalidTransaction
		}

		skus := make([]string, 0, len(po.Items))
		for _, item := range po.Items {
			skus = append(skus, item.SKU)
		}
		stock, err := stockMap(ctx, tx, po.StoreID, skus, true)
		if err != nil {
			return err
		}
		costs, err := productCosts(ctx, tx, po.StoreID, skus, true)
		if err != nil {
			return err
		}

		for _, item := range po.Items {
			currentQty := stock[item.SKU]
			prevCost := costs[item.SKU]
			if prevCost < 1 {
				prevCost = item.CostCents
			}
			newCost := store.WeightedCostCents(prevCost, currentQty, item.CostCents, item.Qty)
			if err := addStock(ctx, tx, po.StoreID, item.SKU, item.Qty); err != nil {
				return err
			}
			if err := upsertCost(ctx, tx, po.StoreID, item.SKU, newCost); err != nil {
				return err
			}
			stock[item.SKU] = currentQty + item.Qty
			costs[item.SKU] = newCost
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE purchase_orders
			SET status = $2, received_at = $3, received_by = $4
			WHERE id = $1
		`, purchaseOrderID, domain.PurchaseOrderReceived, receivedAt, receivedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &receivedAt
	return po, nil
}

func (s *Store) CancelPurchaseOrder(ctx context.Context, purchaseOrderID string, cancelledAt time.Time) (*domain.PurchaseOrder, error) {
	if cancelledAt.IsZero() {
		cancelledAt = time.Now().UTC()
	}

	var po *domain.PurchaseOrder
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		po, err = findPurchaseOrder(ctx, tx, purchaseOrderID, true)
		if err != nil {
			return err
		}
		if po.Status != domain.PurchaseOrderDraft {
			return fmt.Errorf("%w: purchase order is %s", store.ErrInvalidTransaction, po.Status)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE purchase_orders
			SET status = $2, cancelled_at = $3
			WHERE id = $1
		`, purchaseOrderID, domain.PurchaseOrderCancelled, cancelledAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	po.Status = domain.PurchaseOrderCancelled
	po.CancelledAt = &cancelledAt
	return po, nil
}
