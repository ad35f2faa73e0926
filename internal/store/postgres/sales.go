package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

var errDuplicateSale = errors.New("duplicate idempotency key")

const saleColumns = `
	id, store_id, terminal_id, COALESCE(customer_id,''), idempotency_key,
	payment_method, COALESCE(payment_reference,''), payment_splits,
	subtotal_cents, discount_cents, tax_rate_percent, tax_cents, total_cents,
	cash_received_cents, change_cents, down_payment_cents, bnpl_due_date,
	status, COALESCE(void_reason,''), voided_at, cashier_username, created_at`

func scanSale(r rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var splits []byte
	var dueDate, voidedAt sql.NullTime
	err := r.Scan(
		&sale.ID,
		&sale.StoreID,
		&sale.TerminalID,
		&sale.CustomerID,
		&sale.IdempotencyKey,
		&sale.PaymentMethod,
		&sale.PaymentReference,
		&splits,
		&sale.SubtotalCents,
		&sale.DiscountCents,
		&sale.TaxRatePercent,
		&sale.TaxCents,
		&sale.TotalCents,
		&sale.CashReceivedCents,
		&sale.ChangeCents,
		&sale.DownPaymentCents,
		&dueDate,
		&sale.Status,
		&sale.VoidReason,
		&voidedAt,
		&sale.CashierUsername,
		&sale.CreatedAt,
	)
	if err != nil {
		return sale, err
	}
	if len(splits) > 0 {
		if err := json.Unmarshal(splits, &sale.PaymentSplits); err != nil {
			return sale, fmt.Errorf("decode payment splits of %s: %w", sale.ID, err)
		}
	}
	if len(sale.PaymentSplits) == 0 {
		sale.PaymentSplits = nil
	}
	sale.BNPLDueDate = timePtr(dueDate)
	sale.VoidedAt = timePtr(voidedAt)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return findSale(ctx, s.db, "idempotency_key", key, false)
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return findSale(ctx, s.db, "id", id, false)
}

func findSale(ctx context.Context, q querier, column string, value string, lock bool) (*domain.Sale, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column %q", column)
	}

	query := fmt.Sprintf(`SELECT %s FROM sales WHERE %s = $1`, saleColumns, column)
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := saleItems(ctx, q, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func saleItems(ctx context.Context, q querier, saleIDs []string) (map[string][]domain.SaleLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sale_id, sku, qty, unit_price_cents, margin_rate
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	type itemRow struct {
		saleID string
		line   domain.SaleLine
	}
	found, err := collect(rows, func(r *sql.Rows) (itemRow, error) {
		var row itemRow
		err := r.Scan(&row.saleID, &row.line.SKU, &row.line.Qty, &row.line.UnitPriceCents, &row.line.MarginRate)
		return row, err
	})
	if err != nil {
		return nil, err
	}
	result := make(map[string][]domain.SaleLine, len(saleIDs))
	for _, row := range found {
		result[row.saleID] = append(result[row.saleID], row.line)
	}
	return result, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR customer_id = $2)
			AND ($3::timestamptz IS NULL OR created_at >= $3)
			AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, filter.StoreID, filter.CustomerID, nullIfZero(filter.From), nullIfZero(filter.To), limit)
	if err != nil {
		return nil, err
	}
	sales, err := collect(rows, func(r *sql.Rows) (domain.Sale, error) { return scanSale(r) })
	if err != nil || len(sales) == 0 {
		return sales, err
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	items, err := saleItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

// CreateSale locks the stock rows (and the customer row for BNPL) so
// concurrent checkouts cannot oversell or overdraw a credit limit.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.IdempotencyKey == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT id FROM sales WHERE idempotency_key = $1`, sale.IdempotencyKey).Scan(&existing)
		if err == nil {
			return errDuplicateSale
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		skus := uniqueSKUs(sale.Items)
		if len(skus) == 0 {
			return store.ErrInvalidTransaction
		}
		products, err := activeProducts(ctx, tx, skus)
		if err != nil {
			return err
		}
		stock, err := stockMap(ctx, tx, sale.StoreID, skus, true)
		if err != nil {
			return err
		}

		subtotal := int64(0)
		lines := make([]domain.SaleLine, 0, len(sale.Items))
		for _, item := range sale.Items {
			if item.Qty < 1 {
				return store.ErrInvalidTransaction
			}
			product, ok := products[item.SKU]
			if !ok {
				return fmt.Errorf("%w: sku %s unavailable", store.ErrInvalidTransaction, item.SKU)
			}
			if stock[item.SKU] < item.Qty {
				return store.ErrInsufficientStock
			}
			stock[item.SKU] -= item.Qty
			lines = append(lines, domain.SaleLine{
				SKU:            item.SKU,
				Qty:            item.Qty,
				UnitPriceCents: product.PriceCents,
				MarginRate:     product.MarginRate,
			})
			subtotal += int64(item.Qty) * product.PriceCents
		}

		if err := store.PriceSale(&sale, lines, subtotal); err != nil {
			return err
		}

		var credit *domain.BNPLTransaction
		if sale.PaymentMethod == domain.PaymentBNPL {
			customer, err := findCustomer(ctx, tx, sale.CustomerID, true)
			if err != nil {
				return err
			}
			outstanding, err := outstandingBalance(ctx, tx, customer.ID)
			if err != nil {
				return err
			}
			financed := sale.TotalCents - sale.DownPaymentCents
			if err := store.CheckCredit(*customer, outstanding, financed); err != nil {
				return err
			}
			credit = store.NewBNPLTransaction(sale, financed)
		}

		for _, item := range sale.Items {
			_, err := tx.ExecContext(ctx, `
				UPDATE inventory_stocks
				SET qty = qty - $1, updated_at = now()
				WHERE store_id = $2 AND sku = $3
			`, item.Qty, sale.StoreID, item.SKU)
			if err != nil {
				return err
			}
		}
		if err := insertSale(ctx, tx, sale); err != nil {
			return err
		}
		if credit != nil {
			if err := insertBNPLTransaction(ctx, tx, *credit); err != nil {
				return err
			}
		}
		if cash := sale.CashCents(); cash > 0 {
			return insertCashEntry(ctx, tx, saleCashEntry(sale, domain.CashIn, cash, domain.CashSourceSale, sale.CashierUsername, sale.CreatedAt))
		}
		return nil
	})
	if errors.Is(err, errDuplicateSale) || (err != nil && isUniqueViolation(err)) {
		existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
		if lookupErr == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func insertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	splits := sale.PaymentSplits
	if splits == nil {
		splits = []domain.PaymentSplit{}
	}
	splitJSON, err := json.Marshal(splits)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, store_id, terminal_id, customer_id, idempotency_key, payment_method,
			payment_reference, payment_splits, subtotal_cents, discount_cents, tax_rate_percent,
			tax_cents, total_cents, cash_received_cents, change_cents, down_payment_cents,
			bnpl_due_date, status, cashier_username, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, sale.ID, sale.StoreID, sale.TerminalID, nullIfEmpty(sale.CustomerID), sale.IdempotencyKey, sale.PaymentMethod,
		nullIfEmpty(sale.PaymentReference), splitJSON, sale.SubtotalCents, sale.DiscountCents, sale.TaxRatePercent,
		sale.TaxCents, sale.TotalCents, sale.CashReceivedCents, sale.ChangeCents, sale.DownPaymentCents,
		nullTime(sale.BNPLDueDate), sale.Status, sale.CashierUsername, sale.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
		return err
	}

	for _, item := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, sku, qty, unit_price_cents, margin_rate)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, item.SKU, item.Qty, item.UnitPriceCents, item.MarginRate)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) VoidSale(ctx context.Context, id string, reason string, voidedBy string, at time.Time) (*domain.Sale, error) {
	var sale *domain.Sale
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		sale, err = findSale(ctx, tx, "id", id, true)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleStatusPaid {
			return fmt.Errorf("%w: sale is %s", store.ErrInvalidTransaction, sale.Status)
		}

		var refunds int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM refunds WHERE sale_id = $1`, id).Scan(&refunds); err != nil {
			return err
		}
		if refunds > 0 {
			return fmt.Errorf("%w: sale already has refunds", store.ErrInvalidTransaction)
		}

		credit, err := findBNPLBySale(ctx, tx, id, true)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if credit != nil {
			if credit.PaidCents > 0 {
				return fmt.Errorf("%w: bnpl payments already received", store.ErrInvalidTransaction)
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE bnpl_transactions
				SET status = $2, balance_cents = 0, updated_at = $3
				WHERE id = $1
			`, credit.ID, domain.BNPLStatusCancelled, at)
			if err != nil {
				return err
			}
		}

		for _, item := range sale.Items {
			if err := addStock(ctx, tx, sale.StoreID, item.SKU, item.Qty); err != nil {
				return err
			}
		}
		if cash := sale.CashCents(); cash > 0 {
			if err := insertCashEntry(ctx, tx, saleCashEntry(*sale, domain.CashOut, cash, domain.CashSourceVoid, voidedBy, at)); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sales
			SET status = $2, void_reason = $3, voided_at = $4
			WHERE id = $1
		`, id, domain.SaleStatusVoided, reason, at)
		return err
	})
	if err != nil {
		return nil, err
	}

	sale.Status = domain.SaleStatusVoided
	sale.VoidReason = reason
	sale.VoidedAt = &at
	return sale, nil
}

func (s *Store) CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sale, err := findSale(ctx, tx, "id", refund.SaleID, true)
		if err != nil {
			return err
		}
		return applyRefund(ctx, tx, sale, &refund)
	})
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// applyRefund validates the refund against prior refunds, credits any open
// BNPL balance first and books the cash outflow. The sale row must already
// be locked by the caller's transaction.
func applyRefund(ctx context.Context, tx *sql.Tx, sale *domain.Sale, refund *domain.Refund) error {
	if sale.Status != domain.SaleStatusPaid {
		return fmt.Errorf("%w: sale is %s", store.ErrInvalidTransaction, sale.Status)
	}
	if refund.AmountCents < 1 {
		return store.ErrInvalidTransaction
	}
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	refund.SaleID = sale.ID
	refund.StoreID = sale.StoreID
	refund.Status = domain.SaleStatusRefunded

	var refundedSoFar, cashRefundedSoFar int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents),0)::bigint, COALESCE(SUM(cash_cents),0)::bigint
		FROM refunds
		WHERE sale_id = $1
	`, sale.ID).Scan(&refundedSoFar, &cashRefundedSoFar)
	if err != nil {
		return err
	}
	if refund.AmountCents > sale.TotalCents-refundedSoFar {
		return fmt.Errorf("%w: refund exceeds remaining amount", store.ErrInvalidTransaction)
	}

	credit, err := findBNPLBySale(ctx, tx, sale.ID, true)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	refund.CreditCents, refund.CashCents, refund.Method = store.SplitRefund(*sale, credit, refund.AmountCents)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refunds (id, store_id, sale_id, reason, amount_cents, cash_cents, credit_cents, method, status, refunded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, refund.ID, refund.StoreID, refund.SaleID, refund.Reason, refund.AmountCents, refund.CashCents, refund.CreditCents,
		refund.Method, refund.Status, refund.RefundedBy, refund.CreatedAt)
	if err != nil {
		return err
	}

	if credit != nil && refund.CreditCents > 0 {
		balance := credit.BalanceCents - refund.CreditCents
		status := domain.BNPLStatusOpen
		if balance == 0 {
			status = domain.BNPLStatusPaid
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE bnpl_transactions
			SET credited_cents = credited_cents + $2, balance_cents = $3, status = $4, updated_at = $5
			WHERE id = $1
		`, credit.ID, refund.CreditCents, balance, status, refund.CreatedAt)
		if err != nil {
			return err
		}
	}
	if drawer := store.DrawerRefundCents(*sale, cashRefundedSoFar, refund.CashCents); drawer > 0 {
		err := insertCashEntry(ctx, tx, domain.CashLedgerEntry{
			StoreID:     sale.StoreID,
			Direction:   domain.CashOut,
			AmountCents: drawer,
			Source:      domain.CashSourceRefund,
			SourceID:    refund.ID,
			Note:        "refund " + sale.ID,
			RecordedBy:  refund.RefundedBy,
			CreatedAt:   refund.CreatedAt,
		})
		if err != nil {
			return err
		}
	}
	if refundedSoFar+refund.AmountCents >= sale.TotalCents {
		_, err := tx.ExecContext(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, sale.ID, domain.SaleStatusRefunded)
		if err != nil {
			return err
		}
		sale.Status = domain.SaleStatusRefunded
	}
	return nil
}

func (s *Store) ListRefunds(ctx context.Context, saleID string) ([]domain.Refund, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, sale_id, reason, amount_cents, cash_cents, credit_cents, method, status, refunded_by, created_at
		FROM refunds
		WHERE sale_id = $1
		ORDER BY created_at ASC, id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.Refund, error) {
		var refund domain.Refund
		err := r.Scan(&refund.ID, &refund.StoreID, &refund.SaleID, &refund.Reason, &refund.AmountCents, &refund.CashCents,
			&refund.CreditCents, &refund.Method, &refund.Status, &refund.RefundedBy, &refund.CreatedAt)
		refund.CreatedAt = refund.CreatedAt.UTC()
		return refund, err
	})
}

func (s *Store) GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	return returnedQty(ctx, s.db, saleID)
}

func returnedQty(ctx context.Context, q querier, saleID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT iri.sku, COALESCE(SUM(iri.qty), 0)::int
		FROM item_returns ir
		JOIN item_return_items iri ON iri.item_return_id = ir.id
		WHERE ir.sale_id = $1
		GROUP BY iri.sku
	`, saleID)
	if err != nil {
		return nil, err
	}
	type qtyRow struct {
		sku string
		qty int
	}
	found, err := collect(rows, func(r *sql.Rows) (qtyRow, error) {
		var row qtyRow
		err := r.Scan(&row.sku, &row.qty)
		return row, err
	})
	if err != nil {
		return nil, err
	}
	result := make(map[string]int, len(found))
	for _, row := range found {
		result[row.sku] = row.qty
	}
	return result, nil
}

// CreateItemReturn re-checks returnable qty under the sale lock, books the
// refund and puts the returned units back on the shelf.
func (s *Store) CreateItemReturn(ctx context.Context, itemReturn domain.ItemReturn, refund domain.Refund) (*domain.ItemReturn, *domain.Refund, error) {
	if itemReturn.ID == "" {
		itemReturn.ID = xid.New("ret")
	}
	if itemReturn.CreatedAt.IsZero() {
		itemReturn.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(itemReturn.SaleID) == "" || len(itemReturn.ReturnItems) == 0 {
		return nil, nil, store.ErrInvalidTransaction
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sale, err := findSale(ctx, tx, "id", itemReturn.SaleID, true)
		if err != nil {
			return err
		}
		if sale.Status == domain.SaleStatusVoided {
			return fmt.Errorf("%w: sale voided", store.ErrInvalidTransaction)
		}

		purchased := make(map[string]int, len(sale.Items))
		for _, line := range sale.Items {
			purchased[line.SKU] += line.Qty
		}
		returned, err := returnedQty(ctx, tx, sale.ID)
		if err != nil {
			return err
		}
		for _, line := range itemReturn.ReturnItems {
			if line.Qty < 1 || returned[line.SKU]+line.Qty > purchased[line.SKU] {
				return fmt.Errorf("%w: %s exceeds returnable qty", store.ErrInvalidTransaction, line.SKU)
			}
		}

		if err := applyRefund(ctx, tx, sale, &refund); err != nil {
			return err
		}
		itemReturn.StoreID = sale.StoreID
		itemReturn.RefundID = refund.ID
		itemReturn.RefundAmountCents = refund.AmountCents

		_, err = tx.ExecContext(ctx, `
			INSERT INTO item_returns (id, store_id, sale_id, reason, refund_id, refund_amount_cents, processed_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, itemReturn.ID, itemReturn.StoreID, itemReturn.SaleID, itemReturn.Reason, itemReturn.RefundID,
			itemReturn.RefundAmountCents, itemReturn.ProcessedBy, itemReturn.CreatedAt)
		if err != nil {
			return err
		}
		for _, line := range itemReturn.ReturnItems {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO item_return_items (item_return_id, sku, qty, unit_price_cents)
				VALUES ($1,$2,$3,$4)
			`, itemReturn.ID, line.SKU, line.Qty, line.UnitPriceCents)
			if err != nil {
				return err
			}
			if err := addStock(ctx, tx, sale.StoreID, line.SKU, line.Qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &itemReturn, &refund, nil
}

func (s *Store) CreateReceiptReprint(ctx context.Context, reprint domain.ReceiptReprint) (*domain.ReceiptReprint, error) {
	if reprint.ID == "" {
		reprint.ID = xid.New("rp")
	}
	if reprint.CreatedAt.IsZero() {
		reprint.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var storeID string
		err := tx.QueryRowContext(ctx, `SELECT store_id FROM sales WHERE id = $1 FOR UPDATE`, reprint.SaleID).Scan(&storeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if reprint.StoreID == "" {
			reprint.StoreID = storeID
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(reprint_number), 0) + 1
			FROM receipt_reprints
			WHERE sale_id = $1
		`, reprint.SaleID).Scan(&reprint.ReprintNumber); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO receipt_reprints (id, store_id, sale_id, authorization_code, reason, reprint_number, requested_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, reprint.ID, reprint.StoreID, reprint.SaleID, reprint.AuthorizationCode, reprint.Reason, reprint.ReprintNumber,
			reprint.RequestedBy, reprint.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: reprint number taken", store.ErrConflict)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &reprint, nil
}

func (s *Store) ListReceiptReprints(ctx context.Context, saleID string) ([]domain.ReceiptReprint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, sale_id, authorization_code, reason, reprint_number, requested_by, created_at
		FROM receipt_reprints
		WHERE sale_id = $1
		ORDER BY reprint_number ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.ReceiptReprint, error) {
		var reprint domain.ReceiptReprint
		err := r.Scan(&reprint.ID, &reprint.StoreID, &reprint.SaleID, &reprint.AuthorizationCode, &reprint.Reason,
			&reprint.ReprintNumber, &reprint.RequestedBy, &reprint.CreatedAt)
		reprint.CreatedAt = reprint.CreatedAt.UTC()
		return reprint, err
	})
}

func saleCashEntry(sale domain.Sale, direction string, amount int64, source string, by string, at time.Time) domain.CashLedgerEntry {
	return domain.CashLedgerEntry{
		ID:          xid.New("cash"),
		StoreID:     sale.StoreID,
		Direction:   direction,
		AmountCents: amount,
		Source:      source,
		SourceID:    sale.ID,
		RecordedBy:  by,
		CreatedAt:   at,
	}
}
