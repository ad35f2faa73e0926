package postgres

import (
	"context"
	"database/sql"
	"time"

	"posbackoffice/backend/internal/domain"
)

// GetSalesSummary aggregates [from, to) for one store. Voided sales are
// excluded from every sales figure; refunds count on the day they were paid
// out, expenses on the day they were incurred.
func (s *Store) GetSalesSummary(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.SalesSummary, error) {
	summary := domain.SalesSummary{StoreID: storeID}

	var salesTotal int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(subtotal_cents),0)::bigint,
			COALESCE(SUM(discount_cents),0)::bigint,
			COALESCE(SUM(tax_cents),0)::bigint,
			COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
			AND status <> $4
	`, storeID, from, to, domain.SaleStatusVoided).Scan(
		&summary.Transactions,
		&summary.GrossSalesCents,
		&summary.DiscountCents,
		&summary.TaxCents,
		&salesTotal,
	)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ROUND((si.unit_price_cents * si.qty) * si.margin_rate)),0)::bigint
		FROM sale_items si
		JOIN sales t ON t.id = si.sale_id
		WHERE t.store_id = $1
			AND t.created_at >= $2
			AND t.created_at < $3
			AND t.status <> $4
	`, storeID, from, to, domain.SaleStatusVoided).Scan(&summary.EstimatedMarginCents)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(amount_cents),0)::bigint FROM refunds
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3),
			(SELECT COALESCE(SUM(principal_cents),0)::bigint FROM bnpl_transactions
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3 AND status <> $4),
			(SELECT COALESCE(SUM(amount_cents),0)::bigint FROM bnpl_payments
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3),
			(SELECT COALESCE(SUM(amount_cents) FILTER (WHERE direction = 'in'),0)::bigint FROM cash_ledger
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3),
			(SELECT COALESCE(SUM(amount_cents) FILTER (WHERE direction = 'out'),0)::bigint FROM cash_ledger
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3)
	`, storeID, from, to, domain.BNPLStatusCancelled).Scan(
		&summary.RefundCents,
		&summary.BNPLIssuedCents,
		&summary.BNPLCollectedCents,
		&summary.CashInCents,
		&summary.CashOutCents,
	)
	if err != nil {
		return summary, err
	}

	summary.ByPayment, err = groupedRows(ctx, s.db, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3 AND status <> $4
		GROUP BY payment_method
		ORDER BY payment_method
	`, []any{storeID, from, to, domain.SaleStatusVoided}, func(r *sql.Rows) (domain.SummaryPayment, error) {
		var row domain.SummaryPayment
		err := r.Scan(&row.PaymentMethod, &row.Transactions, &row.TotalCents)
		return row, err
	})
	if err != nil {
		return summary, err
	}

	summary.ByTerminal, err = groupedRows(ctx, s.db, `
		SELECT terminal_id, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3 AND status <> $4
		GROUP BY terminal_id
		ORDER BY terminal_id
	`, []any{storeID, from, to, domain.SaleStatusVoided}, func(r *sql.Rows) (domain.SummaryTerminal, error) {
		var row domain.SummaryTerminal
		err := r.Scan(&row.TerminalID, &row.Transactions, &row.TotalCents)
		return row, err
	})
	if err != nil {
		return summary, err
	}

	summary.ByDay, err = groupedRows(ctx, s.db, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3 AND status <> $4
		GROUP BY day
		ORDER BY day
	`, []any{storeID, from, to, domain.SaleStatusVoided}, func(r *sql.Rows) (domain.SummaryDay, error) {
		var row domain.SummaryDay
		err := r.Scan(&row.Date, &row.Transactions, &row.TotalCents)
		return row, err
	})
	if err != nil {
		return summary, err
	}

	summary.ExpensesByCategory, err = groupedRows(ctx, s.db, `
		SELECT category, COUNT(*)::bigint, COALESCE(SUM(amount_cents),0)::bigint
		FROM expenses
		WHERE store_id = $1 AND incurred_on >= $2 AND incurred_on < $3
		GROUP BY category
		ORDER BY category
	`, []any{storeID, from, to}, func(r *sql.Rows) (domain.SummaryExpenseCategory, error) {
		var row domain.SummaryExpenseCategory
		err := r.Scan(&row.Category, &row.Count, &row.TotalCents)
		return row, err
	})
	if err != nil {
		return summary, err
	}
	for _, row := range summary.ExpensesByCategory {
		summary.ExpenseCents += row.TotalCents
	}

	summary.NetSalesCents = salesTotal - summary.RefundCents
	summary.NetCashCents = summary.CashInCents - summary.CashOutCents
	return summary, nil
}

func groupedRows[T any](ctx context.Context, q querier, query string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scan)
}
