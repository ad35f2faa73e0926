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

const customerColumns = `id, name, COALESCE(phone,''), COALESCE(email,''), credit_limit_cents, active, created_at, updated_at`

func scanCustomer(r rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := r.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreditLimitCents, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" || customer.CreditLimitCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.UpdatedAt = customer.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, credit_limit_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, customer.ID, customer.Name, nullIfEmpty(strings.TrimSpace(customer.Phone)), nullIfEmpty(customer.Email),
		customer.CreditLimitCents, customer.Active, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: phone %s already registered", store.ErrConflict, customer.Phone)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" || customer.CreditLimitCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, credit_limit_cents = $5, active = $6, updated_at = $7
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(strings.TrimSpace(customer.Phone)), nullIfEmpty(customer.Email),
		customer.CreditLimitCents, customer.Active, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: phone %s already registered", store.ErrConflict, customer.Phone)
		}
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return findCustomer(ctx, s.db, id, false)
}

func findCustomer(ctx context.Context, q querier, id string, lock bool) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	customer, err := scanCustomer(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 200
	}
	query = strings.TrimSpace(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE $1::text = ''
			OR name ILIKE '%' || $1::text || '%'
			OR phone LIKE '%' || $1::text || '%'
			OR email ILIKE '%' || $1::text || '%'
		ORDER BY lower(name), id
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.Customer, error) { return scanCustomer(r) })
}

const bnplColumns = `id, store_id, customer_id, sale_id, principal_cents, paid_cents, credited_cents, balance_cents, due_date, status, created_at, updated_at`

func scanBNPL(r rowScanner) (domain.BNPLTransaction, error) {
	var t domain.BNPLTransaction
	err := r.Scan(&t.ID, &t.StoreID, &t.CustomerID, &t.SaleID, &t.PrincipalCents, &t.PaidCents, &t.CreditedCents,
		&t.BalanceCents, &t.DueDate, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	t.DueDate = t.DueDate.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, err
}

func insertBNPLTransaction(ctx context.Context, tx *sql.Tx, t domain.BNPLTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bnpl_transactions (`+bnplColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, t.ID, t.StoreID, t.CustomerID, t.SaleID, t.PrincipalCents, t.PaidCents, t.CreditedCents, t.BalanceCents,
		t.DueDate, t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) FindBNPLTransactionBySale(ctx context.Context, saleID string) (*domain.BNPLTransaction, error) {
	return findBNPLBySale(ctx, s.db, saleID, false)
}

func findBNPLBySale(ctx context.Context, q querier, saleID string, lock bool) (*domain.BNPLTransaction, error) {
	query := `SELECT ` + bnplColumns + ` FROM bnpl_transactions WHERE sale_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	t, err := scanBNPL(q.QueryRowContext(ctx, query, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListBNPLTransactions(ctx context.Context, filter store.BNPLFilter) ([]domain.BNPLTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bnplColumns+`
		FROM bnpl_transactions
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR customer_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY due_date ASC, created_at ASC, id ASC
	`, filter.StoreID, filter.CustomerID, filter.Status)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.BNPLTransaction, error) { return scanBNPL(r) })
}

func outstandingBalance(ctx context.Context, q querier, customerID string) (int64, error) {
	var total int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance_cents),0)::bigint
		FROM bnpl_transactions
		WHERE customer_id = $1 AND status = $2
	`, customerID, domain.BNPLStatusOpen).Scan(&total)
	return total, err
}

// ApplyBNPLPayment locks the customer and every allocated transaction, then
// checks each allocation against the locked balance. The payment row, its
// allocations, the balance updates and the cash entry commit together or
// not at all.
func (s *Store) ApplyBNPLPayment(ctx context.Context, payment domain.BNPLPayment) (*domain.BNPLPayment, error) {
	if err := store.CheckAllocations(payment); err != nil {
		return nil, err
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := findCustomer(ctx, tx, payment.CustomerID, true); err != nil {
			return err
		}

		for _, alloc := range payment.Allocations {
			t, err := scanBNPL(tx.QueryRowContext(ctx, `
				SELECT `+bnplColumns+`
				FROM bnpl_transactions
				WHERE id = $1
				FOR UPDATE
			`, alloc.TransactionID))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: bnpl transaction %s", store.ErrNotFound, alloc.TransactionID)
				}
				return err
			}
			if t.CustomerID != payment.CustomerID {
				return store.ErrInvalidTransaction
			}
			if t.Status != domain.BNPLStatusOpen || t.BalanceCents-alloc.AppliedCents != alloc.BalanceAfterCents || alloc.BalanceAfterCents < 0 {
				return fmt.Errorf("%w: balance of %s changed", store.ErrConflict, t.ID)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO bnpl_payments (id, store_id, customer_id, confirmation_number, amount_cents, method, reference, note, received_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, payment.ID, payment.StoreID, payment.CustomerID, payment.ConfirmationNumber, payment.AmountCents, payment.Method,
			nullIfEmpty(payment.Reference), nullIfEmpty(payment.Note), payment.ReceivedBy, payment.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: confirmation number %s taken", store.ErrConflict, payment.ConfirmationNumber)
			}
			return err
		}

		for i, alloc := range payment.Allocations {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO bnpl_payment_allocations (payment_id, transaction_id, position, applied_cents, balance_after_cents)
				VALUES ($1,$2,$3,$4,$5)
			`, payment.ID, alloc.TransactionID, i, alloc.AppliedCents, alloc.BalanceAfterCents)
			if err != nil {
				return err
			}
			status := domain.BNPLStatusOpen
			if alloc.BalanceAfterCents == 0 {
				status = domain.BNPLStatusPaid
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE bnpl_transactions
				SET paid_cents = paid_cents + $2, balance_cents = $3, status = $4, updated_at = $5
				WHERE id = $1
			`, alloc.TransactionID, alloc.AppliedCents, alloc.BalanceAfterCents, status, payment.CreatedAt)
			if err != nil {
				return err
			}
		}

		if payment.Method != domain.PaymentCash {
			return nil
		}
		return insertCashEntry(ctx, tx, domain.CashLedgerEntry{
			StoreID:     payment.StoreID,
			Direction:   domain.CashIn,
			AmountCents: payment.AmountCents,
			Source:      domain.CashSourceBNPLPayment,
			SourceID:    payment.ID,
			Note:        payment.ConfirmationNumber,
			RecordedBy:  payment.ReceivedBy,
			CreatedAt:   payment.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Store) ListBNPLPayments(ctx context.Context, storeID string, customerID string, limit int) ([]domain.BNPLPayment, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, customer_id, confirmation_number, amount_cents, method,
			COALESCE(reference,''), COALESCE(note,''), received_by, created_at
		FROM bnpl_payments
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR customer_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, storeID, customerID, limit)
	if err != nil {
		return nil, err
	}
	payments, err := collect(rows, func(r *sql.Rows) (domain.BNPLPayment, error) {
		var p domain.BNPLPayment
		err := r.Scan(&p.ID, &p.StoreID, &p.CustomerID, &p.ConfirmationNumber, &p.AmountCents, &p.Method,
			&p.Reference, &p.Note, &p.ReceivedBy, &p.CreatedAt)
		p.CreatedAt = p.CreatedAt.UTC()
		return p, err
	})
	if err != nil || len(payments) == 0 {
		return payments, err
	}

	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.ID)
	}
	allocRows, err := s.db.QueryContext(ctx, `
		SELECT payment_id, transaction_id, applied_cents, balance_after_cents
		FROM bnpl_payment_allocations
		WHERE payment_id = ANY($1)
		ORDER BY payment_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	type allocRow struct {
		paymentID string
		alloc     domain.BNPLAllocation
	}
	allocs, err := collect(allocRows, func(r *sql.Rows) (allocRow, error) {
		var row allocRow
		err := r.Scan(&row.paymentID, &row.alloc.TransactionID, &row.alloc.AppliedCents, &row.alloc.BalanceAfterCents)
		return row, err
	})
	if err != nil {
		return nil, err
	}
	byPayment := make(map[string][]domain.BNPLAllocation, len(payments))
	for _, row := range allocs {
		byPayment[row.paymentID] = append(byPayment[row.paymentID], row.alloc)
	}
	for i := range payments {
		payments[i].Allocations = byPayment[payments[i].ID]
	}
	return payments, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.AmountCents < 1 || expense.Category == "" {
		return nil, store.ErrInvalidTransaction
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (id, store_id, category, description, amount_cents, payment_method, reference, incurred_on, recorded_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, expense.ID, expense.StoreID, expense.Category, expense.Description, expense.AmountCents, expense.PaymentMethod,
			nullIfEmpty(expense.Reference), expense.IncurredOn, expense.RecordedBy, expense.CreatedAt)
		if err != nil || expense.PaymentMethod != domain.PaymentCash {
			return err
		}
		return insertCashEntry(ctx, tx, domain.CashLedgerEntry{
			StoreID:     expense.StoreID,
			Direction:   domain.CashOut,
			AmountCents: expense.AmountCents,
			Source:      domain.CashSourceExpense,
			SourceID:    expense.ID,
			Note:        expense.Category + ": " + expense.Description,
			RecordedBy:  expense.RecordedBy,
			CreatedAt:   expense.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, storeID string, from time.Time, to time.Time, category string) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, category, description, amount_cents, payment_method, COALESCE(reference,''),
			incurred_on, recorded_by, created_at
		FROM expenses
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR category = $2)
			AND ($3::timestamptz IS NULL OR incurred_on >= $3)
			AND ($4::timestamptz IS NULL OR incurred_on < $4)
		ORDER BY incurred_on DESC, created_at DESC, id DESC
	`, storeID, category, nullIfZero(from), nullIfZero(to))
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.Expense, error) {
		var e domain.Expense
		err := r.Scan(&e.ID, &e.StoreID, &e.Category, &e.Description, &e.AmountCents, &e.PaymentMethod, &e.Reference,
			&e.IncurredOn, &e.RecordedBy, &e.CreatedAt)
		e.IncurredOn = e.IncurredOn.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		return e, err
	})
}

func (s *Store) CreateCashEntry(ctx context.Context, entry domain.CashLedgerEntry) (*domain.CashLedgerEntry, error) {
	if entry.AmountCents < 1 || (entry.Direction != domain.CashIn && entry.Direction != domain.CashOut) {
		return nil, store.ErrInvalidTransaction
	}
	if entry.ID == "" {
		entry.ID = xid.New("cash")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := insertCashEntry(ctx, s.db, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListCashEntries(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.CashLedgerEntry, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, direction, amount_cents, source, COALESCE(source_id,''), COALESCE(note,''), recorded_by, created_at
		FROM cash_ledger
		WHERE ($1 = '' OR store_id = $1)
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, nullIfZero(from), nullIfZero(to), limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r *sql.Rows) (domain.CashLedgerEntry, error) {
		var e domain.CashLedgerEntry
		err := r.Scan(&e.ID, &e.StoreID, &e.Direction, &e.AmountCents, &e.Source, &e.SourceID, &e.Note, &e.RecordedBy, &e.CreatedAt)
		e.CreatedAt = e.CreatedAt.UTC()
		return e, err
	})
}

func (s *Store) GetCashTotals(ctx context.Context, storeID string, asOf time.Time) (int64, int64, error) {
	var in, out int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE direction = 'in'),0)::bigint,
			COALESCE(SUM(amount_cents) FILTER (WHERE direction = 'out'),0)::bigint
		FROM cash_ledger
		WHERE store_id = $1 AND created_at <= $2
	`, storeID, asOf).Scan(&in, &out)
	return in, out, err
}
