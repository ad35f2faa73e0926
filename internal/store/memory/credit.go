package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" || customer.CreditLimitCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if err := s.checkPhoneLocked(customer.ID, customer.Phone); err != nil {
		return nil, err
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.UpdatedAt = customer.CreatedAt
	s.customersByID[customer.ID] = customer
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[customer.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(customer.Name) == "" || customer.CreditLimitCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if err := s.checkPhoneLocked(customer.ID, customer.Phone); err != nil {
		return nil, err
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		if query != "" &&
			!strings.Contains(strings.ToLower(customer.Name), query) &&
			!strings.Contains(customer.Phone, query) &&
			!strings.Contains(strings.ToLower(customer.Email), query) {
			continue
		}
		result = append(result, customer)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) FindBNPLTransactionBySale(_ context.Context, saleID string) (*domain.BNPLTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bnplBySale[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	tx := *s.bnplByID[id]
	return &tx, nil
}

func (s *Store) ListBNPLTransactions(_ context.Context, filter store.BNPLFilter) ([]domain.BNPLTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.BNPLTransaction, 0, 16)
	for _, tx := range s.bnplByID {
		if filter.StoreID != "" && tx.StoreID != filter.StoreID {
			continue
		}
		if filter.CustomerID != "" && tx.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		result = append(result, *tx)
	}
	slices.SortFunc(result, func(a, b domain.BNPLTransaction) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) ApplyBNPLPayment(_ context.Context, payment domain.BNPLPayment) (*domain.BNPLPayment, error) {
	if err := store.CheckAllocations(payment); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[payment.CustomerID]; !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, payment.CustomerID)
	}

	for _, alloc := range payment.Allocations {
		tx, ok := s.bnplByID[alloc.TransactionID]
		if !ok {
			return nil, fmt.Errorf("%w: bnpl transaction %s", store.ErrNotFound, alloc.TransactionID)
		}
		if tx.CustomerID != payment.CustomerID {
			return nil, store.ErrInvalidTransaction
		}
		if tx.Status != domain.BNPLStatusOpen || tx.BalanceCents-alloc.AppliedCents != alloc.BalanceAfterCents || alloc.BalanceAfterCents < 0 {
			return nil, fmt.Errorf("%w: balance of %s changed", store.ErrConflict, tx.ID)
		}
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	for _, alloc := range payment.Allocations {
		tx := s.bnplByID[alloc.TransactionID]
		tx.PaidCents += alloc.AppliedCents
		tx.BalanceCents = alloc.BalanceAfterCents
		if tx.BalanceCents == 0 {
			tx.Status = domain.BNPLStatusPaid
		}
		tx.UpdatedAt = payment.CreatedAt
	}
	if payment.Method == domain.PaymentCash {
		s.appendCashLocked(domain.CashLedgerEntry{
			ID:          xid.New("cash"),
			StoreID:     payment.StoreID,
			Direction:   domain.CashIn,
			AmountCents: payment.AmountCents,
			Source:      domain.CashSourceBNPLPayment,
			SourceID:    payment.ID,
			Note:        payment.ConfirmationNumber,
			RecordedBy:  payment.ReceivedBy,
			CreatedAt:   payment.CreatedAt,
		})
	}

	saved := clonePayment(payment)
	s.bnplPayments = append(s.bnplPayments, saved)
	result := clonePayment(saved)
	return &result, nil
}

func (s *Store) ListBNPLPayments(_ context.Context, storeID string, customerID string, limit int) ([]domain.BNPLPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.BNPLPayment, 0, 16)
	for _, payment := range s.bnplPayments {
		if storeID != "" && payment.StoreID != storeID {
			continue
		}
		if customerID != "" && payment.CustomerID != customerID {
			continue
		}
		result = append(result, clonePayment(payment))
	}
	slices.SortFunc(result, func(a, b domain.BNPLPayment) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.AmountCents < 1 || expense.Category == "" {
		return nil, store.ErrInvalidTransaction
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	if expense.PaymentMethod == domain.PaymentCash {
		s.appendCashLocked(domain.CashLedgerEntry{
			ID:          xid.New("cash"),
			StoreID:     expense.StoreID,
			Direction:   domain.CashOut,
			AmountCents: expense.AmountCents,
			Source:      domain.CashSourceExpense,
			SourceID:    expense.ID,
			Note:        expense.Category + ": " + expense.Description,
			RecordedBy:  expense.RecordedBy,
			CreatedAt:   expense.CreatedAt,
		})
	}
	s.expenses = append(s.expenses, expense)
	return &expense, nil
}

func (s *Store) ListExpenses(_ context.Context, storeID string, from time.Time, to time.Time, category string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, 16)
	for _, expense := range s.expenses {
		if storeID != "" && expense.StoreID != storeID {
			continue
		}
		if category != "" && expense.Category != category {
			continue
		}
		if !inRange(expense.IncurredOn, from, to) {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		if c := b.IncurredOn.Compare(a.IncurredOn); c != 0 {
			return c
		}
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateCashEntry(_ context.Context, entry domain.CashLedgerEntry) (*domain.CashLedgerEntry, error) {
	if entry.AmountCents < 1 || (entry.Direction != domain.CashIn && entry.Direction != domain.CashOut) {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("cash")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.appendCashLocked(entry)
	return &entry, nil
}

func (s *Store) ListCashEntries(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.CashLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashLedgerEntry, 0, 64)
	for _, entry := range s.cashLedger {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.CashLedgerEntry) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) GetCashTotals(_ context.Context, storeID string, asOf time.Time) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, out := int64(0), int64(0)
	for _, entry := range s.cashLedger {
		if entry.StoreID != storeID || entry.CreatedAt.After(asOf) {
			continue
		}
		if entry.Direction == domain.CashIn {
			in += entry.AmountCents
		} else {
			out += entry.AmountCents
		}
	}
	return in, out, nil
}

func (s *Store) GetSalesSummary(_ context.Context, storeID string, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		StoreID:            storeID,
		ByPayment:          make([]domain.SummaryPayment, 0, 4),
		ByTerminal:         make([]domain.SummaryTerminal, 0, 8),
		ByDay:              make([]domain.SummaryDay, 0, 8),
		ExpensesByCategory: make([]domain.SummaryExpenseCategory, 0, 4),
	}
	byPayment := map[string]*domain.SummaryPayment{}
	byTerminal := map[string]*domain.SummaryTerminal{}
	byDay := map[string]*domain.SummaryDay{}
	byCategory := map[string]*domain.SummaryExpenseCategory{}

	salesTotal := int64(0)
	for _, sale := range s.salesByID {
		if sale.StoreID != storeID || !inRange(sale.CreatedAt, from, to) {
			continue
		}
		if sale.Status == domain.SaleStatusVoided {
			continue
		}

		summary.Transactions++
		summary.GrossSalesCents += sale.SubtotalCents
		summary.DiscountCents += sale.DiscountCents
		summary.TaxCents += sale.TaxCents
		salesTotal += sale.TotalCents
		for _, item := range sale.Items {
			summary.EstimatedMarginCents += int64(math.Round(float64(item.UnitPriceCents*int64(item.Qty)) * item.MarginRate))
		}

		payment := byPayment[sale.PaymentMethod]
		if payment == nil {
			payment = &domain.SummaryPayment{PaymentMethod: sale.PaymentMethod}
			byPayment[sale.PaymentMethod] = payment
		}
		payment.Transactions++
		payment.TotalCents += sale.TotalCents

		terminal := byTerminal[sale.TerminalID]
		if terminal == nil {
			terminal = &domain.SummaryTerminal{TerminalID: sale.TerminalID}
			byTerminal[sale.TerminalID] = terminal
		}
		terminal.Transactions++
		terminal.TotalCents += sale.TotalCents

		key := sale.CreatedAt.UTC().Format("2006-01-02")
		dayRow := byDay[key]
		if dayRow == nil {
			dayRow = &domain.SummaryDay{Date: key}
			byDay[key] = dayRow
		}
		dayRow.Transactions++
		dayRow.TotalCents += sale.TotalCents
	}

	for _, refund := range s.refundsByID {
		if refund.StoreID == storeID && inRange(refund.CreatedAt, from, to) {
			summary.RefundCents += refund.AmountCents
		}
	}
	for _, tx := range s.bnplByID {
		if tx.StoreID == storeID && tx.Status != domain.BNPLStatusCancelled && inRange(tx.CreatedAt, from, to) {
			summary.BNPLIssuedCents += tx.PrincipalCents
		}
	}
	for _, payment := range s.bnplPayments {
		if payment.StoreID == storeID && inRange(payment.CreatedAt, from, to) {
			summary.BNPLCollectedCents += payment.AmountCents
		}
	}
	for _, expense := range s.expenses {
		if expense.StoreID != storeID || !inRange(expense.IncurredOn, from, to) {
			continue
		}
		summary.ExpenseCents += expense.AmountCents
		row := byCategory[expense.Category]
		if row == nil {
			row = &domain.SummaryExpenseCategory{Category: expense.Category}
			byCategory[expense.Category] = row
		}
		row.Count++
		row.TotalCents += expense.AmountCents
	}
	for _, entry := range s.cashLedger {
		if entry.StoreID != storeID || !inRange(entry.CreatedAt, from, to) {
			continue
		}
		if entry.Direction == domain.CashIn {
			summary.CashInCents += entry.AmountCents
		} else {
			summary.CashOutCents += entry.AmountCents
		}
	}
	summary.NetSalesCents = salesTotal - summary.RefundCents
	summary.NetCashCents = summary.CashInCents - summary.CashOutCents

	for _, row := range byPayment {
		summary.ByPayment = append(summary.ByPayment, *row)
	}
	for _, row := range byTerminal {
		summary.ByTerminal = append(summary.ByTerminal, *row)
	}
	for _, row := range byDay {
		summary.ByDay = append(summary.ByDay, *row)
	}
	for _, row := range byCategory {
		summary.ExpensesByCategory = append(summary.ExpensesByCategory, *row)
	}
	slices.SortFunc(summary.ByPayment, func(a, b domain.SummaryPayment) int {
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	})
	slices.SortFunc(summary.ByTerminal, func(a, b domain.SummaryTerminal) int {
		return strings.Compare(a.TerminalID, b.TerminalID)
	})
	slices.SortFunc(summary.ByDay, func(a, b domain.SummaryDay) int {
		return strings.Compare(a.Date, b.Date)
	})
	slices.SortFunc(summary.ExpensesByCategory, func(a, b domain.SummaryExpenseCategory) int {
		return strings.Compare(a.Category, b.Category)
	})

	return summary, nil
}

// outstandingLocked sums open balances for a customer. Caller holds the lock.
func (s *Store) outstandingLocked(customerID string) int64 {
	total := int64(0)
	for _, tx := range s.bnplByID {
		if tx.CustomerID == customerID && tx.Status == domain.BNPLStatusOpen {
			total += tx.BalanceCents
		}
	}
	return total
}

func (s *Store) appendCashLocked(entry domain.CashLedgerEntry) {
	s.cashLedger = append(s.cashLedger, entry)
}

func (s *Store) checkPhoneLocked(id string, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	for _, other := range s.customersByID {
		if other.ID != id && other.Phone == phone {
			return fmt.Errorf("%w: phone %s already registered", store.ErrConflict, phone)
		}
	}
	return nil
}

func clonePayment(src domain.BNPLPayment) domain.BNPLPayment {
	dup := src
	dup.Allocations = slices.Clone(src.Allocations)
	return dup
}
