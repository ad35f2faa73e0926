package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Expense{}, err
	}

	req.StoreID = s.storeOr(req.StoreID)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.Description = strings.TrimSpace(req.Description)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if req.Category == "" || req.AmountCents < 1 {
		return domain.Expense{}, fmt.Errorf("%w: category and positive amount required", store.ErrInvalidTransaction)
	}
	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer, domain.PaymentEWallet:
	default:
		return domain.Expense{}, fmt.Errorf("%w: unsupported payment method %s", store.ErrInvalidTransaction, req.PaymentMethod)
	}

	now := s.now()
	incurredOn, err := s.parseDay(req.IncurredOn)
	if err != nil {
		return domain.Expense{}, err
	}
	if incurredOn.After(startOfDay(now)) {
		return domain.Expense{}, fmt.Errorf("%w: incurred_on is in the future", store.ErrInvalidTransaction)
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:            xid.New("exp"),
		StoreID:       req.StoreID,
		Category:      req.Category,
		Description:   req.Description,
		AmountCents:   req.AmountCents,
		PaymentMethod: req.PaymentMethod,
		Reference:     strings.TrimSpace(req.Reference),
		IncurredOn:    incurredOn,
		RecordedBy:    actor.Username,
		CreatedAt:     now,
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, created.StoreID, "expense_create", "expense", created.ID, fmt.Sprintf("category=%s,amount=%d,method=%s", created.Category, created.AmountCents, created.PaymentMethod))
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, storeID string, from string, to string, category string) (domain.ExpenseListResponse, error) {
	start, end, err := s.parseRange(from, to)
	if err != nil {
		return domain.ExpenseListResponse{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, s.storeOr(storeID), start, end, strings.ToLower(strings.TrimSpace(category)))
	if err != nil {
		return domain.ExpenseListResponse{}, err
	}
	total := int64(0)
	for _, expense := range expenses {
		total += expense.AmountCents
	}
	return domain.ExpenseListResponse{Expenses: expenses, TotalCents: total}, nil
}

// RecordCashEntry accepts only the manual ledger sources; sale, refund,
// void, expense and BNPL entries are written by their own operations.
func (s *Service) RecordCashEntry(ctx context.Context, req domain.CashEntryRequest) (domain.CashLedgerEntry, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.CashLedgerEntry{}, err
	}

	req.Direction = strings.ToLower(strings.TrimSpace(req.Direction))
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	if req.Direction != domain.CashIn && req.Direction != domain.CashOut {
		return domain.CashLedgerEntry{}, fmt.Errorf("%w: direction must be in or out", store.ErrInvalidTransaction)
	}
	if req.AmountCents < 1 {
		return domain.CashLedgerEntry{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidTransaction)
	}
	switch req.Source {
	case domain.CashSourceOpeningFloat, domain.CashSourceAdjustment, domain.CashSourceBankDeposit, domain.CashSourceOwnerWithdrawal:
	default:
		return domain.CashLedgerEntry{}, fmt.Errorf("%w: source %q cannot be recorded manually", store.ErrInvalidTransaction, req.Source)
	}

	created, err := s.repo.CreateCashEntry(ctx, domain.CashLedgerEntry{
		ID:          xid.New("cash"),
		StoreID:     s.storeOr(req.StoreID),
		Direction:   req.Direction,
		AmountCents: req.AmountCents,
		Source:      req.Source,
		Note:        strings.TrimSpace(req.Note),
		RecordedBy:  actor.Username,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.CashLedgerEntry{}, err
	}

	s.logAudit(ctx, created.StoreID, "cash_entry", "cash_ledger", created.ID, fmt.Sprintf("direction=%s,amount=%d,source=%s", created.Direction, created.AmountCents, created.Source))
	return *created, nil
}

func (s *Service) ListCashEntries(ctx context.Context, storeID string, from string, to string, limit int) (domain.CashLedgerListResponse, error) {
	start, end, err := s.parseRange(from, to)
	if err != nil {
		return domain.CashLedgerListResponse{}, err
	}
	if limit < 1 {
		limit = 200
	}
	entries, err := s.repo.ListCashEntries(ctx, s.storeOr(storeID), start, end, limit)
	if err != nil {
		return domain.CashLedgerListResponse{}, err
	}
	return domain.CashLedgerListResponse{Entries: entries}, nil
}

// CashBalance sums the ledger up to asOf (RFC3339); empty means now.
func (s *Service) CashBalance(ctx context.Context, storeID string, asOf string) (domain.CashBalance, error) {
	storeID = s.storeOr(storeID)
	at := s.now()
	if strings.TrimSpace(asOf) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(asOf))
		if err != nil {
			return domain.CashBalance{}, fmt.Errorf("%w: as_of must be RFC3339", store.ErrInvalidTransaction)
		}
		at = parsed.UTC()
	}

	in, out, err := s.repo.GetCashTotals(ctx, storeID, at)
	if err != nil {
		return domain.CashBalance{}, err
	}
	return domain.CashBalance{
		StoreID:      storeID,
		AsOf:         at.Format(time.RFC3339),
		InCents:      in,
		OutCents:     out,
		BalanceCents: in - out,
	}, nil
}
