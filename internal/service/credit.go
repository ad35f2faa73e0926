package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"posbackoffice/backend/internal/bnpl"
	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.CreditLimitCents < 0 {
		return domain.Customer{}, fmt.Errorf("%w: name required and credit limit must not be negative", store.ErrInvalidTransaction)
	}

	now := s.now()
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:               xid.New("cust"),
		Name:             req.Name,
		Phone:            req.Phone,
		Email:            req.Email,
		CreditLimitCents: req.CreditLimitCents,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, s.opts.DefaultStoreID, "customer_create", "customer", created.ID, fmt.Sprintf("name=%s,limit=%d", created.Name, created.CreditLimitCents))
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.GetCustomer(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrInvalidTransaction
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.CreditLimitCents != nil {
		if *req.CreditLimitCents < 0 {
			return domain.Customer{}, store.ErrInvalidTransaction
		}
		updated.CreditLimitCents = *req.CreditLimitCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, s.opts.DefaultStoreID, "customer_update", "customer", saved.ID, fmt.Sprintf("active=%t,limit=%d", saved.Active, saved.CreditLimitCents))
	return *saved, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, store.ErrInvalidTransaction
	}
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, query string, limit int) (domain.CustomerListResponse, error) {
	if limit < 1 {
		limit = 100
	}
	customers, err := s.repo.ListCustomers(ctx, query, limit)
	if err != nil {
		return domain.CustomerListResponse{}, err
	}
	return domain.CustomerListResponse{Customers: customers}, nil
}

// CustomerAccount is the credit view of one customer: open balances with
// days overdue, aging, recent payments and remaining credit.
func (s *Service) CustomerAccount(ctx context.Context, customerID string) (domain.CustomerAccount, error) {
	customer, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.CustomerAccount{}, err
	}
	txs, err := s.repo.ListBNPLTransactions(ctx, store.BNPLFilter{StoreID: s.creditScope(customer.ID), CustomerID: customer.ID, Status: domain.BNPLStatusOpen})
	if err != nil {
		return domain.CustomerAccount{}, err
	}
	payments, err := s.repo.ListBNPLPayments(ctx, s.creditScope(customer.ID), customer.ID, 10)
	if err != nil {
		return domain.CustomerAccount{}, err
	}

	now := s.now()
	open := bnpl.FromTransactions(txs)
	outstanding := bnpl.Outstanding(open)

	openTxs := make([]domain.CustomerOpenTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.BalanceCents < 1 {
			continue
		}
		openTxs = append(openTxs, domain.CustomerOpenTransaction{BNPLTransaction: tx, DaysOverdue: tx.DaysOverdue(now)})
	}

	return domain.CustomerAccount{
		Customer:         customer,
		OutstandingCents: outstanding,
		AvailableCents:   max(customer.CreditLimitCents-outstanding, 0),
		Aging:            bnpl.Age(open, now),
		OpenTransactions: openTxs,
		RecentPayments:   payments,
	}, nil
}

func (s *Service) ListBNPLTransactions(ctx context.Context, customerID string, status string) (domain.BNPLTransactionListResponse, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.BNPLStatusOpen, domain.BNPLStatusPaid, domain.BNPLStatusCancelled:
	default:
		return domain.BNPLTransactionListResponse{}, fmt.Errorf("%w: unknown status %s", store.ErrInvalidTransaction, status)
	}
	customerID = strings.TrimSpace(customerID)
	txs, err := s.repo.ListBNPLTransactions(ctx, store.BNPLFilter{
		StoreID:    s.creditScope(customerID),
		CustomerID: customerID,
		Status:     status,
	})
	if err != nil {
		return domain.BNPLTransactionListResponse{}, err
	}
	return domain.BNPLTransactionListResponse{Transactions: txs}, nil
}

// PreviewBNPLPayment shows how a payment would be spread without writing.
func (s *Service) PreviewBNPLPayment(ctx context.Context, req domain.BNPLPaymentRequest) (domain.BNPLPaymentPreview, error) {
	if req.AmountCents < 1 {
		return domain.BNPLPaymentPreview{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidTransaction)
	}
	open, err := s.selectOpenBalances(ctx, req.CustomerID, req.TransactionIDs)
	if err != nil {
		return domain.BNPLPaymentPreview{}, err
	}
	allocations, unapplied := bnpl.Allocate(open, req.AmountCents)
	return domain.BNPLPaymentPreview{
		CustomerID:       strings.TrimSpace(req.CustomerID),
		AmountCents:      req.AmountCents,
		OutstandingCents: bnpl.Outstanding(open),
		UnappliedCents:   unapplied,
		Allocations:      allocations,
	}, nil
}

// ApplyBNPLPayment allocates the payment oldest-due-first and hands the
// whole allocation to the store as one unit of work.
func (s *Service) ApplyBNPLPayment(ctx context.Context, req domain.BNPLPaymentRequest) (domain.BNPLPaymentResponse, error) {
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Method == "" {
		req.Method = domain.PaymentCash
	}
	if req.AmountCents < 1 {
		return domain.BNPLPaymentResponse{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidTransaction)
	}
	if !isBNPLPaymentMethod(req.Method) {
		return domain.BNPLPaymentResponse{}, fmt.Errorf("%w: unsupported payment method %s", store.ErrInvalidTransaction, req.Method)
	}
	if req.Method != domain.PaymentCash && req.Reference == "" {
		return domain.BNPLPaymentResponse{}, fmt.Errorf("%w: payment reference required", store.ErrInvalidTransaction)
	}

	open, err := s.selectOpenBalances(ctx, req.CustomerID, req.TransactionIDs)
	if err != nil {
		return domain.BNPLPaymentResponse{}, err
	}
	outstanding := bnpl.Outstanding(open)
	if outstanding == 0 {
		return domain.BNPLPaymentResponse{}, fmt.Errorf("%w: nothing outstanding", store.ErrInvalidTransaction)
	}
	if req.AmountCents > outstanding {
		return domain.BNPLPaymentResponse{}, fmt.Errorf("%w: payment %d exceeds outstanding %d", store.ErrInvalidTransaction, req.AmountCents, outstanding)
	}
	allocations, _ := bnpl.Allocate(open, req.AmountCents)

	now := s.now()
	saved, err := s.repo.ApplyBNPLPayment(ctx, domain.BNPLPayment{
		ID:                 xid.New("pay"),
		StoreID:            s.storeOr(req.StoreID),
		CustomerID:         strings.TrimSpace(req.CustomerID),
		ConfirmationNumber: xid.Confirmation("BNPL", now),
		AmountCents:        req.AmountCents,
		Method:             req.Method,
		Reference:          req.Reference,
		Note:               strings.TrimSpace(req.Note),
		ReceivedBy:         s.actorName(ctx),
		CreatedAt:          now,
		Allocations:        allocations,
	})
	if err != nil {
		return domain.BNPLPaymentResponse{}, err
	}

	s.logAudit(ctx, saved.StoreID, "bnpl_payment", "customer", saved.CustomerID, fmt.Sprintf("confirmation=%s,amount=%d,allocations=%d", saved.ConfirmationNumber, saved.AmountCents, len(saved.Allocations)))

	remaining, err := s.customerOutstanding(ctx, saved.CustomerID)
	if err != nil {
		s.log.Warn().Err(err).Str("customer_id", saved.CustomerID).Msg("failed to reload outstanding balance")
		remaining = outstanding - saved.AmountCents
	}
	return domain.BNPLPaymentResponse{Payment: *saved, OutstandingCents: remaining}, nil
}

func (s *Service) ListBNPLPayments(ctx context.Context, customerID string, limit int) (domain.BNPLPaymentListResponse, error) {
	if limit < 1 {
		limit = 100
	}
	customerID = strings.TrimSpace(customerID)
	payments, err := s.repo.ListBNPLPayments(ctx, s.creditScope(customerID), customerID, limit)
	if err != nil {
		return domain.BNPLPaymentListResponse{}, err
	}
	return domain.BNPLPaymentListResponse{Payments: payments}, nil
}

// BNPLAgingReport buckets every open balance of the store by days past due.
func (s *Service) BNPLAgingReport(ctx context.Context, storeID string) (domain.BNPLAgingReport, error) {
	storeID = s.storeOr(storeID)
	txs, err := s.repo.ListBNPLTransactions(ctx, store.BNPLFilter{StoreID: storeID, Status: domain.BNPLStatusOpen})
	if err != nil {
		return domain.BNPLAgingReport{}, err
	}

	now := s.now()
	byCustomer := make(map[string][]domain.BNPLTransaction)
	for _, tx := range txs {
		byCustomer[tx.CustomerID] = append(byCustomer[tx.CustomerID], tx)
	}

	report := domain.BNPLAgingReport{
		StoreID:   storeID,
		AsOf:      now.Format(time.RFC3339),
		Customers: make([]domain.CustomerAging, 0, len(byCustomer)),
	}
	for customerID, customerTxs := range byCustomer {
		aging := bnpl.Age(bnpl.FromTransactions(customerTxs), now)
		if aging.TotalCents == 0 {
			continue
		}
		name := customerID
		if customer, err := s.repo.GetCustomer(ctx, customerID); err == nil {
			name = customer.Name
		}
		report.Totals.Add(aging)
		report.Customers = append(report.Customers, domain.CustomerAging{
			CustomerID:   customerID,
			CustomerName: name,
			Aging:        aging,
		})
	}
	slices.SortFunc(report.Customers, func(a, b domain.CustomerAging) int {
		switch {
		case a.Aging.TotalCents > b.Aging.TotalCents:
			return -1
		case a.Aging.TotalCents < b.Aging.TotalCents:
			return 1
		}
		return strings.Compare(a.CustomerID, b.CustomerID)
	})
	return report, nil
}

// creditScope is the store filter for BNPL listings. A customer's credit
// account spans every store, the same way the credit limit does, so a
// customer-specific listing is unscoped; a store-wide listing stays on the
// default store. The store on a payment only records where it was received.
func (s *Service) creditScope(customerID string) string {
	if customerID != "" {
		return ""
	}
	return s.opts.DefaultStoreID
}

// selectOpenBalances loads the customer's open balances, optionally limited
// to the given transaction ids, which must all be open and owned by them.
func (s *Service) selectOpenBalances(ctx context.Context, customerID string, transactionIDs []string) ([]bnpl.OpenBalance, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id required", store.ErrInvalidTransaction)
	}
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	txs, err := s.repo.ListBNPLTransactions(ctx, store.BNPLFilter{StoreID: s.creditScope(customerID), CustomerID: customerID, Status: domain.BNPLStatusOpen})
	if err != nil {
		return nil, err
	}
	if len(transactionIDs) == 0 {
		return bnpl.FromTransactions(txs), nil
	}

	selected := make([]domain.BNPLTransaction, 0, len(transactionIDs))
	for _, id := range transactionIDs {
		id = strings.TrimSpace(id)
		i := slices.IndexFunc(txs, func(tx domain.BNPLTransaction) bool { return tx.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s is not an open balance of this customer", store.ErrInvalidTransaction, id)
		}
		if slices.ContainsFunc(selected, func(tx domain.BNPLTransaction) bool { return tx.ID == id }) {
			continue
		}
		selected = append(selected, txs[i])
	}
	return bnpl.FromTransactions(selected), nil
}

func (s *Service) customerOutstanding(ctx context.Context, customerID string) (int64, error) {
	txs, err := s.repo.ListBNPLTransactions(ctx, store.BNPLFilter{StoreID: s.creditScope(customerID), CustomerID: customerID, Status: domain.BNPLStatusOpen})
	if err != nil {
		return 0, err
	}
	return bnpl.Outstanding(bnpl.FromTransactions(txs)), nil
}

func isBNPLPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRIS, domain.PaymentEWallet, domain.PaymentTransfer:
		return true
	default:
		return false
	}
}
