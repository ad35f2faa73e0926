package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newClockedService(at *time.Time) *Service {
	svc := newTestService()
	svc.now = func() time.Time { return *at }
	return svc
}

func createCustomer(t *testing.T, svc *Service, limit int64) domain.Customer {
	t.Helper()
	customer, err := svc.CreateCustomer(adminContext(), domain.CustomerCreateRequest{
		Name:             "Bu Sari",
		Phone:            "0812000111",
		CreditLimitCents: limit,
	})
	require.NoError(t, err)
	return customer
}

func bnplCheckout(t *testing.T, svc *Service, customerID, key string, qty int, down int64, termDays int) (domain.CheckoutResponse, error) {
	t.Helper()
	return svc.Checkout(cashierContext(), domain.CheckoutRequest{
		TerminalID:       "terminal-a1",
		IdempotencyKey:   key,
		CustomerID:       customerID,
		PaymentMethod:    "bnpl",
		DownPaymentCents: down,
		TermDays:         termDays,
		CartItems:        []domain.CartItem{{SKU: "SKU-TELUR-01", Qty: qty}},
	})
}

func TestBNPLCheckoutOpensCreditWithinLimit(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	customer := createCustomer(t, svc, 100000)

	first, err := bnplCheckout(t, svc, customer.ID, "bnpl-1", 2, 3000, 0)
	require.NoError(t, err)
	require.NotNil(t, first.BNPL)
	assert.Equal(t, int64(53000), first.TotalCents)
	assert.Equal(t, int64(50000), first.BNPL.PrincipalCents)
	assert.Equal(t, "2026-04-09", first.BNPL.DueDate.Format("2006-01-02"))

	second, err := bnplCheckout(t, svc, customer.ID, "bnpl-2", 1, 0, 7)
	require.NoError(t, err)
	require.NotNil(t, second.BNPL)
	assert.Equal(t, "2026-03-17", second.BNPL.DueDate.Format("2006-01-02"))

	_, err = bnplCheckout(t, svc, customer.ID, "bnpl-3", 1, 0, 0)
	require.ErrorIs(t, err, store.ErrCreditLimitExceeded)

	account, err := svc.CustomerAccount(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(76500), account.OutstandingCents)
	assert.Equal(t, int64(23500), account.AvailableCents)
	assert.Len(t, account.OpenTransactions, 2)
}

func TestBNPLCheckoutValidation(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	customer := createCustomer(t, svc, 100000)

	_, err := bnplCheckout(t, svc, "", "bnpl-no-customer", 1, 0, 0)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = bnplCheckout(t, svc, customer.ID, "bnpl-full-down", 1, 26500, 0)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = bnplCheckout(t, svc, customer.ID, "bnpl-long-term", 1, 0, 400)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	noCredit := createCustomer(t, svc, 0)
	_, err = bnplCheckout(t, svc, noCredit.ID, "bnpl-no-credit", 1, 0, 0)
	assert.ErrorIs(t, err, store.ErrCreditLimitExceeded)

	_, err = svc.Checkout(cashierContext(), domain.CheckoutRequest{
		IdempotencyKey: "bnpl-split",
		CustomerID:     customer.ID,
		PaymentMethod:  "bnpl",
		PaymentSplits: []domain.PaymentSplit{
			{Method: "cash", AmountCents: 10000},
			{Method: "qris", AmountCents: 16500, Reference: "QR-9"},
		},
		CartItems: []domain.CartItem{{SKU: "SKU-TELUR-01", Qty: 1}},
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestApplyBNPLPaymentSettlesEarliestDueFirst(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	customer := createCustomer(t, svc, 100000)

	first, err := bnplCheckout(t, svc, customer.ID, "bnpl-1", 2, 3000, 0)
	require.NoError(t, err)
	second, err := bnplCheckout(t, svc, customer.ID, "bnpl-2", 1, 0, 7)
	require.NoError(t, err)

	preview, err := svc.PreviewBNPLPayment(context.Background(), domain.BNPLPaymentRequest{
		CustomerID:  customer.ID,
		AmountCents: 30000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(76500), preview.OutstandingCents)
	assert.Zero(t, preview.UnappliedCents)

	resp, err := svc.ApplyBNPLPayment(cashierContext(), domain.BNPLPaymentRequest{
		CustomerID:  customer.ID,
		AmountCents: 30000,
		Method:      "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, preview.Allocations, resp.Payment.Allocations)
	require.Len(t, resp.Payment.Allocations, 2)
	assert.Equal(t, second.BNPL.ID, resp.Payment.Allocations[0].TransactionID)
	assert.Equal(t, int64(26500), resp.Payment.Allocations[0].AppliedCents)
	assert.Zero(t, resp.Payment.Allocations[0].BalanceAfterCents)
	assert.Equal(t, first.BNPL.ID, resp.Payment.Allocations[1].TransactionID)
	assert.Equal(t, int64(46500), resp.Payment.Allocations[1].BalanceAfterCents)
	assert.Equal(t, int64(46500), resp.OutstandingCents)
	assert.True(t, strings.HasPrefix(resp.Payment.ConfirmationNumber, "BNPL-20260310-"))
	assert.Len(t, resp.Payment.ConfirmationNumber, len("BNPL-20260310-")+8)

	paid, err := svc.ListBNPLTransactions(context.Background(), customer.ID, "paid")
	require.NoError(t, err)
	require.Len(t, paid.Transactions, 1)
	assert.Equal(t, second.BNPL.ID, paid.Transactions[0].ID)

	cash, err := svc.CashBalance(context.Background(), "", "")
	require.NoError(t, err)
	// down payment 3000 plus the 30000 collection
	assert.Equal(t, int64(33000), cash.BalanceCents)
}

func TestApplyBNPLPaymentRejectsInvalidPayments(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	customer := createCustomer(t, svc, 100000)

	_, err := svc.ApplyBNPLPayment(cashierContext(), domain.BNPLPaymentRequest{
		CustomerID:  customer.ID,
		AmountCents: 1000,
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction, "nothing outstanding")

	_, err = bnplCheckout(t, svc, customer.ID, "bnpl-1", 1, 0, 0)
	require.NoError(t, err)

	_, err = svc.ApplyBNPLPayment(cashierContext(), domain.BNPLPaymentRequest{
		CustomerID:  customer.ID,
		AmountCents: 26501,
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction, "overpayment")

	_, err = svc.ApplyBNPLPayment(cashierContext(), domain.BNPLPaymentRequest{
		CustomerID:  customer.ID,
		AmountCents: 1000,
		Method:      "transfer",
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction, "transfer without reference")

	_, err = svc.ApplyBNPLPayment(cashierContext(), domain.BNPLPaymentRequest{
		CustomerID:     customer.ID,
		AmountCents:    1000,
		TransactionIDs: []string{"bnpl-unknown"},
	})
	assert.Error(t, err)

	_, err = svc.ApplyBNPLPayment(cashierContext(), domain.BNPLPaymentRequest{
		CustomerID:  customer.ID,
		AmountCents: 0,
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestBNPLAgingReportBucketsOverdueBalances(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	customer := createCustomer(t, svc, 100000)

	_, err := bnplCheckout(t, svc, customer.ID, "bnpl-1", 2, 3000, 0)
	require.NoError(t, err)
	_, err = bnplCheckout(t, svc, customer.ID, "bnpl-2", 1, 0, 7)
	require.NoError(t, err)

	now = fixedNow.AddDate(0, 0, 40)

	report, err := svc.BNPLAgingReport(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Customers, 1)
	assert.Equal(t, "Bu Sari", report.Customers[0].CustomerName)
	// due 2026-03-17 is 33 days late, due 2026-04-09 is 10 days late
	assert.Equal(t, int64(50000), report.Totals.Days1To30Cents)
	assert.Equal(t, int64(26500), report.Totals.Days31To60Cents)
	assert.Equal(t, int64(76500), report.Totals.TotalCents)
	assert.Equal(t, 2, report.Totals.OverdueCount)
}

func TestCustomerManagementRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateCustomer(cashierContext(), domain.CustomerCreateRequest{Name: "Pak Budi"})
	assert.ErrorIs(t, err, ErrAdminRequired)

	customer := createCustomer(t, svc, 50000)
	limit := int64(-1)
	_, err = svc.UpdateCustomer(adminContext(), customer.ID, domain.CustomerUpdateRequest{CreditLimitCents: &limit})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	inactive := false
	updated, err := svc.UpdateCustomer(adminContext(), customer.ID, domain.CustomerUpdateRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	list, err := svc.ListCustomers(context.Background(), "sari", 0)
	require.NoError(t, err)
	assert.Len(t, list.Customers, 1)
}

func TestCustomerCreditSpansStores(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	customer := createCustomer(t, svc, 100000)
	require.NoError(t, svc.repo.SetStock(context.Background(), "branch-2", "SKU-TELUR-01", 10))

	_, err := svc.Checkout(cashierContext(), domain.CheckoutRequest{
		StoreID:        "branch-2",
		TerminalID:     "terminal-b1",
		IdempotencyKey: "bnpl-branch",
		CustomerID:     customer.ID,
		PaymentMethod:  "bnpl",
		CartItems:      []domain.CartItem{{SKU: "SKU-TELUR-01", Qty: 1}},
	})
	require.NoError(t, err)

	resp, err := svc.ApplyBNPLPayment(cashierContext(), domain.BNPLPaymentRequest{
		CustomerID:  customer.ID,
		AmountCents: 10000,
		Method:      "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, "main-store", resp.Payment.StoreID)
	assert.Equal(t, int64(16500), resp.OutstandingCents)

	txs, err := svc.ListBNPLTransactions(context.Background(), customer.ID, "open")
	require.NoError(t, err)
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, "branch-2", txs.Transactions[0].StoreID)

	payments, err := svc.ListBNPLPayments(context.Background(), customer.ID, 10)
	require.NoError(t, err)
	account, err := svc.CustomerAccount(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Len(t, payments.Payments, 1)
	assert.Equal(t, payments.Payments, account.RecentPayments)
	assert.Equal(t, int64(16500), account.OutstandingCents)

	mainAging, err := svc.BNPLAgingReport(adminContext(), "main-store")
	require.NoError(t, err)
	assert.Empty(t, mainAging.Customers)
	branchAging, err := svc.BNPLAgingReport(adminContext(), "branch-2")
	require.NoError(t, err)
	require.Len(t, branchAging.Customers, 1)
	assert.Equal(t, int64(16500), branchAging.Totals.TotalCents)
}
