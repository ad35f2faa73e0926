package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
)

func TestSalesSummaryServedFromCacheUntilRefresh(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	ctx := context.Background()

	cashCheckout(t, svc, cashierContext(), "sum-1", "SKU-MIE-01", 2)

	first, err := svc.SalesSummary(ctx, "", "2026-03-10", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Transactions)
	assert.Equal(t, int64(7000), first.NetSalesCents)
	assert.Equal(t, "2026-03-10", first.From)
	assert.Equal(t, "2026-03-10", first.To)

	cashCheckout(t, svc, cashierContext(), "sum-2", "SKU-KOPI-01", 1)

	cached, err := svc.DailyReport(ctx, "", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.Transactions)

	refreshed, err := svc.RefreshTodaySummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refreshed.Transactions)
	assert.Equal(t, int64(9600), refreshed.NetSalesCents)

	after, err := svc.DailyReport(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.Transactions)
}

func TestSalesSummaryRejectsBadRange(t *testing.T) {
	svc := newTestService()

	_, err := svc.SalesSummary(context.Background(), "", "2026-03-10", "2026-03-01")
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.SalesSummary(context.Background(), "", "10/03/2026", "")
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestCashLedgerCombinesSalesExpensesAndManualEntries(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	ctx := context.Background()

	_, err := svc.RecordCashEntry(adminContext(), domain.CashEntryRequest{
		Direction:   "in",
		AmountCents: 100000,
		Source:      "opening_float",
		Note:        "modal awal",
	})
	require.NoError(t, err)

	cashCheckout(t, svc, cashierContext(), "ledger-sale", "SKU-MIE-01", 1)

	expense, err := svc.CreateExpense(adminContext(), domain.ExpenseCreateRequest{
		Category:    " Listrik ",
		Description: "token listrik",
		AmountCents: 2000,
		IncurredOn:  "2026-03-09",
	})
	require.NoError(t, err)
	assert.Equal(t, "listrik", expense.Category)
	assert.Equal(t, "cash", expense.PaymentMethod)

	_, err = svc.CreateExpense(adminContext(), domain.ExpenseCreateRequest{
		Category:      "sewa",
		AmountCents:   500000,
		PaymentMethod: "transfer",
		Reference:     "TRF-01",
		IncurredOn:    "2026-03-10",
	})
	require.NoError(t, err)

	balance, err := svc.CashBalance(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(103500), balance.InCents)
	assert.Equal(t, int64(2000), balance.OutCents)
	assert.Equal(t, int64(101500), balance.BalanceCents)

	before, err := svc.CashBalance(ctx, "", "2026-03-09T00:00:00Z")
	require.NoError(t, err)
	assert.Zero(t, before.BalanceCents)

	expenses, err := svc.ListExpenses(ctx, "", "2026-03-01", "2026-03-31", "")
	require.NoError(t, err)
	assert.Len(t, expenses.Expenses, 2)
	assert.Equal(t, int64(502000), expenses.TotalCents)

	entries, err := svc.ListCashEntries(ctx, "", "2026-03-10", "", 0)
	require.NoError(t, err)
	assert.Len(t, entries.Entries, 3)
}

func TestCashLedgerValidation(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)

	_, err := svc.RecordCashEntry(adminContext(), domain.CashEntryRequest{
		Direction:   "in",
		AmountCents: 1000,
		Source:      "sale",
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.RecordCashEntry(adminContext(), domain.CashEntryRequest{
		Direction:   "sideways",
		AmountCents: 1000,
		Source:      "adjustment",
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.RecordCashEntry(cashierContext(), domain.CashEntryRequest{
		Direction:   "out",
		AmountCents: 1000,
		Source:      "bank_deposit",
	})
	assert.ErrorIs(t, err, ErrAdminRequired)

	_, err = svc.CreateExpense(adminContext(), domain.ExpenseCreateRequest{
		Category:    "listrik",
		AmountCents: 1000,
		IncurredOn:  "2026-03-11",
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction, "future expense")

	_, err = svc.CreateExpense(adminContext(), domain.ExpenseCreateRequest{
		Category:      "listrik",
		AmountCents:   1000,
		PaymentMethod: "bnpl",
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestReprintReceiptIssuesAuthorizationCode(t *testing.T) {
	svc := newTestService()
	sale := cashCheckout(t, svc, cashierContext(), "reprint-1", "SKU-MIE-01", 1)

	_, err := svc.ReprintReceipt(cashierContext(), sale.SaleID, domain.ReceiptReprintRequest{Reason: "  "})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	first, err := svc.ReprintReceipt(cashierContext(), sale.SaleID, domain.ReceiptReprintRequest{Reason: "kertas macet"})
	require.NoError(t, err)
	second, err := svc.ReprintReceipt(cashierContext(), sale.SaleID, domain.ReceiptReprintRequest{Reason: "pelanggan minta"})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Reprint.ReprintNumber)
	assert.Equal(t, 2, second.Reprint.ReprintNumber)
	assert.True(t, strings.HasPrefix(second.Reprint.AuthorizationCode, "RP-"))
	assert.Len(t, second.Reprint.AuthorizationCode, 11)
	assert.NotEqual(t, first.Reprint.AuthorizationCode, second.Reprint.AuthorizationCode)
	assert.Equal(t, "cashier", second.Reprint.RequestedBy)
	assert.Contains(t, second.Receipt.Lines, "REPRINT #2")
	assert.Contains(t, second.Receipt.Lines, "Auth: "+second.Reprint.AuthorizationCode)
	assert.Equal(t, "Toko Uji", second.Receipt.Lines[0])

	reprints, err := svc.ListReprints(context.Background(), sale.SaleID)
	require.NoError(t, err)
	assert.Len(t, reprints, 2)

	plain, err := svc.Receipt(context.Background(), sale.SaleID)
	require.NoError(t, err)
	assert.NotContains(t, plain.PreviewText, "REPRINT")
	assert.Equal(t, "receipt-"+sale.SaleID+".bin", plain.FileName)

	_, err = svc.ReprintReceipt(cashierContext(), "sale-missing", domain.ReceiptReprintRequest{Reason: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBNPLReceiptShowsInstallment(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)
	customer := createCustomer(t, svc, 100000)
	sale, err := bnplCheckout(t, svc, customer.ID, "receipt-bnpl", 1, 6500, 0)
	require.NoError(t, err)

	receipt, err := svc.Receipt(context.Background(), sale.SaleID)
	require.NoError(t, err)
	assert.Contains(t, receipt.Lines, "Cicilan  : 20000")
	assert.Contains(t, receipt.Lines, "Jatuh tempo: 2026-04-09")
}

func TestDashboardCombinesReports(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)

	cashCheckout(t, svc, cashierContext(), "dash-1", "SKU-MIE-01", 1)
	_, err := svc.StockCount(adminContext(), domain.StockCountRequest{
		Items: []domain.StockCountItem{{SKU: "SKU-KOPI-01", CountedQty: 3}},
	})
	require.NoError(t, err)

	dashboard, err := svc.Dashboard(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "main-store", dashboard.StoreID)
	assert.Equal(t, int64(1), dashboard.Today.Transactions)
	assert.Equal(t, int64(3500), dashboard.Cash.BalanceCents)
	assert.Equal(t, 1, dashboard.LowStockCount)
	assert.Zero(t, dashboard.Aging.Totals.TotalCents)
}

func TestServerTimeReportsSkew(t *testing.T) {
	now := fixedNow
	svc := newClockedService(&now)

	result, err := svc.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixedNow, result.AppTime)
	assert.Equal(t, "UTC", result.Timezone)
	assert.Equal(t, fixedNow.Sub(result.DatabaseTime).Milliseconds(), result.SkewMillis)
}
