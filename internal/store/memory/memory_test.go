package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func seedCustomer(t *testing.T, s *Store, limit int64) domain.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), domain.Customer{
		Name:             "Budi",
		Phone:            "0812",
		CreditLimitCents: limit,
		Active:           true,
		CreatedAt:        t0,
	})
	require.NoError(t, err)
	return *c
}

func bnplSale(customerID string, key string, qty int, down int64, at time.Time) domain.Sale {
	due := at.AddDate(0, 0, 30)
	return domain.Sale{
		StoreID:          "main-store",
		TerminalID:       "T1",
		CustomerID:       customerID,
		IdempotencyKey:   key,
		PaymentMethod:    domain.PaymentBNPL,
		DownPaymentCents: down,
		TaxRatePercent:   decimal.Zero,
		BNPLDueDate:      &due,
		CashierUsername:  "cashier",
		CreatedAt:        at,
		Items:            []domain.SaleLine{{SKU: "SKU-TELUR-01", Qty: qty}},
	}
}

func TestCreateSaleOpensBNPLAndRecordsDownPayment(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	c := seedCustomer(t, s, 100000)

	sale, err := s.CreateSale(ctx, bnplSale(c.ID, "k1", 2, 3000, t0))
	require.NoError(t, err)
	assert.Equal(t, int64(53000), sale.TotalCents)

	credit, err := s.FindBNPLTransactionBySale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), credit.BalanceCents)
	assert.Equal(t, domain.BNPLStatusOpen, credit.Status)

	in, out, err := s.GetCashTotals(ctx, "main-store", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), in)
	assert.Zero(t, out)

	stock, _ := s.GetStockMap(ctx, "main-store", []string{"SKU-TELUR-01"})
	assert.Equal(t, 118, stock["SKU-TELUR-01"])
}

func TestCreateSaleRejectsOverCreditLimitWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	c := seedCustomer(t, s, 60000)

	_, err := s.CreateSale(ctx, bnplSale(c.ID, "k1", 2, 0, t0))
	require.NoError(t, err)

	_, err = s.CreateSale(ctx, bnplSale(c.ID, "k2", 1, 0, t0.Add(time.Minute)))
	require.ErrorIs(t, err, store.ErrCreditLimitExceeded)

	stock, _ := s.GetStockMap(ctx, "main-store", []string{"SKU-TELUR-01"})
	assert.Equal(t, 118, stock["SKU-TELUR-01"])
	txs, _ := s.ListBNPLTransactions(ctx, store.BNPLFilter{CustomerID: c.ID})
	assert.Len(t, txs, 1)
}

func TestApplyBNPLPaymentConflictWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	c := seedCustomer(t, s, 200000)

	first, err := s.CreateSale(ctx, bnplSale(c.ID, "k1", 1, 0, t0))
	require.NoError(t, err)
	second, err := s.CreateSale(ctx, bnplSale(c.ID, "k2", 1, 0, t0.Add(time.Hour)))
	require.NoError(t, err)
	a, _ := s.FindBNPLTransactionBySale(ctx, first.ID)
	b, _ := s.FindBNPLTransactionBySale(ctx, second.ID)

	stale := domain.BNPLPayment{
		StoreID:     "main-store",
		CustomerID:  c.ID,
		AmountCents: 30000,
		Method:      domain.PaymentCash,
		Allocations: []domain.BNPLAllocation{
			{TransactionID: a.ID, AppliedCents: 26500, BalanceAfterCents: 0},
			{TransactionID: b.ID, AppliedCents: 3500, BalanceAfterCents: 20000},
		},
	}
	_, err = s.ApplyBNPLPayment(ctx, stale)
	require.ErrorIs(t, err, store.ErrConflict)

	a2, _ := s.FindBNPLTransactionBySale(ctx, first.ID)
	assert.Equal(t, int64(26500), a2.BalanceCents, "first allocation must not be applied")
	payments, _ := s.ListBNPLPayments(ctx, "", c.ID, 10)
	assert.Empty(t, payments)

	stale.Allocations[1].BalanceAfterCents = 23000
	saved, err := s.ApplyBNPLPayment(ctx, stale)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	a3, _ := s.FindBNPLTransactionBySale(ctx, first.ID)
	assert.Equal(t, domain.BNPLStatusPaid, a3.Status)
	in, _, _ := s.GetCashTotals(ctx, "main-store", time.Now().Add(time.Hour))
	assert.Equal(t, int64(30000), in)
}

func TestApplyBNPLPaymentRejectsRepeatedTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	c := seedCustomer(t, s, 200000)

	sale, err := s.CreateSale(ctx, bnplSale(c.ID, "k1", 1, 0, t0))
	require.NoError(t, err)
	credit, _ := s.FindBNPLTransactionBySale(ctx, sale.ID)

	_, err = s.ApplyBNPLPayment(ctx, domain.BNPLPayment{
		StoreID:     "main-store",
		CustomerID:  c.ID,
		AmountCents: 2000,
		Method:      domain.PaymentCash,
		Allocations: []domain.BNPLAllocation{
			{TransactionID: credit.ID, AppliedCents: 1000, BalanceAfterCents: 25500},
			{TransactionID: credit.ID, AppliedCents: 1000, BalanceAfterCents: 25500},
		},
	})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	after, _ := s.FindBNPLTransactionBySale(ctx, sale.ID)
	assert.Equal(t, int64(26500), after.BalanceCents)
	assert.Zero(t, after.PaidCents)
	in, _, _ := s.GetCashTotals(ctx, "main-store", t0.Add(time.Hour))
	assert.Zero(t, in)
}

func TestVoidSaleRejectedAfterBNPLPayment(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	c := seedCustomer(t, s, 200000)

	sale, err := s.CreateSale(ctx, bnplSale(c.ID, "k1", 1, 0, t0))
	require.NoError(t, err)
	credit, _ := s.FindBNPLTransactionBySale(ctx, sale.ID)
	_, err = s.ApplyBNPLPayment(ctx, domain.BNPLPayment{
		StoreID:     "main-store",
		CustomerID:  c.ID,
		AmountCents: 1000,
		Method:      domain.PaymentCard,
		Allocations: []domain.BNPLAllocation{{TransactionID: credit.ID, AppliedCents: 1000, BalanceAfterCents: 25500}},
	})
	require.NoError(t, err)

	_, err = s.VoidSale(ctx, sale.ID, "mistake", "admin", t0.Add(time.Hour))
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestRefundCreditsBNPLBeforeCash(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	c := seedCustomer(t, s, 200000)

	sale, err := s.CreateSale(ctx, bnplSale(c.ID, "k1", 1, 6500, t0))
	require.NoError(t, err)

	refund, err := s.CreateRefund(ctx, domain.Refund{SaleID: sale.ID, AmountCents: 26500, CreatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), refund.CreditCents)
	assert.Equal(t, int64(6500), refund.CashCents)
	assert.Equal(t, "mixed", refund.Method)

	got, _ := s.FindSaleByID(ctx, sale.ID)
	assert.Equal(t, domain.SaleStatusRefunded, got.Status)
	credit, _ := s.FindBNPLTransactionBySale(ctx, sale.ID)
	assert.Zero(t, credit.BalanceCents)

	in, out, _ := s.GetCashTotals(ctx, "main-store", t0.Add(2*time.Hour))
	assert.Equal(t, int64(6500), in)
	assert.Equal(t, int64(6500), out)
}

func TestRefundOfSplitSaleLeavesDrawerBalanced(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreID:         "main-store",
		TerminalID:      "T1",
		IdempotencyKey:  "split-1",
		PaymentMethod:   domain.PaymentSplit,
		TaxRatePercent:  decimal.Zero,
		CashierUsername: "cashier",
		CreatedAt:       t0,
		PaymentSplits: []domain.PaymentSplit{
			{Method: domain.PaymentCash, AmountCents: 500},
			{Method: "qris", AmountCents: 3000, Reference: "QR-1"},
		},
		Items: []domain.SaleLine{{SKU: "SKU-MIE-01", Qty: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3500), sale.TotalCents)

	_, err = s.CreateRefund(ctx, domain.Refund{SaleID: sale.ID, AmountCents: 1000, CreatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.CreateRefund(ctx, domain.Refund{SaleID: sale.ID, AmountCents: 2500, CreatedAt: t0.Add(2 * time.Hour)})
	require.NoError(t, err)

	got, _ := s.FindSaleByID(ctx, sale.ID)
	assert.Equal(t, domain.SaleStatusRefunded, got.Status)

	in, out, err := s.GetCashTotals(ctx, "main-store", t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(500), in)
	assert.Equal(t, int64(500), out, "drawer pays back only the cash it took")
}

func TestRefundOfCardSettledBNPLSkipsDrawer(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	c := seedCustomer(t, s, 200000)

	sale, err := s.CreateSale(ctx, bnplSale(c.ID, "k1", 1, 0, t0))
	require.NoError(t, err)
	credit, _ := s.FindBNPLTransactionBySale(ctx, sale.ID)
	_, err = s.ApplyBNPLPayment(ctx, domain.BNPLPayment{
		StoreID:     "main-store",
		CustomerID:  c.ID,
		AmountCents: 26500,
		Method:      domain.PaymentCard,
		Reference:   "EDC-77",
		Allocations: []domain.BNPLAllocation{{TransactionID: credit.ID, AppliedCents: 26500, BalanceAfterCents: 0}},
	})
	require.NoError(t, err)

	refund, err := s.CreateRefund(ctx, domain.Refund{SaleID: sale.ID, AmountCents: 26500, CreatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(26500), refund.CashCents)

	in, out, _ := s.GetCashTotals(ctx, "main-store", t0.Add(2*time.Hour))
	assert.Zero(t, in)
	assert.Zero(t, out)
}

func TestCreateItemReturnRechecksQuantities(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreID:           "main-store",
		IdempotencyKey:    "k1",
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 100000,
		CreatedAt:         t0,
		Items:             []domain.SaleLine{{SKU: "SKU-MIE-01", Qty: 2}},
	})
	require.NoError(t, err)

	ret := domain.ItemReturn{SaleID: sale.ID, ReturnItems: []domain.ItemReturnLine{{SKU: "SKU-MIE-01", Qty: 2, UnitPriceCents: 3500}}}
	_, refund, err := s.CreateItemReturn(ctx, ret, domain.Refund{AmountCents: 7000})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCash, refund.Method)

	_, _, err = s.CreateItemReturn(ctx, ret, domain.Refund{AmountCents: 7000})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	returned, _ := s.GetReturnedQtyBySale(ctx, sale.ID)
	assert.Equal(t, 2, returned["SKU-MIE-01"])
	stock, _ := s.GetStockMap(ctx, "main-store", []string{"SKU-MIE-01"})
	assert.Equal(t, 120, stock["SKU-MIE-01"])
}

func TestReceiptReprintNumbersIncrease(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreID:          "main-store",
		IdempotencyKey:   "k1",
		PaymentMethod:    domain.PaymentCard,
		PaymentReference: "EDC-1",
		Items:            []domain.SaleLine{{SKU: "SKU-KOPI-01", Qty: 1}},
	})
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		rp, err := s.CreateReceiptReprint(ctx, domain.ReceiptReprint{SaleID: sale.ID, Reason: "lost"})
		require.NoError(t, err)
		assert.Equal(t, want, rp.ReprintNumber)
	}
	_, err = s.CreateReceiptReprint(ctx, domain.ReceiptReprint{SaleID: "sale-missing"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSalesSummaryExcludesVoidedSales(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	for i, key := range []string{"a", "b"} {
		_, err := s.CreateSale(ctx, domain.Sale{
			StoreID:           "main-store",
			TerminalID:        "T1",
			IdempotencyKey:    key,
			PaymentMethod:     domain.PaymentCash,
			CashReceivedCents: 10000,
			CreatedAt:         t0.Add(time.Duration(i) * time.Minute),
			Items:             []domain.SaleLine{{SKU: "SKU-MIE-01", Qty: 1}},
		})
		require.NoError(t, err)
	}
	voided, _ := s.FindSaleByIdempotency(ctx, "b")
	_, err := s.VoidSale(ctx, voided.ID, "test", "admin", t0.Add(time.Hour))
	require.NoError(t, err)

	summary, err := s.GetSalesSummary(ctx, "main-store", t0.Add(-time.Hour), t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Transactions)
	assert.Equal(t, int64(3500), summary.NetSalesCents)
	assert.Equal(t, int64(7000), summary.CashInCents)
	assert.Equal(t, int64(3500), summary.CashOutCents)
	require.Len(t, summary.ByDay, 1)
	assert.Equal(t, "2026-04-01", summary.ByDay[0].Date)
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	sup, err := s.CreateSupplier(ctx, domain.Supplier{Name: "PT Sumber"})
	require.NoError(t, err)

	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		StoreID:    "main-store",
		SupplierID: sup.ID,
		Items:      []domain.PurchaseOrderItem{{SKU: "SKU-GULA-01", Qty: 10, CostCents: 15000}},
	})
	require.NoError(t, err)

	_, err = s.CancelPurchaseOrder(ctx, po.ID, t0)
	require.NoError(t, err)
	_, err = s.ReceivePurchaseOrder(ctx, po.ID, "admin", t0)
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		StoreID:    "main-store",
		SupplierID: "sup-missing",
		Items:      []domain.PurchaseOrderItem{{SKU: "SKU-GULA-01", Qty: 1, CostCents: 1}},
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}
