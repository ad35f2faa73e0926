package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
)

type fixture struct {
	s       *Store
	storeID string
	sku     string
}

// newFixture connects to BACKOFFICE_TEST_DATABASE_URL, applies the schema and
// seeds one product with 10 units in a store unique to the test.
func newFixture(t *testing.T) fixture {
	t.Helper()
	databaseURL := os.Getenv("BACKOFFICE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BACKOFFICE_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	stamp := time.Now().UnixNano()
	f := fixture{
		s:       s,
		storeID: fmt.Sprintf("it-store-%d", stamp),
		sku:     fmt.Sprintf("SKU-IT-%d", stamp),
	}
	_, err = s.CreateProduct(ctx, domain.Product{SKU: f.sku, Name: "Produk IT", Category: "snack", PriceCents: 12000, MarginRate: 0.2})
	require.NoError(t, err)
	require.NoError(t, s.SetStock(ctx, f.storeID, f.sku, 10))

	t.Cleanup(func() {
		for _, q := range []string{
			`DELETE FROM cash_ledger WHERE store_id = $1`,
			`DELETE FROM bnpl_payment_allocations WHERE payment_id IN (SELECT id FROM bnpl_payments WHERE store_id = $1)`,
			`DELETE FROM bnpl_payments WHERE store_id = $1`,
			`DELETE FROM bnpl_transactions WHERE store_id = $1`,
			`DELETE FROM refunds WHERE store_id = $1`,
			`DELETE FROM sale_items WHERE sale_id IN (SELECT id FROM sales WHERE store_id = $1)`,
			`DELETE FROM sales WHERE store_id = $1`,
			`DELETE FROM inventory_stocks WHERE store_id = $1`,
		} {
			_, _ = s.db.ExecContext(ctx, q, f.storeID)
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE sku = $1`, f.sku)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE phone = $1`, f.storeID)
	})
	return f
}

func (f fixture) sale(key string, method string, qty int) domain.Sale {
	return domain.Sale{
		StoreID:           f.storeID,
		TerminalID:        "T-IT",
		IdempotencyKey:    key,
		PaymentMethod:     method,
		CashReceivedCents: int64(qty) * 12000,
		TaxRatePercent:    decimal.Zero,
		CashierUsername:   "cashier",
		Items:             []domain.SaleLine{{SKU: f.sku, Qty: qty}},
	}
}

func (f fixture) stock(t *testing.T) int {
	t.Helper()
	stock, err := f.s.GetStockMap(context.Background(), f.storeID, []string{f.sku})
	require.NoError(t, err)
	return stock[f.sku]
}

func TestMigrateIsRepeatable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Migrate(context.Background()))
}

func TestCreateSaleIsIdempotentAndDeductsStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := "idem-" + f.storeID

	first, err := f.s.CreateSale(ctx, f.sale(key, domain.PaymentCash, 2))
	require.NoError(t, err)
	second, err := f.s.CreateSale(ctx, f.sale(key, domain.PaymentCash, 2))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(24000), second.TotalCents)
	assert.Equal(t, 8, f.stock(t))

	_, err = f.s.CreateSale(ctx, f.sale(key+"-big", domain.PaymentCash, 9))
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestVoidSaleRestocksAndReversesCash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sale, err := f.s.CreateSale(ctx, f.sale("void-"+f.storeID, domain.PaymentCash, 2))
	require.NoError(t, err)
	require.Equal(t, 8, f.stock(t))

	voided, err := f.s.VoidSale(ctx, sale.ID, "integration test void", "admin", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusVoided, voided.Status)
	assert.Equal(t, 10, f.stock(t))

	in, out, err := f.s.GetCashTotals(ctx, f.storeID, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(24000), in)
	assert.Equal(t, int64(24000), out)

	_, err = f.s.VoidSale(ctx, sale.ID, "again", "admin", time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestApplyBNPLPaymentWritesNothingOnStaleAllocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	customer, err := f.s.CreateCustomer(ctx, domain.Customer{Name: "Bu IT", Phone: f.storeID, CreditLimitCents: 100000, Active: true})
	require.NoError(t, err)

	due := time.Now().UTC().AddDate(0, 0, 30)
	bnpl := f.sale("bnpl-"+f.storeID, domain.PaymentBNPL, 2)
	bnpl.CustomerID = customer.ID
	bnpl.CashReceivedCents = 4000
	bnpl.DownPaymentCents = 4000
	bnpl.BNPLDueDate = &due
	sale, err := f.s.CreateSale(ctx, bnpl)
	require.NoError(t, err)

	credit, err := f.s.FindBNPLTransactionBySale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, int64(20000), credit.BalanceCents)

	_, err = f.s.ApplyBNPLPayment(ctx, domain.BNPLPayment{
		StoreID:            f.storeID,
		CustomerID:         customer.ID,
		ConfirmationNumber: "BNPL-IT-STALE-" + f.storeID,
		AmountCents:        5000,
		Method:             domain.PaymentCash,
		ReceivedBy:         "cashier",
		Allocations:        []domain.BNPLAllocation{{TransactionID: credit.ID, AppliedCents: 5000, BalanceAfterCents: 10000}},
	})
	require.ErrorIs(t, err, store.ErrConflict)

	payments, err := f.s.ListBNPLPayments(ctx, f.storeID, customer.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, payments)
	unchanged, err := f.s.FindBNPLTransactionBySale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), unchanged.BalanceCents)

	paid, err := f.s.ApplyBNPLPayment(ctx, domain.BNPLPayment{
		StoreID:            f.storeID,
		CustomerID:         customer.ID,
		ConfirmationNumber: "BNPL-IT-OK-" + f.storeID,
		AmountCents:        20000,
		Method:             domain.PaymentCash,
		ReceivedBy:         "cashier",
		Allocations:        []domain.BNPLAllocation{{TransactionID: credit.ID, AppliedCents: 20000, BalanceAfterCents: 0}},
	})
	require.NoError(t, err)
	assert.Len(t, paid.Allocations, 1)

	settled, err := f.s.FindBNPLTransactionBySale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BNPLStatusPaid, settled.Status)
	assert.Equal(t, int64(20000), settled.PaidCents)
}
