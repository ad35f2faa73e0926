package store

import (
	"context"
	"errors"
	"time"

	"posbackoffice/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	// ErrConflict means the rows changed between read and write; the
	// caller may re-read and retry.
	ErrConflict = errors.New("conflict")
)

type SaleFilter struct {
	StoreID    string
	CustomerID string
	From       time.Time
	To         time.Time
	Limit      int
}

type BNPLFilter struct {
	StoreID    string
	CustomerID string
	Status     string
}

type Repository interface {
	Now(ctx context.Context) (time.Time, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	GetStockMap(ctx context.Context, storeID string, skus []string) (map[string]int, error)
	SetStock(ctx context.Context, storeID string, sku string, qty int) error
	IncreaseStock(ctx context.Context, storeID string, adjustments []domain.StockAdjustment) error
	GetProductCosts(ctx context.Context, storeID string, skus []string) (map[string]int64, error)
	UpsertProductCost(ctx context.Context, storeID string, sku string, costCents int64) error

	// CreateSale prices the lines from the catalog, deducts stock, and for
	// BNPL sales opens the credit line after checking the customer's limit.
	// The cash portion is written to the cash ledger in the same unit of work.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)
	VoidSale(ctx context.Context, id string, reason string, voidedBy string, at time.Time) (*domain.Sale, error)
	CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error)
	ListRefunds(ctx context.Context, saleID string) ([]domain.Refund, error)
	GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error)
	CreateItemReturn(ctx context.Context, itemReturn domain.ItemReturn, refund domain.Refund) (*domain.ItemReturn, *domain.Refund, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)

	FindBNPLTransactionBySale(ctx context.Context, saleID string) (*domain.BNPLTransaction, error)
	ListBNPLTransactions(ctx context.Context, filter BNPLFilter) ([]domain.BNPLTransaction, error)
	// ApplyBNPLPayment writes the payment, every allocation and the cash
	// ledger entry together. Each allocation is re-checked against the
	// locked balance; any mismatch fails the whole payment with ErrConflict.
	ApplyBNPLPayment(ctx context.Context, payment domain.BNPLPayment) (*domain.BNPLPayment, error)
	ListBNPLPayments(ctx context.Context, storeID string, customerID string, limit int) ([]domain.BNPLPayment, error)

	CreateReceiptReprint(ctx context.Context, reprint domain.ReceiptReprint) (*domain.ReceiptReprint, error)
	ListReceiptReprints(ctx context.Context, saleID string) ([]domain.ReceiptReprint, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, storeID string, from time.Time, to time.Time, category string) ([]domain.Expense, error)

	CreateCashEntry(ctx context.Context, entry domain.CashLedgerEntry) (*domain.CashLedgerEntry, error)
	ListCashEntries(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.CashLedgerEntry, error)
	GetCashTotals(ctx context.Context, storeID string, asOf time.Time) (inCents int64, outCents int64, err error)

	GetSalesSummary(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.SalesSummary, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error)
	CancelPurchaseOrder(ctx context.Context, purchaseOrderID string, cancelledAt time.Time) (*domain.PurchaseOrder, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
