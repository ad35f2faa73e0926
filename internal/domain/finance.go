package domain

import "time"

type Customer struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email,omitempty"`
	CreditLimitCents int64     `json:"credit_limit_cents"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type CustomerCreateRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	CreditLimitCents int64  `json:"credit_limit_cents"`
}

type CustomerUpdateRequest struct {
	Name             *string `json:"name,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	Email            *string `json:"email,omitempty"`
	CreditLimitCents *int64  `json:"credit_limit_cents,omitempty"`
	Active           *bool   `json:"active,omitempty"`
}

type CustomerListResponse struct {
	Customers []Customer `json:"customers"`
}

// BNPLTransaction is the credit side of a sale paid with buy-now-pay-later.
type BNPLTransaction struct {
	ID             string    `json:"id"`
	StoreID        string    `json:"store_id"`
	CustomerID     string    `json:"customer_id"`
	SaleID         string    `json:"sale_id"`
	PrincipalCents int64     `json:"principal_cents"`
	PaidCents      int64     `json:"paid_cents"`
	CreditedCents  int64     `json:"credited_cents"`
	BalanceCents   int64     `json:"balance_cents"`
	DueDate        time.Time `json:"due_date"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DaysOverdue counts whole days past the due date, zero when not yet due.
func (t BNPLTransaction) DaysOverdue(asOf time.Time) int {
	due := dayStart(t.DueDate)
	today := dayStart(asOf)
	if !today.After(due) {
		return 0
	}
	return int(today.Sub(due).Hours() / 24)
}

type BNPLAllocation struct {
	TransactionID     string `json:"transaction_id"`
	AppliedCents      int64  `json:"applied_cents"`
	BalanceAfterCents int64  `json:"balance_after_cents"`
}

type BNPLPayment struct {
	ID                 string           `json:"id"`
	StoreID            string           `json:"store_id"`
	CustomerID         string           `json:"customer_id"`
	ConfirmationNumber string           `json:"confirmation_number"`
	AmountCents        int64            `json:"amount_cents"`
	Method             string           `json:"method"`
	Reference          string           `json:"reference,omitempty"`
	Note               string           `json:"note,omitempty"`
	ReceivedBy         string           `json:"received_by"`
	CreatedAt          time.Time        `json:"created_at"`
	Allocations        []BNPLAllocation `json:"allocations"`
}

type BNPLPaymentRequest struct {
	StoreID        string   `json:"store_id"`
	CustomerID     string   `json:"customer_id"`
	AmountCents    int64    `json:"amount_cents"`
	Method         string   `json:"method"`
	Reference      string   `json:"reference"`
	Note           string   `json:"note"`
	TransactionIDs []string `json:"transaction_ids,omitempty"`
}

type BNPLPaymentPreview struct {
	CustomerID       string           `json:"customer_id"`
	AmountCents      int64            `json:"amount_cents"`
	OutstandingCents int64            `json:"outstanding_cents"`
	UnappliedCents   int64            `json:"unapplied_cents"`
	Allocations      []BNPLAllocation `json:"allocations"`
}

type BNPLPaymentResponse struct {
	Payment          BNPLPayment `json:"payment"`
	OutstandingCents int64       `json:"outstanding_cents"`
}

type BNPLTransactionListResponse struct {
	Transactions []BNPLTransaction `json:"transactions"`
}

type BNPLPaymentListResponse struct {
	Payments []BNPLPayment `json:"payments"`
}

type BNPLAging struct {
	CurrentCents    int64 `json:"current_cents"`
	Days1To30Cents  int64 `json:"days_1_30_cents"`
	Days31To60Cents int64 `json:"days_31_60_cents"`
	Days61To90Cents int64 `json:"days_61_90_cents"`
	Over90Cents     int64 `json:"over_90_cents"`
	TotalCents      int64 `json:"total_cents"`
	OverdueCount    int   `json:"overdue_count"`
}

// Add accumulates another aging into a.
func (a *BNPLAging) Add(other BNPLAging) {
	a.CurrentCents += other.CurrentCents
	a.Days1To30Cents += other.Days1To30Cents
	a.Days31To60Cents += other.Days31To60Cents
	a.Days61To90Cents += other.Days61To90Cents
	a.Over90Cents += other.Over90Cents
	a.TotalCents += other.TotalCents
	a.OverdueCount += other.OverdueCount
}

type CustomerAging struct {
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	Aging        BNPLAging `json:"aging"`
}

type BNPLAgingReport struct {
	StoreID   string          `json:"store_id"`
	AsOf      string          `json:"as_of"`
	Totals    BNPLAging       `json:"totals"`
	Customers []CustomerAging `json:"customers"`
}

type CustomerOpenTransaction struct {
	BNPLTransaction
	DaysOverdue int `json:"days_overdue"`
}

type CustomerAccount struct {
	Customer         Customer                  `json:"customer"`
	OutstandingCents int64                     `json:"outstanding_cents"`
	AvailableCents   int64                     `json:"available_credit_cents"`
	Aging            BNPLAging                 `json:"aging"`
	OpenTransactions []CustomerOpenTransaction `json:"open_transactions"`
	RecentPayments   []BNPLPayment             `json:"recent_payments"`
}

type Expense struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	AmountCents   int64     `json:"amount_cents"`
	PaymentMethod string    `json:"payment_method"`
	Reference     string    `json:"reference,omitempty"`
	IncurredOn    time.Time `json:"incurred_on"`
	RecordedBy    string    `json:"recorded_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type ExpenseCreateRequest struct {
	StoreID       string `json:"store_id"`
	Category      string `json:"category"`
	Description   string `json:"description"`
	AmountCents   int64  `json:"amount_cents"`
	PaymentMethod string `json:"payment_method"`
	Reference     string `json:"reference"`
	IncurredOn    string `json:"incurred_on"`
}

type ExpenseListResponse struct {
	Expenses   []Expense `json:"expenses"`
	TotalCents int64     `json:"total_cents"`
}

type CashLedgerEntry struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Direction   string    `json:"direction"`
	AmountCents int64     `json:"amount_cents"`
	Source      string    `json:"source"`
	SourceID    string    `json:"source_id,omitempty"`
	Note        string    `json:"note,omitempty"`
	RecordedBy  string    `json:"recorded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Signed returns the amount with outflows negated.
func (e CashLedgerEntry) Signed() int64 {
	if e.Direction == CashOut {
		return -e.AmountCents
	}
	return e.AmountCents
}

type CashEntryRequest struct {
	StoreID     string `json:"store_id"`
	Direction   string `json:"direction"`
	AmountCents int64  `json:"amount_cents"`
	Source      string `json:"source"`
	Note        string `json:"note"`
}

type CashLedgerListResponse struct {
	Entries []CashLedgerEntry `json:"entries"`
}

type CashBalance struct {
	StoreID      string `json:"store_id"`
	AsOf         string `json:"as_of"`
	InCents      int64  `json:"in_cents"`
	OutCents     int64  `json:"out_cents"`
	BalanceCents int64  `json:"balance_cents"`
}

type SummaryPayment struct {
	PaymentMethod string `json:"payment_method"`
	Transactions  int64  `json:"transactions"`
	TotalCents    int64  `json:"total_cents"`
}

type SummaryTerminal struct {
	TerminalID   string `json:"terminal_id"`
	Transactions int64  `json:"transactions"`
	TotalCents   int64  `json:"total_cents"`
}

type SummaryDay struct {
	Date         string `json:"date"`
	Transactions int64  `json:"transactions"`
	TotalCents   int64  `json:"total_cents"`
}

type SummaryExpenseCategory struct {
	Category   string `json:"category"`
	Count      int64  `json:"count"`
	TotalCents int64  `json:"total_cents"`
}

// SalesSummary is the aggregate over paid and refunded sales in [From, To).
// Voided sales are excluded everywhere.
type SalesSummary struct {
	StoreID              string                   `json:"store_id"`
	From                 string                   `json:"from"`
	To                   string                   `json:"to"`
	Transactions         int64                    `json:"transactions"`
	GrossSalesCents      int64                    `json:"gross_sales_cents"`
	DiscountCents        int64                    `json:"discount_cents"`
	TaxCents             int64                    `json:"tax_cents"`
	RefundCents          int64                    `json:"refund_cents"`
	NetSalesCents        int64                    `json:"net_sales_cents"`
	EstimatedMarginCents int64                    `json:"estimated_margin_cents"`
	BNPLIssuedCents      int64                    `json:"bnpl_issued_cents"`
	BNPLCollectedCents   int64                    `json:"bnpl_collected_cents"`
	ExpenseCents         int64                    `json:"expense_cents"`
	CashInCents          int64                    `json:"cash_in_cents"`
	CashOutCents         int64                    `json:"cash_out_cents"`
	NetCashCents         int64                    `json:"net_cash_cents"`
	ByPayment            []SummaryPayment         `json:"by_payment"`
	ByTerminal           []SummaryTerminal        `json:"by_terminal"`
	ByDay                []SummaryDay             `json:"by_day"`
	ExpensesByCategory   []SummaryExpenseCategory `json:"expenses_by_category"`
	GeneratedAt          string                   `json:"generated_at"`
}

type Dashboard struct {
	StoreID       string          `json:"store_id"`
	Today         SalesSummary    `json:"today"`
	Cash          CashBalance     `json:"cash"`
	Aging         BNPLAgingReport `json:"bnpl_aging"`
	LowStockCount int             `json:"low_stock_count"`
	GeneratedAt   string          `json:"generated_at"`
}

type ServerTime struct {
	AppTime      time.Time `json:"app_time"`
	DatabaseTime time.Time `json:"database_time"`
	SkewMillis   int64     `json:"skew_ms"`
	Timezone     string    `json:"timezone"`
}

const (
	BNPLStatusOpen      = "open"
	BNPLStatusPaid      = "paid"
	BNPLStatusCancelled = "cancelled"
)

const (
	CashIn  = "in"
	CashOut = "out"
)

const (
	CashSourceSale            = "sale"
	CashSourceRefund          = "refund"
	CashSourceVoid            = "void"
	CashSourceExpense         = "expense"
	CashSourceBNPLPayment     = "bnpl_payment"
	CashSourceOpeningFloat    = "opening_float"
	CashSourceAdjustment      = "adjustment"
	CashSourceBankDeposit     = "bank_deposit"
	CashSourceOwnerWithdrawal = "owner_withdrawal"
)

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
