package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	SKU        string  `json:"sku"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	PriceCents int64   `json:"price_cents"`
	MarginRate float64 `json:"margin_rate"`
	Active     bool    `json:"active"`
}

type ProductCreateRequest struct {
	StoreID      string  `json:"store_id"`
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	PriceCents   int64   `json:"price_cents"`
	MarginRate   float64 `json:"margin_rate"`
	InitialStock int     `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name       *string  `json:"name,omitempty"`
	Category   *string  `json:"category,omitempty"`
	PriceCents *int64   `json:"price_cents,omitempty"`
	MarginRate *float64 `json:"margin_rate,omitempty"`
	Active     *bool    `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

type StockLevel struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Qty          int    `json:"qty"`
	ReorderPoint int    `json:"reorder_point"`
	Low          bool   `json:"low"`
}

type StockLevelResponse struct {
	StoreID string       `json:"store_id"`
	Items   []StockLevel `json:"items"`
}

type StockAdjustment struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type StockCountItem struct {
	SKU        string `json:"sku"`
	CountedQty int    `json:"counted_qty"`
}

type StockCountRequest struct {
	StoreID string           `json:"store_id"`
	Notes   string           `json:"notes"`
	Items   []StockCountItem `json:"items"`
}

type StockCountAdjustment struct {
	SKU        string `json:"sku"`
	SystemQty  int    `json:"system_qty"`
	CountedQty int    `json:"counted_qty"`
	DeltaQty   int    `json:"delta_qty"`
}

type StockCountResponse struct {
	CountID     string                 `json:"count_id"`
	StoreID     string                 `json:"store_id"`
	Notes       string                 `json:"notes"`
	Adjustments []StockCountAdjustment `json:"adjustments"`
	CreatedAt   string                 `json:"created_at"`
}

type ReorderSuggestion struct {
	SKU                    string `json:"sku"`
	Name                   string `json:"name"`
	Category               string `json:"category"`
	CurrentStock           int    `json:"current_stock"`
	ReorderPoint           int    `json:"reorder_point"`
	RecommendedQty         int    `json:"recommended_qty"`
	LastCostCents          int64  `json:"last_cost_cents"`
	EstimatedPurchaseCents int64  `json:"estimated_purchase_cents"`
}

type ReorderSuggestionResponse struct {
	StoreID     string              `json:"store_id"`
	GeneratedAt string              `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type PurchaseOrderItem struct {
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	CostCents int64  `json:"cost_cents"`
}

type PurchaseOrder struct {
	ID          string              `json:"id"`
	StoreID     string              `json:"store_id"`
	SupplierID  string              `json:"supplier_id"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	ReceivedAt  *time.Time          `json:"received_at,omitempty"`
	ReceivedBy  string              `json:"received_by,omitempty"`
	CancelledAt *time.Time          `json:"cancelled_at,omitempty"`
	Items       []PurchaseOrderItem `json:"items"`
}

// TotalCostCents sums qty x cost over the order lines.
func (po PurchaseOrder) TotalCostCents() int64 {
	total := int64(0)
	for _, item := range po.Items {
		total += int64(item.Qty) * item.CostCents
	}
	return total
}

type PurchaseOrderCreateRequest struct {
	StoreID    string              `json:"store_id"`
	SupplierID string              `json:"supplier_id"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderReceiveRequest struct {
	ReceivedBy string `json:"received_by"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type CartItem struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type PaymentSplit struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

type CheckoutRequest struct {
	StoreID           string          `json:"store_id"`
	TerminalID        string          `json:"terminal_id"`
	IdempotencyKey    string          `json:"idempotency_key"`
	CustomerID        string          `json:"customer_id,omitempty"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	PaymentSplits     []PaymentSplit  `json:"payment_splits,omitempty"`
	CashReceivedCents int64           `json:"cash_received_cents"`
	DownPaymentCents  int64           `json:"down_payment_cents,omitempty"`
	TermDays          int             `json:"term_days,omitempty"`
	DiscountCents     int64           `json:"discount_cents"`
	TaxRatePercent    decimal.Decimal `json:"tax_rate_percent"`
	ManualOverride    bool            `json:"manual_override"`
	CartItems         []CartItem      `json:"cart_items"`
}

type CheckoutResponse struct {
	SaleID           string           `json:"sale_id"`
	Status           string           `json:"status"`
	PaymentMethod    string           `json:"payment_method"`
	PaymentSplits    []PaymentSplit   `json:"payment_splits,omitempty"`
	CustomerID       string           `json:"customer_id,omitempty"`
	SubtotalCents    int64            `json:"subtotal_cents"`
	DiscountCents    int64            `json:"discount_cents"`
	TaxRatePercent   decimal.Decimal  `json:"tax_rate_percent"`
	TaxCents         int64            `json:"tax_cents"`
	TotalCents       int64            `json:"total_cents"`
	CashReceived     int64            `json:"cash_received_cents"`
	ChangeCents      int64            `json:"change_cents"`
	DownPaymentCents int64            `json:"down_payment_cents,omitempty"`
	ItemCount        int              `json:"item_count"`
	BNPL             *BNPLTransaction `json:"bnpl,omitempty"`
	Duplicate        bool             `json:"duplicate"`
	CreatedAt        string           `json:"created_at"`
}

type CheckoutLookupResponse struct {
	Found    bool              `json:"found"`
	Checkout *CheckoutResponse `json:"checkout,omitempty"`
}

type SaleLine struct {
	SKU            string  `json:"sku"`
	Qty            int     `json:"qty"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	MarginRate     float64 `json:"margin_rate"`
}

type Sale struct {
	ID                string          `json:"id"`
	StoreID           string          `json:"store_id"`
	TerminalID        string          `json:"terminal_id"`
	CustomerID        string          `json:"customer_id,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	PaymentSplits     []PaymentSplit  `json:"payment_splits,omitempty"`
	SubtotalCents     int64           `json:"subtotal_cents"`
	DiscountCents     int64           `json:"discount_cents"`
	TaxRatePercent    decimal.Decimal `json:"tax_rate_percent"`
	TaxCents          int64           `json:"tax_cents"`
	TotalCents        int64           `json:"total_cents"`
	CashReceivedCents int64           `json:"cash_received_cents"`
	ChangeCents       int64           `json:"change_cents"`
	DownPaymentCents  int64           `json:"down_payment_cents,omitempty"`
	BNPLDueDate       *time.Time      `json:"bnpl_due_date,omitempty"`
	Status            string          `json:"status"`
	VoidReason        string          `json:"void_reason,omitempty"`
	VoidedAt          *time.Time      `json:"voided_at,omitempty"`
	CashierUsername   string          `json:"cashier_username"`
	CreatedAt         time.Time       `json:"created_at"`
	Items             []SaleLine      `json:"items"`
}

// CashCents is the part of the sale that entered the cash drawer.
func (s Sale) CashCents() int64 {
	switch s.PaymentMethod {
	case PaymentCash:
		return s.TotalCents
	case PaymentSplit:
		cash := int64(0)
		for _, split := range s.PaymentSplits {
			if split.Method == PaymentCash {
				cash += split.AmountCents
			}
		}
		return cash
	case PaymentBNPL:
		return s.DownPaymentCents
	default:
		return 0
	}
}

// RefundChannel reports how money flows back to the customer for a refund.
// Sales that took cash (including BNPL down payments) refund in cash.
func (s Sale) RefundChannel() string {
	switch s.PaymentMethod {
	case PaymentCash, PaymentBNPL:
		return PaymentCash
	case PaymentSplit:
		for _, split := range s.PaymentSplits {
			if split.Method == PaymentCash {
				return PaymentCash
			}
		}
		if len(s.PaymentSplits) > 0 {
			return s.PaymentSplits[0].Method
		}
		return PaymentSplit
	default:
		return s.PaymentMethod
	}
}

// TaxCents applies a percent rate to a cents base, rounding half away from zero.
func TaxCents(base int64, ratePercent decimal.Decimal) int64 {
	if base <= 0 || ratePercent.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(base).Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type VoidSaleRequest struct {
	SaleID     string `json:"sale_id"`
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type VoidSaleResponse struct {
	SaleID   string `json:"sale_id"`
	Status   string `json:"status"`
	VoidedAt string `json:"voided_at"`
}

type RefundRequest struct {
	SaleID      string `json:"sale_id"`
	Reason      string `json:"reason"`
	AmountCents int64  `json:"amount_cents"`
	ManagerPIN  string `json:"manager_pin"`
}

type Refund struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	SaleID      string    `json:"sale_id"`
	Reason      string    `json:"reason"`
	AmountCents int64     `json:"amount_cents"`
	CashCents   int64     `json:"cash_cents"`
	CreditCents int64     `json:"credit_cents"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	RefundedBy  string    `json:"refunded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type RefundResponse struct {
	Refund Refund `json:"refund"`
}

type ItemReturnLine struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents,omitempty"`
}

type ItemReturnRequest struct {
	SaleID      string           `json:"sale_id"`
	Reason      string           `json:"reason"`
	ManagerPIN  string           `json:"manager_pin"`
	ReturnItems []ItemReturnLine `json:"return_items"`
}

type ItemReturn struct {
	ID                string           `json:"id"`
	StoreID           string           `json:"store_id"`
	SaleID            string           `json:"sale_id"`
	Reason            string           `json:"reason"`
	RefundID          string           `json:"refund_id"`
	RefundAmountCents int64            `json:"refund_amount_cents"`
	ProcessedBy       string           `json:"processed_by"`
	CreatedAt         time.Time        `json:"created_at"`
	ReturnItems       []ItemReturnLine `json:"return_items"`
}

type ItemReturnResponse struct {
	ItemReturn ItemReturn `json:"item_return"`
	Refund     Refund     `json:"refund"`
}

type ReturnEligibilityLine struct {
	SKU            string `json:"sku"`
	PurchasedQty   int    `json:"purchased_qty"`
	ReturnedQty    int    `json:"returned_qty"`
	ReturnableQty  int    `json:"returnable_qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type ReturnEligibility struct {
	SaleID        string                  `json:"sale_id"`
	SaleDate      time.Time               `json:"sale_date"`
	WindowEndsAt  time.Time               `json:"window_ends_at"`
	DaysRemaining int                     `json:"days_remaining"`
	Eligible      bool                    `json:"eligible"`
	Reason        string                  `json:"reason,omitempty"`
	Lines         []ReturnEligibilityLine `json:"lines"`
}

type ReceiptResponse struct {
	SaleID       string   `json:"sale_id"`
	Lines        []string `json:"lines"`
	PreviewText  string   `json:"preview_text"`
	EscposBase64 string   `json:"escpos_base64"`
	FileName     string   `json:"file_name"`
}

type ReceiptReprintRequest struct {
	Reason string `json:"reason"`
}

type ReceiptReprint struct {
	ID                string    `json:"id"`
	StoreID           string    `json:"store_id"`
	SaleID            string    `json:"sale_id"`
	AuthorizationCode string    `json:"authorization_code"`
	Reason            string    `json:"reason"`
	ReprintNumber     int       `json:"reprint_number"`
	RequestedBy       string    `json:"requested_by"`
	CreatedAt         time.Time `json:"created_at"`
}

type ReceiptReprintResponse struct {
	Reprint ReceiptReprint  `json:"reprint"`
	Receipt ReceiptResponse `json:"receipt"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type OperationalAlert struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Severity    string  `json:"severity"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	MetricValue float64 `json:"metric_value"`
	Threshold   float64 `json:"threshold"`
	CreatedAt   string  `json:"created_at"`
}

type OperationalAlertResponse struct {
	StoreID string             `json:"store_id"`
	Date    string             `json:"date"`
	Alerts  []OperationalAlert `json:"alerts"`
}

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentQRIS     = "qris"
	PaymentEWallet  = "ewallet"
	PaymentTransfer = "transfer"
	PaymentSplit    = "split"
	PaymentBNPL     = "bnpl"
)

const (
	SaleStatusPaid     = "paid"
	SaleStatusVoided   = "voided"
	SaleStatusRefunded = "refunded"
)

const (
	PurchaseOrderDraft     = "draft"
	PurchaseOrderReceived  = "received"
	PurchaseOrderCancelled = "cancelled"
)
