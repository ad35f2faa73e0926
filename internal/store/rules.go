package store

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/xid"
)

// Rules shared by every Repository implementation. They run inside the
// implementation's unit of work, after the catalog rows have been read.

var hundred = decimal.NewFromInt(100)

// PriceSale fills totals, tax and change from the catalog-priced lines.
func PriceSale(sale *domain.Sale, lines []domain.SaleLine, subtotal int64) error {
	if sale.DiscountCents < 0 || sale.DiscountCents > subtotal {
		return ErrInvalidTransaction
	}
	if sale.TaxRatePercent.IsNegative() || sale.TaxRatePercent.GreaterThan(hundred) {
		return ErrInvalidTransaction
	}

	taxBase := subtotal - sale.DiscountCents
	sale.Items = lines
	sale.SubtotalCents = subtotal
	sale.TaxCents = domain.TaxCents(taxBase, sale.TaxRatePercent)
	sale.TotalCents = taxBase + sale.TaxCents
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPaid
	}

	switch sale.PaymentMethod {
	case domain.PaymentCash:
		if sale.CashReceivedCents < sale.TotalCents {
			return ErrInvalidTransaction
		}
		sale.ChangeCents = sale.CashReceivedCents - sale.TotalCents
	case domain.PaymentBNPL:
		if sale.CustomerID == "" || sale.BNPLDueDate == nil {
			return ErrInvalidTransaction
		}
		if sale.DownPaymentCents < 0 || sale.DownPaymentCents >= sale.TotalCents {
			return fmt.Errorf("%w: down payment must be below total", ErrInvalidTransaction)
		}
		if sale.CashReceivedCents < sale.DownPaymentCents {
			sale.CashReceivedCents = sale.DownPaymentCents
		}
		sale.ChangeCents = sale.CashReceivedCents - sale.DownPaymentCents
	case domain.PaymentSplit:
		splitTotal := int64(0)
		for _, split := range sale.PaymentSplits {
			splitTotal += split.AmountCents
		}
		if splitTotal != sale.TotalCents {
			return ErrInvalidTransaction
		}
		sale.CashReceivedCents = splitTotal
		sale.ChangeCents = 0
	default:
		sale.ChangeCents = 0
	}
	return nil
}

// CheckCredit rejects a financed amount that would push the customer's
// outstanding balance past the limit. A limit of zero disables credit.
func CheckCredit(customer domain.Customer, outstanding int64, financed int64) error {
	if !customer.Active || customer.CreditLimitCents < 1 {
		return fmt.Errorf("%w: customer has no bnpl credit", ErrCreditLimitExceeded)
	}
	if outstanding+financed > customer.CreditLimitCents {
		return fmt.Errorf("%w: outstanding %d + %d over limit %d", ErrCreditLimitExceeded, outstanding, financed, customer.CreditLimitCents)
	}
	return nil
}

func NewBNPLTransaction(sale domain.Sale, financed int64) *domain.BNPLTransaction {
	return &domain.BNPLTransaction{
		ID:             xid.New("bnpl"),
		StoreID:        sale.StoreID,
		CustomerID:     sale.CustomerID,
		SaleID:         sale.ID,
		PrincipalCents: financed,
		BalanceCents:   financed,
		DueDate:        sale.BNPLDueDate.UTC(),
		Status:         domain.BNPLStatusOpen,
		CreatedAt:      sale.CreatedAt,
		UpdatedAt:      sale.CreatedAt,
	}
}

// SplitRefund credits an open BNPL balance first; the rest goes back
// through the sale's refund channel.
func SplitRefund(sale domain.Sale, credit *domain.BNPLTransaction, amount int64) (creditCents int64, cashCents int64, method string) {
	if credit != nil && credit.Status == domain.BNPLStatusOpen && credit.BalanceCents > 0 {
		creditCents = min(amount, credit.BalanceCents)
	}
	cashCents = amount - creditCents
	switch {
	case cashCents == 0:
		method = domain.PaymentBNPL
	case creditCents == 0:
		method = sale.RefundChannel()
	default:
		method = "mixed"
	}
	return creditCents, cashCents, method
}

// CheckAllocations validates the shape of a BNPL payment before any balance
// is read: a positive amount split into positive allocations over distinct
// transactions that add up to the amount.
func CheckAllocations(payment domain.BNPLPayment) error {
	if payment.AmountCents < 1 || len(payment.Allocations) == 0 {
		return fmt.Errorf("%w: payment needs an amount and allocations", ErrInvalidTransaction)
	}
	seen := make(map[string]struct{}, len(payment.Allocations))
	var applied int64
	for _, alloc := range payment.Allocations {
		if alloc.AppliedCents < 1 {
			return fmt.Errorf("%w: allocation to %s must be positive", ErrInvalidTransaction, alloc.TransactionID)
		}
		if _, dup := seen[alloc.TransactionID]; dup {
			return fmt.Errorf("%w: transaction %s allocated twice", ErrInvalidTransaction, alloc.TransactionID)
		}
		seen[alloc.TransactionID] = struct{}{}
		applied += alloc.AppliedCents
	}
	if applied != payment.AmountCents {
		return fmt.Errorf("%w: allocations do not sum to payment", ErrInvalidTransaction)
	}
	return nil
}

// ReturnRefundCents prices returned goods at what the customer paid for
// them: shelf value scaled by total/subtotal, so the sale's discount and tax
// follow the goods back. The cumulative returned value is priced before and
// after this return, which keeps rounding from drifting across partial
// returns; returning everything refunds exactly the sale total.
func ReturnRefundCents(sale domain.Sale, returnedBefore map[string]int, lines []domain.ItemReturnLine) int64 {
	if sale.SubtotalCents < 1 {
		return 0
	}
	unitPrice := make(map[string]int64, len(sale.Items))
	for _, item := range sale.Items {
		unitPrice[item.SKU] = item.UnitPriceCents
	}

	var before, returning int64
	for sku, qty := range returnedBefore {
		before += int64(qty) * unitPrice[sku]
	}
	for _, line := range lines {
		returning += int64(line.Qty) * unitPrice[line.SKU]
	}

	paid := func(shelf int64) int64 {
		return decimal.NewFromInt(shelf).
			Mul(decimal.NewFromInt(sale.TotalCents)).
			Div(decimal.NewFromInt(sale.SubtotalCents)).
			Round(0).IntPart()
	}
	return paid(before+returning) - paid(before)
}

// DrawerRefundCents is the part of a refund's cash portion paid out of the
// cash drawer. The drawer never returns more than the sale put into it:
// priorCashCents is the cash portion of earlier refunds on the same sale.
// The rest goes back through the sale's non-cash channel.
func DrawerRefundCents(sale domain.Sale, priorCashCents int64, cashCents int64) int64 {
	remaining := sale.CashCents() - min(priorCashCents, sale.CashCents())
	return max(0, min(cashCents, remaining))
}

// WeightedCostCents is the moving average unit cost after receiving stock.
func WeightedCostCents(oldCost int64, oldQty int, incomingCost int64, incomingQty int) int64 {
	if incomingQty <= 0 || incomingCost <= 0 {
		return oldCost
	}
	if oldQty <= 0 || oldCost <= 0 {
		return incomingCost
	}
	totalQty := oldQty + incomingQty
	totalValue := oldCost*int64(oldQty) + incomingCost*int64(incomingQty)
	weighted := int64(math.Round(float64(totalValue) / float64(totalQty)))
	if weighted < 1 {
		return 1
	}
	return weighted
}

// ValidateProduct checks the fields every stored product must carry.
func ValidateProduct(product domain.Product) error {
	switch {
	case product.SKU == "", product.Name == "", product.Category == "":
		return fmt.Errorf("%w: sku, name and category are required", ErrInvalidTransaction)
	case product.PriceCents < 1:
		return fmt.Errorf("%w: price must be positive", ErrInvalidTransaction)
	case product.MarginRate < 0 || product.MarginRate > 1:
		return fmt.Errorf("%w: margin rate must be within 0..1", ErrInvalidTransaction)
	}
	return nil
}

// PreparePurchaseOrder validates a new order, upper-cases its SKUs and fills
// the id, creation time and draft status when missing.
func PreparePurchaseOrder(po *domain.PurchaseOrder) error {
	if po.StoreID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return fmt.Errorf("%w: store, supplier and items are required", ErrInvalidTransaction)
	}

	items := make([]domain.PurchaseOrderItem, len(po.Items))
	for i, item := range po.Items {
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.SKU == "" || item.Qty < 1 || item.CostCents < 1 {
			return fmt.Errorf("%w: line %d needs sku, qty >= 1 and cost >= 1", ErrInvalidTransaction, i+1)
		}
		items[i] = item
	}
	po.Items = items

	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	if po.Status == "" {
		po.Status = domain.PurchaseOrderDraft
	}
	return nil
}
