package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

const maxTermDays = 365

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	req.StoreID = s.storeOr(req.StoreID)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.PaymentSplits = normalizePaymentSplits(req.PaymentSplits)
	if len(req.PaymentSplits) > 0 {
		if req.PaymentMethod == domain.PaymentBNPL {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: bnpl cannot be split", store.ErrInvalidTransaction)
		}
		req.PaymentMethod = domain.PaymentSplit
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}

	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: unsupported payment method %s", store.ErrInvalidTransaction, req.PaymentMethod)
	}
	if req.TaxRatePercent.IsNegative() || req.TaxRatePercent.GreaterThan(hundred) {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: tax rate must be between 0 and 100", store.ErrInvalidTransaction)
	}
	if req.DiscountCents < 0 {
		return domain.CheckoutResponse{}, store.ErrInvalidTransaction
	}

	if req.ManualOverride {
		if _, err := s.requireAdmin(ctx); err != nil {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: manual override", err)
		}
	}

	normalized := normalizeItems(req.CartItems)
	if len(normalized) == 0 {
		return domain.CheckoutResponse{}, store.ErrInvalidTransaction
	}

	if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return s.checkoutResponse(ctx, existing, true), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	skus := make([]string, 0, len(normalized))
	for _, item := range normalized {
		skus = append(skus, item.SKU)
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	subtotal := int64(0)
	for _, item := range normalized {
		product, exists := products[item.SKU]
		if !exists || !product.Active {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: sku %s unavailable", store.ErrInvalidTransaction, item.SKU)
		}
		subtotal += int64(item.Qty) * product.PriceCents
	}
	if req.DiscountCents > subtotal {
		req.DiscountCents = subtotal
	}

	taxBase := subtotal - req.DiscountCents
	totalCents := taxBase + domain.TaxCents(taxBase, req.TaxRatePercent)
	now := s.now()

	var dueDate *time.Time
	switch req.PaymentMethod {
	case domain.PaymentCash:
		if req.CashReceivedCents < totalCents {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: cash received below total", store.ErrInvalidTransaction)
		}
	case domain.PaymentSplit:
		if len(req.PaymentSplits) < 2 {
			return domain.CheckoutResponse{}, store.ErrInvalidTransaction
		}
		splitTotal := int64(0)
		for _, split := range req.PaymentSplits {
			if !isSplitMethodSupported(split.Method) || split.AmountCents < 1 {
				return domain.CheckoutResponse{}, store.ErrInvalidTransaction
			}
			if split.Method != domain.PaymentCash && split.Reference == "" {
				return domain.CheckoutResponse{}, fmt.Errorf("%w: %s split needs a reference", store.ErrInvalidTransaction, split.Method)
			}
			splitTotal += split.AmountCents
		}
		if splitTotal != totalCents {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: splits must sum to total", store.ErrInvalidTransaction)
		}
		req.CashReceivedCents = splitTotal
		req.PaymentReference = encodePaymentSplits(req.PaymentSplits)
	case domain.PaymentBNPL:
		due, err := s.checkBNPLCheckout(ctx, &req, totalCents, now)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		dueDate = &due
	default:
		if strings.TrimSpace(req.PaymentReference) == "" {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: payment reference required", store.ErrInvalidTransaction)
		}
	}

	lines := make([]domain.SaleLine, 0, len(normalized))
	for _, item := range normalized {
		lines = append(lines, domain.SaleLine{SKU: item.SKU, Qty: item.Qty})
	}

	sale := domain.Sale{
		ID:                xid.New("sale"),
		StoreID:           req.StoreID,
		TerminalID:        strings.TrimSpace(req.TerminalID),
		CustomerID:        req.CustomerID,
		IdempotencyKey:    req.IdempotencyKey,
		PaymentMethod:     req.PaymentMethod,
		PaymentReference:  strings.TrimSpace(req.PaymentReference),
		PaymentSplits:     req.PaymentSplits,
		CashReceivedCents: req.CashReceivedCents,
		DiscountCents:     req.DiscountCents,
		TaxRatePercent:    req.TaxRatePercent,
		DownPaymentCents:  req.DownPaymentCents,
		BNPLDueDate:       dueDate,
		Status:            domain.SaleStatusPaid,
		CashierUsername:   s.actorName(ctx),
		CreatedAt:         now,
		Items:             lines,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.logAudit(
		ctx,
		req.StoreID,
		"checkout",
		"sale",
		created.ID,
		fmt.Sprintf(
			"total=%d,payment=%s,discount=%d,manual_override=%t,split_count=%d,customer=%s",
			created.TotalCents,
			created.PaymentMethod,
			created.DiscountCents,
			req.ManualOverride,
			len(req.PaymentSplits),
			created.CustomerID,
		),
	)

	return s.checkoutResponse(ctx, created, false), nil
}

// checkBNPLCheckout validates the customer, down payment and credit limit
// and returns the due date. The store repeats the limit check atomically.
func (s *Service) checkBNPLCheckout(ctx context.Context, req *domain.CheckoutRequest, totalCents int64, now time.Time) (time.Time, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return time.Time{}, fmt.Errorf("%w: bnpl requires a customer", store.ErrInvalidTransaction)
	}
	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return time.Time{}, err
	}
	if !customer.Active || customer.CreditLimitCents < 1 {
		return time.Time{}, fmt.Errorf("%w: customer has no bnpl credit", store.ErrCreditLimitExceeded)
	}
	if req.DownPaymentCents < 0 || req.DownPaymentCents >= totalCents {
		return time.Time{}, fmt.Errorf("%w: down payment must be below total", store.ErrInvalidTransaction)
	}
	if req.CashReceivedCents == 0 {
		req.CashReceivedCents = req.DownPaymentCents
	}
	if req.CashReceivedCents < req.DownPaymentCents {
		return time.Time{}, fmt.Errorf("%w: cash received below down payment", store.ErrInvalidTransaction)
	}

	outstanding, err := s.customerOutstanding(ctx, customer.ID)
	if err != nil {
		return time.Time{}, err
	}
	financed := totalCents - req.DownPaymentCents
	if outstanding+financed > customer.CreditLimitCents {
		return time.Time{}, fmt.Errorf("%w: outstanding %d + %d over limit %d", store.ErrCreditLimitExceeded, outstanding, financed, customer.CreditLimitCents)
	}

	termDays := req.TermDays
	if termDays == 0 {
		termDays = s.opts.BNPLTermDays
	}
	if termDays < 1 || termDays > maxTermDays {
		return time.Time{}, fmt.Errorf("%w: term days must be between 1 and %d", store.ErrInvalidTransaction, maxTermDays)
	}
	return startOfDay(now).AddDate(0, 0, termDays), nil
}

func (s *Service) LookupCheckoutByIdempotency(ctx context.Context, idempotencyKey string) (domain.CheckoutLookupResponse, error) {
	if idempotencyKey == "" {
		return domain.CheckoutLookupResponse{}, store.ErrInvalidTransaction
	}

	sale, err := s.repo.FindSaleByIdempotency(ctx, idempotencyKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutLookupResponse{Found: false}, nil
		}
		return domain.CheckoutLookupResponse{}, err
	}
	checkout := s.checkoutResponse(ctx, sale, false)
	return domain.CheckoutLookupResponse{Found: true, Checkout: &checkout}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if len(sale.PaymentSplits) == 0 && sale.PaymentMethod == domain.PaymentSplit {
		sale.PaymentSplits = decodePaymentSplits(sale.PaymentReference)
	}
	return *sale, nil
}

// ListSales returns recent sales. With no dates the range is unbounded.
func (s *Service) ListSales(ctx context.Context, storeID string, from string, to string, customerID string, limit int) (domain.SaleListResponse, error) {
	filter := store.SaleFilter{
		StoreID:    s.storeOr(storeID),
		CustomerID: strings.TrimSpace(customerID),
		Limit:      limit,
	}
	if filter.Limit < 1 {
		filter.Limit = 100
	}
	if strings.TrimSpace(from) != "" || strings.TrimSpace(to) != "" {
		start, end, err := s.parseRange(from, to)
		if err != nil {
			return domain.SaleListResponse{}, err
		}
		filter.From, filter.To = start, end
	}

	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales}, nil
}

func (s *Service) VoidSale(ctx context.Context, req domain.VoidSaleRequest) (domain.VoidSaleResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.VoidSaleResponse{}, err
	}
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" {
		return domain.VoidSaleResponse{}, store.ErrInvalidTransaction
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		req.Reason = "unspecified"
	}

	voidedAt := s.now()
	sale, err := s.repo.VoidSale(ctx, req.SaleID, req.Reason, actor.Username, voidedAt)
	if err != nil {
		return domain.VoidSaleResponse{}, err
	}

	s.logAudit(ctx, sale.StoreID, "void_sale", "sale", sale.ID, fmt.Sprintf("total=%d,reason=%s", sale.TotalCents, req.Reason))

	return domain.VoidSaleResponse{
		SaleID:   sale.ID,
		Status:   sale.Status,
		VoidedAt: voidedAt.Format(time.RFC3339),
	}, nil
}

func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" || req.AmountCents <= 0 {
		return domain.RefundResponse{}, store.ErrInvalidTransaction
	}

	sale, err := s.repo.FindSaleByID(ctx, req.SaleID)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	if sale.Status != domain.SaleStatusPaid {
		return domain.RefundResponse{}, fmt.Errorf("%w: sale is %s", store.ErrInvalidTransaction, sale.Status)
	}
	remaining, err := s.refundableCents(ctx, sale)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	if req.AmountCents > remaining {
		return domain.RefundResponse{}, fmt.Errorf("%w: refund exceeds remaining %d", store.ErrInvalidTransaction, remaining)
	}

	created, err := s.repo.CreateRefund(ctx, domain.Refund{
		ID:          xid.New("refund"),
		SaleID:      sale.ID,
		Reason:      strings.TrimSpace(req.Reason),
		AmountCents: req.AmountCents,
		RefundedBy:  actor.Username,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.RefundResponse{}, err
	}

	s.logAudit(ctx, sale.StoreID, "refund_sale", "sale", sale.ID, fmt.Sprintf("amount=%d,cash=%d,credit=%d,reason=%s", created.AmountCents, created.CashCents, created.CreditCents, created.Reason))

	return domain.RefundResponse{Refund: *created}, nil
}

func (s *Service) refundableCents(ctx context.Context, sale *domain.Sale) (int64, error) {
	refunds, err := s.repo.ListRefunds(ctx, sale.ID)
	if err != nil {
		return 0, err
	}
	remaining := sale.TotalCents
	for _, refund := range refunds {
		remaining -= refund.AmountCents
	}
	return max(remaining, 0), nil
}

func (s *Service) checkoutResponse(ctx context.Context, sale *domain.Sale, duplicate bool) domain.CheckoutResponse {
	var credit *domain.BNPLTransaction
	if sale.PaymentMethod == domain.PaymentBNPL {
		found, err := s.repo.FindBNPLTransactionBySale(ctx, sale.ID)
		switch {
		case err == nil:
			credit = found
		case !errors.Is(err, store.ErrNotFound):
			s.log.Warn().Err(err).Str("sale_id", sale.ID).Msg("failed to load bnpl transaction")
		}
	}
	return toCheckoutResponse(sale, credit, duplicate)
}

func toCheckoutResponse(sale *domain.Sale, credit *domain.BNPLTransaction, duplicate bool) domain.CheckoutResponse {
	itemCount := 0
	for _, item := range sale.Items {
		itemCount += item.Qty
	}

	paymentSplits := sale.PaymentSplits
	if len(paymentSplits) == 0 && sale.PaymentMethod == domain.PaymentSplit {
		paymentSplits = decodePaymentSplits(sale.PaymentReference)
	}

	return domain.CheckoutResponse{
		SaleID:           sale.ID,
		Status:           sale.Status,
		PaymentMethod:    sale.PaymentMethod,
		PaymentSplits:    paymentSplits,
		CustomerID:       sale.CustomerID,
		SubtotalCents:    sale.SubtotalCents,
		DiscountCents:    sale.DiscountCents,
		TaxRatePercent:   sale.TaxRatePercent,
		TaxCents:         sale.TaxCents,
		TotalCents:       sale.TotalCents,
		CashReceived:     sale.CashReceivedCents,
		ChangeCents:      sale.ChangeCents,
		DownPaymentCents: sale.DownPaymentCents,
		ItemCount:        itemCount,
		BNPL:             credit,
		Duplicate:        duplicate,
		CreatedAt:        sale.CreatedAt.Format(time.RFC3339),
	}
}

// normalizeItems merges duplicate SKUs, keeping first-seen order.
func normalizeItems(items []domain.CartItem) []domain.CartItem {
	index := make(map[string]int, len(items))
	normalized := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if sku == "" || item.Qty < 1 {
			continue
		}
		if i, ok := index[sku]; ok {
			normalized[i].Qty += item.Qty
			continue
		}
		index[sku] = len(normalized)
		normalized = append(normalized, domain.CartItem{SKU: sku, Qty: item.Qty})
	}
	return normalized
}

func normalizePaymentSplits(splits []domain.PaymentSplit) []domain.PaymentSplit {
	normalized := make([]domain.PaymentSplit, 0, len(splits))
	for _, split := range splits {
		method := strings.ToLower(strings.TrimSpace(split.Method))
		if method == "" || split.AmountCents < 1 {
			continue
		}
		normalized = append(normalized, domain.PaymentSplit{
			Method:      method,
			AmountCents: split.AmountCents,
			Reference:   strings.TrimSpace(split.Reference),
		})
	}
	return normalized
}

func encodePaymentSplits(splits []domain.PaymentSplit) string {
	payload, err := json.Marshal(splits)
	if err != nil {
		return ""
	}
	return string(payload)
}

func decodePaymentSplits(raw string) []domain.PaymentSplit {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.HasPrefix(trimmed, "[") {
		return nil
	}
	var splits []domain.PaymentSplit
	if err := json.Unmarshal([]byte(trimmed), &splits); err != nil {
		return nil
	}
	return normalizePaymentSplits(splits)
}

func isSplitMethodSupported(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRIS, domain.PaymentEWallet:
		return true
	default:
		return false
	}
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRIS, domain.PaymentEWallet, domain.PaymentSplit, domain.PaymentBNPL:
		return true
	default:
		return false
	}
}
