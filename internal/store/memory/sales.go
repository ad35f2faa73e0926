package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.salesByID {
		if filter.StoreID != "" && sale.StoreID != filter.StoreID {
			continue
		}
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		if !inRange(sale.CreatedAt, filter.From, filter.To) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(result, filter.Limit), nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if existing, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
		return cloneSale(existing), nil
	}

	storeStock, ok := s.stock[sale.StoreID]
	if !ok {
		return nil, fmt.Errorf("%w: store %s unavailable", store.ErrNotFound, sale.StoreID)
	}

	subtotal := int64(0)
	lines := make([]domain.SaleLine, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		product, exists := s.products[item.SKU]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: sku %s unavailable", store.ErrInvalidTransaction, item.SKU)
		}
		if storeStock[item.SKU]-item.Qty < 0 {
			return nil, store.ErrInsufficientStock
		}
		lines = append(lines, domain.SaleLine{
			SKU:            item.SKU,
			Qty:            item.Qty,
			UnitPriceCents: product.PriceCents,
			MarginRate:     product.MarginRate,
		})
		subtotal += int64(item.Qty) * product.PriceCents
	}

	if err := store.PriceSale(&sale, lines, subtotal); err != nil {
		return nil, err
	}

	var credit *domain.BNPLTransaction
	if sale.PaymentMethod == domain.PaymentBNPL {
		customer, exists := s.customersByID[sale.CustomerID]
		if !exists {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
		financed := sale.TotalCents - sale.DownPaymentCents
		if err := store.CheckCredit(customer, s.outstandingLocked(customer.ID), financed); err != nil {
			return nil, err
		}
		credit = store.NewBNPLTransaction(sale, financed)
	}

	for _, item := range sale.Items {
		storeStock[item.SKU] -= item.Qty
	}

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	s.salesByIdem[sale.IdempotencyKey] = saved
	if credit != nil {
		s.bnplByID[credit.ID] = credit
		s.bnplBySale[sale.ID] = credit.ID
	}
	if cash := sale.CashCents(); cash > 0 {
		s.appendCashLocked(saleCashEntry(sale, domain.CashIn, cash, domain.CashSourceSale, sale.CashierUsername, sale.CreatedAt))
	}

	return cloneSale(saved), nil
}

func (s *Store) VoidSale(_ context.Context, id string, reason string, voidedBy string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusPaid {
		return nil, fmt.Errorf("%w: sale is %s", store.ErrInvalidTransaction, sale.Status)
	}
	for _, refund := range s.refundsByID {
		if refund.SaleID == id {
			return nil, fmt.Errorf("%w: sale already has refunds", store.ErrInvalidTransaction)
		}
	}

	var credit *domain.BNPLTransaction
	if creditID, ok := s.bnplBySale[id]; ok {
		credit = s.bnplByID[creditID]
		if credit.PaidCents > 0 {
			return nil, fmt.Errorf("%w: bnpl payments already received", store.ErrInvalidTransaction)
		}
	}

	storeStock := s.stockFor(sale.StoreID)
	for _, item := range sale.Items {
		storeStock[item.SKU] += item.Qty
	}
	if credit != nil {
		credit.Status = domain.BNPLStatusCancelled
		credit.BalanceCents = 0
		credit.UpdatedAt = at
	}
	if cash := sale.CashCents(); cash > 0 {
		s.appendCashLocked(saleCashEntry(*sale, domain.CashOut, cash, domain.CashSourceVoid, voidedBy, at))
	}

	sale.Status = domain.SaleStatusVoided
	sale.VoidReason = reason
	sale.VoidedAt = &at

	return cloneSale(sale), nil
}

func (s *Store) CreateRefund(_ context.Context, refund domain.Refund) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[refund.SaleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.applyRefundLocked(sale, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *Store) ListRefunds(_ context.Context, saleID string) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Refund, 0, 4)
	for _, refund := range s.refundsByID {
		if refund.SaleID == saleID {
			result = append(result, refund)
		}
	}
	slices.SortFunc(result, func(a, b domain.Refund) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) GetReturnedQtyBySale(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnedQtyLocked(saleID), nil
}

func (s *Store) CreateItemReturn(_ context.Context, itemReturn domain.ItemReturn, refund domain.Refund) (*domain.ItemReturn, *domain.Refund, error) {
	if itemReturn.ID == "" {
		itemReturn.ID = xid.New("ret")
	}
	if itemReturn.CreatedAt.IsZero() {
		itemReturn.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(itemReturn.SaleID) == "" || len(itemReturn.ReturnItems) == 0 {
		return nil, nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[itemReturn.SaleID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusVoided {
		return nil, nil, fmt.Errorf("%w: sale voided", store.ErrInvalidTransaction)
	}

	purchased := make(map[string]int, len(sale.Items))
	for _, line := range sale.Items {
		purchased[line.SKU] += line.Qty
	}
	returned := s.returnedQtyLocked(sale.ID)
	for _, line := range itemReturn.ReturnItems {
		if line.Qty < 1 || returned[line.SKU]+line.Qty > purchased[line.SKU] {
			return nil, nil, fmt.Errorf("%w: %s exceeds returnable qty", store.ErrInvalidTransaction, line.SKU)
		}
	}

	refund.SaleID = sale.ID
	if err := s.applyRefundLocked(sale, &refund); err != nil {
		return nil, nil, err
	}

	storeStock := s.stockFor(sale.StoreID)
	for _, line := range itemReturn.ReturnItems {
		storeStock[line.SKU] += line.Qty
	}

	itemReturn.RefundID = refund.ID
	itemReturn.RefundAmountCents = refund.AmountCents
	s.itemReturnsByID[itemReturn.ID] = cloneItemReturn(itemReturn)
	created := cloneItemReturn(itemReturn)
	return &created, &refund, nil
}

func (s *Store) CreateReceiptReprint(_ context.Context, reprint domain.ReceiptReprint) (*domain.ReceiptReprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.salesByID[reprint.SaleID]; !ok {
		return nil, store.ErrNotFound
	}
	if reprint.ID == "" {
		reprint.ID = xid.New("rp")
	}
	if reprint.CreatedAt.IsZero() {
		reprint.CreatedAt = time.Now().UTC()
	}
	count := 0
	for _, existing := range s.reprints {
		if existing.SaleID == reprint.SaleID {
			count++
		}
	}
	reprint.ReprintNumber = count + 1
	s.reprints = append(s.reprints, reprint)
	return &reprint, nil
}

func (s *Store) ListReceiptReprints(_ context.Context, saleID string) ([]domain.ReceiptReprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ReceiptReprint, 0, 4)
	for _, reprint := range s.reprints {
		if reprint.SaleID == saleID {
			result = append(result, reprint)
		}
	}
	slices.SortFunc(result, func(a, b domain.ReceiptReprint) int {
		return a.ReprintNumber - b.ReprintNumber
	})
	return result, nil
}

// applyRefundLocked validates the refund against prior refunds, credits the
// open BNPL balance first and writes the cash outflow. Caller holds the lock.
func (s *Store) applyRefundLocked(sale *domain.Sale, refund *domain.Refund) error {
	if sale.Status != domain.SaleStatusPaid {
		return fmt.Errorf("%w: sale is %s", store.ErrInvalidTransaction, sale.Status)
	}
	if refund.AmountCents < 1 {
		return store.ErrInvalidTransaction
	}
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	refund.StoreID = sale.StoreID
	refund.Status = domain.SaleStatusRefunded

	var refundedSoFar, cashRefundedSoFar int64
	for _, prior := range s.refundsByID {
		if prior.SaleID == sale.ID {
			refundedSoFar += prior.AmountCents
			cashRefundedSoFar += prior.CashCents
		}
	}
	if refund.AmountCents > sale.TotalCents-refundedSoFar {
		return fmt.Errorf("%w: refund exceeds remaining amount", store.ErrInvalidTransaction)
	}

	var credit *domain.BNPLTransaction
	if creditID, ok := s.bnplBySale[sale.ID]; ok {
		credit = s.bnplByID[creditID]
	}
	refund.CreditCents, refund.CashCents, refund.Method = store.SplitRefund(*sale, credit, refund.AmountCents)

	if credit != nil && refund.CreditCents > 0 {
		credit.CreditedCents += refund.CreditCents
		credit.BalanceCents -= refund.CreditCents
		if credit.BalanceCents == 0 {
			credit.Status = domain.BNPLStatusPaid
		}
		credit.UpdatedAt = refund.CreatedAt
	}
	if drawer := store.DrawerRefundCents(*sale, cashRefundedSoFar, refund.CashCents); drawer > 0 {
		s.appendCashLocked(domain.CashLedgerEntry{
			ID:          xid.New("cash"),
			StoreID:     sale.StoreID,
			Direction:   domain.CashOut,
			AmountCents: drawer,
			Source:      domain.CashSourceRefund,
			SourceID:    refund.ID,
			Note:        "refund " + sale.ID,
			RecordedBy:  refund.RefundedBy,
			CreatedAt:   refund.CreatedAt,
		})
	}
	if refundedSoFar+refund.AmountCents >= sale.TotalCents {
		sale.Status = domain.SaleStatusRefunded
	}

	s.refundsByID[refund.ID] = *refund
	return nil
}

func (s *Store) returnedQtyLocked(saleID string) map[string]int {
	result := make(map[string]int)
	for _, itemReturn := range s.itemReturnsByID {
		if itemReturn.SaleID != saleID {
			continue
		}
		for _, line := range itemReturn.ReturnItems {
			result[line.SKU] += line.Qty
		}
	}
	return result
}

func saleCashEntry(sale domain.Sale, direction string, amount int64, source string, by string, at time.Time) domain.CashLedgerEntry {
	return domain.CashLedgerEntry{
		ID:          xid.New("cash"),
		StoreID:     sale.StoreID,
		Direction:   direction,
		AmountCents: amount,
		Source:      source,
		SourceID:    sale.ID,
		RecordedBy:  by,
		CreatedAt:   at,
	}
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	dup.PaymentSplits = slices.Clone(src.PaymentSplits)
	if src.BNPLDueDate != nil {
		due := *src.BNPLDueDate
		dup.BNPLDueDate = &due
	}
	if src.VoidedAt != nil {
		voided := *src.VoidedAt
		dup.VoidedAt = &voided
	}
	return &dup
}

func cloneItemReturn(src domain.ItemReturn) domain.ItemReturn {
	dup := src
	dup.ReturnItems = slices.Clone(src.ReturnItems)
	return dup
}
