package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

// ReturnEligibility reports, per purchased SKU, how much can still be returned.
func (s *Service) ReturnEligibility(ctx context.Context, saleID string) (domain.ReturnEligibility, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.ReturnEligibility{}, store.ErrInvalidTransaction
	}
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.ReturnEligibility{}, err
	}
	returned, err := s.repo.GetReturnedQtyBySale(ctx, sale.ID)
	if err != nil {
		return domain.ReturnEligibility{}, err
	}
	return s.eligibility(sale, returned, s.now()), nil
}

func (s *Service) eligibility(sale *domain.Sale, returned map[string]int, now time.Time) domain.ReturnEligibility {
	windowEnd := sale.CreatedAt.AddDate(0, 0, s.opts.ReturnWindowDays)
	result := domain.ReturnEligibility{
		SaleID:       sale.ID,
		SaleDate:     sale.CreatedAt,
		WindowEndsAt: windowEnd,
		Lines:        make([]domain.ReturnEligibilityLine, 0, len(sale.Items)),
	}
	if remaining := windowEnd.Sub(now); remaining > 0 {
		result.DaysRemaining = int(math.Ceil(remaining.Hours() / 24))
	}

	index := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if i, ok := index[item.SKU]; ok {
			result.Lines[i].PurchasedQty += item.Qty
			continue
		}
		index[item.SKU] = len(result.Lines)
		result.Lines = append(result.Lines, domain.ReturnEligibilityLine{
			SKU:            item.SKU,
			PurchasedQty:   item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	returnable := 0
	for i := range result.Lines {
		line := &result.Lines[i]
		line.ReturnedQty = returned[line.SKU]
		line.ReturnableQty = max(line.PurchasedQty-line.ReturnedQty, 0)
		returnable += line.ReturnableQty
	}

	switch {
	case sale.Status == domain.SaleStatusVoided:
		result.Reason = "sale voided"
	case sale.Status == domain.SaleStatusRefunded:
		result.Reason = "sale fully refunded"
	case !now.Before(windowEnd):
		result.Reason = fmt.Sprintf("return window of %d days closed", s.opts.ReturnWindowDays)
	case returnable == 0:
		result.Reason = "all items already returned"
	default:
		result.Eligible = true
	}
	return result
}

func (s *Service) ProcessItemReturn(ctx context.Context, req domain.ItemReturnRequest) (domain.ItemReturnResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.ItemReturnResponse{}, err
	}
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" || len(req.ReturnItems) == 0 {
		return domain.ItemReturnResponse{}, store.ErrInvalidTransaction
	}

	sale, err := s.repo.FindSaleByID(ctx, req.SaleID)
	if err != nil {
		return domain.ItemReturnResponse{}, err
	}
	alreadyReturned, err := s.repo.GetReturnedQtyBySale(ctx, sale.ID)
	if err != nil {
		return domain.ItemReturnResponse{}, err
	}
	now := s.now()
	eligibility := s.eligibility(sale, alreadyReturned, now)
	if !eligibility.Eligible {
		return domain.ItemReturnResponse{}, fmt.Errorf("%w: %s", store.ErrInvalidTransaction, eligibility.Reason)
	}

	requested := make(map[string]int, len(req.ReturnItems))
	order := make([]string, 0, len(req.ReturnItems))
	for _, line := range req.ReturnItems {
		sku := strings.ToUpper(strings.TrimSpace(line.SKU))
		if sku == "" || line.Qty < 1 {
			return domain.ItemReturnResponse{}, store.ErrInvalidTransaction
		}
		if _, seen := requested[sku]; !seen {
			order = append(order, sku)
		}
		requested[sku] += line.Qty
	}

	returnLines := make([]domain.ItemReturnLine, 0, len(order))
	for _, sku := range order {
		i := slices.IndexFunc(eligibility.Lines, func(l domain.ReturnEligibilityLine) bool { return l.SKU == sku })
		if i < 0 {
			return domain.ItemReturnResponse{}, fmt.Errorf("%w: %s not on sale", store.ErrInvalidTransaction, sku)
		}
		line := eligibility.Lines[i]
		if requested[sku] > line.ReturnableQty {
			return domain.ItemReturnResponse{}, fmt.Errorf("%w: %s exceeds returnable qty %d", store.ErrInvalidTransaction, sku, line.ReturnableQty)
		}
		returnLines = append(returnLines, domain.ItemReturnLine{
			SKU:            sku,
			Qty:            requested[sku],
			UnitPriceCents: line.UnitPriceCents,
		})
	}
	returnAmount := store.ReturnRefundCents(*sale, alreadyReturned, returnLines)
	if returnAmount < 1 {
		return domain.ItemReturnResponse{}, store.ErrInvalidTransaction
	}

	reason := strings.TrimSpace(req.Reason)
	itemReturn, refund, err := s.repo.CreateItemReturn(ctx,
		domain.ItemReturn{
			ID:          xid.New("ret"),
			StoreID:     sale.StoreID,
			SaleID:      sale.ID,
			Reason:      reason,
			ProcessedBy: actor.Username,
			CreatedAt:   now,
			ReturnItems: returnLines,
		},
		domain.Refund{
			ID:          xid.New("refund"),
			SaleID:      sale.ID,
			Reason:      defaultString(reason, "item return"),
			AmountCents: returnAmount,
			RefundedBy:  actor.Username,
			CreatedAt:   now,
		},
	)
	if err != nil {
		return domain.ItemReturnResponse{}, err
	}

	s.logAudit(ctx, sale.StoreID, "item_return", "item_return", itemReturn.ID, fmt.Sprintf("sale=%s,refund=%d,cash=%d,credit=%d", sale.ID, refund.AmountCents, refund.CashCents, refund.CreditCents))
	return domain.ItemReturnResponse{ItemReturn: *itemReturn, Refund: *refund}, nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
