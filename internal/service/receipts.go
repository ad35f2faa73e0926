package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

func (s *Service) Receipt(ctx context.Context, saleID string) (domain.ReceiptResponse, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	return s.buildReceipt(sale, nil), nil
}

// ReprintReceipt logs the reprint with a fresh authorization code before
// handing back the marked receipt.
func (s *Service) ReprintReceipt(ctx context.Context, saleID string, req domain.ReceiptReprintRequest) (domain.ReceiptReprintResponse, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return domain.ReceiptReprintResponse{}, fmt.Errorf("%w: reprint reason required", store.ErrInvalidTransaction)
	}
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return domain.ReceiptReprintResponse{}, err
	}

	reprint, err := s.repo.CreateReceiptReprint(ctx, domain.ReceiptReprint{
		ID:                xid.New("rp"),
		StoreID:           sale.StoreID,
		SaleID:            sale.ID,
		AuthorizationCode: "RP-" + xid.Code(8),
		Reason:            req.Reason,
		RequestedBy:       s.actorName(ctx),
		CreatedAt:         s.now(),
	})
	if err != nil {
		return domain.ReceiptReprintResponse{}, err
	}

	s.logAudit(ctx, sale.StoreID, "receipt_reprint", "sale", sale.ID, fmt.Sprintf("code=%s,number=%d,reason=%s", reprint.AuthorizationCode, reprint.ReprintNumber, reprint.Reason))
	return domain.ReceiptReprintResponse{
		Reprint: *reprint,
		Receipt: s.buildReceipt(sale, reprint),
	}, nil
}

func (s *Service) ListReprints(ctx context.Context, saleID string) ([]domain.ReceiptReprint, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return nil, store.ErrInvalidTransaction
	}
	return s.repo.ListReceiptReprints(ctx, saleID)
}

// buildReceipt renders the text lines and the ESC/POS byte stream for a
// thermal printer. A non-nil reprint marks the copy.
func (s *Service) buildReceipt(sale domain.Sale, reprint *domain.ReceiptReprint) domain.ReceiptResponse {
	lines := []string{
		s.opts.StoreName,
		"========================",
	}
	if reprint != nil {
		lines = append(lines, fmt.Sprintf("REPRINT #%d", reprint.ReprintNumber), "Auth: "+reprint.AuthorizationCode)
	}
	lines = append(lines,
		"Sale: "+sale.ID,
		"Store: "+sale.StoreID,
		"Terminal: "+sale.TerminalID,
		"Date: "+sale.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	)
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.SKU, item.Qty))
		lines = append(lines, fmt.Sprintf("  %d", item.UnitPriceCents*int64(item.Qty)))
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Subtotal : %d", sale.SubtotalCents),
		fmt.Sprintf("Diskon   : %d", sale.DiscountCents),
		fmt.Sprintf("Pajak    : %d", sale.TaxCents),
		fmt.Sprintf("Total    : %d", sale.TotalCents),
		fmt.Sprintf("Bayar    : %d", sale.CashReceivedCents),
		fmt.Sprintf("Kembali  : %d", sale.ChangeCents),
	)
	if sale.PaymentMethod == domain.PaymentBNPL {
		lines = append(lines, fmt.Sprintf("Cicilan  : %d", sale.TotalCents-sale.DownPaymentCents))
		if sale.BNPLDueDate != nil {
			lines = append(lines, "Jatuh tempo: "+sale.BNPLDueDate.Format("2006-01-02"))
		}
	}
	if sale.Status != domain.SaleStatusPaid {
		lines = append(lines, "Status   : "+strings.ToUpper(sale.Status))
	}
	lines = append(lines,
		"========================",
		"Terima kasih",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, 0x1d, 0x56, 0x41, 0x10)

	return domain.ReceiptResponse{
		SaleID:       sale.ID,
		Lines:        lines,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}
}
