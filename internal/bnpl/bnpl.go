// Package bnpl holds the pure credit arithmetic for buy-now-pay-later
// balances: oldest-due-first payment allocation and receivable aging.
// Nothing here touches storage; callers persist the results atomically.
package bnpl

import (
	"slices"
	"strings"
	"time"

	"posbackoffice/backend/internal/domain"
)

// OpenBalance is one outstanding credit line considered for allocation.
type OpenBalance struct {
	TransactionID string
	DueDate       time.Time
	CreatedAt     time.Time
	BalanceCents  int64
}

// FromTransactions keeps the open transactions with a positive balance.
func FromTransactions(txs []domain.BNPLTransaction) []OpenBalance {
	open := make([]OpenBalance, 0, len(txs))
	for _, tx := range txs {
		if tx.Status != domain.BNPLStatusOpen || tx.BalanceCents < 1 {
			continue
		}
		open = append(open, OpenBalance{
			TransactionID: tx.ID,
			DueDate:       tx.DueDate,
			CreatedAt:     tx.CreatedAt,
			BalanceCents:  tx.BalanceCents,
		})
	}
	return open
}

// Outstanding sums the positive balances.
func Outstanding(open []OpenBalance) int64 {
	total := int64(0)
	for _, b := range open {
		if b.BalanceCents > 0 {
			total += b.BalanceCents
		}
	}
	return total
}

// Allocate spreads payment over open balances, earliest due date first
// (ties broken by creation time, then id). No balance receives more than it
// owes. The returned unapplied amount is whatever the balances could not
// absorb, so the sum of applied cents plus unapplied always equals payment.
// The input slice is not modified.
func Allocate(open []OpenBalance, payment int64) ([]domain.BNPLAllocation, int64) {
	if payment <= 0 {
		return nil, max(payment, 0)
	}

	ordered := slices.Clone(open)
	slices.SortStableFunc(ordered, compareDue)

	remaining := payment
	allocations := make([]domain.BNPLAllocation, 0, len(ordered))
	for _, b := range ordered {
		if remaining == 0 {
			break
		}
		if b.BalanceCents < 1 {
			continue
		}
		applied := min(remaining, b.BalanceCents)
		allocations = append(allocations, domain.BNPLAllocation{
			TransactionID:     b.TransactionID,
			AppliedCents:      applied,
			BalanceAfterCents: b.BalanceCents - applied,
		})
		remaining -= applied
	}
	return allocations, remaining
}

func compareDue(a, b OpenBalance) int {
	if c := a.DueDate.Compare(b.DueDate); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.TransactionID, b.TransactionID)
}

// Age buckets balances by whole days past due as of asOf.
func Age(open []OpenBalance, asOf time.Time) domain.BNPLAging {
	var aging domain.BNPLAging
	for _, b := range open {
		if b.BalanceCents < 1 {
			continue
		}
		days := domain.BNPLTransaction{DueDate: b.DueDate}.DaysOverdue(asOf)
		switch {
		case days == 0:
			aging.CurrentCents += b.BalanceCents
		case days <= 30:
			aging.Days1To30Cents += b.BalanceCents
		case days <= 60:
			aging.Days31To60Cents += b.BalanceCents
		case days <= 90:
			aging.Days61To90Cents += b.BalanceCents
		default:
			aging.Over90Cents += b.BalanceCents
		}
		if days > 0 {
			aging.OverdueCount++
		}
		aging.TotalCents += b.BalanceCents
	}
	return aging
}
