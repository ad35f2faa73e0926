package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"posbackoffice/backend/internal/cache"
	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/xid"
)

// SalesSummary aggregates sales, refunds, BNPL, expenses and cash for the
// given dates (inclusive). Results are served from the report cache.
func (s *Service) SalesSummary(ctx context.Context, storeID string, from string, to string) (domain.SalesSummary, error) {
	start, end, err := s.parseRange(from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return s.summary(ctx, s.storeOr(storeID), start, end, false)
}

// DailyReport is the summary of one calendar day.
func (s *Service) DailyReport(ctx context.Context, storeID string, date string) (domain.SalesSummary, error) {
	day, err := s.parseDay(date)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return s.summary(ctx, s.storeOr(storeID), day, day.Add(24*time.Hour), false)
}

// RefreshTodaySummary recomputes today's summary for the default store and
// overwrites the cached copy.
func (s *Service) RefreshTodaySummary(ctx context.Context) (domain.SalesSummary, error) {
	day := startOfDay(s.now())
	return s.summary(ctx, s.opts.DefaultStoreID, day, day.Add(24*time.Hour), true)
}

func (s *Service) summary(ctx context.Context, storeID string, from time.Time, to time.Time, refresh bool) (domain.SalesSummary, error) {
	key := cache.SummaryKey(storeID, from, to)
	if !refresh {
		cached, ok, err := s.reports.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		} else if ok {
			return *cached, nil
		}
	}

	summary, err := s.repo.GetSalesSummary(ctx, storeID, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary.StoreID = storeID
	summary.From = from.Format("2006-01-02")
	summary.To = to.Add(-24 * time.Hour).Format("2006-01-02")
	summary.GeneratedAt = s.now().Format(time.RFC3339)

	if err := s.reports.Set(ctx, key, &summary, s.opts.ReportCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("report cache write failed")
	}
	return summary, nil
}

// Dashboard loads today's summary, the cash balance, BNPL aging and the
// low-stock count concurrently.
func (s *Service) Dashboard(ctx context.Context, storeID string) (domain.Dashboard, error) {
	storeID = s.storeOr(storeID)
	dashboard := domain.Dashboard{StoreID: storeID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		today, err := s.DailyReport(gctx, storeID, "")
		dashboard.Today = today
		return err
	})
	g.Go(func() error {
		cash, err := s.CashBalance(gctx, storeID, "")
		dashboard.Cash = cash
		return err
	})
	g.Go(func() error {
		aging, err := s.BNPLAgingReport(gctx, storeID)
		dashboard.Aging = aging
		return err
	})
	g.Go(func() error {
		low, err := s.ListStockLevels(gctx, storeID, true)
		dashboard.LowStockCount = len(low.Items)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Dashboard{}, err
	}

	dashboard.GeneratedAt = s.now().Format(time.RFC3339)
	return dashboard, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		day, err := s.parseDay(date)
		if err != nil {
			return nil, err
		}
		from = day
	}
	return s.repo.ListAuditLogs(ctx, s.storeOr(storeID), from, from.Add(24*time.Hour), limit)
}

type alertRule struct {
	code      string
	severity  string
	threshold int
	title     string
	describe  func(actor string, count int) string
}

var perActorRules = map[string]alertRule{
	"void": {
		code: "void_spike", severity: "high", threshold: 3, title: "Void transaksi meningkat",
		describe: func(actor string, count int) string {
			return fmt.Sprintf("Actor %s melakukan %d void transaksi dalam 1 hari.", actor, count)
		},
	},
	"refund": {
		code: "refund_spike", severity: "high", threshold: 2, title: "Refund transaksi meningkat",
		describe: func(actor string, count int) string {
			return fmt.Sprintf("Actor %s melakukan %d refund dalam 1 hari.", actor, count)
		},
	},
	"reprint": {
		code: "reprint_spike", severity: "medium", threshold: 3, title: "Cetak ulang struk meningkat",
		describe: func(actor string, count int) string {
			return fmt.Sprintf("Actor %s mencetak ulang struk %d kali dalam 1 hari.", actor, count)
		},
	},
}

func (s *Service) DetectOperationalAnomalies(ctx context.Context, storeID string, date string) (domain.OperationalAlertResponse, error) {
	storeID = s.storeOr(storeID)

	logs, err := s.ListAuditLogs(ctx, storeID, date, 500)
	if err != nil {
		return domain.OperationalAlertResponse{}, err
	}

	byActor := map[string]map[string]int{"void": {}, "refund": {}, "reprint": {}}
	manualOverrideCount := 0
	stockCountBatches := 0

	for _, entry := range logs {
		switch entry.Action {
		case "void_sale":
			byActor["void"][entry.ActorUsername]++
		case "refund_sale", "item_return":
			byActor["refund"][entry.ActorUsername]++
		case "receipt_reprint":
			byActor["reprint"][entry.ActorUsername]++
		case "stock_count":
			stockCountBatches++
		case "checkout":
			if strings.Contains(entry.Detail, "manual_override=true") {
				manualOverrideCount++
			}
		}
	}

	createdAt := s.now().Format(time.RFC3339)
	alerts := make([]domain.OperationalAlert, 0, 16)
	for kind, counts := range byActor {
		rule := perActorRules[kind]
		for actor, count := range counts {
			if count < rule.threshold {
				continue
			}
			alerts = append(alerts, domain.OperationalAlert{
				ID:          xid.New("alert"),
				Code:        rule.code,
				Severity:    rule.severity,
				Title:       rule.title,
				Description: rule.describe(actor, count),
				MetricValue: float64(count),
				Threshold:   float64(rule.threshold),
				CreatedAt:   createdAt,
			})
		}
	}
	if manualOverrideCount >= 5 {
		alerts = append(alerts, domain.OperationalAlert{
			ID:          xid.New("alert"),
			Code:        "manual_override_spike",
			Severity:    "medium",
			Title:       "Manual override tinggi",
			Description: fmt.Sprintf("Terdapat %d checkout dengan manual override.", manualOverrideCount),
			MetricValue: float64(manualOverrideCount),
			Threshold:   5,
			CreatedAt:   createdAt,
		})
	}
	if stockCountBatches >= 3 {
		alerts = append(alerts, domain.OperationalAlert{
			ID:          xid.New("alert"),
			Code:        "stock_count_frequency",
			Severity:    "medium",
			Title:       "Frekuensi stock opname tinggi",
			Description: fmt.Sprintf("Stock opname dijalankan %d kali hari ini.", stockCountBatches),
			MetricValue: float64(stockCountBatches),
			Threshold:   3,
			CreatedAt:   createdAt,
		})
	}

	slices.SortFunc(alerts, func(a, b domain.OperationalAlert) int {
		if c := severityRank(a.Severity) - severityRank(b.Severity); c != 0 {
			return c
		}
		switch {
		case a.MetricValue > b.MetricValue:
			return -1
		case a.MetricValue < b.MetricValue:
			return 1
		}
		return strings.Compare(a.Description, b.Description)
	})

	reportDate := strings.TrimSpace(date)
	if reportDate == "" {
		reportDate = s.now().Format("2006-01-02")
	}

	return domain.OperationalAlertResponse{
		StoreID: storeID,
		Date:    reportDate,
		Alerts:  alerts,
	}, nil
}

// ServerTime compares the application clock with the database clock.
func (s *Service) ServerTime(ctx context.Context) (domain.ServerTime, error) {
	dbTime, err := s.repo.Now(ctx)
	if err != nil {
		return domain.ServerTime{}, err
	}
	appTime := s.now()
	return domain.ServerTime{
		AppTime:      appTime,
		DatabaseTime: dbTime.UTC(),
		SkewMillis:   appTime.Sub(dbTime).Milliseconds(),
		Timezone:     appTime.Location().String(),
	}, nil
}
