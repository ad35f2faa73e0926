package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"posbackoffice/backend/internal/cache"
	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/xid"
)

// ErrAdminRequired is returned when an operation needs the admin role.
var ErrAdminRequired = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultStoreID   string
	StoreName        string
	ReturnWindowDays int
	BNPLTermDays     int
	ReportCacheTTL   time.Duration
}

type Service struct {
	repo    store.Repository
	reports cache.ReportCache
	opts    Options
	log     zerolog.Logger
	now     func() time.Time
}

func New(repo store.Repository, reports cache.ReportCache, opts Options, logger zerolog.Logger) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.StoreName == "" {
		opts.StoreName = "POS Back Office"
	}
	if opts.ReturnWindowDays < 1 {
		opts.ReturnWindowDays = 30
	}
	if opts.BNPLTermDays < 1 {
		opts.BNPLTermDays = 30
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}

	return &Service{
		repo:    repo,
		reports: reports,
		opts:    opts,
		log:     logger.With().Str("component", "service").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DefaultStoreID is the store used when a request leaves store_id empty.
func (s *Service) DefaultStoreID() string {
	return s.opts.DefaultStoreID
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Actor{}, ErrAdminRequired
	}
	return actor, nil
}

func (s *Service) actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func (s *Service) storeOr(storeID string) string {
	if strings.TrimSpace(storeID) == "" {
		return s.opts.DefaultStoreID
	}
	return strings.TrimSpace(storeID)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.opts.DefaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

// parseDay reads a YYYY-MM-DD date; empty means today (UTC).
func (s *Service) parseDay(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		return startOfDay(s.now()), nil
	}
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidTransaction)
	}
	return parsed.UTC(), nil
}

// parseRange reads optional from/to dates. The range is [from, to+1d).
// An empty range covers today.
func (s *Service) parseRange(from string, to string) (time.Time, time.Time, error) {
	start, err := s.parseDay(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := start
	if strings.TrimSpace(to) != "" {
		end, err = s.parseDay(to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to before from", store.ErrInvalidTransaction)
	}
	return start, end.Add(24 * time.Hour), nil
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func deriveUnitCost(product domain.Product) int64 {
	if product.PriceCents < 1 {
		return 0
	}
	estimated := int64(math.Round(float64(product.PriceCents) * (1 - product.MarginRate)))
	if estimated < 1 {
		return 1
	}
	return estimated
}

func defaultReorderPoint(product domain.Product) int {
	point := 30
	switch strings.ToLower(product.Category) {
	case "grocery", "beverage":
		point = 40
	case "dairy", "snack":
		point = 35
	}
	if product.MarginRate < 0.15 {
		point += 10
	}
	return point
}

func severityRank(severity string) int {
	switch severity {
	case "high":
		return 1
	case "medium":
		return 2
	default:
		return 3
	}
}
