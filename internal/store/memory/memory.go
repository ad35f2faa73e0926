// Package memory is the Repository used when no DATABASE_URL is configured.
// A single RWMutex guards all state, which makes every multi-row write
// atomic the way a Postgres transaction is.
package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
)

const seedStoreID = "main-store"

type Store struct {
	mu sync.RWMutex

	// catalog and stock
	products     map[string]domain.Product
	priceHistory map[string][]domain.ProductPriceHistory
	stock        map[string]map[string]int   // store -> sku -> qty
	costs        map[string]map[string]int64 // store -> sku -> weighted cost
	suppliers    map[string]domain.Supplier
	orders       map[string]domain.PurchaseOrder

	// sales side
	salesByID       map[string]*domain.Sale
	salesByIdem     map[string]*domain.Sale
	refundsByID     map[string]domain.Refund
	itemReturnsByID map[string]domain.ItemReturn
	reprints        []domain.ReceiptReprint

	// credit and money
	customersByID map[string]domain.Customer
	bnplByID      map[string]*domain.BNPLTransaction
	bnplBySale    map[string]string
	bnplPayments  []domain.BNPLPayment
	expenses      []domain.Expense
	cashLedger    []domain.CashLedgerEntry

	auditLogs []domain.AuditLog
	users     map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store with no products and no users.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		priceHistory:    make(map[string][]domain.ProductPriceHistory),
		stock:           make(map[string]map[string]int),
		costs:           make(map[string]map[string]int64),
		suppliers:       make(map[string]domain.Supplier),
		orders:          make(map[string]domain.PurchaseOrder),
		salesByID:       make(map[string]*domain.Sale),
		salesByIdem:     make(map[string]*domain.Sale),
		refundsByID:     make(map[string]domain.Refund),
		itemReturnsByID: make(map[string]domain.ItemReturn),
		customersByID:   make(map[string]domain.Customer),
		bnplByID:        make(map[string]*domain.BNPLTransaction),
		bnplBySale:      make(map[string]string),
		users:           make(map[string]domain.UserAccount),
	}
}

var seedCatalog = []domain.Product{
	{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", PriceCents: 3500, MarginRate: 0.22},
	{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", PriceCents: 26500, MarginRate: 0.13},
	{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", PriceCents: 18900, MarginRate: 0.28},
	{SKU: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery", PriceCents: 17800, MarginRate: 0.30},
	{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", PriceCents: 2600, MarginRate: 0.34},
	{SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", PriceCents: 17400, MarginRate: 0.12},
	{SKU: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage", PriceCents: 9800, MarginRate: 0.26},
	{SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", PriceCents: 3900, MarginRate: 0.18},
	{SKU: "SKU-KERIPIK-01", Name: "Keripik Singkong", Category: "snack", PriceCents: 12800, MarginRate: 0.37},
	{SKU: "SKU-COKLAT-01", Name: "Coklat Batang", Category: "snack", PriceCents: 8600, MarginRate: 0.35},
	{SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", PriceCents: 7400, MarginRate: 0.32},
	{SKU: "SKU-SHAMPOO-01", Name: "Shampoo Sachet", Category: "household", PriceCents: 3200, MarginRate: 0.33},
}

// NewSeeded returns a demo store: the grocery catalog stocked at 120 units
// in main-store, plus an admin and a cashier account.
func NewSeeded() *Store {
	s := New()
	shelf := s.stockFor(seedStoreID)
	for _, product := range seedCatalog {
		product.Active = true
		s.products[product.SKU] = product
		shelf[product.SKU] = 120
	}
	s.costs[seedStoreID] = make(map[string]int64)

	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	cashierPassword := os.Getenv("SEED_CASHIER_PASSWORD")
	if adminPassword == "" || cashierPassword == "" {
		log.Warn().Str("component", "memory-store").Msg("seeding dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}
	s.seedUser("admin", "admin", orDefault(adminPassword, "admin123"))
	s.seedUser("cashier", "cashier", orDefault(cashierPassword, "cashier123"))
	return s
}

func (s *Store) seedUser(username string, role string, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Str("username", username).Msg("hash seed password")
	}
	s.users[username] = domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func orDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (s *Store) Now(_ context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.users[user.Username]; taken {
		return fmt.Errorf("%w: username %s taken", store.ErrConflict, user.Username)
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := valuesOf(s.users)
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

// stockFor and costsFor need the write lock.
func (s *Store) stockFor(storeID string) map[string]int {
	shelf, ok := s.stock[storeID]
	if !ok {
		shelf = make(map[string]int)
		s.stock[storeID] = shelf
	}
	return shelf
}

func (s *Store) costsFor(storeID string) map[string]int64 {
	costs, ok := s.costs[storeID]
	if !ok {
		costs = make(map[string]int64)
		s.costs[storeID] = costs
	}
	return costs
}

func valuesOf[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// inRange reports whether t falls in [from, to); zero bounds are open.
func inRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	return to.IsZero() || t.Before(to)
}

func newestFirst(aAt time.Time, bAt time.Time, aID string, bID string) int {
	if c := bAt.Compare(aAt); c != 0 {
		return c
	}
	return strings.Compare(bID, aID)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
