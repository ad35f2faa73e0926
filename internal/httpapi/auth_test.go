package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"posbackoffice/backend/internal/domain"
	"posbackoffice/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func plainAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := plainAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, "482915", users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	saved, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 user, got %d", len(saved))
	}
	if !strings.HasPrefix(saved[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", saved[0].Password)
	}
	if users.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestLoginIsCaseInsensitiveOnUsername(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "482915", plainAdminStore())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	users := plainAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, "482915", users)

	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{
		Username: "nightshift",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "nightshift" || cashier.Role != "cashier" {
		t.Fatalf("unexpected cashier %+v", cashier)
	}

	saved := users.users["nightshift"]
	if saved.Password == "pass1234" || !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected cashier password to be hashed, got %s", saved.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "nightshift", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}
	if got := manager.ListCashiers(context.Background()); len(got) != 1 || got[0].Username != "nightshift" {
		t.Fatalf("expected one listed cashier, got %+v", got)
	}
}

func TestCreateCashierRejectsDuplicateAndShortInput(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "482915", plainAdminStore())

	_, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "admin", Password: "pass1234"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for taken username, got %v", err)
	}
	_, err = manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "abc", Password: "pass1234"})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for short username, got %v", err)
	}
	_, err = manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "night shift", Password: "pass1234"})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for username with spaces, got %v", err)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "654321", &userStoreStub{})

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

func TestUnsetManagerPINRejectsEverything(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "", &userStoreStub{})

	for _, pin := range []string{"", "disabled", "123456"} {
		if manager.ValidateManagerPIN(pin) {
			t.Fatalf("expected pin %q to be rejected when no manager pin is configured", pin)
		}
	}
}

func TestParseTokenRejectsForeignIssuerAndSecret(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "482915", plainAdminStore())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil || actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("expected admin actor, got %+v (%v)", actor, err)
	}

	other := NewAuthManager("another-secret", time.Hour, "482915", plainAdminStore())
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	foreign, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "admin",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign foreign token: %v", err)
	}
	if _, err := manager.ParseToken(foreign); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}
}
