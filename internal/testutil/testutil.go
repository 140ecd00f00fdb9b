package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/models"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/store"
)

// OpenStore opens a migrated SQLite store in a temp dir.
// The store is closed via t.Cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return s
}

// CreateUser inserts a user whose password is hashed with the minimum bcrypt cost.
func CreateUser(t *testing.T, s *store.Store, username, password string, admin bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &models.User{Username: username, Password: string(hash), Phone: "555000111", IsAdmin: admin}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// CreateMachine inserts a listing owned by owner.
func CreateMachine(t *testing.T, s *store.Store, owner *models.User, name, category string, price float64) *models.Machine {
	t.Helper()
	m := &models.Machine{Name: name, Category: category, Price: price, OwnerID: owner.ID}
	if err := s.CreateMachine(context.Background(), m); err != nil {
		t.Fatalf("create machine %s: %v", name, err)
	}
	return m
}
