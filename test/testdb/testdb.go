// Package testdb provides an in-memory SQLite database and fixtures for service tests.
package testdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/repository"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// New opens a migrated in-memory database that is closed when the test ends.
func New(t testing.TB) *repository.DB {
	t.Helper()

	db, err := repository.NewSQLiteDB(":memory:", logger.Nop())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

// CreateUser inserts an active user.
func CreateUser(t testing.TB, db *repository.DB, username, store, role string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Store:    store,
		Role:     role,
		IsActive: true,
	}
	if err := repository.NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// CreateSale inserts a completed sale.
func CreateSale(t testing.TB, db *repository.DB, sellerID uint, amount float64, items int, soldAt time.Time) *models.Sale {
	t.Helper()

	sale := &models.Sale{SellerID: sellerID, Amount: amount, ItemCount: items, SoldAt: soldAt}
	if err := repository.NewSalesRepository(db).Create(context.Background(), sale); err != nil {
		t.Fatalf("Failed to create test sale: %v", err)
	}
	return sale
}
