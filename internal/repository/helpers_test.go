package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewSQLiteDB(":memory:", logger.Nop())
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

// createTestUser creates a test user in the database.
func createTestUser(t *testing.T, db *DB, username, store, role string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Store:    store,
		Role:     role,
		IsActive: true,
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func createTestSale(t *testing.T, db *DB, sellerID uint, amount float64, items int, soldAt time.Time) {
	t.Helper()

	sale := &models.Sale{SellerID: sellerID, Amount: amount, ItemCount: items, SoldAt: soldAt}
	if err := NewSalesRepository(db).Create(context.Background(), sale); err != nil {
		t.Fatalf("Failed to create test sale: %v", err)
	}
}
