package mocks

import (
	"context"
	"time"

	"github.com/aimd54/retail-gamification/internal/models"
)

// MockSalesProvider is a simple mock for the sales aggregate queries
type MockSalesProvider struct {
	TotalsFunc         func(sellerID uint, start, end time.Time) (models.SalesTotals, error)
	HadSaleBetweenFunc func(sellerID uint, start, end time.Time) (bool, error)
}

func (m *MockSalesProvider) Totals(_ context.Context, sellerID uint, start, end time.Time) (models.SalesTotals, error) {
	if m.TotalsFunc != nil {
		return m.TotalsFunc(sellerID, start, end)
	}
	return models.SalesTotals{}, nil
}

func (m *MockSalesProvider) HadSaleBetween(_ context.Context, sellerID uint, start, end time.Time) (bool, error) {
	if m.HadSaleBetweenFunc != nil {
		return m.HadSaleBetweenFunc(sellerID, start, end)
	}
	return false, nil
}

// MockRoleProvider is a simple mock for user role lookups
type MockRoleProvider struct {
	RoleOfFunc func(userID uint) (string, error)
}

func (m *MockRoleProvider) RoleOf(_ context.Context, userID uint) (string, error) {
	if m.RoleOfFunc != nil {
		return m.RoleOfFunc(userID)
	}
	return models.RoleSeller, nil
}

// MockTopSellerProvider is a simple mock for monthly stats lookups
type MockTopSellerProvider struct {
	TopSellerFunc func(month string) (*models.MonthlySellerStats, error)
}

func (m *MockTopSellerProvider) TopSeller(_ context.Context, month string) (*models.MonthlySellerStats, error) {
	if m.TopSellerFunc != nil {
		return m.TopSellerFunc(month)
	}
	return nil, nil
}

// MockBestSellerRecorder is a simple mock for the best-seller write path
type MockBestSellerRecorder struct {
	RecordBestSellerFunc func(userID uint, month string) (*models.UserGamification, error)
}

func (m *MockBestSellerRecorder) RecordBestSeller(_ context.Context, userID uint, month string) (*models.UserGamification, error) {
	if m.RecordBestSellerFunc != nil {
		return m.RecordBestSellerFunc(userID, month)
	}
	return nil, nil
}
