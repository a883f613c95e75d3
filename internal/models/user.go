// Package models defines domain models for the retail gamification service.
package models

import (
	"time"
)

// Role constants.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleSeller  = "seller"
)

// User is the identity row owned by the user administration module.
// The gamification core only reads it for roles and activity.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Email     string    `gorm:"size:255" json:"email"`
	Role      string    `gorm:"size:50;index" json:"role"` // 'admin', 'manager' or 'seller'
	Store     string    `gorm:"size:100;index" json:"store"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// IsPrivileged reports whether the user may perform admin point adjustments.
func (u *User) IsPrivileged() bool {
	return u.Role == RoleAdmin
}

// Sale is the read model of a completed sale, written by the sales module.
type Sale struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SellerID  uint      `gorm:"not null;index:idx_sales_seller_time,priority:1" json:"seller_id"`
	Amount    float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	ItemCount int       `gorm:"not null;default:1" json:"item_count"`
	SoldAt    time.Time `gorm:"not null;index:idx_sales_seller_time,priority:2;index" json:"sold_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Sale model.
func (Sale) TableName() string {
	return "sales"
}

// Configuration represents a configuration key-value pair.
type Configuration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null;size:255" json:"key"`
	Value     []byte    `gorm:"type:jsonb;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Configuration model.
func (Configuration) TableName() string {
	return "configuration"
}

// SalesTotals aggregates a seller's sales over a period. It is not persisted.
type SalesTotals struct {
	Count  int64   `json:"count"`
	Amount float64 `json:"amount"`
	Items  int64   `json:"items"`
}
