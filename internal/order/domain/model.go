// Package domain contains the order history shown to users and
// operators. Orders are derived records; the payment ledger stays the
// source of truth.
package domain

import (
	"context"
	"time"

	"github.com/appforge/appforge/internal/plan"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPaid OrderStatus = "PAID"
)

type Order struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID          string        `json:"user_id" gorm:"type:text;not null;index"`
	Provider        string        `json:"provider" gorm:"type:text;not null"`
	ProviderOrderID string        `json:"provider_order_id" gorm:"type:text;not null;uniqueIndex"`
	ProviderTxnID   string        `json:"provider_txn_id" gorm:"type:text"`
	Plan            plan.Tier     `json:"plan" gorm:"type:text;not null"`
	Period          plan.Period   `json:"period" gorm:"type:text;not null"`
	Kind            string        `json:"kind" gorm:"type:text;not null"`
	Amount          int64         `json:"amount" gorm:"not null"`
	Currency        plan.Currency `json:"currency" gorm:"type:text;not null"`
	Status          OrderStatus   `json:"status" gorm:"type:text;not null"`
	PaidAt          time.Time     `json:"paid_at" gorm:"not null"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

type Repository interface {
	// Insert records the order once; a webhook replay that reaches the
	// order step again is a no-op.
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]Order, error)
}
