// Package domain contains the subscription ledger: one row per
// purchase, keyed by the provider order so webhook replays converge on
// the same row.
package domain

import (
	"time"

	"github.com/appforge/appforge/internal/plan"
	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of one subscription row.
type Status string

const (
	// StatusActive rows carry current entitlement until expires_at.
	StatusActive Status = "active"
	// StatusPending rows are paid downgrades waiting for the current
	// period to run out.
	StatusPending Status = "pending"
	// StatusSuperseded rows were replaced by a later purchase before
	// their natural expiry (an upgrade consuming the remainder).
	StatusSuperseded Status = "superseded"
)

type Subscription struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID          string       `json:"user_id" gorm:"type:text;not null;index"`
	Plan            plan.Tier    `json:"plan" gorm:"type:text;not null"`
	Period          plan.Period  `json:"period" gorm:"type:text;not null"`
	Status          Status       `json:"status" gorm:"type:text;not null;index"`
	StartedAt       time.Time    `json:"started_at" gorm:"not null"`
	ExpiresAt       time.Time    `json:"expires_at" gorm:"not null"`
	Provider        string       `json:"provider" gorm:"type:text;not null"`
	ProviderOrderID string       `json:"provider_order_id" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
