// Package domain contains the per-user wallet: the denormalized plan
// entitlement snapshot the rest of the product reads on the hot path.
package domain

import (
	"encoding/json"
	"time"

	"github.com/appforge/appforge/internal/plan"
	"gorm.io/datatypes"
)

// Wallet is the single row per user that mirrors the subscription
// ledger. It is always written inside the same transaction as the
// subscription rows so the two never diverge.
type Wallet struct {
	UserID             string     `gorm:"primaryKey;type:text" json:"user_id"`
	Plan               plan.Tier  `gorm:"type:text;not null" json:"plan"`
	PlanExpiresAt      *time.Time `gorm:"" json:"plan_expires_at"`
	DailyBuildsLimit   int        `gorm:"not null" json:"daily_builds_limit"`
	DailyBuildsUsed    int        `gorm:"not null;default:0" json:"daily_builds_used"`
	DailyBuildsResetAt time.Time  `gorm:"not null" json:"daily_builds_reset_at"`
	FileRetentionDays  int        `gorm:"not null" json:"file_retention_days"`
	ShareExpireDays    int        `gorm:"not null" json:"share_expire_days"`
	BatchBuildEnabled  bool       `gorm:"not null;default:false" json:"batch_build_enabled"`
	// BillingCycleAnchor is the day-of-month renewals stick to. Set on
	// fresh purchase, preserved across renewals.
	BillingCycleAnchor int `gorm:"not null;default:1" json:"billing_cycle_anchor"`
	// PendingDowngrade is a JSON annotation rebuilt from the pending
	// subscription rows on every write, never mutated incrementally.
	PendingDowngrade datatypes.JSON `gorm:"type:jsonb" json:"pending_downgrade,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// PendingChange is one scheduled downgrade recorded on the wallet.
type PendingChange struct {
	Plan        plan.Tier   `json:"plan"`
	Period      plan.Period `json:"period"`
	EffectiveAt time.Time   `json:"effective_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// EncodePendingChanges marshals the annotation, returning nil JSON for
// an empty list so the column reads as absent.
func EncodePendingChanges(changes []PendingChange) (datatypes.JSON, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodePendingChanges unmarshals the annotation. A NULL or empty
// column decodes to nil.
func DecodePendingChanges(raw datatypes.JSON) ([]PendingChange, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var changes []PendingChange
	if err := json.Unmarshal(raw, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}
