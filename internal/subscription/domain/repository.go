package domain

import (
	"context"
	"time"

	"github.com/appforge/appforge/internal/plan"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// FindCurrent returns the active row with the latest expiry still
	// in the future, or nil.
	FindCurrent(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*Subscription, error)
	// Upsert converges on the provider order key: a replayed webhook
	// rewrites the same row with the same absolute values.
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	// Supersede closes other active rows for the user when a purchase
	// replaces their entitlement. The kept row is identified by order
	// id because a replayed upsert keeps the original row id.
	Supersede(ctx context.Context, db *gorm.DB, userID string, keepOrderID string, at time.Time) error
	ListPendingByUser(ctx context.Context, db *gorm.DB, userID string) ([]Subscription, error)
	// DeletePendingForPlans removes scheduled downgrades made obsolete
	// by a later purchase of an equal or higher tier.
	DeletePendingForPlans(ctx context.Context, db *gorm.DB, userID string, plans []plan.Tier) error
	// ListDuePending returns pending rows whose effective time arrived.
	ListDuePending(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
