package repository

import (
	"context"
	"errors"
	"time"

	"github.com/appforge/appforge/internal/plan"
	subscriptiondomain "github.com/appforge/appforge/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND expires_at > ?", userID, subscriptiondomain.StatusActive, now).
		Order("expires_at desc").
		First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan",
			"period",
			"status",
			"started_at",
			"expires_at",
			"updated_at",
		}),
	}).Create(subscription).Error
}

func (r *repo) Supersede(ctx context.Context, db *gorm.DB, userID string, keepOrderID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("user_id = ? AND status = ? AND provider_order_id <> ?", userID, subscriptiondomain.StatusActive, keepOrderID).
		Updates(map[string]interface{}{
			"status":     subscriptiondomain.StatusSuperseded,
			"updated_at": at,
		}).Error
}

func (r *repo) ListPendingByUser(ctx context.Context, db *gorm.DB, userID string) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, subscriptiondomain.StatusPending).
		Order("started_at asc").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) DeletePendingForPlans(ctx context.Context, db *gorm.DB, userID string, plans []plan.Tier) error {
	if len(plans) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND plan IN ?", userID, subscriptiondomain.StatusPending, plans).
		Delete(&subscriptiondomain.Subscription{}).Error
}

func (r *repo) ListDuePending(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ? AND started_at <= ?", subscriptiondomain.StatusPending, now).
		Order("started_at asc").
		Limit(limit).
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("id = ? AND status = ?", id, subscriptiondomain.StatusPending).
		Updates(map[string]interface{}{
			"status":     subscriptiondomain.StatusActive,
			"updated_at": at,
		}).Error
}
