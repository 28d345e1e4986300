package repository

import (
	"context"
	"errors"
	"time"

	walletdomain "github.com/appforge/appforge/internal/wallet/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() walletdomain.Repository {
	return &repo{}
}

func (r *repo) FindByUser(ctx context.Context, db *gorm.DB, userID string) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, wallet *walletdomain.Wallet) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan",
			"plan_expires_at",
			"daily_builds_limit",
			"daily_builds_used",
			"daily_builds_reset_at",
			"file_retention_days",
			"share_expire_days",
			"batch_build_enabled",
			"billing_cycle_anchor",
			"pending_downgrade",
			"updated_at",
		}),
	}).Create(wallet).Error
}

func (r *repo) ListDueForReset(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]walletdomain.Wallet, error) {
	var wallets []walletdomain.Wallet
	err := db.WithContext(ctx).
		Where("daily_builds_reset_at <= ?", now).
		Order("daily_builds_reset_at asc").
		Limit(limit).
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *repo) ResetDaily(ctx context.Context, db *gorm.DB, userID string, nextResetAt time.Time) error {
	return db.WithContext(ctx).
		Model(&walletdomain.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"daily_builds_used":     0,
			"daily_builds_reset_at": nextResetAt,
		}).Error
}
