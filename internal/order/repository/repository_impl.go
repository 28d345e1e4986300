package repository

import (
	"context"

	orderdomain "github.com/appforge/appforge/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_order_id"}},
		DoNothing: true,
	}).Create(order).Error
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("paid_at desc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
