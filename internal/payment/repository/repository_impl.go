package repository

import (
	"context"
	"errors"
	"time"

	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, record *paymentdomain.PaymentRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, provider paymentdomain.Provider, providerOrderID string) (*paymentdomain.PaymentRecord, error) {
	var record paymentdomain.PaymentRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_order_id = ?", provider, providerOrderID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) CompletePayment(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTxnID string, completedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&paymentdomain.PaymentRecord{}).
		Where("id = ? AND status = ?", id, paymentdomain.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":          paymentdomain.PaymentStatusCompleted,
			"provider_txn_id": providerTxnID,
			"completed_at":    completedAt,
			"updated_at":      completedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *paymentdomain.WebhookEvent) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, eventID string) (*paymentdomain.WebhookEvent, error) {
	var event paymentdomain.WebhookEvent
	err := db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, eventID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&paymentdomain.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": at,
		}).Error
}
