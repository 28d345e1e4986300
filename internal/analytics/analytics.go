// Package analytics records purchase funnel events. Writes are
// fire-and-forget: a failed analytics insert never fails the payment
// that produced it.
package analytics

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Event struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID     string            `json:"user_id" gorm:"type:text;not null;index"`
	Name       string            `json:"name" gorm:"type:text;not null;index"`
	Properties datatypes.JSONMap `json:"properties" gorm:"type:jsonb"`
	OccurredAt time.Time         `json:"occurred_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "analytics_events" }

const (
	EventPurchaseCompleted = "purchase_completed"
	EventAmountMismatch    = "payment_amount_mismatch"
	EventOrphanNotice      = "payment_orphan_notice"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("analytics"),
		genID: p.GenID,
	}
}

// Track writes one event and swallows the error.
func (s *Service) Track(ctx context.Context, userID, name string, properties map[string]interface{}, occurredAt time.Time) {
	event := Event{
		ID:         s.genID.Generate(),
		UserID:     userID,
		Name:       name,
		Properties: datatypes.JSONMap(properties),
		OccurredAt: occurredAt,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.log.Warn("analytics event dropped",
			zap.String("name", name),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

var Module = fx.Module("analytics",
	fx.Provide(NewService),
)
