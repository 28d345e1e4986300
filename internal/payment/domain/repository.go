package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindPayment(ctx context.Context, db *gorm.DB, provider Provider, providerOrderID string) (*PaymentRecord, error)
	// CompletePayment flips PENDING to COMPLETED. Returns false when
	// the record was already completed.
	CompletePayment(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTxnID string, completedAt time.Time) (bool, error)
	// InsertEvent inserts the ledger row if absent. Returns false when
	// the key already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, eventID string) (*WebhookEvent, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, eventID string, at time.Time) error
}
