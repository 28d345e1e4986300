package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByUser(ctx context.Context, db *gorm.DB, userID string) (*Wallet, error)
	Upsert(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	// ListDueForReset returns wallets whose daily counter window has
	// elapsed as of now.
	ListDueForReset(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Wallet, error)
	ResetDaily(ctx context.Context, db *gorm.DB, userID string, nextResetAt time.Time) error
}
