// Package domain contains the payment ledger models and the canonical
// notice adapters produce from provider webhooks.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/appforge/appforge/internal/plan"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Provider identifies a payment provider.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
	ProviderWechat Provider = "wechat"
	ProviderAlipay Provider = "alipay"
)

// ParseProvider normalizes a raw provider name from the URL path.
func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderStripe:
		return ProviderStripe, nil
	case ProviderPayPal:
		return ProviderPayPal, nil
	case ProviderWechat:
		return ProviderWechat, nil
	case ProviderAlipay:
		return ProviderAlipay, nil
	default:
		return "", ErrInvalidProvider
	}
}

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
)

// PaymentRecord is one expected payment, created at checkout with the
// quoted amount and completed by the provider webhook. (provider,
// provider_order_id) is the correlation key webhooks resolve against.
type PaymentRecord struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID          string        `json:"user_id" gorm:"type:text;not null;index"`
	Provider        Provider      `json:"provider" gorm:"type:text;not null;uniqueIndex:idx_payment_provider_order,priority:1"`
	ProviderOrderID string        `json:"provider_order_id" gorm:"type:text;not null;uniqueIndex:idx_payment_provider_order,priority:2"`
	ProviderTxnID   string        `json:"provider_txn_id" gorm:"type:text"`
	Plan            plan.Tier     `json:"plan" gorm:"type:text;not null"`
	Period          plan.Period   `json:"period" gorm:"type:text;not null"`
	Amount          int64         `json:"amount" gorm:"not null"`
	Currency        plan.Currency `json:"currency" gorm:"type:text;not null"`
	Status          PaymentStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"not null"`
	CompletedAt     *time.Time    `json:"completed_at"`
}

// TableName sets the database table name.
func (PaymentRecord) TableName() string { return "payment_records" }

// WebhookEvent is the idempotency ledger. One row per business event;
// Processed is a one-way latch set only after all state changes landed.
type WebhookEvent struct {
	EventID         string         `json:"event_id" gorm:"primaryKey;type:text"`
	Provider        Provider       `json:"provider" gorm:"type:text;not null"`
	ProviderOrderID string         `json:"provider_order_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	Processed       bool           `json:"processed" gorm:"not null;default:false"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

// EventKey builds the deterministic idempotency key. Keyed on the
// order, not the provider's event id, so redeliveries with fresh event
// ids still collapse onto one row.
func EventKey(provider Provider, providerOrderID string) string {
	return fmt.Sprintf("%s_%s", provider, providerOrderID)
}

// Notice is the canonical payment notification parsed by adapters.
type Notice struct {
	Provider        Provider
	ProviderOrderID string
	ProviderTxnID   string
	EventType       string
	PaidAmount      int64
	Currency        plan.Currency
	OccurredAt      time.Time
	RawPayload      []byte
}

// ParseMinorUnits converts a provider decimal amount string such as
// "9.99" into minor units. At most two fractional digits are accepted.
func ParseMinorUnits(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidAmount
	}

	whole := raw
	frac := ""
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		whole, frac = raw[:i], raw[i+1:]
	}
	if len(frac) > 2 {
		return 0, ErrInvalidAmount
	}
	// Both parts must be plain digits; ParseInt alone would accept
	// sign bytes and corrupt the amount.
	if !allDigits(whole) || !allDigits(frac) {
		return 0, ErrInvalidAmount
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return units*100 + cents, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
