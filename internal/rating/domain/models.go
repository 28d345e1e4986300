// Package domain defines the quote produced by the upgrade/proration
// calculator.
package domain

import (
	"errors"
	"time"

	"github.com/appforge/appforge/internal/plan"
)

// Kind classifies a purchase against the user's current subscription.
type Kind string

const (
	// KindPurchase is a fresh purchase: no current plan, or the
	// current plan already expired.
	KindPurchase Kind = "purchase"
	// KindRenewal is a same-rank purchase while still active.
	KindRenewal Kind = "renewal"
	// KindUpgrade is a higher-rank purchase while still active.
	KindUpgrade Kind = "upgrade"
	// KindDowngrade is a lower-rank purchase while still active; it
	// takes effect only when the current period expires.
	KindDowngrade Kind = "downgrade"
)

// MinimumCharge is the smallest charge in minor units. Upgrades fully
// covered by remaining value still charge this nominal amount because
// payment providers reject zero-amount transactions.
const MinimumCharge int64 = 1

// Quote is the computed outcome of a plan purchase before it is applied.
type Quote struct {
	Kind      Kind
	Tier      plan.Tier
	Period    plan.Period
	Currency  plan.Currency
	Amount    int64
	Days      int
	BonusDays int
}

// IsUpgrade reports whether the quote classifies as an upgrade.
func (q Quote) IsUpgrade() bool { return q.Kind == KindUpgrade }

// IsDowngrade reports whether the quote classifies as a deferred downgrade.
func (q Quote) IsDowngrade() bool { return q.Kind == KindDowngrade }

// ComputeRequest captures the current subscription state and the
// requested purchase.
type ComputeRequest struct {
	CurrentTier      plan.Tier
	CurrentExpiresAt *time.Time
	TargetTier       plan.Tier
	Period           plan.Period
	Currency         plan.Currency
}

// Service computes quotes.
type Service interface {
	Compute(req ComputeRequest) (Quote, error)
}

var (
	ErrInvalidTarget = errors.New("invalid_target_plan")
)
