package domain

import (
	"context"
	"time"

	"github.com/appforge/appforge/internal/plan"
	ratingdomain "github.com/appforge/appforge/internal/rating/domain"
	walletdomain "github.com/appforge/appforge/internal/wallet/domain"
	"github.com/bwmarrin/snowflake"
)

// State is the current-entitlement snapshot quotes are computed from.
type State struct {
	Tier      plan.Tier
	ExpiresAt *time.Time
	AnchorDay int
}

// ApplyRequest applies one completed payment to the user's state. All
// writes happen in one transaction; re-applying the same request is a
// no-op at the state level.
type ApplyRequest struct {
	UserID          string
	Quote           ratingdomain.Quote
	Provider        string
	ProviderOrderID string
	PaymentID       snowflake.ID
	ProviderTxnID   string
}

type Service interface {
	State(ctx context.Context, userID string) (State, error)
	Apply(ctx context.Context, req ApplyRequest) error
	// ActivateDuePending promotes paid downgrades whose effective time
	// arrived. Returns the number of activations.
	ActivateDuePending(ctx context.Context, now time.Time) (int, error)
	// Wallet returns the denormalized entitlement snapshot, or nil for
	// users who never purchased.
	Wallet(ctx context.Context, userID string) (*walletdomain.Wallet, error)
	Current(ctx context.Context, userID string) (*Subscription, error)
}
