package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/plan"
	subscriptiondomain "github.com/appforge/appforge/internal/subscription/domain"
	walletdomain "github.com/appforge/appforge/internal/wallet/domain"
	walletrepository "github.com/appforge/appforge/internal/wallet/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubSubscriptionSvc struct {
	activations int
}

func (s *stubSubscriptionSvc) ActivateDuePending(ctx context.Context, now time.Time) (int, error) {
	s.activations++
	return 0, nil
}

func (s *stubSubscriptionSvc) State(ctx context.Context, userID string) (subscriptiondomain.State, error) {
	return subscriptiondomain.State{}, nil
}

func (s *stubSubscriptionSvc) Apply(ctx context.Context, req subscriptiondomain.ApplyRequest) error {
	return nil
}

func (s *stubSubscriptionSvc) Wallet(ctx context.Context, userID string) (*walletdomain.Wallet, error) {
	return nil, nil
}

func (s *stubSubscriptionSvc) Current(ctx context.Context, userID string) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func TestSweepResetsDueDailyCounters(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&walletdomain.Wallet{}))

	now := time.Date(2024, time.June, 2, 0, 5, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)

	walletRepo := walletrepository.Provide()
	due := &walletdomain.Wallet{
		UserID:             "user-due",
		Plan:               plan.TierPro,
		DailyBuildsLimit:   50,
		DailyBuildsUsed:    37,
		DailyBuildsResetAt: time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC),
	}
	notDue := &walletdomain.Wallet{
		UserID:             "user-not-due",
		Plan:               plan.TierPro,
		DailyBuildsLimit:   50,
		DailyBuildsUsed:    9,
		DailyBuildsResetAt: time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, walletRepo.Upsert(context.Background(), db, due))
	require.NoError(t, walletRepo.Upsert(context.Background(), db, notDue))

	stub := &stubSubscriptionSvc{}
	s := &Scheduler{
		db:              db,
		log:             zap.NewNop(),
		interval:        time.Minute,
		subscriptionSvc: stub,
		walletRepo:      walletRepo,
		clock:           fake,
	}

	s.Sweep(context.Background())

	assert.Equal(t, 1, stub.activations)

	reset, err := walletRepo.FindByUser(context.Background(), db, "user-due")
	require.NoError(t, err)
	assert.Equal(t, 0, reset.DailyBuildsUsed)
	assert.Equal(t, time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC), reset.DailyBuildsResetAt.UTC())

	untouched, err := walletRepo.FindByUser(context.Background(), db, "user-not-due")
	require.NoError(t, err)
	assert.Equal(t, 9, untouched.DailyBuildsUsed)
}
