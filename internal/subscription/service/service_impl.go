package service

import (
	"context"
	"time"

	"github.com/appforge/appforge/internal/billingcycle"
	"github.com/appforge/appforge/internal/clock"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/appforge/appforge/internal/plan"
	ratingdomain "github.com/appforge/appforge/internal/rating/domain"
	subscriptiondomain "github.com/appforge/appforge/internal/subscription/domain"
	walletdomain "github.com/appforge/appforge/internal/wallet/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        subscriptiondomain.Repository
	WalletRepo  walletdomain.Repository
	PaymentRepo paymentdomain.Repository
	Catalog     *plan.Catalog
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        subscriptiondomain.Repository
	walletRepo  walletdomain.Repository
	paymentRepo paymentdomain.Repository
	catalog     *plan.Catalog
	clock       clock.Clock
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		walletRepo:  p.WalletRepo,
		paymentRepo: p.PaymentRepo,
		catalog:     p.Catalog,
		clock:       p.Clock,
	}
}

func (s *Service) State(ctx context.Context, userID string) (subscriptiondomain.State, error) {
	now := s.clock.Now()
	current, err := s.repo.FindCurrent(ctx, s.db, userID, now)
	if err != nil {
		return subscriptiondomain.State{}, err
	}
	if current == nil {
		return subscriptiondomain.State{Tier: plan.TierFree}, nil
	}

	anchor := current.StartedAt.Day()
	if wallet, err := s.walletRepo.FindByUser(ctx, s.db, userID); err == nil && wallet != nil {
		anchor = wallet.BillingCycleAnchor
	}

	expiresAt := current.ExpiresAt
	return subscriptiondomain.State{
		Tier:      current.Plan,
		ExpiresAt: &expiresAt,
		AnchorDay: anchor,
	}, nil
}

func (s *Service) Wallet(ctx context.Context, userID string) (*walletdomain.Wallet, error) {
	return s.walletRepo.FindByUser(ctx, s.db, userID)
}

func (s *Service) Current(ctx context.Context, userID string) (*subscriptiondomain.Subscription, error) {
	return s.repo.FindCurrent(ctx, s.db, userID, s.clock.Now())
}

// Apply converges the subscription ledger, the wallet and the payment
// record on the outcome of one completed payment. Every value written
// is computed fresh inside the transaction, so replays rewrite the same
// absolute state.
func (s *Service) Apply(ctx context.Context, req subscriptiondomain.ApplyRequest) error {
	def, err := s.catalog.Get(req.Quote.Tier)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.walletRepo.FindByUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		current, err := s.repo.FindCurrent(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}

		if req.Quote.IsDowngrade() {
			return s.applyDowngrade(ctx, tx, req, wallet, current, now)
		}

		anchor, expiresAt := s.schedule(req.Quote, wallet, current, now)

		row := &subscriptiondomain.Subscription{
			ID:              s.genID.Generate(),
			UserID:          req.UserID,
			Plan:            req.Quote.Tier,
			Period:          req.Quote.Period,
			Status:          subscriptiondomain.StatusActive,
			StartedAt:       now,
			ExpiresAt:       expiresAt,
			Provider:        req.Provider,
			ProviderOrderID: req.ProviderOrderID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Upsert(ctx, tx, row); err != nil {
			return err
		}
		if err := s.repo.Supersede(ctx, tx, req.UserID, req.ProviderOrderID, now); err != nil {
			return err
		}

		// A new purchase of an equal or higher tier makes any scheduled
		// downgrade to a tier at or below it obsolete.
		obsolete := s.catalog.TiersAtOrBelowRank(def.Rank)
		if err := s.repo.DeletePendingForPlans(ctx, tx, req.UserID, obsolete); err != nil {
			return err
		}

		if wallet == nil {
			wallet = &walletdomain.Wallet{UserID: req.UserID, CreatedAt: now}
		}
		resetQuota := req.Quote.Kind != ratingdomain.KindRenewal
		s.fillWallet(wallet, def, expiresAt, anchor, resetQuota, now)

		if err := s.rebuildPendingAnnotation(ctx, tx, req.UserID, wallet); err != nil {
			return err
		}
		if err := s.walletRepo.Upsert(ctx, tx, wallet); err != nil {
			return err
		}

		_, err = s.paymentRepo.CompletePayment(ctx, tx, req.PaymentID, req.ProviderTxnID, now)
		return err
	})
}

// schedule picks the anchor day and expiry for a non-downgrade apply.
func (s *Service) schedule(quote ratingdomain.Quote, wallet *walletdomain.Wallet, current *subscriptiondomain.Subscription, now time.Time) (int, time.Time) {
	months := quote.Period.Months()

	if quote.Kind == ratingdomain.KindRenewal {
		// Renewals keep the existing anchor and extend from whichever
		// is later, now or the current expiry.
		anchor := now.Day()
		if wallet != nil {
			anchor = wallet.BillingCycleAnchor
		}
		base := now
		if current != nil && current.ExpiresAt.After(now) {
			base = current.ExpiresAt
		}
		return anchor, billingcycle.AddCalendarMonths(base, months, anchor)
	}

	anchor := now.Day()
	if quote.IsUpgrade() && quote.BonusDays > 0 {
		// Bonus days are a day-count credit, not calendar months.
		return anchor, billingcycle.AddDays(now, quote.Days)
	}
	return anchor, billingcycle.AddCalendarMonths(now, months, anchor)
}

func (s *Service) applyDowngrade(ctx context.Context, tx *gorm.DB, req subscriptiondomain.ApplyRequest, wallet *walletdomain.Wallet, current *subscriptiondomain.Subscription, now time.Time) error {
	// Paid downgrades start when the current entitlement runs out; the
	// current plan is untouched until then.
	effectiveAt := now
	if current != nil && current.ExpiresAt.After(now) {
		effectiveAt = current.ExpiresAt
	}
	anchor := effectiveAt.Day()
	if wallet != nil {
		anchor = wallet.BillingCycleAnchor
	}
	expiresAt := billingcycle.AddCalendarMonths(effectiveAt, req.Quote.Period.Months(), anchor)

	row := &subscriptiondomain.Subscription{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		Plan:            req.Quote.Tier,
		Period:          req.Quote.Period,
		Status:          subscriptiondomain.StatusPending,
		StartedAt:       effectiveAt,
		ExpiresAt:       expiresAt,
		Provider:        req.Provider,
		ProviderOrderID: req.ProviderOrderID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Upsert(ctx, tx, row); err != nil {
		return err
	}

	if wallet != nil {
		if err := s.rebuildPendingAnnotation(ctx, tx, req.UserID, wallet); err != nil {
			return err
		}
		wallet.UpdatedAt = now
		if err := s.walletRepo.Upsert(ctx, tx, wallet); err != nil {
			return err
		}
	}

	_, err := s.paymentRepo.CompletePayment(ctx, tx, req.PaymentID, req.ProviderTxnID, now)
	return err
}

func (s *Service) ActivateDuePending(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDuePending(ctx, s.db, now, 100)
	if err != nil {
		return 0, err
	}

	activated := 0
	for _, pending := range due {
		pending := pending
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.activateOne(ctx, tx, &pending, now)
		})
		if err != nil {
			s.log.Error("pending downgrade activation failed",
				zap.String("user_id", pending.UserID),
				zap.String("provider_order_id", pending.ProviderOrderID),
				zap.Error(err))
			continue
		}
		activated++
	}
	return activated, nil
}

func (s *Service) activateOne(ctx context.Context, tx *gorm.DB, pending *subscriptiondomain.Subscription, now time.Time) error {
	def, err := s.catalog.Get(pending.Plan)
	if err != nil {
		return err
	}

	if err := s.repo.Activate(ctx, tx, pending.ID, now); err != nil {
		return err
	}
	if err := s.repo.Supersede(ctx, tx, pending.UserID, pending.ProviderOrderID, now); err != nil {
		return err
	}

	wallet, err := s.walletRepo.FindByUser(ctx, tx, pending.UserID)
	if err != nil {
		return err
	}
	if wallet == nil {
		wallet = &walletdomain.Wallet{UserID: pending.UserID, CreatedAt: now}
	}

	// The old period just ended, so the daily counter starts fresh.
	s.fillWallet(wallet, def, pending.ExpiresAt, wallet.BillingCycleAnchor, true, now)
	if wallet.BillingCycleAnchor == 0 {
		wallet.BillingCycleAnchor = pending.StartedAt.Day()
	}

	if err := s.rebuildPendingAnnotation(ctx, tx, pending.UserID, wallet); err != nil {
		return err
	}
	return s.walletRepo.Upsert(ctx, tx, wallet)
}

func (s *Service) fillWallet(wallet *walletdomain.Wallet, def plan.Definition, expiresAt time.Time, anchor int, resetQuota bool, now time.Time) {
	wallet.Plan = def.Tier
	wallet.PlanExpiresAt = &expiresAt
	wallet.DailyBuildsLimit = def.DailyBuildLimit
	wallet.FileRetentionDays = def.FileRetentionDays
	wallet.ShareExpireDays = def.ShareExpireDays
	wallet.BatchBuildEnabled = def.BatchBuildEnabled
	wallet.BillingCycleAnchor = billingcycle.ClampAnchor(anchor)
	wallet.UpdatedAt = now
	if resetQuota {
		wallet.DailyBuildsUsed = 0
		wallet.DailyBuildsResetAt = nextMidnight(now)
	}
	if wallet.DailyBuildsResetAt.IsZero() {
		wallet.DailyBuildsResetAt = nextMidnight(now)
	}
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = now
	}
}

// rebuildPendingAnnotation recomputes the wallet's pending-downgrade
// annotation from the pending subscription rows. It is always rebuilt
// whole, never patched, so it cannot drift from the ledger.
func (s *Service) rebuildPendingAnnotation(ctx context.Context, tx *gorm.DB, userID string, wallet *walletdomain.Wallet) error {
	pending, err := s.repo.ListPendingByUser(ctx, tx, userID)
	if err != nil {
		return err
	}

	changes := make([]walletdomain.PendingChange, 0, len(pending))
	for _, row := range pending {
		changes = append(changes, walletdomain.PendingChange{
			Plan:        row.Plan,
			Period:      row.Period,
			EffectiveAt: row.StartedAt,
			ExpiresAt:   row.ExpiresAt,
		})
	}

	encoded, err := walletdomain.EncodePendingChanges(changes)
	if err != nil {
		return err
	}
	wallet.PendingDowngrade = encoded
	return nil
}

func nextMidnight(now time.Time) time.Time {
	year, month, day := now.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
