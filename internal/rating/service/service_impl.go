package service

import (
	"math"

	"github.com/appforge/appforge/internal/billingcycle"
	"github.com/appforge/appforge/internal/clock"
	ratingdomain "github.com/appforge/appforge/internal/rating/domain"
	"github.com/appforge/appforge/internal/plan"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Catalog *plan.Catalog
	Clock   clock.Clock
}

// Calculator implements the daily-price proration model. All monetary
// intermediates stay float64; only the final charge is rounded, so
// rounding error never compounds across steps.
type Calculator struct {
	catalog *plan.Catalog
	clock   clock.Clock
}

func NewCalculator(p Params) ratingdomain.Service {
	return &Calculator{
		catalog: p.Catalog,
		clock:   p.Clock,
	}
}

func (c *Calculator) Compute(req ratingdomain.ComputeRequest) (ratingdomain.Quote, error) {
	target, err := c.catalog.Get(req.TargetTier)
	if err != nil {
		return ratingdomain.Quote{}, err
	}
	if !target.Paid() {
		return ratingdomain.Quote{}, ratingdomain.ErrInvalidTarget
	}

	targetPrice, err := c.catalog.PriceOf(req.TargetTier, req.Period, req.Currency)
	if err != nil {
		return ratingdomain.Quote{}, err
	}

	quote := ratingdomain.Quote{
		Tier:     req.TargetTier,
		Period:   req.Period,
		Currency: req.Currency,
	}

	now := c.clock.Now()
	currentActive := req.CurrentExpiresAt != nil && req.CurrentExpiresAt.After(now)
	currentRank := c.catalog.Rank(req.CurrentTier)

	switch {
	case !currentActive || currentRank <= 0:
		quote.Kind = ratingdomain.KindPurchase
	case target.Rank > currentRank:
		quote.Kind = ratingdomain.KindUpgrade
	case target.Rank < currentRank:
		quote.Kind = ratingdomain.KindDowngrade
	default:
		quote.Kind = ratingdomain.KindRenewal
	}

	if quote.Kind != ratingdomain.KindUpgrade {
		// Fresh purchase, renewal and deferred downgrade all charge
		// the full period price.
		quote.Amount = targetPrice
		quote.Days = req.Period.Days()
		return quote, nil
	}

	currentMonthly, err := c.catalog.MonthlyPriceOf(req.CurrentTier, req.Currency)
	if err != nil {
		return ratingdomain.Quote{}, err
	}
	targetMonthly, err := c.catalog.MonthlyPriceOf(req.TargetTier, req.Currency)
	if err != nil {
		return ratingdomain.Quote{}, err
	}

	remainingDays := billingcycle.RemainingDays(now, *req.CurrentExpiresAt)
	currentDailyPrice := float64(currentMonthly) / 30
	remainingValue := float64(remainingDays) * currentDailyPrice
	targetDailyPrice := float64(targetMonthly) / 30

	if remainingValue >= float64(targetPrice) {
		quote.Amount = ratingdomain.MinimumCharge
		quote.BonusDays = int(math.Floor(remainingValue / targetDailyPrice))
		quote.Days = req.Period.Days() + quote.BonusDays
		return quote, nil
	}

	amount := int64(math.Round(float64(targetPrice) - remainingValue))
	if amount < ratingdomain.MinimumCharge {
		amount = ratingdomain.MinimumCharge
	}
	quote.Amount = amount
	quote.Days = req.Period.Days()
	return quote, nil
}
