// Package plan holds the static plan catalog: tier ranks, prices and
// per-plan entitlements. Plan, period, provider and currency values are
// validated once at the HTTP boundary and travel as closed types from
// there on.
package plan

import (
	"errors"
	"strings"
)

// Tier identifies a subscription tier. Rank ordering, not the name,
// decides whether a purchase is an upgrade or a downgrade.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierTeam Tier = "team"
)

// Period is the billing period of a purchase.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodAnnual  Period = "annual"
)

// Currency is an ISO currency code the catalog carries prices for.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCNY Currency = "CNY"
)

var (
	ErrUnknownTier     = errors.New("unknown_plan_tier")
	ErrUnknownPeriod   = errors.New("unknown_billing_period")
	ErrUnknownCurrency = errors.New("unknown_currency")
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrPriceNotFound   = errors.New("price_not_found")
)

// ParseTier normalizes a raw tier name.
func ParseTier(raw string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierFree:
		return TierFree, nil
	case TierPro:
		return TierPro, nil
	case TierTeam:
		return TierTeam, nil
	default:
		return "", ErrUnknownTier
	}
}

// ParsePeriod normalizes a raw billing period. "yearly" is accepted as
// an alias for annual because provider metadata uses both spellings.
func ParsePeriod(raw string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "monthly", "month":
		return PeriodMonthly, nil
	case "annual", "yearly", "year":
		return PeriodAnnual, nil
	default:
		return "", ErrUnknownPeriod
	}
}

// ParseCurrency normalizes a raw currency code.
func ParseCurrency(raw string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(raw))) {
	case CurrencyUSD:
		return CurrencyUSD, nil
	case CurrencyCNY:
		return CurrencyCNY, nil
	default:
		return "", ErrUnknownCurrency
	}
}

// Days returns the entitlement day count purchased with one period.
func (p Period) Days() int {
	if p == PeriodAnnual {
		return 365
	}
	return 30
}

// Months returns the calendar-month length of one period.
func (p Period) Months() int {
	if p == PeriodAnnual {
		return 12
	}
	return 1
}

// Price holds minor-unit prices for both billing periods of one currency.
type Price struct {
	Monthly int64 `mapstructure:"monthly"`
	Yearly  int64 `mapstructure:"yearly"`
}

// Definition is one immutable catalog entry.
type Definition struct {
	Tier              Tier               `mapstructure:"tier"`
	Rank              int                `mapstructure:"rank"`
	Prices            map[Currency]Price `mapstructure:"prices"`
	DailyBuildLimit   int                `mapstructure:"dailyBuildLimit"`
	FileRetentionDays int                `mapstructure:"fileRetentionDays"`
	ShareExpireDays   int                `mapstructure:"shareExpireDays"`
	BatchBuildEnabled bool               `mapstructure:"batchBuildEnabled"`
}

// Paid reports whether the tier costs money.
func (d Definition) Paid() bool { return d.Rank > 0 }
