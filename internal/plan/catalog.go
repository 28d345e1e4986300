package plan

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultDefinitions returns the built-in catalog used when no plans
// config file is mounted.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Tier: TierFree,
			Rank: 0,
			Prices: map[Currency]Price{
				CurrencyUSD: {Monthly: 0, Yearly: 0},
				CurrencyCNY: {Monthly: 0, Yearly: 0},
			},
			DailyBuildLimit:   5,
			FileRetentionDays: 7,
			ShareExpireDays:   3,
		},
		{
			Tier: TierPro,
			Rank: 1,
			Prices: map[Currency]Price{
				CurrencyUSD: {Monthly: 999, Yearly: 9999},
				CurrencyCNY: {Monthly: 6800, Yearly: 68000},
			},
			DailyBuildLimit:   50,
			FileRetentionDays: 30,
			ShareExpireDays:   30,
		},
		{
			Tier: TierTeam,
			Rank: 2,
			Prices: map[Currency]Price{
				CurrencyUSD: {Monthly: 2999, Yearly: 29999},
				CurrencyCNY: {Monthly: 19900, Yearly: 199000},
			},
			DailyBuildLimit:   200,
			FileRetentionDays: 90,
			ShareExpireDays:   90,
			BatchBuildEnabled: true,
		},
	}
}

// Catalog is the hot-reloadable plan table. Lookups read an atomic
// snapshot so a reload never tears a request.
type Catalog struct {
	current atomic.Value // holds map[Tier]Definition
}

// NewCatalog loads the catalog from plans.yml (volume-mounted, system
// or working directory), falling back to built-in defaults, and watches
// the file for changes.
func NewCatalog(log *zap.Logger) (*Catalog, error) {
	log = log.Named("plan.catalog")
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/appforge/config")
	v.AddConfigPath("/etc/appforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("APPFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fromFile = false
	}

	defs := DefaultDefinitions()
	if fromFile {
		if err := v.UnmarshalKey("plans", &defs); err != nil {
			return nil, err
		}
	}
	if err := validateDefinitions(defs); err != nil {
		return nil, err
	}

	catalog := &Catalog{}
	catalog.current.Store(indexByTier(defs))

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated []Definition
			if err := v.UnmarshalKey("plans", &updated); err != nil {
				log.Warn("catalog reload failed", zap.Error(err))
				return
			}
			if err := validateDefinitions(updated); err != nil {
				log.Warn("invalid catalog ignored", zap.Error(err))
				return
			}
			catalog.current.Store(indexByTier(updated))
			log.Info("catalog reloaded", zap.String("file", e.Name))
		})
	}

	return catalog, nil
}

// NewStaticCatalog builds a catalog from fixed definitions. Used by tests.
func NewStaticCatalog(defs []Definition) (*Catalog, error) {
	if err := validateDefinitions(defs); err != nil {
		return nil, err
	}
	catalog := &Catalog{}
	catalog.current.Store(indexByTier(defs))
	return catalog, nil
}

func indexByTier(defs []Definition) map[Tier]Definition {
	index := make(map[Tier]Definition, len(defs))
	for _, def := range defs {
		index[def.Tier] = def
	}
	return index
}

func validateDefinitions(defs []Definition) error {
	if len(defs) == 0 {
		return errors.New("plan catalog cannot be empty")
	}
	seenRank := map[int]Tier{}
	for _, def := range defs {
		if _, err := ParseTier(string(def.Tier)); err != nil {
			return fmt.Errorf("plan %q: %w", def.Tier, err)
		}
		if prev, ok := seenRank[def.Rank]; ok {
			return fmt.Errorf("plans %q and %q share rank %d", prev, def.Tier, def.Rank)
		}
		seenRank[def.Rank] = def.Tier
		if def.DailyBuildLimit <= 0 {
			return fmt.Errorf("plan %q: dailyBuildLimit must be positive", def.Tier)
		}
		if !def.Paid() {
			continue
		}
		// Paid tiers must carry a nonzero monthly price in every
		// currency: the proration daily-price model divides by it.
		for currency, price := range def.Prices {
			if price.Monthly <= 0 {
				return fmt.Errorf("plan %q: zero monthly price for %s", def.Tier, currency)
			}
		}
	}
	return nil
}

// Get returns one definition.
func (c *Catalog) Get(tier Tier) (Definition, error) {
	defs := c.current.Load().(map[Tier]Definition)
	def, ok := defs[tier]
	if !ok {
		return Definition{}, ErrPlanNotFound
	}
	return def, nil
}

// Definitions returns the current catalog snapshot.
func (c *Catalog) Definitions() []Definition {
	defs := c.current.Load().(map[Tier]Definition)
	out := make([]Definition, 0, len(defs))
	for _, def := range defs {
		out = append(out, def)
	}
	return out
}

// TiersAtOrBelowRank returns the tiers whose rank does not exceed the
// given rank.
func (c *Catalog) TiersAtOrBelowRank(rank int) []Tier {
	var tiers []Tier
	for _, def := range c.Definitions() {
		if def.Rank <= rank {
			tiers = append(tiers, def.Tier)
		}
	}
	return tiers
}

// Rank returns the tier's rank, or -1 when the tier is unknown.
func (c *Catalog) Rank(tier Tier) int {
	def, err := c.Get(tier)
	if err != nil {
		return -1
	}
	return def.Rank
}

// PriceOf returns the minor-unit price of (tier, period) in the currency.
func (c *Catalog) PriceOf(tier Tier, period Period, currency Currency) (int64, error) {
	def, err := c.Get(tier)
	if err != nil {
		return 0, err
	}
	price, ok := def.Prices[currency]
	if !ok {
		return 0, ErrPriceNotFound
	}
	if period == PeriodAnnual {
		return price.Yearly, nil
	}
	return price.Monthly, nil
}

// MonthlyPriceOf returns the tier's monthly price, used by the daily-price
// proration model regardless of the purchased period.
func (c *Catalog) MonthlyPriceOf(tier Tier, currency Currency) (int64, error) {
	return c.PriceOf(tier, PeriodMonthly, currency)
}
