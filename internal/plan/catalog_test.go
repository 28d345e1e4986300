package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDefinitionsValid(t *testing.T) {
	catalog, err := NewStaticCatalog(DefaultDefinitions())
	require.NoError(t, err)

	free, err := catalog.Get(TierFree)
	require.NoError(t, err)
	pro, err := catalog.Get(TierPro)
	require.NoError(t, err)
	team, err := catalog.Get(TierTeam)
	require.NoError(t, err)

	assert.Less(t, free.Rank, pro.Rank)
	assert.Less(t, pro.Rank, team.Rank)
	assert.False(t, pro.BatchBuildEnabled)
	assert.True(t, team.BatchBuildEnabled)
}

func TestPriceLookup(t *testing.T) {
	catalog, err := NewStaticCatalog(DefaultDefinitions())
	require.NoError(t, err)

	monthly, err := catalog.PriceOf(TierPro, PeriodMonthly, CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(999), monthly)

	yearly, err := catalog.PriceOf(TierTeam, PeriodAnnual, CurrencyCNY)
	require.NoError(t, err)
	assert.Equal(t, int64(199000), yearly)

	_, err = catalog.PriceOf(Tier("enterprise"), PeriodMonthly, CurrencyUSD)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestValidateRejectsZeroMonthlyPaidPrice(t *testing.T) {
	defs := DefaultDefinitions()
	for i := range defs {
		if defs[i].Tier == TierPro {
			price := defs[i].Prices[CurrencyUSD]
			price.Monthly = 0
			defs[i].Prices[CurrencyUSD] = price
		}
	}
	_, err := NewStaticCatalog(defs)
	require.Error(t, err)
}

func TestValidateRejectsDuplicateRank(t *testing.T) {
	defs := DefaultDefinitions()
	for i := range defs {
		if defs[i].Tier == TierTeam {
			defs[i].Rank = 1
		}
	}
	_, err := NewStaticCatalog(defs)
	require.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	tier, err := ParseTier(" Pro ")
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)

	period, err := ParsePeriod("yearly")
	require.NoError(t, err)
	assert.Equal(t, PeriodAnnual, period)

	currency, err := ParseCurrency("cny")
	require.NoError(t, err)
	assert.Equal(t, CurrencyCNY, currency)

	_, err = ParseTier("enterprise")
	assert.ErrorIs(t, err, ErrUnknownTier)
	_, err = ParsePeriod("weekly")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}
