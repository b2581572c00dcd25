package skew

import (
	"testing"

	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestGateFailsOutsideNormalState(t *testing.T) {
	e := New(DefaultConfig())
	result := e.Calculate(decimal.NewFromInt(100), domain.SideSell, 0.5, domain.RegimeDefensive, true, true)
	require.False(t, result.IsSkewed)
	require.Contains(t, result.Reason, "state=")
}

func TestGateFailsOnInvalidOpportunity(t *testing.T) {
	e := New(DefaultConfig())
	result := e.Calculate(decimal.NewFromInt(100), domain.SideSell, 0.5, domain.RegimeNormal, false, true)
	require.False(t, result.IsSkewed)
	require.Equal(t, "opportunity_invalid", result.Reason)
}

func TestGateFailsOutsideCoreZone(t *testing.T) {
	e := New(DefaultConfig())
	result := e.Calculate(decimal.NewFromInt(100), domain.SideSell, 0.5, domain.RegimeNormal, true, false)
	require.False(t, result.IsSkewed)
	require.Equal(t, "outside_core_zone", result.Reason)
}

func TestGateFailsBelowInventoryThreshold(t *testing.T) {
	e := New(DefaultConfig())
	result := e.Calculate(decimal.NewFromInt(100), domain.SideSell, 0.10, domain.RegimeNormal, true, true)
	require.False(t, result.IsSkewed)
	require.Contains(t, result.Reason, "inv_below_threshold")
}

func TestLongInventoryLowersSellPriceAndRaisesBuyPrice(t *testing.T) {
	e := New(DefaultConfig())

	sellResult := e.Calculate(decimal.NewFromInt(100), domain.SideSell, 0.5, domain.RegimeNormal, true, true)
	require.True(t, sellResult.IsSkewed)
	require.True(t, sellResult.SkewedPrice.LessThan(decimal.NewFromInt(100)))

	buyResult := e.Calculate(decimal.NewFromInt(100), domain.SideBuy, 0.5, domain.RegimeNormal, true, true)
	require.True(t, buyResult.IsSkewed)
	require.True(t, buyResult.SkewedPrice.GreaterThan(decimal.NewFromInt(100)))
}

func TestShortInventoryMirrorsDirection(t *testing.T) {
	e := New(DefaultConfig())

	buyResult := e.Calculate(decimal.NewFromInt(100), domain.SideBuy, -0.5, domain.RegimeNormal, true, true)
	require.True(t, buyResult.IsSkewed)
	require.True(t, buyResult.SkewedPrice.LessThan(decimal.NewFromInt(100)))

	sellResult := e.Calculate(decimal.NewFromInt(100), domain.SideSell, -0.5, domain.RegimeNormal, true, true)
	require.True(t, sellResult.IsSkewed)
	require.True(t, sellResult.SkewedPrice.GreaterThan(decimal.NewFromInt(100)))
}

func TestSkewMagnitudeCapsAtSkewMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkewMax = 0.05
	e := New(cfg)

	result := e.Calculate(decimal.NewFromInt(100), domain.SideSell, 0.95, domain.RegimeNormal, true, true)
	require.True(t, result.IsSkewed)
	require.InDelta(t, -0.05, e.CurrentSkew(), 1e-9)
}

func TestApplyToLevelsSkewsEachPriceIndependently(t *testing.T) {
	e := New(DefaultConfig())
	coreZone := domain.PriceRange{Low: decimal.NewFromInt(90), High: decimal.NewFromInt(110)}

	buys := []decimal.Decimal{decimal.NewFromInt(95), decimal.NewFromInt(200)}
	sells := []decimal.Decimal{decimal.NewFromInt(105), decimal.NewFromInt(300)}

	skewedBuys, skewedSells := e.ApplyToLevels(buys, sells, 0.5, domain.RegimeNormal, true, coreZone)
	require.Len(t, skewedBuys, 2)
	require.Len(t, skewedSells, 2)
	// the out-of-core-zone price must be unchanged.
	require.True(t, skewedBuys[1].Equal(decimal.NewFromInt(200)))
}
