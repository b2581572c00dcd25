package account

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestMarginUsageClampsAndSafetyFallback(t *testing.T) {
	s := New()
	s.UpdateFromExchange(dec(0), dec(0), dec(100), dec(0), dec(0), dec(0), dec(0), time.Now())
	require.True(t, s.MarginUsage().Equal(dec(1)), "non-positive equity must be treated as fully used")
}

func TestLiqDistanceNilWithoutLiqPrice(t *testing.T) {
	s := New()
	s.UpdatePrices(dec(100), nil, time.Now())
	require.Nil(t, s.LiqDistance())
	require.False(t, s.IsLiqDistanceSafe())
}

func TestLiqDistanceSafeAboveThreshold(t *testing.T) {
	s := New()
	liq := dec(90)
	s.UpdatePrices(dec(100), &liq, time.Now())
	require.NotNil(t, s.LiqDistance())
	require.True(t, s.IsLiqDistanceSafe(), "10%% distance should clear the 3%% threshold")
}

func TestIsMarginSafeThreshold(t *testing.T) {
	s := New()
	s.MarginRatio = dec(1.2)
	require.True(t, s.IsMarginSafe())
	s.MarginRatio = dec(1.19)
	require.False(t, s.IsMarginSafe())
}
