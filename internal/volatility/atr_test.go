package volatility

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestATRFirstBarUsesHighLow(t *testing.T) {
	a := NewATR(14)
	got := a.Update(d(101), d(99), d(100))
	require.True(t, got.Equal(d(2)))
	require.False(t, a.Ready())
}

func TestATRSubsequentBarsUseTrueRange(t *testing.T) {
	a := NewATR(2)
	a.Update(d(101), d(99), d(100)) // TR=2
	got := a.Update(d(105), d(103), d(104)) // prevClose=100: TR=max(2, |105-100|=5, |103-100|=3)=5
	require.True(t, got.Equal(d(3.5)), "expected SMA of [2,5]=3.5, got %s", got)
	require.True(t, a.Ready())
}

func TestSpikeDetectorTriggersAndClearsWithCooldown(t *testing.T) {
	cfg := SpikeDetectorConfig{ATRLen: 1, ATRMALen: 3, SpikeMult: 2.0, ClearMult: 1.3, CooldownMinutes: 60}
	s := NewSpikeDetector(cfg)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Seed two quiet bars to build the ATR-MA baseline.
	s.Update(d(101), d(99), d(100), base)
	isSpike, _ := s.Update(d(101), d(99), d(100), base.Add(time.Minute))
	require.False(t, isSpike)

	// A much wider bar should exceed spike_mult * MA. The MA window includes
	// the current bar: MA = (2+2+60)/3 ≈ 21.3, so ATR 60 > 42.7.
	isSpike, reason := s.Update(d(130), d(70), d(100), base.Add(2*time.Minute))
	require.True(t, isSpike, "reason=%s", reason)

	// A quiet bar drops ATR to 2, below clear_mult * MA (1.3 * 21.3), and clears the spike.
	isSpike, reason = s.Update(d(101), d(99), d(100), base.Add(3*time.Minute))
	require.False(t, isSpike, "reason=%s", reason)

	// Another wide bar inside the 60-minute cooldown does not re-trigger.
	isSpike, reason = s.Update(d(130), d(70), d(100), base.Add(4*time.Minute))
	require.False(t, isSpike)
	require.Equal(t, "in_cooldown", reason)
}
