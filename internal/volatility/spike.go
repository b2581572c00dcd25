package volatility

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SpikeDetectorConfig configures SpikeDetector's thresholds.
type SpikeDetectorConfig struct {
	ATRLen          int
	ATRMALen        int // e.g. 480 for 1m bars (8h), 96 for 5m bars
	SpikeMult       float64
	ClearMult       float64
	CooldownMinutes int
}

// DefaultSpikeDetectorConfig matches spec §4.3's defaults.
func DefaultSpikeDetectorConfig() SpikeDetectorConfig {
	return SpikeDetectorConfig{
		ATRLen:          14,
		ATRMALen:        480,
		SpikeMult:       2.0,
		ClearMult:       1.3,
		CooldownMinutes: 60,
	}
}

// SpikeDetector holds a longer ATR-MA window and emits a sticky spike flag:
// set on crossing spike_mult, cleared on crossing down through clear_mult,
// gated by a cooldown against rapid re-triggering right after a clear.
type SpikeDetector struct {
	cfg SpikeDetectorConfig

	atr       *ATR
	atrHist   []decimal.Decimal
	isSpike   bool
	spikeSince *time.Time
	lastClear  *time.Time
}

// NewSpikeDetector constructs a detector from cfg.
func NewSpikeDetector(cfg SpikeDetectorConfig) *SpikeDetector {
	return &SpikeDetector{cfg: cfg, atr: NewATR(cfg.ATRLen)}
}

// Update feeds one completed bar and returns the refreshed (isSpike, reason).
func (s *SpikeDetector) Update(high, low, close decimal.Decimal, ts time.Time) (bool, string) {
	currentATR := s.atr.Update(high, low, close)
	s.atrHist = append(s.atrHist, currentATR)
	if max := s.cfg.ATRMALen * 2; max > 0 && len(s.atrHist) > max {
		s.atrHist = s.atrHist[len(s.atrHist)-max:]
	}

	atrMA := s.atrMA()
	if atrMA.IsZero() || atrMA.IsNegative() {
		return s.isSpike, "insufficient_data"
	}

	if s.lastClear != nil {
		cooldownEnd := s.lastClear.Add(time.Duration(s.cfg.CooldownMinutes) * time.Minute)
		if ts.Before(cooldownEnd) {
			return s.isSpike, "in_cooldown"
		}
	}

	spikeThreshold := atrMA.Mul(decimal.NewFromFloat(s.cfg.SpikeMult))
	clearThreshold := atrMA.Mul(decimal.NewFromFloat(s.cfg.ClearMult))

	if !s.isSpike {
		if currentATR.GreaterThan(spikeThreshold) {
			s.isSpike = true
			t := ts
			s.spikeSince = &t
			return true, fmt.Sprintf("vol_spike: ATR=%s > MA*%.1f=%s", currentATR, s.cfg.SpikeMult, spikeThreshold)
		}
	} else {
		if currentATR.LessThan(clearThreshold) {
			s.isSpike = false
			t := ts
			s.lastClear = &t
			return false, fmt.Sprintf("vol_clear: ATR=%s < MA*%.1f=%s", currentATR, s.cfg.ClearMult, clearThreshold)
		}
	}

	return s.isSpike, "no_change"
}

func (s *SpikeDetector) atrMA() decimal.Decimal {
	n := s.cfg.ATRMALen
	if len(s.atrHist) < n {
		n = len(s.atrHist)
	}
	if n == 0 {
		return decimal.Zero
	}
	recent := s.atrHist[len(s.atrHist)-n:]
	sum := decimal.Zero
	for _, v := range recent {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

// IsSpike reports the current sticky spike state.
func (s *SpikeDetector) IsSpike() bool { return s.isSpike }

// CurrentATR returns the detector's internal ATR value.
func (s *SpikeDetector) CurrentATR() decimal.Decimal { return s.atr.Value() }

// ATRMA returns the long-window ATR moving average.
func (s *SpikeDetector) ATRMA() decimal.Decimal { return s.atrMA() }

// Ready reports whether the ATR-MA window is full.
func (s *SpikeDetector) Ready() bool { return len(s.atrHist) >= s.cfg.ATRMALen }

// Reset clears all accumulated state.
func (s *SpikeDetector) Reset() {
	s.atr.Reset()
	s.atrHist = nil
	s.isSpike = false
	s.spikeSince = nil
	s.lastClear = nil
}

// Snapshot is the read-only vol-primitives view published after each bar close.
type Snapshot struct {
	ATR        decimal.Decimal
	RV         float64
	ATRMA      decimal.Decimal
	IsSpike    bool
}
