// Package riskengine implements the risk triggers and stops that drive
// regime transitions: inventory, risk-budget, structural-break,
// price-boundary, and emergency predicates, each bound
// to an enforce point (on_fill, on_bar_close, immediate, or both) and
// evaluated in strict priority order by the control loop. There is no
// volatility-spike trigger here: volatility.SpikeDetector's flag is not an
// input to any predicate in this package.
package riskengine

import (
	"fmt"
	"time"

	"gridcore/internal/domain"
	"gridcore/internal/statemachine"
)

// EnforcePoint names when a trigger is checked.
type EnforcePoint string

const (
	EnforceOnFill     EnforcePoint = "on_fill"
	EnforceOnBarClose EnforcePoint = "on_bar_close"
	EnforceImmediate  EnforcePoint = "immediate"
	EnforceBoth       EnforcePoint = "both"
)

// Trigger is a single risk predicate: it is fed live readings via its own
// Update method, then Check is called at its EnforcePoint to see whether a
// regime transition should fire.
type Trigger interface {
	Name() string
	Check(ts time.Time) statemachine.TransitionResult
	EnforcePoint() EnforcePoint
}

// InventoryTrigger fires a Defensive warning, a DamageControl escalation,
// or flags recovery back to Normal, based on the inventory ratio.
type InventoryTrigger struct {
	Warn, Damage, Stop, BackToNormal float64

	currentRatio float64
	currentRegime domain.Regime
}

// NewInventoryTrigger returns a trigger with the spec defaults: warn 0.55,
// damage 0.70, stop 0.85, recover 0.40.
func NewInventoryTrigger() *InventoryTrigger {
	return &InventoryTrigger{Warn: 0.55, Damage: 0.70, Stop: 0.85, BackToNormal: 0.40}
}

func (t *InventoryTrigger) Name() string { return "InventoryTrigger" }

func (t *InventoryTrigger) EnforcePoint() EnforcePoint { return EnforceBoth }

// Update refreshes the live inventory ratio and current regime.
func (t *InventoryTrigger) Update(inventoryRatio float64, regime domain.Regime) {
	t.currentRatio = inventoryRatio
	t.currentRegime = regime
}

// Check evaluates the trigger's thresholds in escalation order. inv_stop
// is itself just another DamageControl escalation here — the forced
// reduce-to-0.45 action lives on InventoryStop, not on this predicate.
func (t *InventoryTrigger) Check(ts time.Time) statemachine.TransitionResult {
	ratio := t.currentRatio
	regime := t.currentRegime

	if ratio >= t.Stop {
		return statemachine.ToDamageControl(statemachine.TriggerInvDamage,
			reasonPct("inventory_stop", ratio, t.Stop), ratio, t.Stop)
	}
	if ratio >= t.Damage {
		if regime == domain.RegimeNormal || regime == domain.RegimeDefensive {
			return statemachine.ToDamageControl(statemachine.TriggerInvDamage,
				reasonPct("inventory_damage", ratio, t.Damage), ratio, t.Damage)
		}
	}
	if ratio >= t.Warn {
		if regime == domain.RegimeNormal {
			return statemachine.ToDefensive(statemachine.TriggerInvWarn,
				reasonPct("inventory_warn", ratio, t.Warn), ratio, t.Warn)
		}
	}
	if ratio <= t.BackToNormal {
		if regime == domain.RegimeDefensive {
			return statemachine.ToNormal(statemachine.TriggerConditionsRecovered,
				reasonPct("inventory_recovered", ratio, t.BackToNormal))
		}
	}
	return statemachine.NoTransition()
}

// RiskBudgetTrigger fires DamageControl when margin usage or drawdown
// exceeds the configured caps.
type RiskBudgetTrigger struct {
	MarginCap, MaxDrawdown float64

	currentMarginUsage float64
	currentDrawdown    float64
	currentRegime      domain.Regime
}

// NewRiskBudgetTrigger returns a trigger with the spec defaults: margin
// cap 0.80, max drawdown 0.15.
func NewRiskBudgetTrigger() *RiskBudgetTrigger {
	return &RiskBudgetTrigger{MarginCap: 0.80, MaxDrawdown: 0.15}
}

func (t *RiskBudgetTrigger) Name() string { return "RiskBudgetTrigger" }

func (t *RiskBudgetTrigger) EnforcePoint() EnforcePoint { return EnforceBoth }

// Update refreshes the live margin usage, drawdown, and current regime.
func (t *RiskBudgetTrigger) Update(marginUsage, drawdown float64, regime domain.Regime) {
	t.currentMarginUsage = marginUsage
	t.currentDrawdown = drawdown
	t.currentRegime = regime
}

// Check evaluates margin cap first, then drawdown. Neither fires once the
// regime is already EmergencyStop.
func (t *RiskBudgetTrigger) Check(ts time.Time) statemachine.TransitionResult {
	if t.currentRegime == domain.RegimeEmergencyStop {
		return statemachine.NoTransition()
	}
	if t.currentMarginUsage >= t.MarginCap {
		return statemachine.ToDamageControl(statemachine.TriggerRiskBudgetStop,
			reasonPct("margin_cap_exceeded", t.currentMarginUsage, t.MarginCap), t.currentMarginUsage, t.MarginCap)
	}
	if t.currentDrawdown >= t.MaxDrawdown {
		return statemachine.ToDamageControl(statemachine.TriggerRiskBudgetStop,
			reasonPct("max_dd_exceeded", t.currentDrawdown, t.MaxDrawdown), t.currentDrawdown, t.MaxDrawdown)
	}
	return statemachine.NoTransition()
}

// StructuralTrigger confirms a structural break using the B+C definition:
// price outside the outer range plus ATR buffer (stage B), held
// continuously for confirm_minutes (stage C, default 4h). Time outside
// accumulates only while continuously outside; returning inside resets
// immediately, and the trigger stays confirmed until price returns inside.
type StructuralTrigger struct {
	ConfirmMinutes int

	outerRangeLow, outerRangeHigh, atrBuffer float64
	currentPrice                             float64
	currentRegime                            domain.Regime

	isOutside     bool
	outsideSince  *time.Time
	confirmed     bool
}

// NewStructuralTrigger returns a trigger with the spec default 4h confirm
// window.
func NewStructuralTrigger() *StructuralTrigger {
	return &StructuralTrigger{ConfirmMinutes: 240}
}

func (t *StructuralTrigger) Name() string { return "StructuralTrigger" }

func (t *StructuralTrigger) EnforcePoint() EnforcePoint { return EnforceOnBarClose }

// Update refreshes the live price, regime, and outer-range/ATR-buffer
// inputs.
func (t *StructuralTrigger) Update(price float64, regime domain.Regime, outerLow, outerHigh, atrBuffer float64) {
	t.currentPrice = price
	t.currentRegime = regime
	t.outerRangeLow = outerLow
	t.outerRangeHigh = outerHigh
	t.atrBuffer = atrBuffer
}

// Check returns a DamageControl transition only once the break has been
// confirmed for ConfirmMinutes; price back inside clears the confirmation
// immediately, as a side effect of this call.
func (t *StructuralTrigger) Check(ts time.Time) statemachine.TransitionResult {
	lowerBoundary := t.outerRangeLow - t.atrBuffer
	upperBoundary := t.outerRangeHigh + t.atrBuffer

	isOutside := t.currentPrice < lowerBoundary || t.currentPrice > upperBoundary

	if isOutside {
		if !t.isOutside {
			t.isOutside = true
			since := ts
			t.outsideSince = &since
			t.confirmed = false
		} else if t.outsideSince != nil {
			durationMinutes := ts.Sub(*t.outsideSince).Minutes()
			if durationMinutes >= float64(t.ConfirmMinutes) {
				t.confirmed = true
				if t.currentRegime != domain.RegimeDamageControl && t.currentRegime != domain.RegimeEmergencyStop {
					return statemachine.ToDamageControl(statemachine.TriggerStructuralBreak,
						reasonDuration("structural_break_confirmed", t.currentPrice, durationMinutes), durationMinutes, float64(t.ConfirmMinutes))
				}
			}
		}
	} else {
		t.isOutside = false
		t.outsideSince = nil
		t.confirmed = false
	}

	return statemachine.NoTransition()
}

// IsOutside reports whether price is currently outside the buffered range.
func (t *StructuralTrigger) IsOutside() bool { return t.isOutside }

// Confirmed reports whether the break has been confirmed.
func (t *StructuralTrigger) Confirmed() bool { return t.confirmed }

// OutsideSince returns when the current outside excursion began, if any.
func (t *StructuralTrigger) OutsideSince() *time.Time { return t.outsideSince }

// EmergencyTrigger fires EmergencyStop on any of: critical liquidation
// distance, critical margin ratio, repeated API faults, stale data, or a
// price gap beyond a multiple of ATR.
type EmergencyTrigger struct {
	LiqDistanceThreshold  float64
	MarginRatioThreshold  float64
	APIFaultMaxConsecutive int
	DataStaleSeconds      float64
	PriceGapATRMult       float64

	currentLiqDistance     *float64
	currentMarginRatio     float64
	currentAPIFaultCount   int
	currentDataAgeSeconds  float64
	currentPriceChangeRatio float64
	currentATR             float64
}

// NewEmergencyTrigger returns a trigger with the spec defaults and a safe
// starting margin ratio (10.0, i.e. 1000%) so it never spuriously fires
// before the first real reading arrives.
func NewEmergencyTrigger() *EmergencyTrigger {
	return &EmergencyTrigger{
		LiqDistanceThreshold:   0.03,
		MarginRatioThreshold:   1.2,
		APIFaultMaxConsecutive: 3,
		DataStaleSeconds:       30,
		PriceGapATRMult:        5.0,
		currentMarginRatio:     10.0,
	}
}

// UpdateLiqDistance refreshes the live liquidation distance (nil means
// not yet known; a nil reading never triggers by itself, matching the
// account package's data-unavailable semantics).
func (t *EmergencyTrigger) UpdateLiqDistance(d *float64) { t.currentLiqDistance = d }

// UpdateMarginRatio refreshes the live margin ratio.
func (t *EmergencyTrigger) UpdateMarginRatio(r float64) { t.currentMarginRatio = r }

// UpdateAPIFaultCount refreshes the consecutive API-failure counter.
func (t *EmergencyTrigger) UpdateAPIFaultCount(n int) { t.currentAPIFaultCount = n }

// UpdateDataAge refreshes how long it has been since the last market data
// update, in seconds.
func (t *EmergencyTrigger) UpdateDataAge(seconds float64) { t.currentDataAgeSeconds = seconds }

// UpdatePriceGap refreshes the latest price-change ratio and current ATR.
func (t *EmergencyTrigger) UpdatePriceGap(changeRatio, atr float64) {
	t.currentPriceChangeRatio = changeRatio
	t.currentATR = atr
}

// ResetAPIFaultCount clears the consecutive-failure counter after a
// successful call.
func (t *EmergencyTrigger) ResetAPIFaultCount() { t.currentAPIFaultCount = 0 }

// IncrementAPIFaultCount records one more consecutive API failure.
func (t *EmergencyTrigger) IncrementAPIFaultCount() { t.currentAPIFaultCount++ }

func (t *EmergencyTrigger) Name() string { return "EmergencyTrigger" }

func (t *EmergencyTrigger) EnforcePoint() EnforcePoint { return EnforceImmediate }

// Check evaluates every emergency predicate in order and returns the
// first that fires.
func (t *EmergencyTrigger) Check(ts time.Time) statemachine.TransitionResult {
	if t.currentLiqDistance != nil && *t.currentLiqDistance < t.LiqDistanceThreshold {
		return statemachine.ToEmergencyStop(statemachine.TriggerLiqDistance,
			reasonPct("liq_distance_critical", *t.currentLiqDistance, t.LiqDistanceThreshold), *t.currentLiqDistance, t.LiqDistanceThreshold)
	}
	if t.currentMarginRatio < t.MarginRatioThreshold {
		return statemachine.ToEmergencyStop(statemachine.TriggerLiqDistance,
			reasonPct("margin_ratio_critical", t.currentMarginRatio, t.MarginRatioThreshold), t.currentMarginRatio, t.MarginRatioThreshold)
	}
	if t.currentAPIFaultCount >= t.APIFaultMaxConsecutive {
		return statemachine.ToEmergencyStop(statemachine.TriggerAPIFault,
			"api_fault: consecutive failures", float64(t.currentAPIFaultCount), float64(t.APIFaultMaxConsecutive))
	}
	if t.currentDataAgeSeconds >= t.DataStaleSeconds {
		return statemachine.ToEmergencyStop(statemachine.TriggerDataStale,
			"data_stale", t.currentDataAgeSeconds, t.DataStaleSeconds)
	}
	if t.currentATR > 0 {
		gapThreshold := t.currentATR * t.PriceGapATRMult
		if abs(t.currentPriceChangeRatio) > gapThreshold {
			return statemachine.ToEmergencyStop(statemachine.TriggerLiquidityGap,
				"price_gap", abs(t.currentPriceChangeRatio), gapThreshold)
		}
	}
	return statemachine.NoTransition()
}

// PriceBoundaryTrigger fires Defensive as soon as mark price enters the
// buffer zone just inside the outer range, with a minimum hold time
// before allowing recovery back to Normal.
type PriceBoundaryTrigger struct {
	BufferATRMult       float64
	MinStateHoldMinutes float64

	currentMarkPrice float64
	currentATR       float64
	currentRegime    domain.Regime
	outerRangeLow, outerRangeHigh float64
	stateSince *time.Time
}

// NewPriceBoundaryTrigger returns a trigger with the spec defaults: 0.5x
// ATR buffer, 15 minute minimum hold before recovery.
func NewPriceBoundaryTrigger() *PriceBoundaryTrigger {
	return &PriceBoundaryTrigger{BufferATRMult: 0.5, MinStateHoldMinutes: 15}
}

func (t *PriceBoundaryTrigger) Name() string { return "PriceBoundaryTrigger" }

func (t *PriceBoundaryTrigger) EnforcePoint() EnforcePoint { return EnforceImmediate }

// Update refreshes the live mark price, ATR, regime, outer range, and the
// timestamp the current regime was entered (used for the recovery hold).
func (t *PriceBoundaryTrigger) Update(markPrice, atr float64, regime domain.Regime, outerLow, outerHigh float64, stateSince *time.Time) {
	t.currentMarkPrice = markPrice
	t.currentATR = atr
	t.currentRegime = regime
	t.outerRangeLow = outerLow
	t.outerRangeHigh = outerHigh
	t.stateSince = stateSince
}

// Check fires a Defensive transition only from Normal; this trigger never
// itself drives further escalation.
func (t *PriceBoundaryTrigger) Check(ts time.Time) statemachine.TransitionResult {
	if t.currentRegime != domain.RegimeNormal {
		return statemachine.NoTransition()
	}

	buffer := t.currentATR * t.BufferATRMult
	lowerBufferZone := t.outerRangeLow + buffer
	upperBufferZone := t.outerRangeHigh - buffer

	inLower := t.currentMarkPrice <= lowerBufferZone
	inUpper := t.currentMarkPrice >= upperBufferZone

	if inLower || inUpper {
		threshold := upperBufferZone
		side := "upper"
		if inLower {
			threshold = lowerBufferZone
			side = "lower"
		}
		return statemachine.ToDefensive(statemachine.TriggerPriceBoundary,
			reasonSide("price_boundary", t.currentMarkPrice, side), t.currentMarkPrice, threshold)
	}
	return statemachine.NoTransition()
}

// CheckRecovery reports whether price has returned to the (wider) safe
// zone inward of the buffer, having held Defensive for at least
// MinStateHoldMinutes.
func (t *PriceBoundaryTrigger) CheckRecovery(ts time.Time) statemachine.TransitionResult {
	if t.currentRegime != domain.RegimeDefensive {
		return statemachine.NoTransition()
	}
	if t.stateSince != nil {
		durationMinutes := ts.Sub(*t.stateSince).Minutes()
		if durationMinutes < t.MinStateHoldMinutes {
			return statemachine.NoTransition()
		}
	}

	buffer := t.currentATR * t.BufferATRMult
	lowerSafe := t.outerRangeLow + buffer*1.5
	upperSafe := t.outerRangeHigh - buffer*1.5

	if t.currentMarkPrice >= lowerSafe && t.currentMarkPrice <= upperSafe {
		return statemachine.ToNormal(statemachine.TriggerConditionsRecovered, "price_boundary_cleared")
	}
	return statemachine.NoTransition()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func reasonPct(tag string, value, threshold float64) string {
	return fmt.Sprintf("%s: %.4f >= %.4f", tag, value, threshold)
}

func reasonDuration(tag string, price, durationMinutes float64) string {
	return fmt.Sprintf("%s: price=%.2f outside for %.1fm", tag, price, durationMinutes)
}

func reasonSide(tag string, price float64, side string) string {
	return fmt.Sprintf("%s: price=%.2f (%s)", tag, price, side)
}
