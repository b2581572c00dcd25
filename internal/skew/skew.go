// Package skew implements the optional price tilt that nudges quoted
// prices to help clear excess inventory: sells cheaper and buys dearer
// when long, the mirror when short, gated strictly to favorable
// conditions so it never fights the regime machine or the advantage gate.
package skew

import (
	"fmt"

	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
)

// Config holds the engine's thresholds, all tunable per session.
type Config struct {
	SkewMax            float64 // 0.25
	SkewPerInvUnit     float64 // 0.1
	InvThresholdForSkew float64 // 0.30

	RequireCoreZone         bool
	RequireNormalState      bool
	RequireOpportunityValid bool
}

// DefaultConfig returns the spec defaults with every gate enabled.
func DefaultConfig() Config {
	return Config{
		SkewMax:                 0.25,
		SkewPerInvUnit:          0.1,
		InvThresholdForSkew:     0.30,
		RequireCoreZone:         true,
		RequireNormalState:      true,
		RequireOpportunityValid: true,
	}
}

// Engine computes skewed prices and remembers its last decision for
// observability (is_enabled/current_skew/gate_status mirror the
// original's published properties).
type Engine struct {
	cfg Config

	isEnabled   bool
	currentSkew float64
	gateStatus  string
}

// New constructs an Engine starting disabled.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, gateStatus: "disabled"}
}

// Result is the outcome of one skew calculation.
type Result struct {
	SkewedPrice decimal.Decimal
	IsSkewed    bool
	Reason      string
}

// Calculate applies the engine's gates and, if they all pass, returns a
// price tilted in the direction that favors clearing the existing
// inventory imbalance.
func (e *Engine) Calculate(basePrice decimal.Decimal, side domain.Side, inventoryRatio float64, regime domain.Regime, opportunityValid, isInCoreZone bool) Result {
	if ok, reason := e.checkGate(regime, opportunityValid, isInCoreZone, inventoryRatio); !ok {
		e.isEnabled = false
		e.currentSkew = 0
		e.gateStatus = reason
		return Result{SkewedPrice: basePrice, IsSkewed: false, Reason: reason}
	}

	direction, magnitude := e.skewParams(side, inventoryRatio)
	if magnitude <= 0 {
		e.isEnabled = false
		e.currentSkew = 0
		e.gateStatus = "no_skew_needed"
		return Result{SkewedPrice: basePrice, IsSkewed: false, Reason: "no_skew_needed"}
	}

	skewRatio := direction * magnitude
	skewedPrice := basePrice.Mul(decimal.NewFromFloat(1 + skewRatio))

	e.isEnabled = true
	e.currentSkew = skewRatio
	e.gateStatus = "active"

	return Result{
		SkewedPrice: skewedPrice,
		IsSkewed:    true,
		Reason:      fmt.Sprintf("skew=%.2f%% inv=%.2f%%", skewRatio*100, inventoryRatio*100),
	}
}

func (e *Engine) checkGate(regime domain.Regime, opportunityValid, isInCoreZone bool, inventoryRatio float64) (bool, string) {
	if e.cfg.RequireNormalState && regime != domain.RegimeNormal {
		return false, fmt.Sprintf("state=%s", regime)
	}
	if e.cfg.RequireOpportunityValid && !opportunityValid {
		return false, "opportunity_invalid"
	}
	if e.cfg.RequireCoreZone && !isInCoreZone {
		return false, "outside_core_zone"
	}
	if abs(inventoryRatio) < e.cfg.InvThresholdForSkew {
		return false, fmt.Sprintf("inv_below_threshold=%.2f%%", inventoryRatio*100)
	}
	return true, "gate_passed"
}

// skewParams picks a direction (+1 raises price, -1 lowers it) and a
// magnitude proportional to how far inventory sits past the threshold:
// long inventory lowers sell prices and raises buy prices (the mirror
// for short inventory), capped at SkewMax.
func (e *Engine) skewParams(side domain.Side, inventoryRatio float64) (direction, magnitude float64) {
	if inventoryRatio > 0 {
		if side == domain.SideSell {
			direction = -1
		} else {
			direction = 1
		}
	} else {
		if side == domain.SideBuy {
			direction = -1
		} else {
			direction = 1
		}
	}

	excessInv := abs(inventoryRatio) - e.cfg.InvThresholdForSkew
	if excessInv <= 0 {
		return 0, 0
	}

	magnitude = excessInv * e.cfg.SkewPerInvUnit
	if magnitude > e.cfg.SkewMax {
		magnitude = e.cfg.SkewMax
	}
	return direction, magnitude
}

// ApplyToLevels batch-skews a set of buy and sell prices, looking up
// core-zone membership per price against the given zone bounds.
func (e *Engine) ApplyToLevels(buyPrices, sellPrices []decimal.Decimal, inventoryRatio float64, regime domain.Regime, opportunityValid bool, coreZone domain.PriceRange) (skewedBuys, skewedSells []decimal.Decimal) {
	skewedBuys = make([]decimal.Decimal, len(buyPrices))
	for i, price := range buyPrices {
		result := e.Calculate(price, domain.SideBuy, inventoryRatio, regime, opportunityValid, coreZone.Contains(price))
		skewedBuys[i] = result.SkewedPrice
	}

	skewedSells = make([]decimal.Decimal, len(sellPrices))
	for i, price := range sellPrices {
		result := e.Calculate(price, domain.SideSell, inventoryRatio, regime, opportunityValid, coreZone.Contains(price))
		skewedSells[i] = result.SkewedPrice
	}
	return skewedBuys, skewedSells
}

// IsEnabled reports whether the most recent Calculate call applied a skew.
func (e *Engine) IsEnabled() bool { return e.isEnabled }

// CurrentSkew returns the most recently applied skew ratio.
func (e *Engine) CurrentSkew() float64 { return e.currentSkew }

// GateStatus returns the human-readable reason the last Calculate call
// either applied a skew or refused to.
func (e *Engine) GateStatus() string { return e.gateStatus }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
