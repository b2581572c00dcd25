// Package advantage evaluates whether the current market state is an
// opportunity window worth grid exposure, and derives the core zone
// (the price band where recent fills have concentrated) the grid
// generator uses for core/buffer step spacing.
package advantage

import (
	"time"

	"github.com/shopspring/decimal"
)

const maxFillHistory = 1000
const maxRoundTripHistory = 500
const maxRatioHistory = 500
const maxBreakevenHistory = 500

// CycleActivityMetrics scores how actively the market is round-tripping
// fills within a trailing window.
type CycleActivityMetrics struct {
	LookbackMinutes int

	fillTimestamps      []time.Time
	roundTripTimestamps []time.Time
}

// NewCycleActivityMetrics returns a tracker with the spec default 8h window.
func NewCycleActivityMetrics() *CycleActivityMetrics {
	return &CycleActivityMetrics{LookbackMinutes: 480}
}

// RecordFill appends a fill timestamp to the activity window.
func (c *CycleActivityMetrics) RecordFill(ts time.Time) {
	c.fillTimestamps = append(c.fillTimestamps, ts)
	if len(c.fillTimestamps) > maxFillHistory {
		c.fillTimestamps = c.fillTimestamps[len(c.fillTimestamps)-maxFillHistory:]
	}
}

// RecordRoundTrip appends a completed buy/sell round-trip timestamp.
func (c *CycleActivityMetrics) RecordRoundTrip(ts time.Time) {
	c.roundTripTimestamps = append(c.roundTripTimestamps, ts)
	if len(c.roundTripTimestamps) > maxRoundTripHistory {
		c.roundTripTimestamps = c.roundTripTimestamps[len(c.roundTripTimestamps)-maxRoundTripHistory:]
	}
}

// ActivityScore returns the [0,1] score: fills-per-hour normalized against
// an expected 10/hour baseline, plus a capped round-trip bonus.
func (c *CycleActivityMetrics) ActivityScore(now time.Time) float64 {
	cutoff := now.Add(-time.Duration(c.LookbackMinutes) * time.Minute)

	recentFills := 0
	for _, ts := range c.fillTimestamps {
		if ts.After(cutoff) {
			recentFills++
		}
	}
	recentTrips := 0
	for _, ts := range c.roundTripTimestamps {
		if ts.After(cutoff) {
			recentTrips++
		}
	}

	expectedFills := float64(c.LookbackMinutes) / 60 * 10
	fillScore := 1.0
	if expectedFills > 0 {
		fillScore = float64(recentFills) / expectedFills
		if fillScore > 1.0 {
			fillScore = 1.0
		}
	}

	tripBonus := float64(recentTrips) * 0.05
	if tripBonus > 0.3 {
		tripBonus = 0.3
	}

	score := fillScore + tripBonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

type ratioPoint struct {
	ts    time.Time
	ratio float64
}

// InventoryReversionMetrics scores how fast the inventory ratio reverts
// toward its target (neutral) level.
type InventoryReversionMetrics struct {
	LookbackMinutes int
	TargetRatio     float64

	history []ratioPoint
}

// NewInventoryReversionMetrics returns a tracker with the spec default 1h
// window and a neutral (zero) target ratio.
func NewInventoryReversionMetrics() *InventoryReversionMetrics {
	return &InventoryReversionMetrics{LookbackMinutes: 60}
}

// RecordRatio appends an inventory ratio observation.
func (m *InventoryReversionMetrics) RecordRatio(ts time.Time, ratio float64) {
	m.history = append(m.history, ratioPoint{ts, ratio})
	if len(m.history) > maxRatioHistory {
		m.history = m.history[len(m.history)-maxRatioHistory:]
	}
}

// ReversionScore returns a [0,1] score, defaulting to 0.5 (neutral) with
// fewer than two in-window observations, and 1.0 if already near target.
func (m *InventoryReversionMetrics) ReversionScore(now time.Time) float64 {
	if len(m.history) < 2 {
		return 0.5
	}

	cutoff := now.Add(-time.Duration(m.LookbackMinutes) * time.Minute)
	var window []ratioPoint
	for _, p := range m.history {
		if p.ts.After(cutoff) {
			window = append(window, p)
		}
	}
	if len(window) < 2 {
		return 0.5
	}

	startRatio := window[0].ratio
	endRatio := window[len(window)-1].ratio

	startDist := abs(startRatio - m.TargetRatio)
	endDist := abs(endRatio - m.TargetRatio)

	if startDist < 0.01 {
		return 1.0
	}

	improvement := (startDist - endDist) / startDist
	score := 0.5 + improvement*0.5
	return clamp01(score)
}

// BreakevenSlopeMetrics scores how fast the breakeven price is moving
// favorably relative to the current market price.
type BreakevenSlopeMetrics struct {
	LookbackMinutes       int
	ImprovementThreshold  float64

	history []ratioPoint
}

// NewBreakevenSlopeMetrics returns a tracker with the spec default 4h
// window.
func NewBreakevenSlopeMetrics() *BreakevenSlopeMetrics {
	return &BreakevenSlopeMetrics{LookbackMinutes: 240, ImprovementThreshold: 0.001}
}

// RecordBreakeven appends a positive breakeven price observation.
func (m *BreakevenSlopeMetrics) RecordBreakeven(ts time.Time, price float64) {
	if price <= 0 {
		return
	}
	m.history = append(m.history, ratioPoint{ts, price})
	if len(m.history) > maxBreakevenHistory {
		m.history = m.history[len(m.history)-maxBreakevenHistory:]
	}
}

// SlopeScore returns a [0,1] score for how favorably breakeven has moved
// relative to currentPrice, defaulting to 0.5 with insufficient data.
func (m *BreakevenSlopeMetrics) SlopeScore(now time.Time, currentPrice float64) float64 {
	if len(m.history) < 2 {
		return 0.5
	}

	cutoff := now.Add(-time.Duration(m.LookbackMinutes) * time.Minute)
	var window []ratioPoint
	for _, p := range m.history {
		if p.ts.After(cutoff) {
			window = append(window, p)
		}
	}
	if len(window) < 2 {
		return 0.5
	}

	startBE := window[0].ratio
	endBE := window[len(window)-1].ratio
	if startBE <= 0 || currentPrice <= 0 {
		return 0.5
	}

	startDist := abs(startBE-currentPrice) / currentPrice
	endDist := abs(endBE-currentPrice) / currentPrice

	if endDist < startDist {
		improvement := (startDist - endDist) / startDist
		return clampMax1(0.5 + improvement*0.5)
	}
	deterioration := (endDist - startDist) / startDist
	return clampMin0(0.5 - deterioration*0.5)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64   { return clampMin0(clampMax1(v)) }
func clampMax1(v float64) float64 { if v > 1.0 { return 1.0 }; return v }
func clampMin0(v float64) float64 { if v < 0.0 { return 0.0 }; return v }

// ComponentScores is the published per-subfactor breakdown.
type ComponentScores struct {
	CycleActivity float64
	InvReversion  float64
	BreakevenSlope float64
	Total         float64
}

// OpportunityWindow combines the three sub-metrics into a validity gate
// with hysteresis: it stays valid above valid_threshold, goes invalid
// below invalid_threshold, and times out after timeout_hours without a
// valid reading.
type OpportunityWindow struct {
	W1, W2, W3               float64
	ValidThreshold           float64
	InvalidThreshold         float64
	TimeoutHours             int

	CycleMetrics    *CycleActivityMetrics
	ReversionMetrics *InventoryReversionMetrics
	BreakevenMetrics *BreakevenSlopeMetrics

	isValid       bool
	lastValidTime *time.Time
	currentScore  float64
}

// NewOpportunityWindow returns a window with the spec defaults:
// weights 0.4/0.3/0.3, valid >= 0.4, invalid < 0.25, 72h timeout.
func NewOpportunityWindow() *OpportunityWindow {
	return &OpportunityWindow{
		W1: 0.4, W2: 0.3, W3: 0.3,
		ValidThreshold:   0.4,
		InvalidThreshold: 0.25,
		TimeoutHours:     72,
		CycleMetrics:     NewCycleActivityMetrics(),
		ReversionMetrics: NewInventoryReversionMetrics(),
		BreakevenMetrics: NewBreakevenSlopeMetrics(),
		isValid:          true,
		currentScore:     0.5,
	}
}

// Update folds the latest inventory ratio and breakeven price into the
// sub-metrics, recomputes the composite score, and refreshes validity.
func (w *OpportunityWindow) Update(ts time.Time, inventoryRatio, breakevenPrice, currentPrice decimal.Decimal) {
	invRatio, _ := inventoryRatio.Float64()
	bePrice, _ := breakevenPrice.Float64()
	curPrice, _ := currentPrice.Float64()

	w.ReversionMetrics.RecordRatio(ts, invRatio)
	w.BreakevenMetrics.RecordBreakeven(ts, bePrice)

	w.currentScore = w.calculateScore(ts, curPrice)

	if w.currentScore >= w.ValidThreshold {
		w.isValid = true
		t := ts
		w.lastValidTime = &t
	} else if w.currentScore < w.InvalidThreshold {
		w.isValid = false
	}

	if w.lastValidTime != nil {
		hoursSinceValid := ts.Sub(*w.lastValidTime).Hours()
		if hoursSinceValid >= float64(w.TimeoutHours) {
			w.isValid = false
		}
	}
}

// RecordFill folds a fill into the cycle-activity sub-metric.
func (w *OpportunityWindow) RecordFill(ts time.Time) {
	w.CycleMetrics.RecordFill(ts)
}

// RecordRoundTrip folds a completed buy/sell cycle into the cycle-activity
// sub-metric.
func (w *OpportunityWindow) RecordRoundTrip(ts time.Time) {
	w.CycleMetrics.RecordRoundTrip(ts)
}

func (w *OpportunityWindow) calculateScore(ts time.Time, currentPrice float64) float64 {
	cycleScore := w.CycleMetrics.ActivityScore(ts)
	reversionScore := w.ReversionMetrics.ReversionScore(ts)
	breakevenScore := w.BreakevenMetrics.SlopeScore(ts, currentPrice)

	return w.W1*cycleScore + w.W2*reversionScore + w.W3*breakevenScore
}

// IsValid reports the opportunity window's current validity.
func (w *OpportunityWindow) IsValid() bool { return w.isValid }

// Score returns the current composite score.
func (w *OpportunityWindow) Score() float64 { return w.currentScore }

// ComponentScoresAt returns the per-subfactor breakdown for logging/audit.
func (w *OpportunityWindow) ComponentScoresAt(ts time.Time, currentPrice float64) ComponentScores {
	return ComponentScores{
		CycleActivity:  w.CycleMetrics.ActivityScore(ts),
		InvReversion:   w.ReversionMetrics.ReversionScore(ts),
		BreakevenSlope: w.BreakevenMetrics.SlopeScore(ts, currentPrice),
		Total:          w.currentScore,
	}
}
