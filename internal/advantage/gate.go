package advantage

import (
	"time"

	"gridcore/internal/audit"
	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
)

// Gate is the interface the grid generator and skew engine consult for
// opportunity validity and the core zone. Two implementations exist: a
// Stub (always valid, core zone == outer range) and a Full implementation
// built once enough fill history has accumulated — callers depend only on
// this interface so the later swap is transparent.
type Gate interface {
	OpportunityValid() bool
	CoreZone() domain.PriceRange
	OnControlLoop(ts time.Time)
	UpdateOuterRange(low, high decimal.Decimal)
}

// Stub always reports a valid opportunity window and a core zone equal to
// the outer range. Used until enough fill history exists to drive the
// Full implementation's sub-metrics.
type Stub struct {
	sessionID      string
	journal        audit.Journal
	configHash     func() string
	outerLow       decimal.Decimal
	outerHigh      decimal.Decimal
	controlLoopN   int
}

// NewStub constructs a Stub gate seeded from the given outer range.
func NewStub(sessionID string, journal audit.Journal, configHash func() string, outerLow, outerHigh decimal.Decimal) *Stub {
	return &Stub{sessionID: sessionID, journal: journal, configHash: configHash, outerLow: outerLow, outerHigh: outerHigh}
}

// OpportunityValid always returns true.
func (s *Stub) OpportunityValid() bool { return true }

// CoreZone returns the outer range verbatim.
func (s *Stub) CoreZone() domain.PriceRange {
	return domain.PriceRange{Low: s.outerLow, High: s.outerHigh}
}

// OnControlLoop bumps the control-loop counter and writes a param_update
// audit event.
func (s *Stub) OnControlLoop(ts time.Time) {
	s.controlLoopN++
	if s.journal == nil {
		return
	}
	hash := "unknown"
	if s.configHash != nil {
		hash = s.configHash()
	}
	evt := audit.ParamUpdate(s.sessionID, ts, "control_loop", s.controlLoopN-1, s.controlLoopN, hash, "control_loop tick")
	_ = s.journal.Write(evt)
}

// UpdateOuterRange refreshes the range the stub reports as its core zone.
func (s *Stub) UpdateOuterRange(low, high decimal.Decimal) {
	s.outerLow, s.outerHigh = low, high
}

// Full computes the real opportunity window and core zone from fill
// history once the engine has run long enough to populate it.
type Full struct {
	sessionID  string
	journal    audit.Journal
	configHash func() string

	opportunityWindow *OpportunityWindow
	coreZoneCalc      *CoreZoneCalculator

	outerLow, outerHigh decimal.Decimal

	currentPrice   decimal.Decimal
	inventoryRatio decimal.Decimal
	breakevenPrice decimal.Decimal

	controlLoopN int
}

// NewFull constructs a Full gate seeded from the given outer range.
func NewFull(sessionID string, journal audit.Journal, configHash func() string, outerLow, outerHigh decimal.Decimal) *Full {
	return &Full{
		sessionID:         sessionID,
		journal:           journal,
		configHash:        configHash,
		opportunityWindow: NewOpportunityWindow(),
		coreZoneCalc:      NewCoreZoneCalculator(),
		outerLow:          outerLow,
		outerHigh:         outerHigh,
	}
}

// OpportunityValid reports the opportunity window's current validity.
func (f *Full) OpportunityValid() bool { return f.opportunityWindow.IsValid() }

// CoreZone returns the calculated core zone, falling back to the outer
// range before any fill history exists.
func (f *Full) CoreZone() domain.PriceRange {
	low, high := f.coreZoneCalc.CoreZone()
	if low == nil || high == nil {
		return domain.PriceRange{Low: f.outerLow, High: f.outerHigh}
	}
	return domain.PriceRange{Low: decimal.NewFromFloat(*low), High: decimal.NewFromFloat(*high)}
}

// OnControlLoop refreshes the opportunity window and core zone, then
// writes a param_update audit event.
func (f *Full) OnControlLoop(ts time.Time) {
	f.controlLoopN++

	f.opportunityWindow.Update(ts, f.inventoryRatio, f.breakevenPrice, f.currentPrice)

	invRevertScore, breakevenGain := 0.5, 0.5
	curPrice, _ := f.currentPrice.Float64()
	scores := f.opportunityWindow.ComponentScoresAt(ts, curPrice)
	invRevertScore = scores.InvReversion
	breakevenGain = scores.BreakevenSlope

	outerLow, _ := f.outerLow.Float64()
	outerHigh, _ := f.outerHigh.Float64()
	f.coreZoneCalc.CalculateCoreZone(ts, outerLow, outerHigh, invRevertScore, breakevenGain)

	if f.journal == nil {
		return
	}
	hash := "unknown"
	if f.configHash != nil {
		hash = f.configHash()
	}
	evt := audit.ParamUpdate(f.sessionID, ts, "control_loop", f.controlLoopN-1, f.controlLoopN, hash, "control_loop tick")
	_ = f.journal.Write(evt)
}

// RecordFill folds a fill into both the opportunity window's activity
// metric and the core zone's density tracker.
func (f *Full) RecordFill(ts time.Time, price, qty decimal.Decimal, side string) {
	f.opportunityWindow.RecordFill(ts)
	p, _ := price.Float64()
	q, _ := qty.Float64()
	f.coreZoneCalc.RecordFill(ts, p, q)
}

// RecordRoundTrip folds a completed buy/sell cycle into the activity metric.
func (f *Full) RecordRoundTrip(ts time.Time) {
	f.opportunityWindow.RecordRoundTrip(ts)
}

// UpdateState refreshes the live price/inventory/breakeven inputs the
// next OnControlLoop tick will consume.
func (f *Full) UpdateState(currentPrice, inventoryRatio, breakevenPrice decimal.Decimal) {
	f.currentPrice = currentPrice
	f.inventoryRatio = inventoryRatio
	f.breakevenPrice = breakevenPrice
}

// UpdateOuterRange refreshes the fallback range used before fill history
// exists.
func (f *Full) UpdateOuterRange(low, high decimal.Decimal) {
	f.outerLow, f.outerHigh = low, high
}

// AdvScore scores a specific price by local fill density and the current
// reversion/breakeven sub-scores.
func (f *Full) AdvScore(price decimal.Decimal, ts time.Time) float64 {
	invRevertScore, breakevenGain := 0.5, 0.5
	curPrice, _ := f.currentPrice.Float64()
	scores := f.opportunityWindow.ComponentScoresAt(ts, curPrice)
	invRevertScore = scores.InvReversion
	breakevenGain = scores.BreakevenSlope

	p, _ := price.Float64()
	return f.coreZoneCalc.AdvScore(p, ts, invRevertScore, breakevenGain)
}

// OpportunityScore returns the opportunity window's current composite
// score.
func (f *Full) OpportunityScore() float64 { return f.opportunityWindow.Score() }
