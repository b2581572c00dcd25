package advantage

import (
	"time"

	"gridcore/internal/audit"
	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
)

// Engine wires a Stub and a Full gate behind the Gate interface. It
// answers from the Stub until the first fill has been recorded, then
// switches to the Full implementation on the next control-loop tick and
// records the switch as a param_update audit event. The Full
// implementation is kept warm from the same fill/state feed the whole
// time so the switch carries no cold-start gap.
type Engine struct {
	sessionID  string
	journal    audit.Journal
	configHash func() string

	stub *Stub
	full *Full

	fillsSeen int
	promoted  bool
}

// NewEngine constructs an Engine starting on the stub.
func NewEngine(sessionID string, journal audit.Journal, configHash func() string, outerLow, outerHigh decimal.Decimal) *Engine {
	return &Engine{
		sessionID:  sessionID,
		journal:    journal,
		configHash: configHash,
		stub:       NewStub(sessionID, journal, configHash, outerLow, outerHigh),
		full:       NewFull(sessionID, journal, configHash, outerLow, outerHigh),
	}
}

func (e *Engine) active() Gate {
	if e.promoted {
		return e.full
	}
	return e.stub
}

// OpportunityValid delegates to the active implementation.
func (e *Engine) OpportunityValid() bool { return e.active().OpportunityValid() }

// CoreZone delegates to the active implementation.
func (e *Engine) CoreZone() domain.PriceRange { return e.active().CoreZone() }

// UpdateOuterRange refreshes both implementations so the promotion
// cutover is seamless.
func (e *Engine) UpdateOuterRange(low, high decimal.Decimal) {
	e.stub.UpdateOuterRange(low, high)
	e.full.UpdateOuterRange(low, high)
}

// RecordFill always feeds the full implementation, regardless of which
// one is currently active, so it is warm by the time it is promoted.
func (e *Engine) RecordFill(ts time.Time, price, qty decimal.Decimal, side string) {
	e.full.RecordFill(ts, price, qty, side)
	e.fillsSeen++
}

// RecordRoundTrip feeds the full implementation's activity metric.
func (e *Engine) RecordRoundTrip(ts time.Time) {
	e.full.RecordRoundTrip(ts)
}

// UpdateState feeds the full implementation's live price/inventory/
// breakeven inputs.
func (e *Engine) UpdateState(currentPrice, inventoryRatio, breakevenPrice decimal.Decimal) {
	e.full.UpdateState(currentPrice, inventoryRatio, breakevenPrice)
}

// OnControlLoop ticks the active implementation, then promotes from stub
// to full the first time a tick runs after at least one fill has been
// recorded.
func (e *Engine) OnControlLoop(ts time.Time) {
	e.active().OnControlLoop(ts)

	if !e.promoted && e.fillsSeen > 0 {
		e.promoted = true
		if e.journal != nil {
			hash := "unknown"
			if e.configHash != nil {
				hash = e.configHash()
			}
			evt := audit.ParamUpdate(e.sessionID, ts, "advantage_gate_impl", "stub", "full", hash, "first control tick with fill history")
			_ = e.journal.Write(evt)
		}
	}
}

// AdvScore scores a price via the full implementation, which stays warm
// even while the stub is the gate of record.
func (e *Engine) AdvScore(price decimal.Decimal, ts time.Time) float64 {
	return e.full.AdvScore(price, ts)
}

// OpportunityScore returns the full implementation's composite score.
func (e *Engine) OpportunityScore() float64 { return e.full.OpportunityScore() }

var _ Gate = (*Engine)(nil)
