// Package account tracks the exchange account view (equity, margin,
// liquidation distance) consumed by the risk engine's margin and
// liquidation-distance triggers.
package account

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	liqDistanceSafeThreshold = "0.03"
	marginRatioSafeThreshold = "1.2"
)

// State is the account-level risk view: equity, margin usage, liquidation
// distance, and PnL. MarginUsed/MarginRatio/MaintenanceMargin come from the
// exchange's account snapshot; MarkPrice and LiqPrice are refreshed
// independently as price updates and position changes arrive.
type State struct {
	Equity    decimal.Decimal
	Available decimal.Decimal

	MarginUsed         decimal.Decimal
	MarginRatio        decimal.Decimal
	MaintenanceMargin  decimal.Decimal

	MarkPrice decimal.Decimal
	LiqPrice  *decimal.Decimal

	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal

	LastUpdate time.Time
}

// New returns a zeroed account state.
func New() *State {
	return &State{}
}

// MarginUsage returns margin_used / equity, clamped to [0, 1]. A
// non-positive equity is treated as fully used (1.0) as a safety fallback.
func (s *State) MarginUsage() decimal.Decimal {
	if !s.Equity.IsPositive() {
		return decimal.NewFromInt(1)
	}
	usage := s.MarginUsed.Div(s.Equity)
	if usage.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return usage
}

// LiqDistance returns abs(mark_price - liq_price) / mark_price as a
// fraction in [0, 1], or nil if no liquidation price is known or the mark
// price is non-positive — callers must treat a nil distance as
// data-unavailable, not as safe.
func (s *State) LiqDistance() *decimal.Decimal {
	if s.LiqPrice == nil || !s.MarkPrice.IsPositive() {
		return nil
	}
	d := s.MarkPrice.Sub(*s.LiqPrice).Abs().Div(s.MarkPrice)
	return &d
}

// IsLiqDistanceSafe reports whether the liquidation distance clears the 3%
// threshold. Unavailable data is treated as unsafe.
func (s *State) IsLiqDistanceSafe() bool {
	dist := s.LiqDistance()
	if dist == nil {
		return false
	}
	threshold, _ := decimal.NewFromString(liqDistanceSafeThreshold)
	return dist.GreaterThanOrEqual(threshold)
}

// IsMarginSafe reports whether the margin ratio clears the 120% threshold.
func (s *State) IsMarginSafe() bool {
	threshold, _ := decimal.NewFromString(marginRatioSafeThreshold)
	return s.MarginRatio.GreaterThanOrEqual(threshold)
}

// UpdateFromExchange folds a fresh account snapshot (equity, margin,
// realized/unrealized PnL) into the state.
func (s *State) UpdateFromExchange(equity, available, marginUsed, marginRatio, maintenanceMargin, unrealizedPnL, realizedPnL decimal.Decimal, at time.Time) {
	s.Equity = equity
	s.Available = available
	s.MarginUsed = marginUsed
	s.MarginRatio = marginRatio
	s.MaintenanceMargin = maintenanceMargin
	s.UnrealizedPnL = unrealizedPnL
	s.RealizedPnL = realizedPnL
	s.LastUpdate = at
}

// UpdatePrices refreshes the mark price and, when known, the liquidation
// price.
func (s *State) UpdatePrices(markPrice decimal.Decimal, liqPrice *decimal.Decimal, at time.Time) {
	s.MarkPrice = markPrice
	if liqPrice != nil {
		s.LiqPrice = liqPrice
	}
	s.LastUpdate = at
}

// Snapshot is the read-only projection used by logging/audit paths.
type Snapshot struct {
	Equity            decimal.Decimal
	Available         decimal.Decimal
	MarginUsed        decimal.Decimal
	MarginUsage       decimal.Decimal
	MarginRatio       decimal.Decimal
	MaintenanceMargin decimal.Decimal
	MarkPrice         decimal.Decimal
	LiqPrice          *decimal.Decimal
	LiqDistance       *decimal.Decimal
	UnrealizedPnL     decimal.Decimal
	RealizedPnL       decimal.Decimal
}

// ToSnapshot projects the current state.
func (s *State) ToSnapshot() Snapshot {
	return Snapshot{
		Equity:            s.Equity,
		Available:         s.Available,
		MarginUsed:        s.MarginUsed,
		MarginUsage:       s.MarginUsage(),
		MarginRatio:       s.MarginRatio,
		MaintenanceMargin: s.MaintenanceMargin,
		MarkPrice:         s.MarkPrice,
		LiqPrice:          s.LiqPrice,
		LiqDistance:       s.LiqDistance(),
		UnrealizedPnL:     s.UnrealizedPnL,
		RealizedPnL:       s.RealizedPnL,
	}
}
