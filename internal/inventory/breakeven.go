// Package inventory tracks the position (first risk variable) and its
// breakeven price. Both are updated on every fill and read by the risk
// engine, harvest/derisk arbitration, and re-anchor checks.
package inventory

import "github.com/shopspring/decimal"

// Breakeven accumulates cost, fees, and slippage across fills to derive a
// fee-inclusive breakeven price. Funding is settled separately and never
// enters this figure.
type Breakeven struct {
	totalCost     decimal.Decimal
	totalQty      decimal.Decimal
	totalFees     decimal.Decimal
	totalSlippage decimal.Decimal
}

// NewBreakeven returns a zeroed breakeven tracker.
func NewBreakeven() *Breakeven {
	return &Breakeven{}
}

// Price returns (cost + fees + slippage) / qty, or zero with no position.
func (b *Breakeven) Price() decimal.Decimal {
	if b.totalQty.IsZero() {
		return decimal.Zero
	}
	return b.totalCost.Add(b.totalFees).Add(b.totalSlippage).Div(b.totalQty)
}

// AvgCostPrice returns cost/qty, excluding fees and slippage.
func (b *Breakeven) AvgCostPrice() decimal.Decimal {
	if b.totalQty.IsZero() {
		return decimal.Zero
	}
	return b.totalCost.Div(b.totalQty)
}

// UpdateOnFill folds one fill into the breakeven accumulators. A buy adds
// cost/qty/fees/slippage directly. A sell scales the existing cost, fees,
// and slippage down by (1 - fillQty/totalQty) before the new fill's own
// fees and slippage are added back unscaled — the sell itself realizes no
// new cost, only a proportional release of the old one.
func (b *Breakeven) UpdateOnFill(fillPrice, fillQty, fee decimal.Decimal, side string, slippage decimal.Decimal) {
	switch side {
	case "buy":
		b.totalCost = b.totalCost.Add(fillPrice.Mul(fillQty))
		b.totalQty = b.totalQty.Add(fillQty)
		b.totalFees = b.totalFees.Add(fee)
		b.totalSlippage = b.totalSlippage.Add(slippage)
	case "sell":
		if b.totalQty.IsPositive() {
			ratio := fillQty.Div(b.totalQty)
			remain := decimal.NewFromInt(1).Sub(ratio)
			b.totalCost = b.totalCost.Mul(remain)
			b.totalQty = b.totalQty.Sub(fillQty)
			b.totalFees = b.totalFees.Mul(remain)
			b.totalSlippage = b.totalSlippage.Mul(remain)
			b.totalFees = b.totalFees.Add(fee)
			b.totalSlippage = b.totalSlippage.Add(slippage)
		}
	}
}

// Reset zeroes all accumulators.
func (b *Breakeven) Reset() {
	b.totalCost = decimal.Zero
	b.totalQty = decimal.Zero
	b.totalFees = decimal.Zero
	b.totalSlippage = decimal.Zero
}
