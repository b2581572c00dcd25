package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type ratioPoint struct {
	ts    time.Time
	ratio decimal.Decimal
}

const ratioHistoryLimit = 100

// Inventory tracks the live position and its ratio against a configured
// notional cap. position_qty is base currency; max_inventory_notional and
// notional_value are quote currency.
type Inventory struct {
	positionQty          decimal.Decimal
	maxInventoryNotional  decimal.Decimal

	lastMarkPrice decimal.Decimal
	lastUpdate    time.Time

	ratioHistory []ratioPoint
}

// NewInventory returns an empty position against the given notional cap.
func NewInventory(maxInventoryNotional decimal.Decimal) *Inventory {
	return &Inventory{maxInventoryNotional: maxInventoryNotional}
}

// PositionQty returns the current signed base-currency position.
func (inv *Inventory) PositionQty() decimal.Decimal { return inv.positionQty }

// NotionalValue returns |position_qty| * last mark price, in quote currency.
func (inv *Inventory) NotionalValue() decimal.Decimal {
	return inv.positionQty.Abs().Mul(inv.lastMarkPrice)
}

// InventoryRatio returns notional_value / max_inventory_notional, clamped
// to [0, 1]. A non-positive cap is treated as fully saturated (1.0) as a
// safety fallback.
func (inv *Inventory) InventoryRatio() decimal.Decimal {
	if !inv.maxInventoryNotional.IsPositive() {
		return decimal.NewFromInt(1)
	}
	ratio := inv.NotionalValue().Div(inv.maxInventoryNotional)
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return ratio
}

// IsLong reports a strictly positive position.
func (inv *Inventory) IsLong() bool { return inv.positionQty.IsPositive() }

// IsShort reports a strictly negative position.
func (inv *Inventory) IsShort() bool { return inv.positionQty.IsNegative() }

// UpdatePrice refreshes the mark price used for notional/ratio derivations
// and appends a ratio history point for slope calculations.
func (inv *Inventory) UpdatePrice(markPrice decimal.Decimal, ts time.Time) {
	inv.lastMarkPrice = markPrice
	inv.lastUpdate = ts

	inv.ratioHistory = append(inv.ratioHistory, ratioPoint{ts: ts, ratio: inv.InventoryRatio()})
	if len(inv.ratioHistory) > ratioHistoryLimit {
		inv.ratioHistory = inv.ratioHistory[len(inv.ratioHistory)-ratioHistoryLimit:]
	}
}

// UpdateOnFill applies one fill's quantity delta and refreshes the mark
// price/ratio history as of the fill's timestamp.
func (inv *Inventory) UpdateOnFill(fillQty decimal.Decimal, side string, markPrice decimal.Decimal, ts time.Time) {
	switch side {
	case "buy":
		inv.positionQty = inv.positionQty.Add(fillQty)
	case "sell":
		inv.positionQty = inv.positionQty.Sub(fillQty)
	}
	inv.UpdatePrice(markPrice, ts)
}

// InventorySlope returns the inventory ratio's rate of change per minute
// over the trailing lookbackMinutes window. Zero with fewer than two
// history points or a non-positive elapsed span.
func (inv *Inventory) InventorySlope(lookbackMinutes int) decimal.Decimal {
	n := len(inv.ratioHistory)
	if n < 2 {
		return decimal.Zero
	}

	last := inv.ratioHistory[n-1]
	cutoff := last.ts.Add(-time.Duration(lookbackMinutes) * time.Minute)

	for i, pt := range inv.ratioHistory {
		if !pt.ts.Before(cutoff) {
			if i == n-1 {
				return decimal.Zero
			}
			timeDiffMinutes := last.ts.Sub(pt.ts).Minutes()
			if timeDiffMinutes <= 0 {
				return decimal.Zero
			}
			delta := last.ratio.Sub(pt.ratio)
			return delta.Div(decimal.NewFromFloat(timeDiffMinutes))
		}
	}
	return decimal.Zero
}

// LastMarkPrice returns the most recently applied mark price.
func (inv *Inventory) LastMarkPrice() decimal.Decimal { return inv.lastMarkPrice }

// Snapshot is the read-only projection used by to-dict style audit/logging
// paths.
type Snapshot struct {
	PositionQty          decimal.Decimal
	NotionalValue        decimal.Decimal
	InventoryRatio       decimal.Decimal
	MaxInventoryNotional decimal.Decimal
	LastMarkPrice        decimal.Decimal
	IsLong               bool
}

// ToSnapshot projects the current state for logging/audit purposes.
func (inv *Inventory) ToSnapshot() Snapshot {
	return Snapshot{
		PositionQty:          inv.positionQty,
		NotionalValue:        inv.NotionalValue(),
		InventoryRatio:       inv.InventoryRatio(),
		MaxInventoryNotional: inv.maxInventoryNotional,
		LastMarkPrice:        inv.lastMarkPrice,
		IsLong:               inv.IsLong(),
	}
}
