// Package domain holds the decision core's value types: the grid ladder,
// regime state, permission table, and audit snapshot. None of these types
// carry behavior tied to a specific venue; venue concerns live behind the
// narrow adapter interfaces each consuming package declares for itself
// (ordermgr.ExecutionAdapter, statemachine.ExecutionAdapter, riskengine's
// OrderActions/EmergencyActions, eventloop.PlacerCanceller).
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or a fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the lifecycle state of a GridOrder.
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
	OrderStuck           OrderStatus = "stuck"
)

// Regime is one of the four operating states of the strategy.
type Regime string

const (
	RegimeNormal         Regime = "normal"
	RegimeDefensive      Regime = "defensive"
	RegimeDamageControl  Regime = "damage_control"
	RegimeEmergencyStop  Regime = "emergency_stop"
)

// OrderMode constrains what the order manager is allowed to place.
type OrderMode string

const (
	ModeFull       OrderMode = "full"
	ModeNoNewBuys  OrderMode = "no_new_buys"
	ModeReduceOnly OrderMode = "reduce_only"
	ModeKillSwitch OrderMode = "kill_switch"
)

// Permission is the fixed per-regime capability record (spec §4.1).
type Permission struct {
	AllowNewBuy    bool
	AllowRefillBuy bool
	AllowSell      bool
	AllowReduceOnly bool
	AllowReanchor  bool
	OrderMode      OrderMode
}

// Permissions is the constant permission table, indexed by Regime.
var Permissions = map[Regime]Permission{
	RegimeNormal: {
		AllowNewBuy: true, AllowRefillBuy: true, AllowSell: true,
		AllowReduceOnly: false, AllowReanchor: true, OrderMode: ModeFull,
	},
	RegimeDefensive: {
		AllowNewBuy: false, AllowRefillBuy: false, AllowSell: true,
		AllowReduceOnly: true, AllowReanchor: false, OrderMode: ModeNoNewBuys,
	},
	RegimeDamageControl: {
		AllowNewBuy: false, AllowRefillBuy: false, AllowSell: true,
		AllowReduceOnly: true, AllowReanchor: false, OrderMode: ModeReduceOnly,
	},
	RegimeEmergencyStop: {
		AllowNewBuy: false, AllowRefillBuy: false, AllowSell: true,
		AllowReduceOnly: true, AllowReanchor: false, OrderMode: ModeKillSwitch,
	},
}

// GridOrder is an order intent or a tracked live order on the ladder.
type GridOrder struct {
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Qty           decimal.Decimal
	ReduceOnly    bool
	GridLevel     int // negative below center (buy), positive above (sell)
	Status        OrderStatus
	ClientOrderID string
	ExchangeID    string

	FilledQty decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
	Tags      map[string]string
}

// Key returns the (grid_level, side) diff key the order manager keys orders by.
func (o GridOrder) Key() GridKey {
	return GridKey{Level: o.GridLevel, Side: o.Side}
}

// GridKey is the diff-algorithm key: a grid level paired with its side.
type GridKey struct {
	Level int
	Side  Side
}

// GridLevel describes one intended ladder rung before it becomes an order.
type GridLevel struct {
	ID          int
	Price       decimal.Decimal
	Side        Side
	BaseSize    decimal.Decimal
	DecayedSize decimal.Decimal
	InCore      bool
}

// Fill is one execution report fed back from the execution adapter.
type Fill struct {
	Symbol        string
	ClientOrderID string
	ExchangeID    string
	Side          Side
	FillPrice     decimal.Decimal
	FillQty       decimal.Decimal
	Fee           decimal.Decimal
	FeeCurrency   string
	IsPartial     bool
	RemainingQty  decimal.Decimal
	Timestamp     time.Time
}

// PriceRange is a [Low, High] price corridor, used for the outer range and
// the core zone.
type PriceRange struct {
	Low  decimal.Decimal
	High decimal.Decimal
}

// Width returns High - Low.
func (r PriceRange) Width() decimal.Decimal {
	return r.High.Sub(r.Low)
}

// Contains reports whether price lies within [Low, High] inclusive.
func (r PriceRange) Contains(price decimal.Decimal) bool {
	return !price.LessThan(r.Low) && !price.GreaterThan(r.High)
}

// ActiveOrdersSummary is the condensed view of live orders carried on a Snapshot.
type ActiveOrdersSummary struct {
	BuyCount         int
	SellCount        int
	MaxDistanceATR   decimal.Decimal
	BuyNotional      decimal.Decimal
	SellNotional     decimal.Decimal
}

// Snapshot captures every fact a risk trigger or audit event might need at
// decision time. It is deliberately a flat, immutable value: never mutated
// after construction, only replaced.
type Snapshot struct {
	Timestamp time.Time
	SessionID string

	MarkPrice decimal.Decimal
	LastPrice decimal.Decimal

	Regime Regime

	InventoryRatio decimal.Decimal
	PositionQty    decimal.Decimal
	BreakevenPrice decimal.Decimal

	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Equity        decimal.Decimal
	MarginUsage   decimal.Decimal

	// LiquidationDistance is present-or-absent: nil means "not available",
	// distinct from a reported zero distance.
	LiquidationDistance *decimal.Decimal

	OuterRange PriceRange
	CoreZone   PriceRange

	ActiveOrders ActiveOrdersSummary

	ATR             decimal.Decimal
	RealizedVol     decimal.Decimal
	IsVolSpike      bool
	StructuralBreak bool
	OutsideSince    *time.Time

	ConfigHash string
}
