// Package gridgen produces the desired order ladder for the current tick:
// the set of GridOrder intents a regime, inventory ratio, ATR, outer
// range, and advantage gate together imply, with client order IDs that
// serve as both the placement idempotency key and the fill correlation
// key.
package gridgen

import (
	"fmt"
	"sync/atomic"

	"gridcore/internal/domain"
	"gridcore/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// Config holds the fixed parameters of the ladder shape.
type Config struct {
	Symbol string

	BuyActiveCount  int // N_buy_active, default 5
	SellActiveCount int // M_sell_active, default 5

	BaseOrderSize decimal.Decimal
	PriceDecimals int32
	QtyDecimals   int32

	FixedStep           decimal.Decimal // used when ATR is cold (zero)
	CoreCompressFactor  decimal.Decimal // 0.7
	BufferExpandFactor  decimal.Decimal // 1.3
	EdgeDecayFactor     decimal.Decimal // 0.7
	EdgeDecayRungs      int             // last N rungs per side that decay, default 2
}

// DefaultConfig returns a Config with the spec's defaults, symbol and base
// order size still to be filled in by the caller.
func DefaultConfig(symbol string, baseOrderSize decimal.Decimal) Config {
	return Config{
		Symbol:              symbol,
		BuyActiveCount:      5,
		SellActiveCount:     5,
		BaseOrderSize:       baseOrderSize,
		PriceDecimals:       2,
		QtyDecimals:         6,
		FixedStep:           decimal.NewFromFloat(1.0),
		CoreCompressFactor:  decimal.NewFromFloat(0.7),
		BufferExpandFactor:  decimal.NewFromFloat(1.3),
		EdgeDecayFactor:     decimal.NewFromFloat(0.7),
		EdgeDecayRungs:      2,
	}
}

// Generator is the pure-function ladder builder: a process-local
// monotonic sequence counter is its only state, used to mint unique
// client order IDs.
type Generator struct {
	cfg Config
	seq uint64
}

// New constructs a Generator.
func New(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Inputs bundles the per-tick market/regime state the ladder depends on.
type Inputs struct {
	CurrentPrice    decimal.Decimal
	Regime          domain.Regime
	InventoryRatio  decimal.Decimal
	ATR             decimal.Decimal
	OuterRange      domain.PriceRange
	CoreZone        domain.PriceRange
	OpportunityValid bool
}

// Generate computes the desired ladder for one tick. EmergencyStop always
// yields an empty set. An invalid opportunity window downgrades every
// other regime to reduce_only sells only.
func (g *Generator) Generate(in Inputs) []domain.GridOrder {
	if in.Regime == domain.RegimeEmergencyStop {
		return nil
	}

	baseStep := g.baseStep(in.ATR)

	if !in.OpportunityValid {
		return g.reduceOnlySells(in, baseStep)
	}

	switch in.Regime {
	case domain.RegimeNormal:
		return g.normalLadder(in, baseStep)
	case domain.RegimeDefensive:
		return g.defensiveSells(in, baseStep)
	case domain.RegimeDamageControl:
		return g.reduceOnlySells(in, baseStep)
	default:
		return nil
	}
}

func (g *Generator) baseStep(atr decimal.Decimal) decimal.Decimal {
	if atr.IsZero() {
		return g.cfg.FixedStep
	}
	return atr
}

// stepFor returns the step size appropriate to where price sits: core,
// buffer, or neither (outside both, plain base step).
func (g *Generator) stepFor(price decimal.Decimal, in Inputs, baseStep decimal.Decimal) decimal.Decimal {
	if in.CoreZone.Contains(price) {
		return baseStep.Mul(g.cfg.CoreCompressFactor)
	}
	if in.OuterRange.Contains(price) {
		return baseStep.Mul(g.cfg.BufferExpandFactor)
	}
	return baseStep
}

// normalLadder builds the full buy+sell ladder, bounded by the outer range.
func (g *Generator) normalLadder(in Inputs, baseStep decimal.Decimal) []domain.GridOrder {
	orders := make([]domain.GridOrder, 0, g.cfg.BuyActiveCount+g.cfg.SellActiveCount)

	orders = append(orders, g.buildSide(in, baseStep, domain.SideBuy, g.cfg.BuyActiveCount, false)...)
	orders = append(orders, g.buildSide(in, baseStep, domain.SideSell, g.cfg.SellActiveCount, false)...)
	return orders
}

// defensiveSells emits only sells that fall within the core zone, using
// the compressed core step.
func (g *Generator) defensiveSells(in Inputs, baseStep decimal.Decimal) []domain.GridOrder {
	all := g.buildSide(in, baseStep, domain.SideSell, g.cfg.SellActiveCount, false)
	inCore := make([]domain.GridOrder, 0, len(all))
	for _, o := range all {
		if in.CoreZone.Contains(o.Price) {
			inCore = append(inCore, o)
		}
	}
	return inCore
}

// reduceOnlySells emits M reduce-only sells above current price,
// regardless of core zone.
func (g *Generator) reduceOnlySells(in Inputs, baseStep decimal.Decimal) []domain.GridOrder {
	return g.buildSide(in, baseStep, domain.SideSell, g.cfg.SellActiveCount, true)
}

// buildSide walks rungs outward from currentPrice on one side, applying
// per-rung step sizing, edge decay, outer-range clipping, and minimum
// order-value pruning (delegated to createOrder).
func (g *Generator) buildSide(in Inputs, baseStep decimal.Decimal, side domain.Side, count int, reduceOnly bool) []domain.GridOrder {
	orders := make([]domain.GridOrder, 0, count)
	price := in.CurrentPrice

	for i := 1; i <= count; i++ {
		step := g.stepFor(price, in, baseStep)
		if side == domain.SideBuy {
			price = price.Sub(step)
		} else {
			price = price.Add(step)
		}

		if !in.OuterRange.Contains(price) {
			break
		}

		levelIndex := i
		if side == domain.SideBuy {
			levelIndex = -i
		}

		decay := g.edgeDecayFactor(i, count)
		order := g.createOrder(price, side, levelIndex, decay, reduceOnly)
		if order != nil {
			orders = append(orders, *order)
		}
	}
	return orders
}

// edgeDecayFactor returns 1 for interior rungs; for the last
// EdgeDecayRungs rungs of a side it applies EdgeDecayFactor raised to the
// (rung-from-edge-start+1)th power, producing an exponential taper.
func (g *Generator) edgeDecayFactor(rungIndex, count int) decimal.Decimal {
	edgeStart := count - g.cfg.EdgeDecayRungs + 1
	if rungIndex < edgeStart {
		return decimal.NewFromInt(1)
	}
	power := rungIndex - edgeStart + 1
	factor := decimal.NewFromInt(1)
	for i := 0; i < power; i++ {
		factor = factor.Mul(g.cfg.EdgeDecayFactor)
	}
	return factor
}

func (g *Generator) createOrder(price decimal.Decimal, side domain.Side, gridLevel int, decay decimal.Decimal, reduceOnly bool) *domain.GridOrder {
	qty := g.cfg.BaseOrderSize.Mul(decay)
	roundedPrice := tradingutils.RoundPrice(price, int(g.cfg.PriceDecimals))
	roundedQty := tradingutils.RoundQuantity(qty, int(g.cfg.QtyDecimals))

	if roundedQty.IsZero() || roundedPrice.IsZero() {
		return nil
	}

	return &domain.GridOrder{
		Symbol:        g.cfg.Symbol,
		Side:          side,
		Price:         roundedPrice,
		Qty:           roundedQty,
		ReduceOnly:    reduceOnly,
		GridLevel:     gridLevel,
		Status:        domain.OrderPending,
		ClientOrderID: g.nextClientOrderID(side, gridLevel),
	}
}

// nextClientOrderID mints a deterministic, monotonically increasing
// client order ID: it is both the idempotency key for placement and the
// correlation key fills are matched back against.
func (g *Generator) nextClientOrderID(side domain.Side, gridLevel int) string {
	n := atomic.AddUint64(&g.seq, 1)
	return fmt.Sprintf("%s-%s-L%d-%d", g.cfg.Symbol, side, gridLevel, n)
}
