// Package eventloop drives one tick of the market-making cycle: evaluate
// risk stops against the state machine, regenerate the desired grid
// ladder for the (possibly new) regime, apply inventory skew, diff it
// against live orders, and check the voluntary de-risk engine — all
// under a single mutex so a price update and a fill never interleave.
package eventloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridcore/internal/advantage"
	"gridcore/internal/derisk"
	"gridcore/internal/domain"
	"gridcore/internal/gridgen"
	"gridcore/internal/ordermgr"
	"gridcore/internal/riskengine"
	"gridcore/internal/skew"
	"gridcore/internal/statemachine"
	"gridcore/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MarketData carries the per-tick price/volatility/range reading. The
// opportunity window and core zone are no longer supplied by the caller:
// the loop derives them from its own advantage.Gate, refreshed only on
// control ticks per SPEC_FULL.md §4.4.
type MarketData struct {
	Timestamp  time.Time
	MarkPrice  decimal.Decimal
	LastPrice  decimal.Decimal
	ATR        decimal.Decimal
	OuterRange domain.PriceRange
}

// AccountData is the per-tick position/equity reading.
type AccountData struct {
	InventoryRatio      decimal.Decimal
	PositionQty         decimal.Decimal
	BreakevenPrice      decimal.Decimal
	RealizedPnL         decimal.Decimal
	UnrealizedPnL       decimal.Decimal
	Equity              decimal.Decimal
	InitialEquity       decimal.Decimal
	MarginUsage         decimal.Decimal
	LiquidationDistance *decimal.Decimal
}

// Manager is the subset of *ordermgr.Manager the loop depends on.
type Manager interface {
	SyncOrders(desired, current []domain.GridOrder, ts time.Time) ordermgr.SyncResult
	GetActiveOrders() []domain.GridOrder
	UpdateATR(atr decimal.Decimal)
}

// PlacerCanceller is the execution surface the loop uses to apply a
// SyncResult once the order manager has approved it.
type PlacerCanceller interface {
	PlaceOrder(ctx context.Context, order domain.GridOrder) error
	CancelOrder(ctx context.Context, clientOrderID string) error
}

// Loop owns one symbol's tick cycle.
type Loop struct {
	mu sync.Mutex

	sessionID string
	symbol    string
	logger    *zap.Logger

	machine    *statemachine.Machine
	riskEngine *riskengine.Engine
	generator  *gridgen.Generator
	skewEngine *skew.Engine
	deriskEng  *derisk.Engine
	gate       advantage.Gate
	orders     Manager
	execution  PlacerCanceller

	opportunityValidSince *time.Time

	tracer        trace.Tracer
	tickCounter   metric.Int64Counter
	reduceCounter metric.Int64Counter
	tickLatency   metric.Float64Histogram
}

// New wires one tick loop for a symbol. gate supplies the opportunity
// window validity and core zone the grid generator and skew engine
// consult every tick; its boundaries only move on OnControlTick.
func New(
	sessionID, symbol string,
	machine *statemachine.Machine,
	riskEngine *riskengine.Engine,
	generator *gridgen.Generator,
	skewEngine *skew.Engine,
	deriskEng *derisk.Engine,
	gate advantage.Gate,
	orders Manager,
	execution PlacerCanceller,
	logger *zap.Logger,
) *Loop {
	tracer := telemetry.GetTracer("eventloop")
	meter := telemetry.GetMeter("eventloop")

	tickCounter, _ := meter.Int64Counter("eventloop_ticks_total",
		metric.WithDescription("Total number of tick cycles processed"))
	reduceCounter, _ := meter.Int64Counter("eventloop_reduce_proposals_total",
		metric.WithDescription("Total number of voluntary reduce proposals raised"))
	tickLatency, _ := meter.Float64Histogram("eventloop_tick_latency_seconds",
		metric.WithDescription("Latency of one tick cycle in seconds"))

	return &Loop{
		sessionID:     sessionID,
		symbol:        symbol,
		logger:        logger,
		machine:       machine,
		riskEngine:    riskEngine,
		generator:     generator,
		skewEngine:    skewEngine,
		deriskEng:     deriskEng,
		gate:          gate,
		orders:        orders,
		execution:     execution,
		tracer:        tracer,
		tickCounter:   tickCounter,
		reduceCounter: reduceCounter,
		tickLatency:   tickLatency,
	}
}

// OnControlTick advances the loop's slow-moving state: the advantage
// gate's opportunity window and core zone. Callers schedule this on
// wall-clock multiples of the configured control-tick interval (4h or
// 1d) and must invoke it between two OnTick calls, never interleaved,
// per SPEC_FULL.md §4.9.
func (l *Loop) OnControlTick(ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate.OnControlLoop(ts)
}

// OnFill forwards a fill to the advantage gate's fill-density and
// cycle-activity trackers, if the configured gate records fills (the
// Stub gate ignores them).
func (l *Loop) OnFill(ts time.Time, price, qty decimal.Decimal, side string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if recorder, ok := l.gate.(interface {
		RecordFill(time.Time, decimal.Decimal, decimal.Decimal, string)
	}); ok {
		recorder.RecordFill(ts, price, qty, side)
	}
}

// buildSnapshot assembles the domain.Snapshot threaded through both the
// state machine's TransitionTo and a firing stop's ExecuteActions.
func (l *Loop) buildSnapshot(md MarketData, acc AccountData) *domain.Snapshot {
	return &domain.Snapshot{
		Timestamp:           md.Timestamp,
		SessionID:           l.sessionID,
		MarkPrice:           md.MarkPrice,
		LastPrice:           md.LastPrice,
		Regime:              l.machine.CurrentRegime(),
		InventoryRatio:      acc.InventoryRatio,
		PositionQty:         acc.PositionQty,
		BreakevenPrice:      acc.BreakevenPrice,
		RealizedPnL:         acc.RealizedPnL,
		UnrealizedPnL:       acc.UnrealizedPnL,
		Equity:              acc.Equity,
		MarginUsage:         acc.MarginUsage,
		LiquidationDistance: acc.LiquidationDistance,
	}
}

// OnTick runs one full cycle: risk evaluation, ladder regeneration,
// skew, diff, and the voluntary reduce engines. It holds the loop's
// mutex for its whole duration so a concurrent fill callback can't
// observe a half-applied regime transition.
func (l *Loop) OnTick(ctx context.Context, md MarketData, acc AccountData) error {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "OnTick")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.orders.UpdateATR(md.ATR)

	snap := l.buildSnapshot(md, acc)

	l.applyRiskEvaluation(md, snap)

	if err := l.regenerateAndSync(ctx, md, acc); err != nil {
		span.RecordError(err)
		return fmt.Errorf("regenerate and sync: %w", err)
	}

	l.applyDerisk(ctx, md, acc)

	l.tickCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", l.symbol)))
	l.tickLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("symbol", l.symbol)))

	return nil
}

// applyRiskEvaluation evaluates the risk engine and, if a stop fires,
// drives the state machine transition and runs the stop's bound
// actions in sequence.
func (l *Loop) applyRiskEvaluation(md MarketData, snap *domain.Snapshot) {
	result := l.riskEngine.Evaluate(md.Timestamp)
	if !result.Result.Triggered {
		return
	}

	if !l.machine.TransitionTo(result.Result.TargetRegime, result.Result.Reason, md.Timestamp, snap) {
		l.logger.Warn("risk stop fired but transition was rejected",
			zap.String("trigger", string(result.Result.Trigger)),
			zap.String("target_regime", string(result.Result.TargetRegime)))
		return
	}

	if result.Stop != nil {
		result.Stop.ExecuteActions(md.Timestamp, result.Result, snap)
	}
}

// regenerateAndSync recomputes the desired ladder for the current
// regime, applies skew to each rung, and diffs it against live orders.
func (l *Loop) regenerateAndSync(ctx context.Context, md MarketData, acc AccountData) error {
	inventoryRatioF, _ := acc.InventoryRatio.Float64()
	regime := l.machine.CurrentRegime()

	l.gate.UpdateOuterRange(md.OuterRange.Low, md.OuterRange.High)
	if updater, ok := l.gate.(interface {
		UpdateState(currentPrice, inventoryRatio, breakevenPrice decimal.Decimal)
	}); ok {
		updater.UpdateState(md.MarkPrice, acc.InventoryRatio, acc.BreakevenPrice)
	}

	opportunityValid := l.gate.OpportunityValid()
	coreZone := l.gate.CoreZone()
	l.trackOpportunityValidity(md.Timestamp, opportunityValid)

	desired := l.generator.Generate(gridgen.Inputs{
		CurrentPrice:     md.MarkPrice,
		InventoryRatio:   acc.InventoryRatio,
		ATR:              md.ATR,
		Regime:           regime,
		OuterRange:       md.OuterRange,
		CoreZone:         coreZone,
		OpportunityValid: opportunityValid,
	})

	for i, order := range desired {
		isInCoreZone := coreZone.Contains(order.Price)
		result := l.skewEngine.Calculate(order.Price, order.Side, inventoryRatioF, regime, opportunityValid, isInCoreZone)
		if result.IsSkewed {
			desired[i].Price = result.SkewedPrice
		}
	}

	current := l.orders.GetActiveOrders()
	syncResult := l.orders.SyncOrders(desired, current, md.Timestamp)

	for _, id := range syncResult.ToCancel {
		if err := l.execution.CancelOrder(ctx, id); err != nil {
			l.logger.Error("cancel order failed", zap.String("client_order_id", id), zap.Error(err))
		}
	}
	for _, order := range syncResult.ToPlace {
		if err := l.execution.PlaceOrder(ctx, order); err != nil {
			l.logger.Error("place order failed", zap.String("client_order_id", order.ClientOrderID), zap.Error(err))
		}
	}

	return nil
}

// trackOpportunityValidity maintains the timestamp the opportunity
// window last became valid, so applyDerisk can compute the sustained
// duration the harvest condition requires (SPEC_FULL.md §4.7).
func (l *Loop) trackOpportunityValidity(ts time.Time, valid bool) {
	if !valid {
		l.opportunityValidSince = nil
		return
	}
	if l.opportunityValidSince == nil {
		since := ts
		l.opportunityValidSince = &since
	}
}

func (l *Loop) opportunityValidMinutes(ts time.Time) int {
	if l.opportunityValidSince == nil {
		return 0
	}
	return int(ts.Sub(*l.opportunityValidSince).Minutes())
}

// applyDerisk evaluates the voluntary reduce engines and, if one
// proposes a reduction, logs it, counts it on the reduce counter and
// records the cooldown. It places no reduce order: the proposal is not
// passed to any ReduceTo actuator.
func (l *Loop) applyDerisk(ctx context.Context, md MarketData, acc AccountData) {
	inventoryRatioF, _ := acc.InventoryRatio.Float64()
	breakevenF, _ := acc.BreakevenPrice.Float64()
	priceF, _ := md.MarkPrice.Float64()
	equityF, _ := acc.Equity.Float64()
	initialEquityF, _ := acc.InitialEquity.Float64()

	decision := l.deriskEng.Evaluate(derisk.EvaluateInputs{
		Timestamp:                md.Timestamp,
		InventoryRatio:           inventoryRatioF,
		PositionNotionalPositive: acc.PositionQty.IsPositive(),
		BreakevenPrice:           breakevenF,
		CurrentPrice:             priceF,
		OpportunityValid:         l.gate.OpportunityValid(),
		OpportunityValidMinutes:  l.opportunityValidMinutes(md.Timestamp),
		Regime:                   l.machine.CurrentRegime(),
		InitialEquity:            initialEquityF,
		CurrentEquity:            equityF,
	})

	if !decision.ShouldReduce {
		return
	}

	l.logger.Info("voluntary reduce proposed", zap.String("reason", decision.Reason), zap.Float64("target_ratio", decision.TargetRatio))
	l.reduceCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", l.symbol), attribute.String("reason", decision.Reason)))
	l.deriskEng.OnReduceExecuted(md.Timestamp)
}
