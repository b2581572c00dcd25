// Package dryrun implements a logging-only venue adapter: it satisfies
// every narrow execution interface the decision core declares for itself
// (ordermgr.ExecutionAdapter, ordermgr.PositionActuator,
// riskengine.EmergencyActions, eventloop.PlacerCanceller) without placing
// a single real order. It stands where a live venue client would sit —
// wiring a real venue means implementing these same four interfaces
// against a real client, nothing in the decision core changes.
// cmd/gridengine uses it for every session, since only -dry-run sessions
// start there.
package dryrun

import (
	"context"
	"fmt"
	"sync/atomic"

	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// VenueAdapter answers every cancel/reduce/emergency call immediately and
// successfully, logging what a real venue call would have done.
type VenueAdapter struct {
	logger    *zap.Logger
	cancelled int64
}

// NewVenueAdapter constructs a VenueAdapter.
func NewVenueAdapter(logger *zap.Logger) *VenueAdapter {
	return &VenueAdapter{logger: logger}
}

// CancelOrder reports the cancel as successful without contacting a venue.
func (v *VenueAdapter) CancelOrder(orderID string) (bool, error) {
	atomic.AddInt64(&v.cancelled, 1)
	v.logger.Info("dryrun: cancel order", zap.String("order_id", orderID))
	return true, nil
}

// CancelAllOrders reports zero resting orders cancelled; the dry-run
// adapter never actually holds exchange-side state to cancel.
func (v *VenueAdapter) CancelAllOrders(symbol string) (int, error) {
	v.logger.Info("dryrun: cancel all orders", zap.String("symbol", symbol))
	return 0, nil
}

// ReduceTo logs the requested inventory-ratio target. A real adapter
// would place the reduce-only market/limit orders needed to get there.
func (v *VenueAdapter) ReduceTo(targetRatio decimal.Decimal) error {
	v.logger.Info("dryrun: reduce position", zap.String("target_ratio", targetRatio.String()))
	return nil
}

// ForcedReduce logs an unconditional forced reduction.
func (v *VenueAdapter) ForcedReduce() error {
	v.logger.Warn("dryrun: forced reduce")
	return nil
}

// PrepareReanchorOrExit logs the structural-break recovery request; the
// decision of re-anchor vs. exit is left to the operator in dry-run mode.
func (v *VenueAdapter) PrepareReanchorOrExit() error {
	v.logger.Warn("dryrun: prepare reanchor or exit")
	return nil
}

// KillSwitch logs the kill switch trip.
func (v *VenueAdapter) KillSwitch() error {
	v.logger.Error("dryrun: kill switch engaged")
	return nil
}

// EmergencyExit logs the emergency exit sequence.
func (v *VenueAdapter) EmergencyExit() error {
	v.logger.Error("dryrun: emergency exit executed")
	return nil
}

// OrderPlacer satisfies eventloop.PlacerCanceller. It is kept as a
// separate type from VenueAdapter because PlaceOrder/CancelOrder's
// context-carrying signatures would otherwise collide with
// VenueAdapter's venue-level CancelOrder.
type OrderPlacer struct {
	logger *zap.Logger
	venue  *VenueAdapter
	placed int64
}

// NewOrderPlacer constructs an OrderPlacer that delegates cancellation to
// the given VenueAdapter.
func NewOrderPlacer(logger *zap.Logger, venue *VenueAdapter) *OrderPlacer {
	return &OrderPlacer{logger: logger, venue: venue}
}

// PlaceOrder logs the intended placement; no order is actually sent.
func (p *OrderPlacer) PlaceOrder(ctx context.Context, order domain.GridOrder) error {
	atomic.AddInt64(&p.placed, 1)
	p.logger.Info("dryrun: place order",
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("qty", order.Qty.String()),
		zap.Bool("reduce_only", order.ReduceOnly))
	return nil
}

// CancelOrder delegates to the venue adapter, discarding the "existed"
// bool PlacerCanceller's narrower interface doesn't carry.
func (p *OrderPlacer) CancelOrder(ctx context.Context, clientOrderID string) error {
	_, err := p.venue.CancelOrder(clientOrderID)
	return err
}

// PlacedCount returns how many orders have been logged as placed.
func (p *OrderPlacer) PlacedCount() int { return int(atomic.LoadInt64(&p.placed)) }

func (v *VenueAdapter) String() string {
	return fmt.Sprintf("dryrun.VenueAdapter{cancelled=%d}", atomic.LoadInt64(&v.cancelled))
}
