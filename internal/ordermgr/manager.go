// Package ordermgr reconciles the grid generator's desired ladder against
// live orders: order-mode enforcement, the diff algorithm, idempotence,
// cancel-rate throttling with freeze/backoff, and the helper queries the
// state machine's entry actions use to pick which orders to cancel.
package ordermgr

import (
	"fmt"
	"sync"
	"time"

	"gridcore/internal/audit"
	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ThrottleConfig holds the minimum-lifetime, price-change, and cancel-rate
// throttling parameters.
type ThrottleConfig struct {
	MinOrderLifetimeSeconds     int
	PriceChangeThresholdATRMult float64
	CancelRateLimitPerMinute   int
	FreezeDurationSeconds      int
}

// DefaultThrottleConfig returns the spec defaults.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MinOrderLifetimeSeconds:     30,
		PriceChangeThresholdATRMult: 0.1,
		CancelRateLimitPerMinute:    10,
		FreezeDurationSeconds:       60,
	}
}

// ExecutionAdapter is the narrow venue surface the manager needs to
// actually cancel orders (also satisfies statemachine.ExecutionAdapter).
type ExecutionAdapter interface {
	CancelOrder(orderID string) (bool, error)
	CancelAllOrders(symbol string) (int, error)
}

// PositionActuator is the narrow surface the manager delegates
// position-sizing reductions to; implemented by the position layer.
type PositionActuator interface {
	ReduceTo(targetRatio decimal.Decimal) error
	ForcedReduce() error
	PrepareReanchorOrExit() error
}

// Manager tracks order mode, active orders, and throttle state, and
// performs the desired-vs-current diff.
type Manager struct {
	mu sync.RWMutex

	sessionID string
	symbol    string
	journal   audit.Journal
	execution ExecutionAdapter
	position  PositionActuator
	throttle  ThrottleConfig

	mode domain.OrderMode

	activeOrders    map[string]domain.GridOrder
	orderCreatedAt  map[string]time.Time
	processedIDs    map[string]bool

	cancelLimiter *rate.Limiter
	isFrozen      bool
	freezeUntil   time.Time

	currentATR decimal.Decimal
}

// New constructs a Manager starting in Full mode. The cancel-rate
// throttle is a token bucket refilling at throttle.CancelRateLimitPerMinute
// tokens per 60 seconds, with a burst equal to that same per-minute
// budget — mirroring the teacher's internal/trading/order/executor.go use
// of golang.org/x/time/rate for venue-call throttling. The bucket itself
// is built lazily on first use so a throttle override applied right after
// construction (as the tests do) still takes effect.
func New(sessionID, symbol string, journal audit.Journal, execution ExecutionAdapter, position PositionActuator, throttle ThrottleConfig) *Manager {
	return &Manager{
		sessionID:      sessionID,
		symbol:         symbol,
		journal:        journal,
		execution:      execution,
		position:       position,
		throttle:       throttle,
		mode:           domain.ModeFull,
		activeOrders:   make(map[string]domain.GridOrder),
		orderCreatedAt: make(map[string]time.Time),
		processedIDs:   make(map[string]bool),
	}
}

// SetMode changes the order mode (satisfies statemachine.OrderActuator).
func (m *Manager) SetMode(mode domain.OrderMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// Mode returns the current order mode.
func (m *Manager) Mode() domain.OrderMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// UpdateATR refreshes the ATR used for the diff algorithm's price-change
// threshold.
func (m *Manager) UpdateATR(atr decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentATR = atr
}

// CanPlaceOrder checks freeze state, mode enforcement, and idempotence,
// in that order, writing the appropriate audit event on a block.
func (m *Manager) CanPlaceOrder(order domain.GridOrder, ts time.Time) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canPlaceOrderLocked(order, ts)
}

func (m *Manager) canPlaceOrderLocked(order domain.GridOrder, ts time.Time) (bool, string) {
	if m.isFrozen {
		if !m.freezeUntil.IsZero() && !ts.Before(m.freezeUntil) {
			m.isFrozen = false
			m.freezeUntil = time.Time{}
		} else {
			return false, "order_manager_frozen"
		}
	}

	if ok, reason := m.checkModeAllows(order); !ok {
		m.writeOrderBlocked(order, reason, ts)
		return false, reason
	}

	if m.processedIDs[order.ClientOrderID] {
		m.writeDuplicateBlocked(order, ts)
		return false, "duplicate_order"
	}

	return true, ""
}

func (m *Manager) checkModeAllows(order domain.GridOrder) (bool, string) {
	switch m.mode {
	case domain.ModeKillSwitch:
		return false, "kill_switch_active"
	case domain.ModeReduceOnly:
		if !order.ReduceOnly {
			return false, "reduce_only_mode"
		}
	case domain.ModeNoNewBuys:
		if order.Side == domain.SideBuy && !order.ReduceOnly {
			return false, "no_new_buys_mode"
		}
	}
	return true, ""
}

func (m *Manager) writeOrderBlocked(order domain.GridOrder, reason string, ts time.Time) {
	if m.journal == nil {
		return
	}
	orderType := fmt.Sprintf("%s_%d", order.Side, order.GridLevel)
	evt := audit.OrderBlocked(m.sessionID, ts, orderType, reason, string(m.mode))
	_ = m.journal.Write(evt)
}

func (m *Manager) writeDuplicateBlocked(order domain.GridOrder, ts time.Time) {
	if m.journal == nil {
		return
	}
	evt := audit.DuplicateBlocked(m.sessionID, ts, order.ClientOrderID)
	_ = m.journal.Write(evt)
}

// SyncResult is the outcome of one diff: which orders to place, and which
// live order IDs to cancel.
type SyncResult struct {
	ToPlace  []domain.GridOrder
	ToCancel []string
}

// SyncOrders runs the desired-vs-current diff: keys both sets by
// (grid_level, side); a desired key missing from current is a placement
// candidate (subject to CanPlaceOrder); a current key missing from
// desired is a cancellation candidate (subject to the minimum-lifetime
// gate); a key in both whose price has drifted past the threshold is
// cancel+place. If the resulting cancellations would exceed the rolling
// cancel-rate limit, the manager freezes and returns an empty result
// instead of performing any part of the diff.
func (m *Manager) SyncOrders(desired, current []domain.GridOrder, ts time.Time) SyncResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	currentByKey := make(map[domain.GridKey]domain.GridOrder, len(current))
	for _, o := range current {
		currentByKey[o.Key()] = o
	}
	desiredByKey := make(map[domain.GridKey]domain.GridOrder, len(desired))
	for _, o := range desired {
		desiredByKey[o.Key()] = o
	}

	var toPlace []domain.GridOrder
	var toCancel []string

	for key, currentOrder := range currentByKey {
		desiredOrder, stillDesired := desiredByKey[key]
		if !stillDesired {
			if m.canCancel(currentOrder, ts) {
				toCancel = append(toCancel, currentOrder.ClientOrderID)
			}
			continue
		}
		if m.shouldModify(currentOrder, desiredOrder) {
			if m.canCancel(currentOrder, ts) {
				toCancel = append(toCancel, currentOrder.ClientOrderID)
				toPlace = append(toPlace, desiredOrder)
			}
		}
	}

	for key, desiredOrder := range desiredByKey {
		if _, exists := currentByKey[key]; !exists {
			if ok, _ := m.canPlaceOrderLocked(desiredOrder, ts); ok {
				toPlace = append(toPlace, desiredOrder)
			}
		}
	}

	if len(toCancel) > 0 {
		if !m.checkCancelRate(len(toCancel), ts) {
			m.freeze(ts)
			return SyncResult{}
		}
	}

	return SyncResult{ToPlace: toPlace, ToCancel: toCancel}
}

func (m *Manager) canCancel(order domain.GridOrder, ts time.Time) bool {
	createdAt, ok := m.orderCreatedAt[order.ClientOrderID]
	if !ok {
		return true
	}
	ageSeconds := ts.Sub(createdAt).Seconds()
	return ageSeconds >= float64(m.throttle.MinOrderLifetimeSeconds)
}

func (m *Manager) shouldModify(current, desired domain.GridOrder) bool {
	var threshold decimal.Decimal
	if m.currentATR.IsZero() || m.currentATR.IsNegative() {
		threshold = current.Price.Mul(decimal.NewFromFloat(0.0005))
	} else {
		threshold = m.currentATR.Mul(decimal.NewFromFloat(m.throttle.PriceChangeThresholdATRMult))
	}
	priceDiff := current.Price.Sub(desired.Price).Abs()
	return priceDiff.GreaterThan(threshold)
}

// checkCancelRate reports whether cancelCount tokens are available in the
// cancel-rate token bucket at ts, consuming them if so. It never blocks:
// a diff that would exceed the budget is rejected outright so SyncOrders
// can freeze instead of performing a partial cancel.
func (m *Manager) checkCancelRate(cancelCount int, ts time.Time) bool {
	if m.cancelLimiter == nil {
		m.cancelLimiter = rate.NewLimiter(rate.Limit(float64(m.throttle.CancelRateLimitPerMinute)/60.0), m.throttle.CancelRateLimitPerMinute)
	}
	if m.cancelLimiter.AllowN(ts, cancelCount) {
		return true
	}
	if m.journal != nil {
		reason := fmt.Sprintf("cancel_rate_limit: %d exceeds remaining budget of %d/min", cancelCount, m.throttle.CancelRateLimitPerMinute)
		evt := audit.Event{
			SessionID: m.sessionID,
			Timestamp: ts,
			Kind:      audit.KindCancelRateExceeded,
			Reason:    reason,
		}
		_ = m.journal.Write(evt)
	}
	return false
}

func (m *Manager) freeze(ts time.Time) {
	m.isFrozen = true
	m.freezeUntil = ts.Add(time.Duration(m.throttle.FreezeDurationSeconds) * time.Second)
}

// IsFrozen reports whether the manager is currently refusing all
// placement and cancellation.
func (m *Manager) IsFrozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isFrozen
}

// RegisterOrder records a newly placed order as active.
func (m *Manager) RegisterOrder(order domain.GridOrder, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrders[order.ClientOrderID] = order
	m.orderCreatedAt[order.ClientOrderID] = ts
	m.processedIDs[order.ClientOrderID] = true
}

// UnregisterOrder removes an order from the active set (satisfies
// statemachine.OrderActuator).
func (m *Manager) UnregisterOrder(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.activeOrders, orderID)
	delete(m.orderCreatedAt, orderID)
}

// ActiveOrderCount returns the number of currently tracked live orders.
func (m *Manager) ActiveOrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeOrders)
}

// GetActiveOrders returns a snapshot of all tracked live orders.
func (m *Manager) GetActiveOrders() []domain.GridOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	orders := make([]domain.GridOrder, 0, len(m.activeOrders))
	for _, o := range m.activeOrders {
		orders = append(orders, o)
	}
	return orders
}

// RiskyBuyOrderIDs returns buy orders outside the core zone that are not
// reduce-only — candidates for cancellation on entry into Defensive
// (satisfies statemachine.OrderActuator).
func (m *Manager) RiskyBuyOrderIDs(coreZoneLow, coreZoneHigh decimal.Decimal) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, o := range m.activeOrders {
		if o.Side != domain.SideBuy || o.ReduceOnly {
			continue
		}
		if o.Price.LessThan(coreZoneLow) || o.Price.GreaterThan(coreZoneHigh) {
			ids = append(ids, o.ClientOrderID)
		}
	}
	return ids
}

// NonReduceOnlyOrderIDs returns every order that is not reduce-only — the
// candidates for cancellation on entry into DamageControl (satisfies
// statemachine.OrderActuator).
func (m *Manager) NonReduceOnlyOrderIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, o := range m.activeOrders {
		if !o.ReduceOnly {
			ids = append(ids, o.ClientOrderID)
		}
	}
	return ids
}

// AllOrderIDs returns every tracked order ID — used on entry into
// EmergencyStop (satisfies statemachine.OrderActuator).
func (m *Manager) AllOrderIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.activeOrders))
	for id := range m.activeOrders {
		ids = append(ids, id)
	}
	return ids
}

// CancelAllNonReduceOnly cancels every non-reduce-only order via the
// execution adapter and unregisters the ones that cancel successfully
// (satisfies riskengine.OrderActions).
func (m *Manager) CancelAllNonReduceOnly() error {
	ids := m.NonReduceOnlyOrderIDs()
	return m.cancelByIDs(ids)
}

// CancelAll cancels every tracked order, preferring a single batched
// cancel-all call when the execution adapter supports the symbol
// (satisfies riskengine.OrderActions).
func (m *Manager) CancelAll() error {
	if m.execution == nil {
		return nil
	}
	if m.symbol != "" {
		_, err := m.execution.CancelAllOrders(m.symbol)
		if err == nil {
			m.mu.Lock()
			m.activeOrders = make(map[string]domain.GridOrder)
			m.orderCreatedAt = make(map[string]time.Time)
			m.mu.Unlock()
		}
		return err
	}
	return m.cancelByIDs(m.AllOrderIDs())
}

func (m *Manager) cancelByIDs(ids []string) error {
	if m.execution == nil {
		return nil
	}
	var firstErr error
	for _, id := range ids {
		ok, err := m.execution.CancelOrder(id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			m.UnregisterOrder(id)
		}
	}
	return firstErr
}

// ReduceTo delegates to the position actuator (satisfies
// riskengine.OrderActions).
func (m *Manager) ReduceTo(targetRatio decimal.Decimal) error {
	if m.position == nil {
		return nil
	}
	return m.position.ReduceTo(targetRatio)
}

// ForcedReduce delegates to the position actuator (satisfies
// riskengine.OrderActions).
func (m *Manager) ForcedReduce() error {
	if m.position == nil {
		return nil
	}
	return m.position.ForcedReduce()
}

// PrepareReanchorOrExit delegates to the position actuator (satisfies
// riskengine.OrderActions).
func (m *Manager) PrepareReanchorOrExit() error {
	if m.position == nil {
		return nil
	}
	return m.position.PrepareReanchorOrExit()
}
