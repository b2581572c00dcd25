package statemachine

import (
	"time"

	"gridcore/internal/audit"
	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderActuator is the narrow surface the state machine needs from the
// order manager to execute its hard-bound entry actions. Implemented by
// internal/ordermgr.Manager.
type OrderActuator interface {
	SetMode(mode domain.OrderMode)
	RiskyBuyOrderIDs(coreLow, coreHigh decimal.Decimal) []string
	NonReduceOnlyOrderIDs() []string
	AllOrderIDs() []string
	UnregisterOrder(orderID string)
}

// ExecutionAdapter is the narrow surface the state machine needs from the
// venue adapter to cancel orders on entry into a defensive regime.
type ExecutionAdapter interface {
	CancelOrder(orderID string) (bool, error)
	CancelAllOrders(symbol string) (int, error)
}

// Machine is the four-state regime machine: it holds the current regime,
// validates and executes transitions, runs each regime's hard-bound entry
// actions, and gates individual order types through the current regime's
// Permission.
type Machine struct {
	sessionID string
	journal   audit.Journal
	logger    *zap.Logger

	orders    OrderActuator
	execution ExecutionAdapter

	symbol       string
	coreZoneLow  domain.PriceRange
	current      domain.Regime
	stateSince   time.Time

	onEmergencyExit func() string
}

// New constructs a Machine starting in Normal unless initial is given.
func New(sessionID string, journal audit.Journal, logger *zap.Logger, orders OrderActuator, execution ExecutionAdapter, initial domain.Regime) *Machine {
	if initial == "" {
		initial = domain.RegimeNormal
	}
	return &Machine{
		sessionID: sessionID,
		journal:   journal,
		logger:    logger,
		orders:    orders,
		execution: execution,
		current:   initial,
	}
}

// CurrentRegime returns the active regime.
func (m *Machine) CurrentRegime() domain.Regime { return m.current }

// Permissions returns the current regime's permission record.
func (m *Machine) Permissions() domain.Permission { return domain.Permissions[m.current] }

// StateSince returns when the current regime was entered.
func (m *Machine) StateSince() time.Time { return m.stateSince }

// StateDurationMinutes returns how long the machine has held its current
// regime as of ts.
func (m *Machine) StateDurationMinutes(ts time.Time) float64 {
	if m.stateSince.IsZero() {
		return 0
	}
	return ts.Sub(m.stateSince).Minutes()
}

// CanTransitionTo reports whether the given regime is reachable from the
// current one.
func (m *Machine) CanTransitionTo(to domain.Regime) bool {
	return IsValidTransition(m.current, to)
}

// TransitionTo attempts to move to newRegime. Transitioning to the current
// regime is a no-op success with no audit write and no entry actions — the
// machine is already there. An illegal transition is refused (false). A
// legal transition mutates state, runs the target regime's bound entry
// actions, then writes a state_change audit event, in that order.
func (m *Machine) TransitionTo(newRegime domain.Regime, reason string, ts time.Time, snap *domain.Snapshot) bool {
	if m.current == newRegime {
		return true
	}
	if !m.CanTransitionTo(newRegime) {
		return false
	}

	oldRegime := m.current
	m.current = newRegime
	m.stateSince = ts

	m.executeEntryActions(newRegime, ts)

	if m.journal != nil {
		evt := audit.StateChange(m.sessionID, ts, oldRegime, newRegime, reason, snap)
		_ = m.journal.Write(evt)
	}
	return true
}

// SetEmergencyExitCallback registers the callback TransitionTo(EmergencyStop)
// invokes as the last entry-action step.
func (m *Machine) SetEmergencyExitCallback(cb func() string) {
	m.onEmergencyExit = cb
}

// SetSymbol sets the traded symbol used for the EmergencyStop entry
// action's batched cancel-all call.
func (m *Machine) SetSymbol(symbol string) { m.symbol = symbol }

// UpdateCoreZone refreshes the core zone used by the Defensive entry
// action to select risky buy orders to cancel.
func (m *Machine) UpdateCoreZone(zone domain.PriceRange) { m.coreZoneLow = zone }

func (m *Machine) executeEntryActions(newRegime domain.Regime, ts time.Time) {
	switch newRegime {
	case domain.RegimeDefensive:
		m.enterDefensive(ts)
	case domain.RegimeDamageControl:
		m.enterDamageControl(ts)
	case domain.RegimeEmergencyStop:
		m.enterEmergencyStop(ts)
	case domain.RegimeNormal:
		m.enterNormal(ts)
	}
}

// enterDefensive cancels risky buy orders outside the core zone and
// switches the order manager to NoNewBuys.
func (m *Machine) enterDefensive(ts time.Time) {
	if m.orders == nil {
		return
	}
	m.orders.SetMode(domain.ModeNoNewBuys)

	if m.execution == nil {
		return
	}
	riskyIDs := m.orders.RiskyBuyOrderIDs(m.coreZoneLow.Low, m.coreZoneLow.High)
	for _, id := range riskyIDs {
		ok, err := m.execution.CancelOrder(id)
		if err == nil && ok {
			m.orders.UnregisterOrder(id)
		}
	}
}

// enterDamageControl cancels all non-reduce-only orders and switches the
// order manager to ReduceOnly.
func (m *Machine) enterDamageControl(ts time.Time) {
	if m.orders == nil {
		return
	}
	m.orders.SetMode(domain.ModeReduceOnly)

	ids := m.orders.NonReduceOnlyOrderIDs()
	if m.execution == nil {
		return
	}
	for _, id := range ids {
		ok, err := m.execution.CancelOrder(id)
		if err == nil && ok {
			m.orders.UnregisterOrder(id)
		}
	}
}

// enterEmergencyStop kills the order manager, prefers a single batched
// cancel-all over a per-order loop, unregisters every order id regardless
// of the cancel outcome, and finally runs the emergency-exit callback.
func (m *Machine) enterEmergencyStop(ts time.Time) {
	var allIDs []string
	if m.orders != nil {
		m.orders.SetMode(domain.ModeKillSwitch)
		allIDs = m.orders.AllOrderIDs()
	}

	if m.execution != nil && m.symbol != "" {
		_, _ = m.execution.CancelAllOrders(m.symbol)
	} else if m.execution != nil {
		for _, id := range allIDs {
			_, _ = m.execution.CancelOrder(id)
		}
	}

	if m.orders != nil {
		for _, id := range allIDs {
			m.orders.UnregisterOrder(id)
		}
	}

	if m.onEmergencyExit != nil {
		m.onEmergencyExit()
	}
}

// enterNormal restores the order manager to Full order mode.
func (m *Machine) enterNormal(ts time.Time) {
	if m.orders != nil {
		m.orders.SetMode(domain.ModeFull)
	}
}

// OrderCheckResult is the outcome of checkOrderAllowed: whether the order
// type is permitted in the current regime, and why not if it isn't.
type OrderCheckResult struct {
	Allowed bool
	Reason  string
}

// CheckOrderAllowed gates one order intent against the current regime's
// Permission. Blocked new_buy/refill_buy attempts write an order_blocked
// audit event; a blocked sell does not (sells are never blocked by any
// regime's Permission today, but the asymmetry is deliberate: a sell block
// in a future regime would not by itself need an audit trail the way a
// stalled buy does).
func (m *Machine) CheckOrderAllowed(orderType string, ts time.Time) OrderCheckResult {
	perm := m.Permissions()

	switch orderType {
	case "new_buy":
		if !perm.AllowNewBuy {
			m.writeOrderBlocked("new_buy", "no_new_buys", ts)
			return OrderCheckResult{false, "new buy orders not allowed in current state"}
		}
	case "refill_buy":
		if !perm.AllowRefillBuy {
			m.writeOrderBlocked("refill_buy", "no_refill_buys", ts)
			return OrderCheckResult{false, "refill buy orders not allowed in current state"}
		}
	case "sell":
		if !perm.AllowSell {
			return OrderCheckResult{false, "sell orders not allowed in current state"}
		}
	}
	return OrderCheckResult{true, ""}
}

func (m *Machine) writeOrderBlocked(orderType, reason string, ts time.Time) {
	if m.journal == nil {
		return
	}
	evt := audit.OrderBlocked(m.sessionID, ts, orderType, reason, string(m.current))
	_ = m.journal.Write(evt)
}
