package riskengine

import (
	"time"

	"gridcore/internal/audit"
	"gridcore/internal/domain"
	"gridcore/internal/statemachine"

	"github.com/shopspring/decimal"
)

// Stop binds a trigger's evaluation to the concrete order/position actions
// that must run when it fires, in the exact sequence: evaluate, mutate
// regime, then execute bound actions, then write the audit event. The
// regime mutation itself is performed by the caller (via
// statemachine.Machine.TransitionTo); Stop only owns ExecuteActions and
// the audit write.
type Stop interface {
	Name() string
	Evaluate(ts time.Time) statemachine.TransitionResult
	ExecuteActions(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot)
	EnforcePoint() EnforcePoint
}

// OrderActions is the narrow surface a Stop needs to cancel and reduce
// orders/positions. Implemented by internal/ordermgr.Manager.
type OrderActions interface {
	CancelAllNonReduceOnly() error
	CancelAll() error
	ReduceTo(targetRatio decimal.Decimal) error
	ForcedReduce() error
	PrepareReanchorOrExit() error
}

// EmergencyActions is the narrow surface EmergencyStopAction needs beyond
// OrderActions: a hard kill switch and an emergency exit sequence.
type EmergencyActions interface {
	KillSwitch() error
	EmergencyExit() error
}

// InventoryStop escalates to DamageControl at inv_stop (0.85) and forces
// the position back down to 45% of the cap via ReduceTo — the
// forced-reduction target lives here, not in InventoryTrigger's predicate.
type InventoryStop struct {
	trigger      *InventoryTrigger
	actions      OrderActions
	journal      audit.Journal
	sessionID    string
	reduceTarget decimal.Decimal
}

// NewInventoryStop returns a stop wired to its trigger and actuator, with
// the spec default reduce-to target of 0.45.
func NewInventoryStop(trigger *InventoryTrigger, actions OrderActions, journal audit.Journal, sessionID string) *InventoryStop {
	return &InventoryStop{
		trigger:      trigger,
		actions:      actions,
		journal:      journal,
		sessionID:    sessionID,
		reduceTarget: decimal.NewFromFloat(0.45),
	}
}

func (s *InventoryStop) Name() string { return "InventoryStop" }

func (s *InventoryStop) EnforcePoint() EnforcePoint { return EnforceBoth }

func (s *InventoryStop) Evaluate(ts time.Time) statemachine.TransitionResult {
	if s.trigger.currentRatio < s.trigger.Stop {
		return statemachine.NoTransition()
	}
	return statemachine.ToDamageControl(statemachine.TriggerInvDamage,
		reasonPct("inventory_stop", s.trigger.currentRatio, s.trigger.Stop), s.trigger.currentRatio, s.trigger.Stop)
}

func (s *InventoryStop) ExecuteActions(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot) {
	if s.actions == nil {
		return
	}
	_ = s.actions.CancelAllNonReduceOnly()
	_ = s.actions.ReduceTo(s.reduceTarget)
	s.writeAudit(ts, result, snap)
}

func (s *InventoryStop) writeAudit(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot) {
	if s.journal == nil {
		return
	}
	evt := audit.RiskStop(s.sessionID, ts, audit.KindInventoryStop, string(result.Trigger), result.Value, result.Threshold, result.Reason, snap)
	_ = s.journal.Write(evt)
}

// RiskBudgetStop escalates to DamageControl when margin usage or drawdown
// breaches its cap, cancelling all non-reduce-only orders and forcing a
// reduction sized to bring risk back under budget.
type RiskBudgetStop struct {
	trigger   *RiskBudgetTrigger
	actions   OrderActions
	journal   audit.Journal
	sessionID string
}

// NewRiskBudgetStop returns a stop wired to its trigger and actuator.
func NewRiskBudgetStop(trigger *RiskBudgetTrigger, actions OrderActions, journal audit.Journal, sessionID string) *RiskBudgetStop {
	return &RiskBudgetStop{trigger: trigger, actions: actions, journal: journal, sessionID: sessionID}
}

func (s *RiskBudgetStop) Name() string { return "RiskBudgetStop" }

func (s *RiskBudgetStop) EnforcePoint() EnforcePoint { return EnforceBoth }

func (s *RiskBudgetStop) Evaluate(ts time.Time) statemachine.TransitionResult {
	return s.trigger.Check(ts)
}

func (s *RiskBudgetStop) ExecuteActions(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot) {
	if s.actions == nil {
		return
	}
	_ = s.actions.CancelAllNonReduceOnly()
	_ = s.actions.ForcedReduce()
	s.writeAudit(ts, result, snap)
}

func (s *RiskBudgetStop) writeAudit(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot) {
	if s.journal == nil {
		return
	}
	evt := audit.RiskStop(s.sessionID, ts, audit.KindRiskBudgetStop, string(result.Trigger), result.Value, result.Threshold, result.Reason, snap)
	_ = s.journal.Write(evt)
}

// StructuralStop escalates to DamageControl once a structural break is
// confirmed, cancelling every working order (not just non-reduce-only —
// a structural break means the whole grid anchor is suspect) and preparing
// either a re-anchor or an exit, decided downstream by the order manager.
// Checked only at bar close — a structural break is a regime-shift
// judgment, not a tick-level reflex.
type StructuralStop struct {
	trigger   *StructuralTrigger
	actions   OrderActions
	journal   audit.Journal
	sessionID string
}

// NewStructuralStop returns a stop wired to its trigger and actuator.
func NewStructuralStop(trigger *StructuralTrigger, actions OrderActions, journal audit.Journal, sessionID string) *StructuralStop {
	return &StructuralStop{trigger: trigger, actions: actions, journal: journal, sessionID: sessionID}
}

func (s *StructuralStop) Name() string { return "StructuralStop" }

func (s *StructuralStop) EnforcePoint() EnforcePoint { return EnforceOnBarClose }

func (s *StructuralStop) Evaluate(ts time.Time) statemachine.TransitionResult {
	return s.trigger.Check(ts)
}

func (s *StructuralStop) ExecuteActions(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot) {
	if s.actions == nil {
		return
	}
	_ = s.actions.CancelAll()
	_ = s.actions.PrepareReanchorOrExit()
	s.writeAudit(ts, result, snap)
}

func (s *StructuralStop) writeAudit(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot) {
	if s.journal == nil {
		return
	}
	evt := audit.RiskStop(s.sessionID, ts, audit.KindStructuralStop, string(result.Trigger), result.Value, result.Threshold, result.Reason, snap)
	_ = s.journal.Write(evt)
}

// EmergencyStopAction is the highest-priority stop: it trips the kill
// switch, cancels everything (preferring a single batched cancel-all),
// and runs the emergency exit sequence, checked immediately on every
// relevant reading rather than waiting for a control-loop tick.
type EmergencyStopAction struct {
	trigger   *EmergencyTrigger
	actions   OrderActions
	emergency EmergencyActions
	journal   audit.Journal
	sessionID string
}

// NewEmergencyStopAction returns a stop wired to its trigger and
// actuators.
func NewEmergencyStopAction(trigger *EmergencyTrigger, actions OrderActions, emergency EmergencyActions, journal audit.Journal, sessionID string) *EmergencyStopAction {
	return &EmergencyStopAction{trigger: trigger, actions: actions, emergency: emergency, journal: journal, sessionID: sessionID}
}

func (s *EmergencyStopAction) Name() string { return "EmergencyStopAction" }

func (s *EmergencyStopAction) EnforcePoint() EnforcePoint { return EnforceImmediate }

func (s *EmergencyStopAction) Evaluate(ts time.Time) statemachine.TransitionResult {
	return s.trigger.Check(ts)
}

func (s *EmergencyStopAction) ExecuteActions(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot) {
	if s.emergency != nil {
		_ = s.emergency.KillSwitch()
	}
	if s.actions != nil {
		_ = s.actions.CancelAll()
	}
	if s.emergency != nil {
		_ = s.emergency.EmergencyExit()
	}
	s.writeAudit(ts, result, snap)
}

func (s *EmergencyStopAction) writeAudit(ts time.Time, result statemachine.TransitionResult, snap *domain.Snapshot) {
	if s.journal == nil {
		return
	}
	evt := audit.RiskStop(s.sessionID, ts, audit.KindEmergencyStop, string(result.Trigger), result.Value, result.Threshold, result.Reason, snap)
	_ = s.journal.Write(evt)
}

// Engine evaluates every trigger in strict priority order — emergency,
// structural, inventory, risk-budget, then price-boundary — and returns
// the first triggered result along with the stop that owns its bound
// actions, so the caller can drive the state machine transition and then
// run ExecuteActions in sequence.
type Engine struct {
	emergency  *EmergencyStopAction
	structural *StructuralStop
	inventory  *InventoryStop
	riskBudget *RiskBudgetStop
	priceBoundary *PriceBoundaryTrigger

	currentRegime func() domain.Regime
}

// NewEngine wires an evaluation engine over the four stops plus the
// price-boundary trigger (which has no bound actions of its own — it only
// drives a Defensive transition handled directly by the state machine).
func NewEngine(emergency *EmergencyStopAction, structural *StructuralStop, inventory *InventoryStop, riskBudget *RiskBudgetStop, priceBoundary *PriceBoundaryTrigger, currentRegime func() domain.Regime) *Engine {
	return &Engine{
		emergency:     emergency,
		structural:    structural,
		inventory:     inventory,
		riskBudget:    riskBudget,
		priceBoundary: priceBoundary,
		currentRegime: currentRegime,
	}
}

// EvaluateResult pairs a triggered TransitionResult with the Stop whose
// ExecuteActions must run after the state machine transition succeeds.
// Stop is nil for a price-boundary-only transition (no bound actions).
type EvaluateResult struct {
	Result statemachine.TransitionResult
	Stop   Stop
}

// Evaluate runs every trigger/stop in priority order and returns the
// first that fires. Recovery checks (inventory back-to-normal,
// price-boundary recovery) are folded into their own trigger's Check and
// surface the same way.
func (e *Engine) Evaluate(ts time.Time) EvaluateResult {
	if e.emergency != nil {
		if r := e.emergency.Evaluate(ts); r.Triggered {
			return EvaluateResult{Result: r, Stop: e.emergency}
		}
	}
	if e.structural != nil {
		if r := e.structural.Evaluate(ts); r.Triggered {
			return EvaluateResult{Result: r, Stop: e.structural}
		}
	}
	if e.inventory != nil {
		if r := e.inventory.Evaluate(ts); r.Triggered {
			return EvaluateResult{Result: r, Stop: e.inventory}
		}
	}
	if e.riskBudget != nil {
		if r := e.riskBudget.Evaluate(ts); r.Triggered {
			return EvaluateResult{Result: r, Stop: e.riskBudget}
		}
	}
	if e.priceBoundary != nil {
		if r := e.priceBoundary.Check(ts); r.Triggered {
			return EvaluateResult{Result: r}
		}
		if r := e.priceBoundary.CheckRecovery(ts); r.Triggered {
			return EvaluateResult{Result: r}
		}
	}
	return EvaluateResult{Result: statemachine.NoTransition()}
}
