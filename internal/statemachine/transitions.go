// Package statemachine implements the four-state regime machine (Normal,
// Defensive, DamageControl, EmergencyStop): valid-transition checking,
// bound entry actions, and the per-order permission gate.
package statemachine

import "gridcore/internal/domain"

// Trigger names the condition that produced a TransitionResult. Kept as a
// plain string (rather than a closed enum) so risk triggers and stops can
// each contribute their own trigger names without a shared registry.
type Trigger string

const (
	TriggerPriceBoundary      Trigger = "price_boundary"
	TriggerInvWarn            Trigger = "inv_warn"
	TriggerVolSpike           Trigger = "vol_spike"
	TriggerInvDamage          Trigger = "inv_damage"
	TriggerStructuralBreak    Trigger = "structural_break"
	TriggerRiskBudgetStop     Trigger = "risk_budget_stop"
	TriggerLiquidityGap       Trigger = "liquidity_gap"
	TriggerLiqDistance        Trigger = "liq_distance"
	TriggerAPIFault           Trigger = "api_fault"
	TriggerDataStale          Trigger = "data_stale"
	TriggerConditionsRecovered Trigger = "conditions_recovered"
	TriggerManualReset        Trigger = "manual_reset"
)

// TransitionResult is the outcome of evaluating one risk trigger or stop:
// either no transition is needed, or a target regime with its reason and
// the (value, threshold) pair that explains it.
type TransitionResult struct {
	Triggered   bool
	TargetRegime domain.Regime
	Trigger     Trigger
	Reason      string
	Value       *float64
	Threshold   *float64
}

// NoTransition reports that nothing should change.
func NoTransition() TransitionResult {
	return TransitionResult{}
}

func f64p(v float64) *float64 { return &v }

// ToDefensive builds a triggered transition to Defensive.
func ToDefensive(trigger Trigger, reason string, value, threshold float64) TransitionResult {
	return TransitionResult{Triggered: true, TargetRegime: domain.RegimeDefensive, Trigger: trigger, Reason: reason, Value: f64p(value), Threshold: f64p(threshold)}
}

// ToDamageControl builds a triggered transition to DamageControl.
func ToDamageControl(trigger Trigger, reason string, value, threshold float64) TransitionResult {
	return TransitionResult{Triggered: true, TargetRegime: domain.RegimeDamageControl, Trigger: trigger, Reason: reason, Value: f64p(value), Threshold: f64p(threshold)}
}

// ToEmergencyStop builds a triggered transition to EmergencyStop.
func ToEmergencyStop(trigger Trigger, reason string, value, threshold float64) TransitionResult {
	return TransitionResult{Triggered: true, TargetRegime: domain.RegimeEmergencyStop, Trigger: trigger, Reason: reason, Value: f64p(value), Threshold: f64p(threshold)}
}

// ToNormal builds a triggered transition back to Normal (no value/threshold
// attached — recovery conditions are boolean, not a single measured value).
func ToNormal(trigger Trigger, reason string) TransitionResult {
	return TransitionResult{Triggered: true, TargetRegime: domain.RegimeNormal, Trigger: trigger, Reason: reason}
}

// validTransitions is the fixed transition graph (spec §4.1). Every regime
// transitions to itself trivially; EmergencyStop only ever recovers to
// Normal, representing the manual-review requirement.
var validTransitions = map[domain.Regime]map[domain.Regime]bool{
	domain.RegimeNormal: {
		domain.RegimeDefensive:     true,
		domain.RegimeEmergencyStop: true,
	},
	domain.RegimeDefensive: {
		domain.RegimeNormal:        true,
		domain.RegimeDamageControl: true,
		domain.RegimeEmergencyStop: true,
	},
	domain.RegimeDamageControl: {
		domain.RegimeNormal:        true,
		domain.RegimeDefensive:     true,
		domain.RegimeEmergencyStop: true,
	},
	domain.RegimeEmergencyStop: {
		domain.RegimeNormal: true,
	},
}

// IsValidTransition reports whether moving from -> to is on the graph.
// Staying in place is always valid.
func IsValidTransition(from, to domain.Regime) bool {
	if from == to {
		return true
	}
	return validTransitions[from][to]
}
