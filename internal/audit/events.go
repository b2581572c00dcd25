// Package audit implements the append-only, append-once journal of every
// fact and decision the decision core asserts. Every risk trigger and every
// state transition is required to carry a Snapshot so the journal is
// self-explaining without cross-referencing live state.
package audit

import (
	"time"

	"gridcore/internal/domain"
)

// EventKind is the closed tagged-union of audit event types (spec §3).
type EventKind string

const (
	KindStateChange        EventKind = "state_change"
	KindRiskTrigger        EventKind = "risk_trigger"
	KindInventoryStop      EventKind = "inventory_stop"
	KindRiskBudgetStop     EventKind = "risk_budget_stop"
	KindStructuralStop     EventKind = "structural_stop"
	KindEmergencyStop      EventKind = "emergency_stop"
	KindOrderBlocked       EventKind = "order_blocked"
	KindOrderDuplicateBlk  EventKind = "order_duplicate_blocked"
	KindOrderStuck         EventKind = "order_stuck"
	KindCancelRateExceeded EventKind = "cancel_rate_exceeded"
	KindParamUpdate        EventKind = "param_update"
	KindReanchorRequest    EventKind = "reanchor_request"
	KindReanchorApproved   EventKind = "reanchor_approved"
	KindReanchorRejected   EventKind = "reanchor_rejected"
	KindEmergencyExit      EventKind = "emergency_exit"
	KindForcedExit         EventKind = "forced_exit"
	KindConfigInvalid      EventKind = "config_invalid"
	KindDataUnavailable    EventKind = "data_unavailable"
	KindDuplicateEvent     EventKind = "duplicate_event"
)

// requiredFields lists, per kind, which Event fields must be non-zero. The
// dispatcher refuses to write an event missing one of its required fields
// (spec §9: "the dispatcher refuses to write an event missing a required field").
var requiredFields = map[EventKind][]string{
	KindStateChange:    {"FromState", "ToState", "Snapshot"},
	KindRiskTrigger:    {"TriggerType", "Snapshot"},
	KindInventoryStop:  {"TriggerType", "TriggerValue", "Threshold", "Snapshot"},
	KindRiskBudgetStop: {"TriggerType", "TriggerValue", "Threshold", "Snapshot"},
	KindStructuralStop: {"TriggerType", "TriggerValue", "Threshold", "Snapshot"},
	KindEmergencyStop:  {"TriggerType", "Snapshot"},
	KindOrderBlocked:   {"OrderType", "ToState"},
	KindParamUpdate:    {"ParamName", "ConfigHash"},
}

// Event is a single audit record. Fields unused by a given Kind are left zero.
type Event struct {
	SessionID string
	Timestamp time.Time
	Kind      EventKind
	Reason    string

	FromState string
	ToState   string

	TriggerType  string
	TriggerValue *float64
	Threshold    *float64

	OrderType string
	OrderID   string

	ParamName  string
	OldValue   interface{}
	NewValue   interface{}
	ConfigHash string

	OldRange            *domain.PriceRange
	NewRange            *domain.PriceRange
	RejectionCause      string
	NewSessionID        string
	ConstraintsApplied  map[string]interface{}

	ExitMethod string
	ExitResult string

	Snapshot *domain.Snapshot
	Details  map[string]interface{}
}

// missingRequiredFields reports which of Kind's required fields are zero on e.
func (e Event) missingRequiredFields() []string {
	var missing []string
	for _, f := range requiredFields[e.Kind] {
		switch f {
		case "FromState":
			if e.FromState == "" {
				missing = append(missing, f)
			}
		case "ToState":
			if e.ToState == "" {
				missing = append(missing, f)
			}
		case "Snapshot":
			if e.Snapshot == nil {
				missing = append(missing, f)
			}
		case "TriggerType":
			if e.TriggerType == "" {
				missing = append(missing, f)
			}
		case "TriggerValue":
			if e.TriggerValue == nil {
				missing = append(missing, f)
			}
		case "Threshold":
			if e.Threshold == nil {
				missing = append(missing, f)
			}
		case "OrderType":
			if e.OrderType == "" {
				missing = append(missing, f)
			}
		case "ParamName":
			if e.ParamName == "" {
				missing = append(missing, f)
			}
		case "ConfigHash":
			if e.ConfigHash == "" {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

func f64(v float64) *float64 { return &v }

// StateChange builds a state_change event.
func StateChange(sessionID string, ts time.Time, from, to domain.Regime, reason string, snap *domain.Snapshot) Event {
	return Event{
		SessionID: sessionID,
		Timestamp: ts,
		Kind:      KindStateChange,
		Reason:    reason,
		FromState: string(from),
		ToState:   string(to),
		Snapshot:  snap,
	}
}

// RiskTrigger builds a risk_trigger event.
func RiskTrigger(sessionID string, ts time.Time, triggerType string, value, threshold float64, reason string, snap *domain.Snapshot) Event {
	return Event{
		SessionID:    sessionID,
		Timestamp:    ts,
		Kind:         KindRiskTrigger,
		Reason:       reason,
		TriggerType:  triggerType,
		TriggerValue: f64(value),
		Threshold:    f64(threshold),
		Snapshot:     snap,
	}
}

// RiskStop builds an inventory_stop/risk_budget_stop/structural_stop/
// emergency_stop event. value/threshold may be nil (EmergencyStop's
// triggers are boolean-ish and don't always carry a single measured pair).
func RiskStop(sessionID string, ts time.Time, kind EventKind, triggerType string, value, threshold *float64, reason string, snap *domain.Snapshot) Event {
	return Event{
		SessionID:    sessionID,
		Timestamp:    ts,
		Kind:         kind,
		Reason:       reason,
		TriggerType:  triggerType,
		TriggerValue: value,
		Threshold:    threshold,
		Snapshot:     snap,
	}
}

// OrderBlocked builds an order_blocked event. orderType is e.g. "buy_L02".
func OrderBlocked(sessionID string, ts time.Time, orderType, reason, state string) Event {
	return Event{
		SessionID: sessionID,
		Timestamp: ts,
		Kind:      KindOrderBlocked,
		Reason:    reason,
		OrderType: orderType,
		ToState:   state,
	}
}

// DuplicateBlocked builds an order_duplicate_blocked event.
func DuplicateBlocked(sessionID string, ts time.Time, clientOrderID string) Event {
	return Event{
		SessionID: sessionID,
		Timestamp: ts,
		Kind:      KindOrderDuplicateBlk,
		Reason:    "duplicate_order",
		OrderID:   clientOrderID,
	}
}

// ParamUpdate builds a param_update event.
func ParamUpdate(sessionID string, ts time.Time, paramName string, oldValue, newValue interface{}, configHash, reason string) Event {
	return Event{
		SessionID:  sessionID,
		Timestamp:  ts,
		Kind:       KindParamUpdate,
		Reason:     reason,
		ParamName:  paramName,
		OldValue:   oldValue,
		NewValue:   newValue,
		ConfigHash: configHash,
	}
}

// ReanchorRequest builds a reanchor_approved or reanchor_rejected event.
func ReanchorRequest(sessionID string, ts time.Time, approved bool, oldRange domain.PriceRange, newRange *domain.PriceRange, reason, rejectionCause string, snap *domain.Snapshot) Event {
	kind := KindReanchorRejected
	if approved {
		kind = KindReanchorApproved
	}
	return Event{
		SessionID:      sessionID,
		Timestamp:      ts,
		Kind:           kind,
		Reason:         reason,
		OldRange:       &oldRange,
		NewRange:       newRange,
		RejectionCause: rejectionCause,
		Snapshot:       snap,
	}
}

// ToMap projects an Event to its JSON-line representation, omitting zero
// fields the way the original's to_dict() does.
func (e Event) ToMap() map[string]interface{} {
	d := map[string]interface{}{
		"ts":      e.Timestamp.Format(time.RFC3339Nano),
		"session": e.SessionID,
		"type":    string(e.Kind),
		"reason":  e.Reason,
	}
	if e.FromState != "" {
		d["from"] = e.FromState
	}
	if e.ToState != "" {
		d["to"] = e.ToState
	}
	if e.TriggerType != "" {
		d["trigger"] = e.TriggerType
	}
	if e.TriggerValue != nil {
		d["value"] = *e.TriggerValue
	}
	if e.Threshold != nil {
		d["threshold"] = *e.Threshold
	}
	if e.OrderType != "" {
		d["order_type"] = e.OrderType
	}
	if e.OrderID != "" {
		d["order_id"] = e.OrderID
	}
	if e.ParamName != "" {
		d["param_name"] = e.ParamName
	}
	if e.OldValue != nil {
		d["old_value"] = e.OldValue
	}
	if e.NewValue != nil {
		d["new_value"] = e.NewValue
	}
	if e.ConfigHash != "" {
		d["config_hash"] = e.ConfigHash
	}
	if e.OldRange != nil {
		d["old_range"] = map[string]string{"low": e.OldRange.Low.String(), "high": e.OldRange.High.String()}
	}
	if e.NewRange != nil {
		d["new_range"] = map[string]string{"low": e.NewRange.Low.String(), "high": e.NewRange.High.String()}
	}
	if e.RejectionCause != "" {
		d["rejection_cause"] = e.RejectionCause
	}
	if e.NewSessionID != "" {
		d["new_session_id"] = e.NewSessionID
	}
	if len(e.ConstraintsApplied) > 0 {
		d["constraints_applied"] = e.ConstraintsApplied
	}
	if e.ExitMethod != "" {
		d["exit_method"] = e.ExitMethod
	}
	if e.ExitResult != "" {
		d["exit_result"] = e.ExitResult
	}
	if e.Snapshot != nil {
		d["snapshot"] = snapshotToMap(e.Snapshot)
	}
	if len(e.Details) > 0 {
		d["details"] = e.Details
	}
	return d
}

func snapshotToMap(s *domain.Snapshot) map[string]interface{} {
	m := map[string]interface{}{
		"mark_price":      s.MarkPrice.String(),
		"regime":          string(s.Regime),
		"inventory_ratio": s.InventoryRatio.String(),
		"position_qty":    s.PositionQty.String(),
		"breakeven":       s.BreakevenPrice.String(),
		"equity":          s.Equity.String(),
		"margin_usage":    s.MarginUsage.String(),
		"atr":             s.ATR.String(),
		"is_vol_spike":    s.IsVolSpike,
		"structural_break": s.StructuralBreak,
		"config_hash":     s.ConfigHash,
	}
	if s.LiquidationDistance != nil {
		m["liquidation_distance"] = s.LiquidationDistance.String()
	}
	return m
}
