package statemachine

import (
	"testing"
	"time"

	"gridcore/internal/audit"
	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	mode            domain.OrderMode
	risky           []string
	nonReduceOnly   []string
	all             []string
	unregistered    []string
}

func (f *fakeOrders) SetMode(mode domain.OrderMode) { f.mode = mode }
func (f *fakeOrders) RiskyBuyOrderIDs(lo, hi decimal.Decimal) []string { return f.risky }
func (f *fakeOrders) NonReduceOnlyOrderIDs() []string                  { return f.nonReduceOnly }
func (f *fakeOrders) AllOrderIDs() []string                            { return f.all }
func (f *fakeOrders) UnregisterOrder(id string)                        { f.unregistered = append(f.unregistered, id) }

type fakeExecution struct {
	cancelled []string
}

func (f *fakeExecution) CancelOrder(id string) (bool, error) {
	f.cancelled = append(f.cancelled, id)
	return true, nil
}
func (f *fakeExecution) CancelAllOrders(symbol string) (int, error) { return 0, nil }

func TestTransitionToSameRegimeIsNoopSuccess(t *testing.T) {
	m := New("s1", audit.NullJournal{}, nil, &fakeOrders{}, &fakeExecution{}, domain.RegimeNormal)
	ok := m.TransitionTo(domain.RegimeNormal, "noop", time.Now(), nil)
	require.True(t, ok)
}

func TestTransitionToIllegalTargetFails(t *testing.T) {
	m := New("s1", audit.NullJournal{}, nil, &fakeOrders{}, &fakeExecution{}, domain.RegimeEmergencyStop)
	ok := m.TransitionTo(domain.RegimeDamageControl, "illegal", time.Now(), nil)
	require.False(t, ok, "EmergencyStop must only recover to Normal")
}

func TestTransitionToDamageControlSwitchesModeAndCancelsNonReduceOnly(t *testing.T) {
	orders := &fakeOrders{nonReduceOnly: []string{"o1", "o2"}}
	exec := &fakeExecution{}
	m := New("s1", audit.NullJournal{}, nil, orders, exec, domain.RegimeDefensive)

	ok := m.TransitionTo(domain.RegimeDamageControl, "risk_budget_stop", time.Now(), nil)
	require.True(t, ok)
	require.Equal(t, domain.ModeReduceOnly, orders.mode)
	require.ElementsMatch(t, []string{"o1", "o2"}, exec.cancelled)
	require.ElementsMatch(t, []string{"o1", "o2"}, orders.unregistered)
}

func TestCheckOrderAllowedBlocksNewBuyInDefensiveAndWritesAudit(t *testing.T) {
	orders := &fakeOrders{}
	m := New("s1", audit.NullJournal{}, nil, orders, &fakeExecution{}, domain.RegimeNormal)
	m.TransitionTo(domain.RegimeDefensive, "price_boundary", time.Now(), nil)

	result := m.CheckOrderAllowed("new_buy", time.Now())
	require.False(t, result.Allowed)
}

func TestCheckOrderAllowedPermitsSellInDamageControl(t *testing.T) {
	orders := &fakeOrders{}
	m := New("s1", audit.NullJournal{}, nil, orders, &fakeExecution{}, domain.RegimeNormal)
	m.TransitionTo(domain.RegimeDefensive, "x", time.Now(), nil)
	m.TransitionTo(domain.RegimeDamageControl, "y", time.Now(), nil)

	result := m.CheckOrderAllowed("sell", time.Now())
	require.True(t, result.Allowed)
}
