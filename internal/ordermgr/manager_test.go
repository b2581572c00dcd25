package ordermgr

import (
	"testing"
	"time"

	"gridcore/internal/audit"
	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeExecution struct {
	cancelled []string
	cancelAllSymbol string
}

func (f *fakeExecution) CancelOrder(orderID string) (bool, error) {
	f.cancelled = append(f.cancelled, orderID)
	return true, nil
}

func (f *fakeExecution) CancelAllOrders(symbol string) (int, error) {
	f.cancelAllSymbol = symbol
	return 0, nil
}

type fakePosition struct {
	reducedTo       *decimal.Decimal
	forcedReduced   bool
	reanchorPrepped bool
}

func (f *fakePosition) ReduceTo(target decimal.Decimal) error {
	f.reducedTo = &target
	return nil
}

func (f *fakePosition) ForcedReduce() error {
	f.forcedReduced = true
	return nil
}

func (f *fakePosition) PrepareReanchorOrExit() error {
	f.reanchorPrepped = true
	return nil
}

func newTestManager() (*Manager, *fakeExecution, *fakePosition) {
	exec := &fakeExecution{}
	pos := &fakePosition{}
	m := New("sess-1", "BTCUSDT", audit.NullJournal{}, exec, pos, DefaultThrottleConfig())
	return m, exec, pos
}

func testOrder(level int, side domain.Side, price float64, reduceOnly bool, clientID string) domain.GridOrder {
	return domain.GridOrder{
		Symbol:        "BTCUSDT",
		Side:          side,
		Price:         decimal.NewFromFloat(price),
		Qty:           decimal.NewFromFloat(1),
		ReduceOnly:    reduceOnly,
		GridLevel:     level,
		Status:        domain.OrderPending,
		ClientOrderID: clientID,
	}
}

func TestCanPlaceOrderBlockedByKillSwitch(t *testing.T) {
	m, _, _ := newTestManager()
	m.SetMode(domain.ModeKillSwitch)

	ok, reason := m.CanPlaceOrder(testOrder(1, domain.SideSell, 101, false, "c1"), time.Now())
	require.False(t, ok)
	require.Equal(t, "kill_switch_active", reason)
}

func TestCanPlaceOrderReduceOnlyModeBlocksNonReduceOnly(t *testing.T) {
	m, _, _ := newTestManager()
	m.SetMode(domain.ModeReduceOnly)

	ok, _ := m.CanPlaceOrder(testOrder(1, domain.SideSell, 101, false, "c1"), time.Now())
	require.False(t, ok)

	ok2, _ := m.CanPlaceOrder(testOrder(1, domain.SideSell, 101, true, "c2"), time.Now())
	require.True(t, ok2)
}

func TestCanPlaceOrderNoNewBuysBlocksOnlyBuys(t *testing.T) {
	m, _, _ := newTestManager()
	m.SetMode(domain.ModeNoNewBuys)

	okBuy, _ := m.CanPlaceOrder(testOrder(-1, domain.SideBuy, 99, false, "c1"), time.Now())
	require.False(t, okBuy)

	okSell, _ := m.CanPlaceOrder(testOrder(1, domain.SideSell, 101, false, "c2"), time.Now())
	require.True(t, okSell)
}

func TestCanPlaceOrderRejectsDuplicateClientID(t *testing.T) {
	m, _, _ := newTestManager()
	ts := time.Now()
	order := testOrder(1, domain.SideSell, 101, false, "dup-1")
	m.RegisterOrder(order, ts)

	ok, reason := m.CanPlaceOrder(order, ts)
	require.False(t, ok)
	require.Equal(t, "duplicate_order", reason)
}

func TestSyncOrdersPlacesMissingDesired(t *testing.T) {
	m, _, _ := newTestManager()
	ts := time.Now()

	desired := []domain.GridOrder{testOrder(1, domain.SideSell, 101, false, "new-1")}
	result := m.SyncOrders(desired, nil, ts)

	require.Len(t, result.ToPlace, 1)
	require.Empty(t, result.ToCancel)
}

func TestSyncOrdersCancelsMissingFromCurrent(t *testing.T) {
	m, _, _ := newTestManager()
	old := ts0().Add(-time.Hour)
	current := []domain.GridOrder{testOrder(1, domain.SideSell, 101, false, "stale-1")}
	m.RegisterOrder(current[0], old)

	result := m.SyncOrders(nil, current, ts0())
	require.Equal(t, []string{"stale-1"}, result.ToCancel)
}

func TestSyncOrdersRespectsMinLifetimeGate(t *testing.T) {
	m, _, _ := newTestManager()
	now := ts0()
	current := []domain.GridOrder{testOrder(1, domain.SideSell, 101, false, "fresh-1")}
	m.RegisterOrder(current[0], now)

	// Order was just created; too young to cancel.
	result := m.SyncOrders(nil, current, now.Add(5*time.Second))
	require.Empty(t, result.ToCancel)
}

func TestSyncOrdersModifiesOnLargePriceDrift(t *testing.T) {
	m, _, _ := newTestManager()
	m.UpdateATR(decimal.NewFromFloat(1))
	old := ts0().Add(-time.Hour)

	current := []domain.GridOrder{testOrder(1, domain.SideSell, 101, false, "c1")}
	m.RegisterOrder(current[0], old)

	desired := []domain.GridOrder{testOrder(1, domain.SideSell, 103, false, "c1-new")}

	result := m.SyncOrders(desired, current, ts0())
	require.Len(t, result.ToCancel, 1)
	require.Len(t, result.ToPlace, 1)
}

func TestSyncOrdersFreezesWhenCancelRateExceeded(t *testing.T) {
	m, _, _ := newTestManager()
	m.throttle.CancelRateLimitPerMinute = 1
	old := ts0().Add(-time.Hour)

	current := []domain.GridOrder{
		testOrder(1, domain.SideSell, 101, false, "c1"),
		testOrder(2, domain.SideSell, 102, false, "c2"),
	}
	for _, o := range current {
		m.RegisterOrder(o, old)
	}

	result := m.SyncOrders(nil, current, ts0())
	require.Empty(t, result.ToCancel)
	require.True(t, m.IsFrozen())
}

func TestRiskyBuyOrderIDsFiltersOutsideCoreZone(t *testing.T) {
	m, _, _ := newTestManager()
	ts := ts0()
	m.RegisterOrder(testOrder(-1, domain.SideBuy, 98, false, "inside"), ts)
	m.RegisterOrder(testOrder(-2, domain.SideBuy, 80, false, "outside"), ts)
	m.RegisterOrder(testOrder(-3, domain.SideBuy, 80, true, "outside-reduce-only"), ts)

	risky := m.RiskyBuyOrderIDs(decimal.NewFromInt(95), decimal.NewFromInt(105))
	require.Equal(t, []string{"outside"}, risky)
}

func TestNonReduceOnlyOrderIDsExcludesReduceOnly(t *testing.T) {
	m, _, _ := newTestManager()
	ts := ts0()
	m.RegisterOrder(testOrder(1, domain.SideSell, 101, false, "a"), ts)
	m.RegisterOrder(testOrder(2, domain.SideSell, 102, true, "b"), ts)

	ids := m.NonReduceOnlyOrderIDs()
	require.Equal(t, []string{"a"}, ids)
}

func TestCancelAllNonReduceOnlyInvokesExecution(t *testing.T) {
	m, exec, _ := newTestManager()
	ts := ts0()
	m.RegisterOrder(testOrder(1, domain.SideSell, 101, false, "a"), ts)
	m.RegisterOrder(testOrder(2, domain.SideSell, 102, true, "b"), ts)

	err := m.CancelAllNonReduceOnly()
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, exec.cancelled)
	require.Equal(t, 1, m.ActiveOrderCount())
}

func TestReduceToDelegatesToPositionActuator(t *testing.T) {
	m, _, pos := newTestManager()
	err := m.ReduceTo(decimal.NewFromFloat(0.45))
	require.NoError(t, err)
	require.NotNil(t, pos.reducedTo)
	require.True(t, pos.reducedTo.Equal(decimal.NewFromFloat(0.45)))
}

func TestPrepareReanchorOrExitDelegates(t *testing.T) {
	m, _, pos := newTestManager()
	require.NoError(t, m.PrepareReanchorOrExit())
	require.True(t, pos.reanchorPrepped)
}

func ts0() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}
